package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format 输出格式
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Table 表格数据
type Table struct {
	Headers []string
	Rows    [][]string
}

// Writer 按格式输出结果
type Writer struct {
	format Format
	out    io.Writer
}

// NewWriter 创建输出器，未知格式按 table 处理
func NewWriter(format string, out io.Writer) *Writer {
	f := Format(format)
	if f != FormatJSON && f != FormatYAML {
		f = FormatTable
	}
	return &Writer{format: f, out: out}
}

// Print 输出 data。table 格式下只有 Table 按表格输出，其他类型退化为 JSON。
// table 为 nil 时 json/yaml 直接输出 data。
func (w *Writer) Print(data any, table *Table) error {
	switch w.format {
	case FormatJSON:
		return w.printJSON(data)
	case FormatYAML:
		return w.printYAML(data)
	}
	if table != nil {
		return w.writeTable(*table)
	}
	return w.printJSON(data)
}

func (w *Writer) printJSON(data any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (w *Writer) printYAML(data any) error {
	enc := yaml.NewEncoder(w.out)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func (w *Writer) writeTable(t Table) error {
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	for i, h := range t.Headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	for _, row := range t.Rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
