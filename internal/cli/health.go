package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ceyewan/authzkit/client"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// healthReport health 命令输出
type healthReport struct {
	Healthy    bool              `json:"healthy" yaml:"healthy"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
	Transports []transportHealth `json:"transports" yaml:"transports"`
}

type transportHealth struct {
	Transport string `json:"transport" yaml:"transport"`
	Healthy   bool   `json:"healthy" yaml:"healthy"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (a *app) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check service health through the pipeline and probe each transport",
		Long: `Health runs one health call through the full pipeline, then probes
each configured transport directly, bypassing breakers and retries.
The command fails when the pipeline call fails.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := a.newClient(cmd)
			if err != nil {
				return err
			}
			defer cl.Close()
			ctx := cmd.Context()

			report := healthReport{Healthy: true}
			healthErr := cl.Health(ctx)
			if healthErr != nil {
				report.Healthy = false
				report.Error = healthErr.Error()
			}
			table := &Table{Headers: []string{"TRANSPORT", "HEALTHY", "ERROR"}}
			probes := cl.Probe(ctx)
			for _, kind := range []transport.Kind{transport.KindGRPC, transport.KindREST} {
				err, ok := probes[kind]
				if !ok {
					continue
				}
				th := transportHealth{Transport: kind.String(), Healthy: err == nil}
				if err != nil {
					th.Error = err.Error()
				}
				report.Transports = append(report.Transports, th)
				table.Rows = append(table.Rows, []string{th.Transport, strconv.FormatBool(th.Healthy), th.Error})
			}
			if err := a.writer(cmd).Print(report, table); err != nil {
				return err
			}
			if healthErr != nil {
				return xerrors.Wrap(healthErr, "service unhealthy")
			}
			return nil
		},
	}
}

func (a *app) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Run a health call and print pipeline statistics",
		Long: `Stats sends one health call through the pipeline and prints the
resulting transport counters, breaker states and fallback count. The
statistics belong to this process only.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := a.newClient(cmd)
			if err != nil {
				return err
			}
			defer cl.Close()

			// 失败也计入统计，不中断输出
			_ = cl.Health(cmd.Context())
			s := cl.Stats()
			return a.writer(cmd).Print(s, statsTable(s))
		},
	}
}

func statsTable(s client.Stats) *Table {
	t := &Table{Headers: []string{"COMPONENT", "NAME", "VALUE"}}
	add := func(component, name, value string) {
		t.Rows = append(t.Rows, []string{component, name, value})
	}
	add("dispatch", "strategy", string(s.Dispatch.Strategy))
	add("dispatch", "fallbacks", strconv.FormatUint(s.Dispatch.Fallbacks, 10))
	for _, kind := range []transport.Kind{transport.KindGRPC, transport.KindREST} {
		ts, ok := s.Dispatch.Transports[kind]
		if !ok {
			continue
		}
		add("transport", kind.String()+".sent", strconv.FormatUint(ts.Sent, 10))
		add("transport", kind.String()+".failed", strconv.FormatUint(ts.Failed, 10))
	}
	for _, b := range s.Dispatch.Breakers {
		add("breaker", b.Route, b.State.String())
	}
	if s.Cache != nil {
		add("cache", "hits", strconv.FormatUint(s.Cache.Hits, 10))
		add("cache", "misses", strconv.FormatUint(s.Cache.Misses, 10))
	}
	if s.Audit != nil {
		add("audit", "published", strconv.FormatUint(s.Audit.Published, 10))
		add("audit", "dropped", strconv.FormatUint(s.Audit.Dropped, 10))
	}
	return t
}
