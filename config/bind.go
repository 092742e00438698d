package config

import (
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/ceyewan/authzkit/xerrors"
)

// bindEnvs 按 mapstructure 标签遍历结构体，为每个叶子字段绑定环境变量。
// AutomaticEnv 只对 viper 已知的 key 生效，未出现在文件和默认值中的字段需要显式绑定。
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) error {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		if prefix != "" {
			return bindKey(v, prefix)
		}
		return nil
	}
	if isLeafStruct(t) {
		return bindKey(v, prefix)
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, squash := tagName(f)
		if name == "-" {
			continue
		}

		key := prefix
		if !squash {
			if key != "" {
				key += "."
			}
			key += name
		}

		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && !isLeafStruct(ft) {
			if err := bindEnvs(v, ft, key); err != nil {
				return err
			}
			continue
		}
		if err := bindKey(v, key); err != nil {
			return err
		}
	}
	return nil
}

func bindKey(v *viper.Viper, key string) error {
	if err := v.BindEnv(key); err != nil {
		return xerrors.E(xerrors.KindConfiguration, err, "bind env "+key)
	}
	return nil
}

// tagName 返回字段的配置名，以及是否展开到父级
func tagName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("mapstructure")
	name, opts, _ := strings.Cut(tag, ",")
	squash := strings.Contains(opts, "squash") || (f.Anonymous && name == "")
	if name == "" {
		name = strings.ToLower(f.Name)
	}
	return name, squash
}

// isLeafStruct 报告结构体是否作为单个值解码（如 time.Time）
func isLeafStruct(t reflect.Type) bool {
	return t.PkgPath() == "time"
}
