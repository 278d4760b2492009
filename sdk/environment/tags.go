// Package environment provides support for env vars.

package environment

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
)

// ParseEnvTags fills a struct from environment variables using struct tags.
//
//	env:"PG_DATABASE_URL"   variable name, namespaced by prefix
//	default:"25"            value used when the variable is unset or empty
//	separator:";"           element separator for string slices (default ",")
//	validate:"required"     go-playground/validator rules checked after decoding
//
// Only top level fields of cfg are considered.
func ParseEnvTags(prefix string, cfg any) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return errors.New("cfg must be a pointer to a struct")
	}

	fields := envFields(v.Elem().Type())
	if len(fields) == 0 {
		return nil
	}

	k := koanf.New(".")
	if err := k.Load(defaultsProvider(fields), nil); err != nil {
		return fmt.Errorf("loading defaults: %w", err)
	}

	known := make(map[string]envField, len(fields))
	for _, f := range fields {
		known[GetNamespaceEnvKey(prefix, f.key)] = f
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: prefix,
		TransformFunc: func(key, value string) (string, any) {
			f, ok := known[key]
			if !ok || value == "" {
				return "", nil
			}
			return f.key, splitValue(f, value)
		},
	}), nil)
	if err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	err = k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "env",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			TagName:          "env",
			Result:           cfg,
		},
	})
	if err != nil {
		return fmt.Errorf("decoding environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, fmt.Sprintf("%s (%s)", namespacedKey(prefix, fields, fe.StructField()), fe.Tag()))
			}
			return fmt.Errorf("invalid environment: %s", strings.Join(missing, ", "))
		}
		return fmt.Errorf("validating environment: %w", err)
	}

	return nil
}

type envField struct {
	name      string
	key       string
	def       string
	separator string
	slice     bool
}

func envFields(t reflect.Type) []envField {
	var fields []envField
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		key := sf.Tag.Get("env")
		if key == "" {
			continue
		}
		fields = append(fields, envField{
			name:      sf.Name,
			key:       key,
			def:       sf.Tag.Get("default"),
			separator: sf.Tag.Get("separator"),
			slice:     sf.Type.Kind() == reflect.Slice,
		})
	}
	return fields
}

// splitValue pre-splits slices with a custom separator; the decode hook
// handles the default comma.
func splitValue(f envField, value string) any {
	if !f.slice || f.separator == "" {
		return value
	}
	parts := strings.Split(value, f.separator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func namespacedKey(prefix string, fields []envField, structField string) string {
	for _, f := range fields {
		if f.name == structField {
			return GetNamespaceEnvKey(prefix, f.key)
		}
	}
	return structField
}

// defaults is a koanf.Provider over the `default` tags.
type defaults []envField

func defaultsProvider(fields []envField) defaults {
	return defaults(fields)
}

func (d defaults) ReadBytes() ([]byte, error) {
	return nil, errors.New("defaults provider does not support ReadBytes")
}

func (d defaults) Read() (map[string]any, error) {
	out := make(map[string]any, len(d))
	for _, f := range d {
		if f.def == "" {
			continue
		}
		out[f.key] = splitValue(f, f.def)
	}
	return out, nil
}
