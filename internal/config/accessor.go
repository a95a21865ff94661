package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Paths used by `palette config get|set` are the json names of Config
// fields joined with dots. Map entries are addressed by key, so
// "providers.openai.apiKey" and "palette.modelProviders.Bedrock" are both
// valid.

// secretPaths are masked by Sanitize in addition to every provider's apiKey.
var secretPaths = []string{
	"peer.apiKey",
	"images.apiKey",
	"server.apiKey",
	"telegram.token",
	"memory.redisPassword",
}

// GetByPath returns the value stored at path.
func GetByPath(cfg *Config, path string) (any, error) {
	v := reflect.ValueOf(cfg).Elem()
	for _, key := range strings.Split(path, ".") {
		switch v.Kind() {
		case reflect.Struct:
			f, ok := fieldByJSONName(v, key)
			if !ok {
				return nil, fmt.Errorf("unknown config path %q", path)
			}
			v = f
		case reflect.Map:
			e := v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
			if !e.IsValid() {
				return nil, fmt.Errorf("unknown config path %q", path)
			}
			v = e
		default:
			return nil, fmt.Errorf("config path %q: %s is not a section", path, key)
		}
	}
	return v.Interface(), nil
}

// SetByPath parses raw according to the type of the field at path and
// stores it. Lists take comma-separated values. Missing map entries are
// created.
func SetByPath(cfg *Config, path, raw string) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	return setPath(reflect.ValueOf(cfg).Elem(), strings.Split(path, "."), raw, path)
}

func setPath(v reflect.Value, keys []string, raw, path string) error {
	if len(keys) == 0 {
		return assign(v, raw, path)
	}
	switch v.Kind() {
	case reflect.Struct:
		f, ok := fieldByJSONName(v, keys[0])
		if !ok {
			return fmt.Errorf("unknown config path %q", path)
		}
		return setPath(f, keys[1:], raw, path)
	case reflect.Map:
		// Map elements are not addressable: edit a copy and store it back.
		key := reflect.ValueOf(keys[0]).Convert(v.Type().Key())
		elem := reflect.New(v.Type().Elem()).Elem()
		if cur := v.MapIndex(key); cur.IsValid() {
			elem.Set(cur)
		}
		if err := setPath(elem, keys[1:], raw, path); err != nil {
			return err
		}
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
		v.SetMapIndex(key, elem)
		return nil
	default:
		return fmt.Errorf("config path %q: %s is not a section", path, keys[0])
	}
}

func assign(v reflect.Value, raw, path string) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %q is not a boolean", path, raw)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", path, raw)
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", path, raw)
		}
		v.SetFloat(f)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("%s: unsupported list type %s", path, v.Type())
		}
		var items []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		v.Set(reflect.ValueOf(items).Convert(v.Type()))
	default:
		return fmt.Errorf("%s is a section, set one of its fields instead", path)
	}
	return nil
}

func fieldByJSONName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Paths lists every settable leaf path of cfg in sorted order.
func Paths(cfg *Config) []string {
	var out []string
	collectPaths(reflect.ValueOf(cfg).Elem(), "", &out)
	sort.Strings(out)
	return out
}

func collectPaths(v reflect.Value, prefix string, out *[]string) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			tag, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
			if tag == "" || tag == "-" {
				continue
			}
			collectPaths(v.Field(i), join(tag), out)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			collectPaths(iter.Value(), join(iter.Key().String()), out)
		}
	default:
		*out = append(*out, prefix)
	}
}

// Sanitize returns a deep copy of cfg with every secret masked.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return cfg
	}

	paths := append([]string(nil), secretPaths...)
	for name := range out.Providers {
		paths = append(paths, "providers."+name+".apiKey")
	}
	for _, p := range paths {
		v, err := GetByPath(&out, p)
		if s, ok := v.(string); err == nil && ok && s != "" {
			_ = SetByPath(&out, p, maskString(s))
		}
	}
	return &out
}

// maskString keeps the first and last four characters of long values.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
