package gfs

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Mapper is the generic config source every brick option is read through,
// mirroring the teacher's fs/config/configmap.Mapper: a flat string->string
// key/value store, independent of where it ultimately came from (a volfile
// option line, a CLI flag, a test fixture).
type Mapper map[string]string

// Get implements the single method configstruct.Set needs.
func (m Mapper) Get(key string) (value string, ok bool) {
	value, ok = m[key]
	return
}

// Set sets a value, overwriting the config:"" tagged field of v whose name
// matches the Mapper's contents. v must be a pointer to a struct. Fields
// without a matching key are left untouched and keep whatever value they
// already hold (the caller is expected to have pre-filled defaults).
func Set(m Mapper, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config.Set: v must be a pointer to a struct")
	}
	rv = rv.Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag := field.Tag.Get("config")
		if tag == "" || tag == "-" {
			continue
		}
		raw, ok := m.Get(tag)
		if !ok {
			continue
		}
		if err := setField(rv.Field(i), raw); err != nil {
			return fmt.Errorf("config.Set: field %s: %w", field.Name, err)
		}
	}
	return nil
}

func setField(fv reflect.Value, raw string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(n)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", fv.Type().Elem())
		}
		parts := strings.Fields(raw)
		fv.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported config field kind %s", fv.Kind())
	}
	return nil
}
