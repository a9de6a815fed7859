// Package config loads a flat, env-tagged struct the same way the
// teacher's bootstrap/config.go does via libCommons.SetConfigFromEnvVars.
// lib-commons itself is not part of the retrieval pack (only its call
// sites are), so this reimplements the small reflection surface it
// provides: walk exported struct fields, read `env:"NAME"` tags, and
// populate from os.Getenv, applying the field's existing value as the
// default when the variable is unset.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads a .env file into the process environment if present;
// a missing file is not an error (mirrors godotenv.Load's common usage in
// local development, matching the teacher's go.mod dependency).
func LoadEnvFile(path string) {
	_ = godotenv.Load(path)
}

// FromEnv populates cfg (a pointer to a struct) from environment
// variables named by each field's `env` tag.
func FromEnv(cfg any) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: FromEnv requires a pointer to struct, got %T", cfg)
	}

	elem := v.Elem()
	t := elem.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag, ok := field.Tag.Lookup("env")
		if !ok || tag == "" {
			continue
		}

		raw, present := os.LookupEnv(tag)
		if !present {
			continue
		}

		fv := elem.Field(i)
		if err := setField(fv, raw); err != nil {
			return fmt.Errorf("config: field %s (env %s): %w", field.Name, tag, err)
		}
	}

	return nil
}

func setField(fv reflect.Value, raw string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		if fv.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}

			fv.SetInt(int64(d))

			return nil
		}

		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}

		fv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}

		fv.SetBool(b)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}

		fv.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", fv.Kind())
	}

	return nil
}
