// Package config loads process configuration in three layers: a yaml file,
// dotenv files and finally the process environment. Later layers override
// earlier ones field by field.
package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nikmy/mongotx/pkg/errors"
)

const defaultDotenv = ".env"

var ErrNilTarget = errors.Error("config target is nil")

type options struct {
	file   string
	dotenv []string
}

type Option func(*options)

// FromFile reads yaml from path before applying the environment.
func FromFile(path string) Option {
	return func(o *options) { o.file = path }
}

// WithDotenv loads the given files into the environment. Missing files are
// an error. Without this option only ./.env is tried, and silently.
func WithDotenv(files ...string) Option {
	return func(o *options) { o.dotenv = append(o.dotenv, files...) }
}

// Load fills out, which must be a non-nil pointer to a struct carrying yaml
// and env tags.
func Load(out any, opts ...Option) error {
	if out == nil {
		return ErrNilTarget
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.file != "" {
		data, err := os.ReadFile(o.file)
		if err != nil {
			return errors.WrapFailf(err, "read %q", o.file)
		}

		err = yaml.Unmarshal(data, out)
		if err != nil {
			return errors.WrapFailf(err, "parse yaml %q", o.file)
		}
	}

	err := loadDotenv(o.dotenv)
	if err != nil {
		return err
	}

	err = env.Parse(out)
	return errors.WrapFail(err, "parse environment")
}

func loadDotenv(files []string) error {
	if len(files) == 0 {
		err := godotenv.Load(defaultDotenv)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.WrapFailf(err, "load %q", defaultDotenv)
		}
		return nil
	}

	return errors.WrapFail(godotenv.Load(files...), "load dotenv")
}
