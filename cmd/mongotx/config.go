package main

import (
	"github.com/nikmy/mongotx/internal/api"
	"github.com/nikmy/mongotx/internal/driver/mongodrv"
	"github.com/nikmy/mongotx/internal/txmanager"
	"github.com/nikmy/mongotx/pkg/config"
	"github.com/nikmy/mongotx/pkg/environment"
	"github.com/nikmy/mongotx/pkg/errors"
)

const defaultDatabase = "mongotx"

type Config struct {
	Environment  environment.Env  `yaml:"environment" env:"MONGOTX_ENV"`
	Mongo        mongodrv.Config  `yaml:"mongo"`
	Transactions txmanager.Config `yaml:"transactions"`
	API          api.Config       `yaml:"api"`
}

type flags struct {
	config string
	dotenv []string
	env    string
}

func loadConfig(f flags) (*Config, error) {
	cfg := Config{Transactions: txmanager.DefaultConfig()}

	opts := []config.Option{config.WithDotenv(f.dotenv...)}
	if f.config != "" {
		opts = append(opts, config.FromFile(f.config))
	}

	err := config.Load(&cfg, opts...)
	if err != nil {
		return nil, errors.WrapFail(err, "load config")
	}

	if f.env != "" {
		cfg.Environment = environment.FromString(f.env)
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = defaultDatabase
	}

	return &cfg, nil
}
