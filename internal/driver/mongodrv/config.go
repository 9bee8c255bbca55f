package mongodrv

import (
	"time"
)

type Config struct {
	URL     string        `yaml:"url"     env:"MONGOTX_MONGO_URL"`
	Timeout time.Duration `yaml:"timeout" env:"MONGOTX_MONGO_TIMEOUT"`

	Database string `yaml:"database" env:"MONGOTX_MONGO_DATABASE"`

	Auth struct {
		Username string `yaml:"username" env:"MONGOTX_MONGO_USERNAME"`
		Password string `yaml:"password" env:"MONGOTX_MONGO_PASSWORD"`
	} `yaml:"auth"`

	Pool struct {
		MinSize uint64 `yaml:"minSize" env:"MONGOTX_MONGO_POOL_MIN"`
		MaxSize uint64 `yaml:"maxSize" env:"MONGOTX_MONGO_POOL_MAX"`
	} `yaml:"pool"`

	Connect struct {
		Attempts int           `yaml:"attempts" env:"MONGOTX_MONGO_CONNECT_ATTEMPTS"`
		Interval time.Duration `yaml:"interval" env:"MONGOTX_MONGO_CONNECT_INTERVAL"`
	} `yaml:"connect"`

	// LogCommands logs every started/finished command at debug level.
	LogCommands bool `yaml:"logCommands" env:"MONGOTX_MONGO_LOG_COMMANDS"`
}
