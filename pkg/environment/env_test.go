package environment

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEnv_UnmarshalYAML(t *testing.T) {
	var cfg struct {
		Env Env `yaml:"env"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("env: prod"), &cfg))
	require.Equal(t, Production, cfg.Env)

	require.NoError(t, yaml.Unmarshal([]byte("env: staging"), &cfg))
	require.Equal(t, Unknown, cfg.Env)
}

func TestEnv_UnmarshalText(t *testing.T) {
	var e Env
	require.NoError(t, e.UnmarshalText([]byte("dev")))
	require.Equal(t, Development, e)
	require.Equal(t, "dev", e.String())
}
