package txmanager

import (
	"time"

	"github.com/nikmy/mongotx/internal/coordinator"
	"github.com/nikmy/mongotx/pkg/errors"
)

// SyncMode decides whether operations join transactions started by a
// generic txn.Manager that this package does not drive.
type SyncMode string

const (
	SyncNever    SyncMode = "never"
	SyncOnActual SyncMode = "on_actual_transaction"
	SyncAlways   SyncMode = "always"
)

const defaultSyncMode = SyncNever

var ErrUnknownSyncMode = errors.Error("unknown synchronization mode")

func (m *SyncMode) UnmarshalText(text []byte) error {
	switch mode := SyncMode(text); mode {
	case SyncNever, SyncOnActual, SyncAlways:
		*m = mode
		return nil
	case "":
		*m = defaultSyncMode
		return nil
	default:
		return errors.Wrapf(ErrUnknownSyncMode, "%q", mode)
	}
}

type Config struct {
	Synchronization   SyncMode                `yaml:"synchronization"   env:"MONGOTX_SYNCHRONIZATION"`
	CausalConsistency bool                    `yaml:"causalConsistency" env:"MONGOTX_CAUSAL_CONSISTENCY"`
	MaxCommitTime     time.Duration           `yaml:"maxCommitTime"     env:"MONGOTX_MAX_COMMIT_TIME"`
	Retry             coordinator.RetryPolicy `yaml:"retry"`
}

func DefaultConfig() Config {
	return Config{
		Synchronization:   defaultSyncMode,
		CausalConsistency: true,
		Retry:             coordinator.DefaultRetryPolicy(),
	}
}
