package listora

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Options holds the externally tunable knobs of the write layer.
type Options struct {
	// MaxRetryAttempts caps total invocations of a remote call, including
	// the first. Applies to transient (rate-limit / server-error) failures.
	MaxRetryAttempts int `yaml:"max_retry_attempts"`
	// RetryBaseDelay is the first backoff delay; each subsequent delay doubles.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	// LockTimeout is the deadlock backstop: a lock held longer than this is
	// force-released. Generous by design; business logic must not rely on it.
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// MaxTime caps one whole orchestration (lock wait + retries + backoff).
	MaxTime time.Duration `yaml:"max_time"`
	// MaxWriteAttempts bounds the re-snapshot loop on row-count mismatch.
	MaxWriteAttempts int `yaml:"max_write_attempts"`
	// BestEffortBackup names the snapshot trade-off: when true, a failed
	// pre-write read yields an empty snapshot (mutation proceeds without a
	// safety net) instead of refusing to operate. Visible and reversible.
	BestEffortBackup bool `yaml:"best_effort_backup"`
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetryAttempts: 3,
		RetryBaseDelay:   1 * time.Second,
		LockTimeout:      5 * time.Minute,
		MaxTime:          1 * time.Minute,
		MaxWriteAttempts: 3,
		BestEffortBackup: true,
	}
}

// UnmarshalYAML decodes Options, accepting duration fields as strings like
// "200ms" or "2m". Fields absent from the document are left untouched so the
// caller's defaults survive.
func (o *Options) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxRetryAttempts *int    `yaml:"max_retry_attempts"`
		RetryBaseDelay   *string `yaml:"retry_base_delay"`
		LockTimeout      *string `yaml:"lock_timeout"`
		MaxTime          *string `yaml:"max_time"`
		MaxWriteAttempts *int    `yaml:"max_write_attempts"`
		BestEffortBackup *bool   `yaml:"best_effort_backup"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxRetryAttempts != nil {
		o.MaxRetryAttempts = *raw.MaxRetryAttempts
	}
	if raw.MaxWriteAttempts != nil {
		o.MaxWriteAttempts = *raw.MaxWriteAttempts
	}
	if raw.BestEffortBackup != nil {
		o.BestEffortBackup = *raw.BestEffortBackup
	}
	for _, f := range []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"retry_base_delay", raw.RetryBaseDelay, &o.RetryBaseDelay},
		{"lock_timeout", raw.LockTimeout, &o.LockTimeout},
		{"max_time", raw.MaxTime, &o.MaxTime},
	} {
		if f.src == nil {
			continue
		}
		d, err := time.ParseDuration(*f.src)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// LoadOptions reads Options from a YAML file, applying defaults for any
// field the file leaves unset.
func LoadOptions(path string) (Options, error) {
	ba, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read options file: %w", err)
	}
	o := DefaultOptions()
	if err := yaml.Unmarshal(ba, &o); err != nil {
		return Options{}, fmt.Errorf("parse options file %s: %w", path, err)
	}
	if o.MaxRetryAttempts < 1 {
		o.MaxRetryAttempts = 1
	}
	if o.MaxWriteAttempts < 1 {
		o.MaxWriteAttempts = 1
	}
	return o, nil
}
