package trigger

import (
	"time"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
)

const (
	DefaultGenerationHourUTC = 6
	DefaultDispatchInterval  = 15 * time.Minute
	DefaultCheckInterval     = time.Minute
)

// Config controls the background reminder triggers.
type Config struct {
	Enabled           bool
	GenerationHourUTC int
	DispatchInterval  time.Duration
	// CheckInterval is how often the generation worker looks at the clock.
	CheckInterval time.Duration
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Enabled:           env.GetBool("REMINDER_TRIGGERS_ENABLED", true),
		GenerationHourUTC: env.GetInt("REMINDER_GENERATION_HOUR_UTC", DefaultGenerationHourUTC),
		DispatchInterval:  time.Duration(env.GetInt("REMINDER_DISPATCH_INTERVAL_MINUTES", int(DefaultDispatchInterval/time.Minute))) * time.Minute,
		CheckInterval:     DefaultCheckInterval,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.GenerationHourUTC < 0 || c.GenerationHourUTC > 23 {
		return apperrors.Validation("REMINDER_GENERATION_HOUR_UTC must be between 0 and 23")
	}
	if c.DispatchInterval <= 0 || c.CheckInterval <= 0 {
		return apperrors.Validation("trigger intervals must be positive")
	}
	return nil
}
