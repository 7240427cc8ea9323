package breaker

import (
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

func DefaultConfig() Config {
	return ConfigFromSettings(core.DefaultConfig().Circuit.Defaults)
}

func ConfigFromSettings(settings core.CircuitSettings) Config {
	return Config{
		FailureThreshold: settings.FailureThreshold,
		SuccessThreshold: settings.SuccessThreshold,
		OpenTimeout:      settings.OpenTimeout(),
	}
}

// Preset returns one of the named configurations: quick, standard, or
// conservative.
func Preset(name string) (Config, bool) {
	settings, ok := core.CircuitPreset(name)
	if !ok {
		return Config{}, false
	}
	return ConfigFromSettings(settings), true
}

func Quick() Config {
	cfg, _ := Preset(core.CircuitPresetQuick)
	return cfg
}

func Standard() Config {
	cfg, _ := Preset(core.CircuitPresetStandard)
	return cfg
}

func Conservative() Config {
	cfg, _ := Preset(core.CircuitPresetConservative)
	return cfg
}

func (c Config) normalized() Config {
	defaults := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaults.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = defaults.SuccessThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = defaults.OpenTimeout
	}
	return c
}

func normalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}
