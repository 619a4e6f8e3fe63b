package engine

import (
	"fmt"
	"math"

	"github.com/conclave-ai/conclave/pkg/config"
	"github.com/conclave-ai/conclave/pkg/models"
)

// Options control a single consultation run. The zero value asks for
// the configured defaults with no overall deadline.
type Options struct {
	// Mode selects the fan-out profile. Empty uses the configured
	// default mode.
	Mode models.Mode

	// MaxRounds caps the deliberation at 1 or 4 rounds. Zero derives
	// the cap from the mode; MaxRounds=1 behaves like quick mode for
	// the run regardless of mode.
	MaxRounds int

	// Verbose disables inter-round artifact filtering and replays the
	// round-1 positions into the verdict prompt.
	Verbose bool

	// TimeoutMs bounds the whole consultation. Zero disables the
	// deadline; callers wanting the configured default inject it before
	// submitting.
	TimeoutMs int

	// Interactive routes cost, failure, and pulse prompts to the
	// engine's prompter. Unattended runs answer from policy defaults.
	Interactive bool

	// ProjectPath points the context loader at a project root. Empty
	// skips context loading.
	ProjectPath string

	// CostConsent pre-answers the cost gate for unattended runs. Nil
	// declines when the estimate exceeds the gate threshold.
	CostConsent *bool
}

func (o *Options) validate() error {
	if o.Mode != "" && !o.Mode.IsValid() {
		return fmt.Errorf("invalid mode %q", o.Mode)
	}
	if o.MaxRounds != 0 && o.MaxRounds != 1 && o.MaxRounds != 4 {
		return fmt.Errorf("max_rounds must be 1 or 4, got %d", o.MaxRounds)
	}
	if o.TimeoutMs < 0 {
		return fmt.Errorf("timeout_ms must not be negative, got %d", o.TimeoutMs)
	}
	return nil
}

// withDefaults returns a copy with unset fields resolved against the
// configured defaults. After resolution Mode is never empty and
// MaxRounds is 1 or 4.
func (o *Options) withDefaults(d *config.Defaults) *Options {
	out := *o
	if out.Mode == "" {
		out.Mode = models.ModeConsult
		if d != nil && d.Mode.IsValid() {
			out.Mode = d.Mode
		}
	}
	if out.Mode == models.ModeQuick {
		out.MaxRounds = 1
	} else if out.MaxRounds == 0 {
		out.MaxRounds = 4
	}
	return &out
}

// singleRound reports whether the run stops after round 1.
func (o *Options) singleRound() bool {
	return o.MaxRounds == 1
}

// estimateMode returns the mode used for call-count estimation, which
// follows the effective round count rather than the requested mode.
func (o *Options) estimateMode() models.Mode {
	if o.singleRound() {
		return models.ModeQuick
	}
	return models.ModeConsult
}

// OptionsFromMap decodes an options bag from the API and MCP surfaces.
// Unknown keys fail loudly rather than being silently dropped, so a
// misspelled option never turns into default behavior.
func OptionsFromMap(m map[string]any) (*Options, error) {
	opts := &Options{}
	for key, val := range m {
		switch key {
		case "mode":
			s, err := stringOption(key, val)
			if err != nil {
				return nil, err
			}
			opts.Mode = models.Mode(s)
		case "max_rounds":
			n, err := intOption(key, val)
			if err != nil {
				return nil, err
			}
			opts.MaxRounds = n
		case "verbose":
			b, err := boolOption(key, val)
			if err != nil {
				return nil, err
			}
			opts.Verbose = b
		case "timeout_ms":
			n, err := intOption(key, val)
			if err != nil {
				return nil, err
			}
			opts.TimeoutMs = n
		case "interactive":
			b, err := boolOption(key, val)
			if err != nil {
				return nil, err
			}
			opts.Interactive = b
		case "project_path":
			s, err := stringOption(key, val)
			if err != nil {
				return nil, err
			}
			opts.ProjectPath = s
		case "cost_consent":
			b, err := boolOption(key, val)
			if err != nil {
				return nil, err
			}
			opts.CostConsent = &b
		default:
			return nil, fmt.Errorf("unrecognized option %q", key)
		}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func stringOption(key string, val any) (string, error) {
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("option %q: expected string, got %T", key, val)
	}
	return s, nil
}

func boolOption(key string, val any) (bool, error) {
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("option %q: expected boolean, got %T", key, val)
	}
	return b, nil
}

// intOption accepts native ints and the float64 values JSON decoding
// produces, rejecting fractional numbers.
func intOption(key string, val any) (int, error) {
	switch n := val.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("option %q: expected integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("option %q: expected integer, got %T", key, val)
	}
}
