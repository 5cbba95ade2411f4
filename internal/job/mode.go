package job

import (
	"fmt"
	"strings"

	"github.com/torosent/ga4sim/internal/pool"
)

// Mode selects how a simulated user is produced.
type Mode int

const (
	// Hybrid bootstraps a real page visit, then emits follow-up events.
	Hybrid Mode = iota
	// Browser relies on the page itself as the only event source.
	Browser
	// MP submits the complete event set without any page visit.
	MP
)

// Phase is one step of a job's execution path.
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap"
	PhaseEmit      Phase = "emit"
)

// Modes lists every mode in declaration order.
var Modes = []Mode{Hybrid, Browser, MP}

func (m Mode) String() string {
	switch m {
	case Hybrid:
		return "hybrid"
	case Browser:
		return "browser"
	case MP:
		return "mp"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a CLI/config label into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hybrid":
		return Hybrid, nil
	case "browser":
		return Browser, nil
	case "mp":
		return MP, nil
	default:
		return 0, fmt.Errorf("mode must be 'hybrid', 'browser', or 'mp', got %q", s)
	}
}

// Phases returns the ordered phases a job of this mode runs.
func (m Mode) Phases() []Phase {
	switch m {
	case Hybrid:
		return []Phase{PhaseBootstrap, PhaseEmit}
	case Browser:
		return []Phase{PhaseBootstrap}
	case MP:
		return []Phase{PhaseEmit}
	default:
		panic(fmt.Sprintf("job: unhandled mode %d", int(m)))
	}
}

// Pool returns the concurrency pool a job of this mode competes in.
func (m Mode) Pool() pool.Name {
	if m.NeedsBootstrap() {
		return pool.Heavy
	}
	return pool.Light
}

// NeedsBootstrap reports whether the mode includes the interactive phase.
func (m Mode) NeedsBootstrap() bool {
	for _, p := range m.Phases() {
		if p == PhaseBootstrap {
			return true
		}
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
