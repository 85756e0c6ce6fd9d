package terminal

import (
	"time"

	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/config"
)

// Initial PTY geometry for new sessions
const (
	DefaultRows uint16 = 24
	DefaultCols uint16 = 80
)

// Options configures a Manager
type Options struct {
	// Shell overrides $SHELL; falls back to /bin/sh when both are empty
	Shell string
	// KillGrace is how long a SIGTERMed process group gets before SIGKILL
	KillGrace time.Duration
	// KillPoll is the liveness polling interval during the grace period
	KillPoll time.Duration
	// MaxDimension bounds rows and cols on resize
	MaxDimension uint16
	// ReadChunk is the PTY read buffer size
	ReadChunk int
}

// DefaultOptions returns the stock process settings
func DefaultOptions() Options {
	return Options{
		KillGrace:    3 * time.Second,
		KillPoll:     100 * time.Millisecond,
		MaxDimension: 500,
		ReadChunk:    4096,
	}
}

// OptionsFromConfig maps the terminal config section onto Options
func OptionsFromConfig(cfg config.TerminalConfig) Options {
	return Options{
		Shell:        cfg.Shell,
		KillGrace:    cfg.KillGrace.Duration,
		KillPoll:     cfg.KillPoll.Duration,
		MaxDimension: uint16(cfg.MaxDimension),
		ReadChunk:    cfg.ReadChunk,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.KillGrace <= 0 {
		o.KillGrace = d.KillGrace
	}
	if o.KillPoll <= 0 {
		o.KillPoll = d.KillPoll
	}
	if o.MaxDimension == 0 {
		o.MaxDimension = d.MaxDimension
	}
	if o.ReadChunk <= 0 {
		o.ReadChunk = d.ReadChunk
	}
	return o
}

// Kill outcomes reported to metrics
const (
	outcomeGraceful = "graceful"
	outcomeForced   = "forced"
)
