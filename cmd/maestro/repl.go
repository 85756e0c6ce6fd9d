package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/maestro/backend/internal/orchestrator"
	"github.com/GriffinCanCode/maestro/backend/internal/registry"
	"github.com/GriffinCanCode/maestro/backend/internal/relay"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

var errQuit = errors.New("quit")

// brancher records the branch a session works on
type brancher interface {
	AssignBranch(ctx context.Context, id types.SessionID, branch string, worktreePath *string) (types.SessionMetadata, error)
}

type command struct {
	name     string
	id       types.SessionID
	text     string
	worktree string
	rows     uint16
	cols     uint16
}

// parseLine turns one stdin line into a command. Lines without a leading
// colon are input for the focused session.
func parseLine(line string) (command, error) {
	if !strings.HasPrefix(line, ":") {
		return command{name: "input", text: line}, nil
	}

	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		return command{}, errors.New("empty command")
	}

	cmd := command{name: fields[0]}
	switch cmd.name {
	case "add", "list", "retry", "quit":
		if len(fields) != 1 {
			return command{}, fmt.Errorf(":%s takes no arguments", cmd.name)
		}
	case "kill", "focus":
		if len(fields) != 2 {
			return command{}, fmt.Errorf(":%s needs a session id", cmd.name)
		}
		n, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil || n == 0 {
			return command{}, fmt.Errorf("invalid session id %q", fields[1])
		}
		cmd.id = types.SessionID(n)
	case "branch":
		if len(fields) < 2 || len(fields) > 3 {
			return command{}, errors.New(":branch needs a branch name and an optional worktree path")
		}
		cmd.text = fields[1]
		if len(fields) == 3 {
			cmd.worktree = fields[2]
		}
	case "resize":
		if len(fields) != 3 {
			return command{}, errors.New(":resize needs rows and cols")
		}
		rows, err := strconv.ParseUint(fields[1], 10, 16)
		if err != nil {
			return command{}, fmt.Errorf("invalid rows %q", fields[1])
		}
		cols, err := strconv.ParseUint(fields[2], 10, 16)
		if err != nil {
			return command{}, fmt.Errorf("invalid cols %q", fields[2])
		}
		cmd.rows, cmd.cols = uint16(rows), uint16(cols)
	default:
		return command{}, fmt.Errorf("unknown command :%s", cmd.name)
	}
	return cmd, nil
}

// workspace ties the orchestrator to its relays and the terminal
type workspace struct {
	ctx    context.Context
	orch   *orchestrator.Orchestrator
	pool   *relay.Pool
	reg    *registry.Registry
	branch brancher
	out    io.Writer
	logger *zap.Logger

	mu    sync.Mutex
	focus types.SessionID
}

// onChange keeps relays and focus in step with the live set
func (w *workspace) onChange(snap orchestrator.Snapshot) {
	w.pool.Sync(snap.IDs)
	go w.refresh()

	w.mu.Lock()
	if !snap.Contains(w.focus) {
		w.focus = 0
		if len(snap.IDs) > 0 {
			w.focus = snap.IDs[0]
		}
	}
	w.mu.Unlock()

	if msg := snap.Message(); msg != "" {
		w.printf("%s (type :retry)\n", msg)
	}
}

// refresh pulls metadata for sessions the registry has not seen yet
func (w *workspace) refresh() {
	if err := w.reg.Fetch(w.ctx); err != nil && w.ctx.Err() == nil {
		w.logger.Warn("Session list refresh failed", zap.Error(err))
	}
}

func (w *workspace) focused() types.SessionID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focus
}

func (w *workspace) execute(ctx context.Context, cmd command) error {
	switch cmd.name {
	case "input":
		return w.input(cmd.text + "\n")
	case "resize":
		surface, err := w.focusedSurface()
		if err != nil {
			return err
		}
		surface.SetSize(cmd.rows, cmd.cols)
	case "add":
		id, err := w.orch.AddSession(ctx)
		if err != nil {
			return err
		}
		w.printf("started session %d\n", id)
	case "kill":
		if !w.orch.Snapshot().Contains(cmd.id) {
			return fmt.Errorf("no live session %d", cmd.id)
		}
		return w.orch.Kill(ctx, cmd.id)
	case "focus":
		if !w.orch.Snapshot().Contains(cmd.id) {
			return fmt.Errorf("no live session %d", cmd.id)
		}
		w.mu.Lock()
		w.focus = cmd.id
		w.mu.Unlock()
	case "branch":
		return w.assignBranch(ctx, cmd.text, cmd.worktree)
	case "list":
		w.list()
	case "retry":
		return w.orch.Retry(ctx)
	case "quit":
		return errQuit
	}
	return nil
}

func (w *workspace) input(data string) error {
	surface, err := w.focusedSurface()
	if err != nil {
		return err
	}
	surface.Input(data)
	return nil
}

func (w *workspace) assignBranch(ctx context.Context, branch, worktree string) error {
	id := w.focused()
	if id == 0 {
		return errors.New("no focused session")
	}
	var path *string
	if worktree != "" {
		path = &worktree
	}
	if _, err := w.branch.AssignBranch(ctx, id, branch, path); err != nil {
		return err
	}
	if err := w.reg.Fetch(ctx); err != nil {
		w.logger.Warn("Session list refresh failed", zap.Error(err))
	}
	w.printf("session %d on branch %s\n", id, branch)
	return nil
}

func (w *workspace) focusedSurface() (*relay.StreamSurface, error) {
	id := w.focused()
	if id == 0 {
		return nil, errors.New("no focused session")
	}
	r, ok := w.pool.Relay(id)
	if !ok {
		return nil, fmt.Errorf("session %d is not attached", id)
	}
	surface, ok := r.Surface().(*relay.StreamSurface)
	if !ok {
		return nil, fmt.Errorf("session %d does not accept typed input", id)
	}
	return surface, nil
}

func (w *workspace) list() {
	snap := w.orch.Snapshot()
	focus := w.focused()

	tw := tabwriter.NewWriter(w.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSTATUS\tMODE\tBRANCH\n")
	for _, id := range snap.IDs {
		marker := " "
		if id == focus {
			marker = "*"
		}
		status, mode, branch := "unknown", "", "-"
		if meta, ok := w.reg.Get(id); ok {
			status, mode = string(meta.Status), string(meta.Mode)
			if meta.Branch != nil {
				branch = *meta.Branch
			}
		}
		fmt.Fprintf(tw, "%s%d\t%s\t%s\t%s\n", marker, id, status, mode, branch)
	}
	_ = tw.Flush()
	w.printf("layout %dx%d, %d/%d sessions\n", snap.Layout.Rows, snap.Layout.Cols, len(snap.IDs), w.orch.MaxSessions())
}

func (w *workspace) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w.out, format, args...)
}
