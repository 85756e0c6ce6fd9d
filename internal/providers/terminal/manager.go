package terminal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/maestro/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// Publisher delivers push events to topic subscribers
type Publisher interface {
	Publish(topic string, v interface{}) error
}

// Manager owns the backend's PTY sessions
type Manager struct {
	opts      Options
	publisher Publisher
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	mu       sync.RWMutex
	sessions map[types.SessionID]*Session
	nextID   atomic.Uint32
}

// NewManager creates a session manager publishing to p
func NewManager(opts Options, p Publisher, logger *zap.Logger, metrics *monitoring.Metrics) *Manager {
	return &Manager{
		opts:      opts.withDefaults(),
		publisher: p,
		logger:    logging.OrNop(logger),
		metrics:   metrics,
		sessions:  make(map[types.SessionID]*Session),
	}
}

// Spawn starts a plain login shell in cwd under a fresh PTY.
// A nil cwd inherits the backend's working directory.
func (m *Manager) Spawn(cwd *string) (types.SessionID, error) {
	return m.SpawnMode(cwd, types.ModePlain)
}

// SpawnMode is Spawn with the assistant mode recorded in the session's
// metadata. An empty mode means plain.
func (m *Manager) SpawnMode(cwd *string, mode types.Mode) (types.SessionID, error) {
	if mode == "" {
		mode = types.ModePlain
	}
	if !mode.Valid() {
		return 0, types.NewPtyError(types.CodeInvalidRequest, "unknown mode %q", mode)
	}

	dir := ""
	if cwd != nil {
		if err := validateCwd(*cwd); err != nil {
			return 0, err
		}
		dir = *cwd
	}

	shell := m.shell()
	cmd := exec.Command(shell, "-l")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: DefaultRows, Cols: DefaultCols})
	if err != nil {
		return 0, types.NewPtyError(types.CodeSpawnFailed, "failed to spawn shell: %v", err)
	}

	pid := cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		// pty.Start puts the child in its own session, so the group leader is the child
		pgid = pid
	}

	id := types.SessionID(m.nextID.Add(1))
	s := &Session{
		ID:        id,
		Shell:     shell,
		Cwd:       dir,
		Pid:       pid,
		Pgid:      pgid,
		StartedAt: time.Now(),
		cmd:       cmd,
		ptmx:      ptmx,
		meta: types.SessionMetadata{
			ID:     id,
			Mode:   mode,
			Status: types.StatusStarting,
		},
		readerDone: make(chan struct{}),
		exited:     make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.publishStatus(id, types.StatusStarting)
	go m.waitProcess(s)
	go m.readOutput(s)

	m.metrics.SessionSpawned()
	m.logger.Info("Spawned PTY session",
		logging.Session(uint32(id)),
		zap.Int("pid", pid),
		zap.Int("pgid", pgid),
		zap.String("shell", shell),
		zap.String("mode", string(mode)))

	return id, nil
}

// Write sends data to the session's stdin
func (m *Manager) Write(id types.SessionID, data string) error {
	s, ok := m.lookup(id)
	if !ok {
		return types.SessionNotFound(id)
	}
	return s.write([]byte(data))
}

// Resize changes the PTY window size
func (m *Manager) Resize(id types.SessionID, rows, cols uint16) error {
	if rows == 0 || cols == 0 || rows > m.opts.MaxDimension || cols > m.opts.MaxDimension {
		return types.NewPtyError(types.CodeResizeFailed, "invalid dimensions %dx%d", rows, cols)
	}

	s, ok := m.lookup(id)
	if !ok {
		return types.SessionNotFound(id)
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if s.closed {
		return types.NewPtyError(types.CodeResizeFailed, "session %d is closed", id)
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return types.NewPtyError(types.CodeResizeFailed, "resize failed: %v", err)
	}
	return nil
}

// Kill terminates the session's process group: SIGTERM, a grace period,
// then SIGKILL. The session is removed before signalling, so a second
// Kill of the same id reports SessionNotFound. Cancelling ctx cuts the
// grace period short.
func (m *Manager) Kill(ctx context.Context, id types.SessionID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return types.SessionNotFound(id)
	}

	log := m.logger.With(logging.Session(uint32(id)), zap.Int("pgid", s.Pgid))

	if err := s.signalGroup(unix.SIGTERM); err != nil {
		log.Warn("Failed to SIGTERM session", zap.Error(err))
	}

	outcome := outcomeGraceful
	if !m.awaitExit(ctx, s) {
		outcome = outcomeForced
		if err := s.signalGroup(unix.SIGKILL); err != nil {
			log.Warn("Failed to SIGKILL session", zap.Error(err))
		}
		log.Warn("Session required SIGKILL", zap.Int("pid", s.Pid))

		select {
		case <-s.exited:
		case <-time.After(m.opts.KillGrace):
			log.Error("Session still running after SIGKILL")
		}
	}

	s.closePTY()
	select {
	case <-s.readerDone:
	case <-time.After(m.opts.KillGrace):
		log.Warn("PTY reader did not exit")
	}

	s.setStatus(types.StatusDone)
	m.publishStatus(id, types.StatusDone)
	m.metrics.SessionKilled(outcome)
	log.Info("Killed PTY session", zap.String("outcome", outcome))

	return nil
}

// awaitExit polls for the shell to exit within the grace period
func (m *Manager) awaitExit(ctx context.Context, s *Session) bool {
	grace := time.NewTimer(m.opts.KillGrace)
	defer grace.Stop()
	poll := time.NewTicker(m.opts.KillPoll)
	defer poll.Stop()

	for {
		select {
		case <-s.exited:
			return true
		case <-poll.C:
			if s.hasExited() {
				return true
			}
		case <-grace.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// List returns metadata for all live sessions ordered by id
func (m *Manager) List() []types.SessionMetadata {
	m.mu.RLock()
	out := make([]types.SessionMetadata, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Metadata())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns metadata for one session
func (m *Manager) Get(id types.SessionID) (types.SessionMetadata, bool) {
	s, ok := m.lookup(id)
	if !ok {
		return types.SessionMetadata{}, false
	}
	return s.Metadata(), true
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// UpdateStatus moves a session to status and publishes the change.
// It reports false for an unknown id.
func (m *Manager) UpdateStatus(id types.SessionID, status types.Status) (bool, error) {
	if !status.Valid() {
		return false, types.NewPtyError(types.CodeInvalidRequest, "unknown status %q", status)
	}

	s, ok := m.lookup(id)
	if !ok {
		return false, nil
	}

	s.metaMu.Lock()
	from := s.meta.Status
	if from != status && !types.CanTransition(from, status) {
		s.metaMu.Unlock()
		return true, types.NewPtyError(types.CodeInvalidRequest, "session %d cannot move from %s to %s", id, from, status)
	}
	s.meta.Status = status
	s.metaMu.Unlock()

	if from != status {
		m.publishStatus(id, status)
	}
	return true, nil
}

// AssignBranch records the git branch, and optionally the worktree, the
// session works on. It returns the updated metadata.
func (m *Manager) AssignBranch(id types.SessionID, branch string, worktreePath *string) (types.SessionMetadata, error) {
	if branch == "" {
		return types.SessionMetadata{}, types.NewPtyError(types.CodeInvalidRequest, "branch must not be empty")
	}

	s, ok := m.lookup(id)
	if !ok {
		return types.SessionMetadata{}, types.SessionNotFound(id)
	}

	s.metaMu.Lock()
	s.meta.Branch = &branch
	s.meta.WorktreePath = worktreePath
	meta := s.meta
	s.metaMu.Unlock()

	m.logger.Info("Assigned branch", logging.Session(uint32(id)), zap.String("branch", branch))
	return meta, nil
}

// Shutdown kills every live session concurrently
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]types.SessionID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := m.Kill(ctx, id)
			if types.IsSessionNotFound(err) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("shutdown sessions: %w", err)
	}
	return nil
}

func (m *Manager) lookup(id types.SessionID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) shell() string {
	if m.opts.Shell != "" {
		return m.opts.Shell
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}

func (m *Manager) publishStatus(id types.SessionID, status types.Status) {
	if m.publisher == nil {
		return
	}
	event := types.StatusEvent{SessionID: id, Status: status}
	if err := m.publisher.Publish(types.StatusTopic, event); err != nil {
		m.logger.Warn("Failed to publish status", logging.Session(uint32(id)), zap.Error(err))
	}
}

// readOutput streams PTY output to the session's output topic until EOF
func (m *Manager) readOutput(s *Session) {
	defer close(s.readerDone)

	topic := types.OutputTopic(s.ID)
	buf := make([]byte, m.opts.ReadChunk)

	s.metaMu.Lock()
	promoted := s.meta.Status == types.StatusStarting
	if promoted {
		s.meta.Status = types.StatusIdle
	}
	s.metaMu.Unlock()
	if promoted {
		m.publishStatus(s.ID, types.StatusIdle)
	}

	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			m.metrics.AddOutputBytes(n)
			if m.publisher != nil {
				if perr := m.publisher.Publish(topic, lossyText(buf[:n])); perr != nil {
					m.logger.Warn("Failed to publish output", logging.Session(uint32(s.ID)), zap.Error(perr))
				}
			}
		}
		if err != nil {
			m.logger.Debug("PTY reader exited", logging.Session(uint32(s.ID)), zap.Error(err))
			return
		}
	}
}

// waitProcess reaps the shell. A shell that exits on its own is marked done.
func (m *Manager) waitProcess(s *Session) {
	err := s.cmd.Wait()
	close(s.exited)

	if cur, ok := m.lookup(s.ID); !ok || cur != s {
		return
	}
	m.logger.Info("Shell exited", logging.Session(uint32(s.ID)), zap.Error(err))
	if s.status() != types.StatusDone {
		s.setStatus(types.StatusDone)
		m.publishStatus(s.ID, types.StatusDone)
	}
}

func validateCwd(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return types.NewPtyError(types.CodeSpawnFailed, "invalid cwd '%s': %v", dir, err)
	}
	if !info.IsDir() {
		return types.NewPtyError(types.CodeSpawnFailed, "cwd '%s' does not exist or is not a directory", dir)
	}
	return nil
}
