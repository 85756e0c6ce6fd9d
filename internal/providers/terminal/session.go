package terminal

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// Session is one shell process attached to a PTY master
type Session struct {
	ID        types.SessionID
	Shell     string
	Cwd       string
	Pid       int
	Pgid      int
	StartedAt time.Time

	cmd  *exec.Cmd
	ptmx *os.File

	// Serializes writes and resizes against close
	ioMu   sync.Mutex
	closed bool

	metaMu sync.RWMutex
	meta   types.SessionMetadata

	readerDone chan struct{}
	exited     chan struct{}
}

// Metadata returns a copy of the session metadata
func (s *Session) Metadata() types.SessionMetadata {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	return s.meta
}

func (s *Session) status() types.Status {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	return s.meta.Status
}

func (s *Session) setStatus(status types.Status) {
	s.metaMu.Lock()
	s.meta.Status = status
	s.metaMu.Unlock()
}

func (s *Session) write(data []byte) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if s.closed {
		return types.NewPtyError(types.CodeWriteFailed, "session %d is closed", s.ID)
	}
	if _, err := s.ptmx.Write(data); err != nil {
		return types.NewPtyError(types.CodeWriteFailed, "write failed: %v", err)
	}
	return nil
}

// closePTY closes the master; the reader sees EOF and exits
func (s *Session) closePTY() {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	_ = s.ptmx.Close()
}

// hasExited reports whether the shell has been reaped
func (s *Session) hasExited() bool {
	select {
	case <-s.exited:
		return true
	default:
	}
	return errors.Is(unix.Kill(s.Pid, 0), unix.ESRCH)
}

// signalGroup delivers sig to the session's process group
func (s *Session) signalGroup(sig unix.Signal) error {
	err := unix.Kill(-s.Pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// lossyText decodes a PTY chunk, replacing invalid UTF-8.
// A multi-byte rune split across two reads is replaced on both sides.
func lossyText(chunk []byte) string {
	return strings.ToValidUTF8(string(chunk), "\uFFFD")
}
