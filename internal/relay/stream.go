package relay

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// StreamSurface renders session output as prefixed lines on a shared
// writer. It is the headless surface used by the maestro CLI.
type StreamSurface struct {
	id     types.SessionID
	out    io.Writer
	outMu  *sync.Mutex
	prefix string

	mu          sync.Mutex
	atLineStart bool
	disposed    bool
	nextHandler int
	inputs      map[int]func(string)
	resizes     map[int]func(rows, cols uint16)
}

// NewStreamFactory returns a SurfaceFactory whose surfaces share out
func NewStreamFactory(out io.Writer) SurfaceFactory {
	var outMu sync.Mutex
	return func(id types.SessionID) (Surface, error) {
		return &StreamSurface{
			id:          id,
			out:         out,
			outMu:       &outMu,
			prefix:      fmt.Sprintf("[%d] ", id),
			atLineStart: true,
			inputs:      make(map[int]func(string)),
			resizes:     make(map[int]func(rows, cols uint16)),
		}, nil
	}
}

// Write implements Surface
func (s *StreamSurface) Write(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || chunk == "" {
		return
	}

	var b strings.Builder
	for _, line := range strings.SplitAfter(chunk, "\n") {
		if line == "" {
			continue
		}
		if s.atLineStart {
			b.WriteString(s.prefix)
		}
		b.WriteString(line)
		s.atLineStart = strings.HasSuffix(line, "\n")
	}

	s.outMu.Lock()
	_, _ = io.WriteString(s.out, b.String())
	s.outMu.Unlock()
}

// OnInput implements Surface
func (s *StreamSurface) OnInput(fn func(data string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandler++
	key := s.nextHandler
	s.inputs[key] = fn
	return func() {
		s.mu.Lock()
		delete(s.inputs, key)
		s.mu.Unlock()
	}
}

// OnResize implements Surface
func (s *StreamSurface) OnResize(fn func(rows, cols uint16)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandler++
	key := s.nextHandler
	s.resizes[key] = fn
	return func() {
		s.mu.Lock()
		delete(s.resizes, key)
		s.mu.Unlock()
	}
}

// Input feeds local keystrokes to the registered handlers
func (s *StreamSurface) Input(data string) {
	s.mu.Lock()
	handlers := make([]func(string), 0, len(s.inputs))
	for _, fn := range s.inputs {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(data)
	}
}

// SetSize reports a local size change to the registered handlers
func (s *StreamSurface) SetSize(rows, cols uint16) {
	s.mu.Lock()
	handlers := make([]func(uint16, uint16), 0, len(s.resizes))
	for _, fn := range s.resizes {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(rows, cols)
	}
}

// Dispose implements Surface
func (s *StreamSurface) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.inputs = make(map[int]func(string))
	s.resizes = make(map[int]func(rows, cols uint16))
}
