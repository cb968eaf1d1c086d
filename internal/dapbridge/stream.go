package dapbridge

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/google/go-dap"
)

// Stream writes DAP messages with increasing sequence numbers.
type Stream struct {
	w      io.Writer
	writer *bufio.Writer
	mu     sync.Mutex
	seq    int
}

// NewStream creates a Stream writing to w. The first message gets seq 1.
func NewStream(w io.Writer) *Stream {
	return &Stream{w: w, writer: bufio.NewWriter(w), seq: 1}
}

// Send stamps msg with the next sequence number and writes it.
func (s *Stream) Send(msg dap.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seq
	switch m := msg.(type) {
	case *dap.StoppedEvent:
		m.Seq = seq
	case *dap.ContinuedEvent:
		m.Seq = seq
	case *dap.OutputEvent:
		m.Seq = seq
	case *dap.BreakpointEvent:
		m.Seq = seq
	default:
		return fmt.Errorf("unsupported DAP message %T", msg)
	}
	s.seq++

	if err := dap.WriteProtocolMessage(s.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}
	return nil
}

// Close closes the underlying writer when it is an io.Closer.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return err
	}
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
