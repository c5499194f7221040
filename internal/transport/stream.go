package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/jamesaudcent/infinidom/internal/session"
	"github.com/jamesaudcent/infinidom/vdom"
)

// framingMode selects how the response body is split into frames.
type framingMode int

const (
	// lineFraming reads the body line by line — the simple per-message
	// framing of the initial-load stream.
	lineFraming framingMode = iota
	// chunkFraming decodes raw byte chunks and splits on blank-line
	// boundaries, buffering a partial trailing fragment until more bytes
	// arrive — the interaction stream framing.
	chunkFraming
)

const dataPrefix = "data:"

// Stream delivers decoded operations in arrival order. The channel is
// unbuffered: operation n+1 is not handed over before the consumer has
// taken operation n.
type Stream struct {
	ops    chan vdom.Operation
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		ops:    make(chan vdom.Operation),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Ops returns the operation channel. It is closed when the stream ends,
// after which Err reports the outcome.
func (s *Stream) Ops() <-chan vdom.Operation { return s.ops }

// Err reports the stream outcome once Ops is closed: nil on a complete
// frame or deliberate Close, a *ServerError on an error frame, or the
// transport-level failure otherwise.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops delivery of further operations. Idempotent and safe to call
// after natural completion.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
}

func (s *Stream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// consume reads the body until a terminal frame, EOF, or Close.
func (s *Stream) consume(body io.ReadCloser, mode framingMode, sessions session.Store, logger *slog.Logger) {
	defer body.Close()

	var finalErr error
	switch mode {
	case lineFraming:
		finalErr = s.consumeLines(body, sessions, logger)
	case chunkFraming:
		finalErr = s.consumeChunks(body, sessions, logger)
	}

	if s.closed() {
		finalErr = nil // deliberate cancellation is not a failure
	}

	s.mu.Lock()
	s.err = finalErr
	s.mu.Unlock()
	close(s.ops)
	s.Close()
}

func (s *Stream) consumeLines(body io.Reader, sessions session.Store, logger *slog.Logger) error {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		payload, ok := framePayload(sc.Bytes())
		if !ok {
			continue
		}
		stop, err := s.handleFrame(payload, sessions, logger)
		if stop || err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Stream) consumeChunks(body io.Reader, sessions session.Store, logger *slog.Logger) error {
	var pending []byte
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.Index(pending, []byte("\n\n"))
				if i < 0 {
					break // partial fragment stays buffered
				}
				frame := pending[:i]
				pending = pending[i+2:]
				stop, err := s.handleFrameBlock(frame, sessions, logger)
				if stop || err != nil {
					return err
				}
			}
		}
		if readErr != nil {
			if len(pending) > 0 {
				// Trailing fragment without a closing boundary.
				if stop, err := s.handleFrameBlock(pending, sessions, logger); stop || err != nil {
					return err
				}
			}
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, context.Canceled) {
				return nil
			}
			return readErr
		}
	}
}

// handleFrameBlock processes one blank-line-delimited block, which may span
// several lines but carries at most one data payload per line.
func (s *Stream) handleFrameBlock(block []byte, sessions session.Store, logger *slog.Logger) (bool, error) {
	for _, line := range bytes.Split(block, []byte("\n")) {
		payload, ok := framePayload(line)
		if !ok {
			continue
		}
		stop, err := s.handleFrame(payload, sessions, logger)
		if stop || err != nil {
			return stop, err
		}
	}
	return false, nil
}

// framePayload strips the SSE data prefix. Lines without it (comments,
// heartbeats, blank separators) carry no payload.
func framePayload(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return nil, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return nil, false
	}
	return payload, true
}

// handleFrame dispatches one decoded frame. Control frames act on the
// session or terminate the stream; everything else is an operation. A frame
// that fails to parse is dropped with a warning and the stream continues.
func (s *Stream) handleFrame(payload []byte, sessions session.Store, logger *slog.Logger) (bool, error) {
	var ctl struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
		Error     string `json:"error"`
		Path      string `json:"path"`
	}
	if err := json.Unmarshal(payload, &ctl); err != nil {
		logger.Warn("transport: malformed frame dropped", "error", err, "frame", clip(payload))
		return false, nil
	}

	switch ctl.Type {
	case "session":
		if ctl.SessionID != "" {
			if err := sessions.SetToken(ctl.SessionID); err != nil {
				logger.Warn("transport: persist session token", "error", err)
			}
		}
		return false, nil
	case "complete":
		return true, nil
	case "error":
		return true, &ServerError{Msg: ctl.Error}
	case "cached":
		logger.Debug("transport: server notes cached path", "path", ctl.Path)
		return false, nil
	default:
		op, err := vdom.DecodeOperation(payload)
		if err != nil {
			logger.Warn("transport: unsupported frame dropped", "error", err, "frame", clip(payload))
			return false, nil
		}
		select {
		case s.ops <- op:
			return false, nil
		case <-s.done:
			return true, nil
		}
	}
}

func clip(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
