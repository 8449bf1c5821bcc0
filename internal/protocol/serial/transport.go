// internal/protocol/serial/transport.go
package serial

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	apperrors "ffb-control-service/internal/errors"
)

const (
	readBufferSize = 256
	closeWait      = time.Second
)

// Matcher decides whether a received line answers the command in flight
type Matcher interface {
	Matches(line string) bool
}

// MatchAny accepts the first line received
type MatchAny struct{}

// Matches always returns true
func (MatchAny) Matches(string) bool { return true }

type pendingCommand struct {
	matcher Matcher
	reply   chan string
}

type session struct {
	port      Port
	name      string
	writeMu   sync.Mutex
	closing   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func (s *session) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Transport owns the serial session with the wheel. It runs a single read
// loop that hands each line to the command in flight, the telemetry
// callback, or the general line callback, in that order.
type Transport struct {
	opener Opener
	logger *zap.Logger
	settle time.Duration

	// gate admits one command at a time, in arrival order
	gate *semaphore.Weighted

	mutex   sync.RWMutex
	session *session

	pendingMu sync.Mutex
	pending   *pendingCommand

	telemetry atomic.Bool

	callbackMu   sync.RWMutex
	onLine       func(string)
	onTelemetry  func(int)
	onDisconnect func()
}

// NewTransport creates a transport that opens ports through opener and
// waits settle after opening before commands are sent.
func NewTransport(opener Opener, settle time.Duration, logger *zap.Logger) *Transport {
	return &Transport{
		opener: opener,
		logger: logger.With(zap.String("component", "transport")),
		settle: settle,
		gate:   semaphore.NewWeighted(1),
	}
}

// OnLine registers the callback for lines that are neither replies nor telemetry
func (t *Transport) OnLine(fn func(string)) {
	t.callbackMu.Lock()
	defer t.callbackMu.Unlock()
	t.onLine = fn
}

// OnTelemetry registers the callback for torque samples
func (t *Transport) OnTelemetry(fn func(int)) {
	t.callbackMu.Lock()
	defer t.callbackMu.Unlock()
	t.onTelemetry = fn
}

// OnDisconnect registers the callback fired once when the session drops unexpectedly
func (t *Transport) OnDisconnect(fn func()) {
	t.callbackMu.Lock()
	defer t.callbackMu.Unlock()
	t.onDisconnect = fn
}

// Connect opens name and starts the read loop. An existing session is closed first.
func (t *Transport) Connect(ctx context.Context, name string) error {
	t.Disconnect()

	port, err := t.opener.Open(ctx, name)
	if err != nil {
		t.logger.Error("Failed to connect", zap.String("port", name), zap.Error(err))
		return apperrors.Wrap(err, apperrors.KindConnection, name)
	}

	s := &session{
		port:   port,
		name:   name,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	t.mutex.Lock()
	t.session = s
	t.mutex.Unlock()

	go t.readLoop(s)

	t.logger.Info("Serial connected", zap.String("port", name))

	if t.settle > 0 {
		timer := time.NewTimer(t.settle)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			t.Disconnect()
			return ctx.Err()
		}
	}
	return nil
}

// Disconnect closes the session. It is idempotent and never reports the
// drop through the disconnect callback.
func (t *Transport) Disconnect() {
	t.mutex.Lock()
	s := t.session
	t.session = nil
	t.mutex.Unlock()

	if s == nil {
		return
	}

	s.closing.Store(true)
	s.markClosed()
	if err := s.port.Close(); err != nil {
		t.logger.Debug("Error closing port", zap.String("port", s.name), zap.Error(err))
	}

	select {
	case <-s.done:
	case <-time.After(closeWait):
		t.logger.Warn("Read loop did not stop after close", zap.String("port", s.name))
	}

	t.logger.Info("Serial disconnected", zap.String("port", s.name))
}

// IsConnected reports whether a session is open
func (t *Transport) IsConnected() bool {
	return t.current() != nil
}

// PortName returns the open port, or "" when disconnected
func (t *Transport) PortName() string {
	if s := t.current(); s != nil {
		return s.name
	}
	return ""
}

// SetTelemetryEnabled controls whether bare integer lines are treated as torque samples
func (t *Transport) SetTelemetryEnabled(enabled bool) {
	t.telemetry.Store(enabled)
}

// TelemetryEnabled reports the telemetry flag
func (t *Transport) TelemetryEnabled() bool {
	return t.telemetry.Load()
}

// SendAndWait writes command and waits for the first line accepted by matcher.
// Callers are served one at a time in arrival order.
func (t *Transport) SendAndWait(ctx context.Context, command string, matcher Matcher, timeout time.Duration) (string, error) {
	if t.current() == nil {
		return "", apperrors.New(apperrors.KindNotConnected)
	}

	if err := t.gate.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer t.gate.Release(1)

	s := t.current()
	if s == nil {
		return "", apperrors.New(apperrors.KindNotConnected)
	}

	if matcher == nil {
		matcher = MatchAny{}
	}
	p := &pendingCommand{matcher: matcher, reply: make(chan string, 1)}
	t.setPending(p)
	defer t.clearPending(p)

	if err := t.write(s, command); err != nil {
		return "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-p.reply:
		return line, nil
	case <-timer.C:
		return "", apperrors.Newf(apperrors.KindTimeout, "no reply to %q within %s", command, timeout)
	case <-s.closed:
		return "", apperrors.Newf(apperrors.KindConnectionLost, "while waiting for %q", command)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// SendNoWait writes command without waiting for a reply
func (t *Transport) SendNoWait(command string) error {
	s := t.current()
	if s == nil {
		return apperrors.New(apperrors.KindNotConnected)
	}
	return t.write(s, command)
}

func (t *Transport) current() *session {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.session
}

func (t *Transport) write(s *session, command string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.port.Write([]byte(command + "\r")); err != nil {
		t.logger.Error("Failed to write to serial port",
			zap.String("port", s.name),
			zap.String("command", command),
			zap.Error(err),
		)
		return apperrors.Wrapf(err, apperrors.KindConnectionLost, "write %q", command)
	}

	t.logger.Debug("Command written", zap.String("command", command))
	return nil
}

func (t *Transport) setPending(p *pendingCommand) {
	t.pendingMu.Lock()
	t.pending = p
	t.pendingMu.Unlock()
}

func (t *Transport) clearPending(p *pendingCommand) {
	t.pendingMu.Lock()
	if t.pending == p {
		t.pending = nil
	}
	t.pendingMu.Unlock()
}

func (t *Transport) readLoop(s *session) {
	defer close(s.done)

	buf := make([]byte, readBufferSize)
	var line []byte

	for {
		n, err := s.port.Read(buf)
		if err != nil {
			t.handleReadError(s, err)
			return
		}
		if n == 0 {
			if s.closing.Load() {
				return
			}
			continue
		}

		for _, b := range buf[:n] {
			if b == '\n' {
				t.dispatch(string(line))
				line = line[:0]
				continue
			}
			line = append(line, b)
		}
	}
}

func (t *Transport) handleReadError(s *session, err error) {
	if s.closing.Load() {
		return
	}

	t.mutex.Lock()
	owned := t.session == s
	if owned {
		t.session = nil
	}
	t.mutex.Unlock()

	s.markClosed()
	_ = s.port.Close()

	if !owned {
		return
	}

	t.logger.Warn("Serial connection lost", zap.String("port", s.name), zap.Error(err))

	t.callbackMu.RLock()
	fn := t.onDisconnect
	t.callbackMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (t *Transport) dispatch(raw string) {
	line := strings.TrimSpace(strings.TrimRight(raw, "\r"))
	if line == "" {
		return
	}

	t.pendingMu.Lock()
	p := t.pending
	if p != nil && p.matcher.Matches(line) {
		t.pending = nil
		t.pendingMu.Unlock()
		p.reply <- line
		return
	}
	t.pendingMu.Unlock()

	t.callbackMu.RLock()
	onTelemetry, onLine := t.onTelemetry, t.onLine
	t.callbackMu.RUnlock()

	if t.telemetry.Load() {
		if torque, err := strconv.Atoi(line); err == nil {
			if onTelemetry != nil {
				onTelemetry(torque)
			}
			return
		}
	}

	t.logger.Debug("Serial line", zap.String("line", line))
	if onLine != nil {
		onLine(line)
	}
}
