package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/protocol"
	"ffb-control-service/internal/simulator"
)

type TransportTestSuite struct {
	suite.Suite
	wheel     *simulator.Wheel
	transport *Transport
}

func (s *TransportTestSuite) SetupTest() {
	opts := simulator.DefaultOptions()
	opts.TelemetryInterval = 0
	s.wheel = simulator.NewWheel(opts)

	opener := OpenerFunc(func(ctx context.Context, name string) (Port, error) {
		return s.wheel.Open(), nil
	})
	s.transport = NewTransport(opener, 0, zaptest.NewLogger(s.T()))
	s.Require().NoError(s.transport.Connect(context.Background(), "SIM"))
}

func (s *TransportTestSuite) TearDownTest() {
	s.transport.Disconnect()
}

func (s *TransportTestSuite) TestSendAndWaitMatchesReply() {
	line, err := s.transport.SendAndWait(context.Background(), "V", protocol.VersionLine(), time.Second)
	s.Require().NoError(err)
	s.Equal(simulator.DefaultFirmware, line)
	s.Equal("SIM", s.transport.PortName())
	s.True(s.transport.IsConnected())
}

func (s *TransportTestSuite) TestUnmatchedLinesGoToLineCallback() {
	lines := make(chan string, 4)
	s.transport.OnLine(func(l string) { lines <- l })

	s.wheel.Reply("V", "garbage")
	s.wheel.Emit("  hello  ")

	_, err := s.transport.SendAndWait(context.Background(), "V", protocol.VersionLine(), 100*time.Millisecond)
	s.True(apperrors.Is(err, apperrors.KindTimeout))

	s.Equal("hello", <-lines)
	s.Equal("garbage", <-lines)
}

func (s *TransportTestSuite) TestTimeoutReleasesGate() {
	s.wheel.Mute("C", 1)

	start := time.Now()
	_, err := s.transport.SendAndWait(context.Background(), "C", protocol.Ack(), 80*time.Millisecond)
	s.True(apperrors.Is(err, apperrors.KindTimeout))
	s.GreaterOrEqual(time.Since(start), 80*time.Millisecond)

	line, err := s.transport.SendAndWait(context.Background(), "C", protocol.Ack(), time.Second)
	s.NoError(err)
	s.Equal("1", line)
}

func (s *TransportTestSuite) TestCancelledContextReleasesGate() {
	s.wheel.Mute("C", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.transport.SendAndWait(ctx, "C", protocol.Ack(), time.Second)
	s.ErrorIs(err, context.DeadlineExceeded)

	_, err = s.transport.SendAndWait(context.Background(), "C", protocol.Ack(), time.Second)
	s.NoError(err)
}

func (s *TransportTestSuite) TestGateServesCallersInOrder() {
	s.wheel.Mute("C", 1)
	s.wheel.ResetReceived()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.transport.SendAndWait(context.Background(), "C", protocol.Ack(), 300*time.Millisecond)
	}()
	time.Sleep(30 * time.Millisecond)

	const callers = 6
	errs := make(chan error, callers)
	for i := 1; i <= callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.transport.SendAndWait(context.Background(), fmt.Sprintf("G %d", i), protocol.Ack(), time.Second)
			errs <- err
		}(i)
		time.Sleep(15 * time.Millisecond)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	s.Equal([]string{"C", "G 1", "G 2", "G 3", "G 4", "G 5", "G 6"}, s.wheel.Received())
}

func (s *TransportTestSuite) TestTelemetryDispatch() {
	torque := make(chan int, 4)
	lines := make(chan string, 4)
	s.transport.OnTelemetry(func(v int) { torque <- v })
	s.transport.OnLine(func(l string) { lines <- l })

	s.wheel.Emit("-250")
	s.Equal("-250", <-lines)

	s.transport.SetTelemetryEnabled(true)
	s.True(s.transport.TelemetryEnabled())
	s.wheel.Emit("-250")
	s.wheel.Emit("status ok")
	s.Equal(-250, <-torque)
	s.Equal("status ok", <-lines)
}

func (s *TransportTestSuite) TestPendingMatcherWinsOverTelemetry() {
	s.transport.SetTelemetryEnabled(true)
	torque := make(chan int, 4)
	s.transport.OnTelemetry(func(v int) { torque <- v })

	line, err := s.transport.SendAndWait(context.Background(), "C", protocol.Ack(), time.Second)
	s.NoError(err)
	s.Equal("1", line)
	s.Empty(torque)
}

func (s *TransportTestSuite) TestUnexpectedDropFiresOnceAndFailsWaiter() {
	var drops atomic.Int32
	s.transport.OnDisconnect(func() { drops.Add(1) })

	s.wheel.Mute("U", 1)
	result := make(chan error, 1)
	go func() {
		_, err := s.transport.SendAndWait(context.Background(), "U", protocol.FieldDump(10), 2*time.Second)
		result <- err
	}()
	time.Sleep(30 * time.Millisecond)

	s.wheel.Unplug()

	err := <-result
	s.True(apperrors.Is(err, apperrors.KindConnectionLost), "got %v", err)
	s.Eventually(func() bool { return drops.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.False(s.transport.IsConnected())

	s.transport.Disconnect()
	time.Sleep(20 * time.Millisecond)
	s.Equal(int32(1), drops.Load())

	_, err = s.transport.SendAndWait(context.Background(), "V", protocol.VersionLine(), time.Second)
	s.True(apperrors.Is(err, apperrors.KindNotConnected))
}

func (s *TransportTestSuite) TestIntentionalDisconnectIsSilent() {
	var drops atomic.Int32
	s.transport.OnDisconnect(func() { drops.Add(1) })

	s.transport.Disconnect()
	s.transport.Disconnect()
	time.Sleep(20 * time.Millisecond)

	s.Zero(drops.Load())
	s.False(s.transport.IsConnected())
	s.Equal("", s.transport.PortName())
	s.True(apperrors.Is(s.transport.SendNoWait("E 1"), apperrors.KindNotConnected))
}

func (s *TransportTestSuite) TestSendNoWaitWritesCommand() {
	s.wheel.ResetReceived()
	s.Require().NoError(s.transport.SendNoWait("E 17"))

	s.Eventually(func() bool {
		return len(s.wheel.Received()) == 1 && s.wheel.Received()[0] == "E 17"
	}, time.Second, 5*time.Millisecond)
	s.Equal(17, s.wheel.ActiveConfig().DesktopEffectsByte)
}

func TestTransportTestSuite(t *testing.T) {
	suite.Run(t, new(TransportTestSuite))
}

func TestConnectFailureIsConnectionError(t *testing.T) {
	opener := OpenerFunc(func(ctx context.Context, name string) (Port, error) {
		return nil, errors.New("access denied")
	})
	transport := NewTransport(opener, 0, zaptest.NewLogger(t))

	err := transport.Connect(context.Background(), "COM9")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConnection))
	assert.False(t, transport.IsConnected())
}

func TestConnectWaitsSettleDelay(t *testing.T) {
	wheel := simulator.NewWheel(simulator.Options{})
	opener := OpenerFunc(func(ctx context.Context, name string) (Port, error) {
		return wheel.Open(), nil
	})
	transport := NewTransport(opener, 60*time.Millisecond, zaptest.NewLogger(t))
	defer transport.Disconnect()

	start := time.Now()
	require.NoError(t, transport.Connect(context.Background(), "SIM"))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}
