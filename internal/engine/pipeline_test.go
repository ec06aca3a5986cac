package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/internal/protocol"
)

// scriptTransport replays firmware lines pushed by the test and records writes
type scriptTransport struct {
	mu      sync.Mutex
	written []string
	lines   chan string
}

var _ protocol.Transport = (*scriptTransport)(nil)

func newScriptTransport() *scriptTransport {
	return &scriptTransport{lines: make(chan string, 64)}
}

func (s *scriptTransport) Open(context.Context) error { return nil }
func (s *scriptTransport) Close() error               { return nil }
func (s *scriptTransport) IsOpen() bool               { return true }
func (s *scriptTransport) PortName() string           { return "script" }

func (s *scriptTransport) Stats() model.TransportStats {
	return model.TransportStats{IsConnected: true}
}

func (s *scriptTransport) Write(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, string(data))
	return nil
}

func (s *scriptTransport) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-s.lines:
		return line, nil
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *scriptTransport) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

func TestPipelinedResendTargetsNamedLine(t *testing.T) {
	require := require.New(t)

	st := newScriptTransport()
	opts := testOptions()
	opts.PipelineDepth = 2
	q := NewCommandQueue(st, opts, Hooks{}, zap.NewNop())

	type outcome struct {
		res *Result
		err error
	}
	results := make(chan outcome, 2)
	for _, text := range []string{"M117 first", "M117 second"} {
		go func() {
			res, err := q.Send(context.Background(), text, false)
			results <- outcome{res, err}
		}()
	}

	require.Eventually(func() bool { return len(st.Written()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(2, q.InFlight())

	var lineTwo string
	for _, w := range st.Written() {
		if strings.HasPrefix(w, "N2") {
			lineTwo = w
		}
	}
	require.NotEmpty(lineTwo)

	// the firmware lost line 2 but accepted line 1
	st.lines <- "ok"
	st.lines <- "Resend: 2"
	require.Eventually(func() bool { return len(st.Written()) == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(lineTwo, st.Written()[2])

	st.lines <- "ok"

	retries := map[int]int{}
	for range 2 {
		select {
		case o := <-results:
			require.NoError(o.err)
			require.Equal(model.KindAck, o.res.Events[len(o.res.Events)-1].Kind)
			retries[o.res.Command.Sequence] = o.res.Retries
		case <-time.After(2 * time.Second):
			t.Fatal("pipelined commands did not complete")
		}
	}

	require.Equal(map[int]int{1: 0, 2: 1}, retries)
	require.Len(st.Written(), 3)
	require.Zero(q.InFlight())
}

func TestPipelineDepthBoundsOutstandingCommands(t *testing.T) {
	require := require.New(t)

	st := newScriptTransport()
	opts := testOptions()
	opts.PipelineDepth = 2
	q := NewCommandQueue(st, opts, Hooks{}, zap.NewNop())

	done := make(chan error, 3)
	for range 3 {
		go func() {
			_, err := q.Send(context.Background(), "M400", false)
			done <- err
		}()
	}

	require.Eventually(func() bool { return len(st.Written()) == 2 }, time.Second, 5*time.Millisecond)
	// the third command waits for a free slot
	time.Sleep(50 * time.Millisecond)
	require.Len(st.Written(), 2)

	st.lines <- "ok"
	require.Eventually(func() bool { return len(st.Written()) == 3 }, time.Second, 5*time.Millisecond)

	st.lines <- "ok"
	st.lines <- "ok"
	for range 3 {
		require.NoError(<-done)
	}
}

func TestFatalEndsEveryOutstandingCommand(t *testing.T) {
	require := require.New(t)

	st := newScriptTransport()
	opts := testOptions()
	opts.PipelineDepth = 2
	q := NewCommandQueue(st, opts, Hooks{}, zap.NewNop())

	done := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := q.Send(context.Background(), "M400", false)
			done <- err
		}()
	}

	require.Eventually(func() bool { return len(st.Written()) == 2 }, time.Second, 5*time.Millisecond)
	st.lines <- "!! thermal runaway"

	for range 2 {
		require.ErrorIs(<-done, ErrFatalDevice)
	}
	require.True(q.Halted())
}
