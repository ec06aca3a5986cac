package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/events"
	"printer-service/internal/model"
	"printer-service/internal/protocol"
)

func testConfig() *config.Config {
	return &config.Config{
		Printer: config.PrinterConfig{
			DefaultBaudRate:    250000,
			NullPort:           "dummy",
			ReadTimeout:        200 * time.Millisecond,
			CommandTimeout:     5 * time.Second,
			LockTimeout:        5 * time.Second,
			MaxRetries:         10,
			RetryBackoff:       time.Millisecond,
			PipelineDepth:      1,
			BusyPolicy:         config.BusyPolicyRetry,
			SingleLinePrefixes: []string{"G"},
			DrainReadTimeout:   10 * time.Millisecond,
			DrainQuietReads:    2,
			DrainMaxDuration:   time.Second,
		},
		Dummy: config.DummyConfig{
			HotendMin:    170,
			HotendMax:    195,
			HotendTarget: 190,
			BedMin:       20,
			BedMax:       35,
			BedTarget:    24,
			AxisMax:      200,
		},
	}
}

type stubScanner struct {
	ports []model.SerialPort
	err   error
}

func (s stubScanner) Scan(context.Context) ([]model.SerialPort, error) {
	return s.ports, s.err
}

type memoryRepository struct {
	mu      sync.Mutex
	records []*model.CommandRecord
}

func (m *memoryRepository) Create(_ context.Context, rec *model.CommandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryRepository) ListRecent(_ context.Context, port string, limit int) ([]*model.CommandRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CommandRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if port == "" || m.records[i].Port == port {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *memoryRepository) DeleteOlderThan(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	var deleted int64
	for _, r := range m.records {
		if r.SentAt.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return deleted, nil
}

func (m *memoryRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// countingFactory records every transport it hands out
type countingFactory struct {
	*protocol.Factory

	mu      sync.Mutex
	created []*countingTransport
}

func newCountingFactory(responses ...protocol.DummyResponse) *countingFactory {
	return &countingFactory{Factory: protocol.NewFactory(protocol.FactoryConfig{
		NullPort: "dummy",
		Dummy:    protocol.DummyConfig{Responses: responses},
	}, zap.NewNop())}
}

func (f *countingFactory) Create(port string, baudRate int) (protocol.Transport, error) {
	transport, err := f.Factory.Create(port, baudRate)
	if err != nil {
		return nil, err
	}
	ct := &countingTransport{Transport: transport}

	f.mu.Lock()
	f.created = append(f.created, ct)
	f.mu.Unlock()
	return ct, nil
}

func (f *countingFactory) transports() []*countingTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*countingTransport(nil), f.created...)
}

type countingTransport struct {
	protocol.Transport
	opens  atomic.Int32
	closes atomic.Int32
}

func (c *countingTransport) Open(ctx context.Context) error {
	c.opens.Add(1)
	return c.Transport.Open(ctx)
}

func (c *countingTransport) Close() error {
	c.closes.Add(1)
	return c.Transport.Close()
}

func newTestService(t *testing.T, deps Dependencies) *PrinterService {
	t.Helper()

	cfg := testConfig()
	if deps.Factory == nil {
		deps.Factory = protocol.NewFactoryFromConfig(cfg, zap.NewNop())
	}

	s := NewPrinterService(deps, cfg, zap.NewNop())
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestConnectDummyAndQueryPosition(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := newTestService(t, Dependencies{})

	result, err := s.Connect(ctx, "dummy", 9600)
	require.NoError(err)
	require.Equal("dummy", result.Port)
	require.Equal(9600, result.BaudRate)
	require.False(result.Reused)
	require.Equal([]string{"start", "echo: dummy firmware ready"}, result.Messages)
	require.Equal(model.StateConnected, s.ConnectionState())

	res, err := s.SendCommand(ctx, "M114", true)
	require.NoError(err)

	last := res.Events[len(res.Events)-1]
	require.Equal(model.KindAck, last.Kind)
	require.NotNil(last.Position)
	for _, v := range []float64{
		last.Position.X.InexactFloat64(),
		last.Position.Y.InexactFloat64(),
		last.Position.Z.InexactFloat64(),
		last.Position.E.InexactFloat64(),
	} {
		require.GreaterOrEqual(v, 0.0)
		require.LessOrEqual(v, 200.0)
	}

	require.Equal(model.StateConnected, s.ConnectionState())
}

func TestSendTemperatureWithinBounds(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := newTestService(t, Dependencies{})

	_, err := s.Connect(ctx, "dummy", 9600)
	require.NoError(err)

	res, err := s.SendCommand(ctx, "M105", true)
	require.NoError(err)

	var temp *model.Temperature
	for _, ev := range res.Events {
		if ev.Temperature != nil {
			temp = ev.Temperature
		}
	}
	require.NotNil(temp)
	require.True(temp.Acknowledged)

	hotend := temp.Hotend.InexactFloat64()
	require.GreaterOrEqual(hotend, 170.0)
	require.LessOrEqual(hotend, 195.0)
	require.True(temp.Bed.Valid)
	bed := temp.Bed.Decimal.InexactFloat64()
	require.GreaterOrEqual(bed, 20.0)
	require.LessOrEqual(bed, 35.0)
}

func TestDoubleConnectReusesConnection(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	factory := newCountingFactory()
	s := newTestService(t, Dependencies{Factory: factory})

	first, err := s.Connect(ctx, "dummy", 9600)
	require.NoError(err)

	_, err = s.SendCommand(ctx, "G28", false)
	require.NoError(err)
	require.Equal(2, s.Status().NextLine)

	second, err := s.Connect(ctx, "dummy", 9600)
	require.NoError(err)
	require.True(second.Reused)
	require.Equal(first.Time, second.Time)

	status := s.Status()
	require.Equal(model.StateConnected, status.State)
	require.Equal(2, status.NextLine)
	require.Equal(int64(1), status.CommandsSent)

	transports := factory.transports()
	require.Len(transports, 1)
	require.EqualValues(1, transports[0].opens.Load())
	require.Zero(transports[0].closes.Load())
}

func TestConnectToOtherEndpointReconnects(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	factory := newCountingFactory()
	s := newTestService(t, Dependencies{Factory: factory})

	_, err := s.Connect(ctx, "dummy", 9600)
	require.NoError(err)
	_, err = s.SendCommand(ctx, "G28", false)
	require.NoError(err)

	result, err := s.Connect(ctx, "dummy-2", 115200)
	require.NoError(err)
	require.False(result.Reused)

	status := s.Status()
	require.Equal("dummy-2", status.Port)
	require.Equal(115200, status.BaudRate)
	require.Equal(1, status.NextLine)
	require.Zero(status.CommandsSent)

	transports := factory.transports()
	require.Len(transports, 2)
	require.EqualValues(1, transports[0].closes.Load())
	require.False(transports[0].IsOpen())
	require.EqualValues(1, transports[1].opens.Load())
	require.True(transports[1].IsOpen())
}

func TestCloseWhileBusyReleasesTransport(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	// M400 never gets an answer
	factory := newCountingFactory(protocol.DummyResponse{Pattern: regexp.MustCompile(`^M400`), Reply: ""})
	s := newTestService(t, Dependencies{Factory: factory})

	_, err := s.Connect(ctx, "dummy", 9600)
	require.NoError(err)

	sendErr := make(chan error, 1)
	go func() {
		_, err := s.SendCommand(ctx, "M400", false)
		sendErr <- err
	}()
	require.Eventually(func() bool {
		return s.ConnectionState() == model.StateBusy
	}, time.Second, 5*time.Millisecond)

	_, err = s.Disconnect(ctx)
	require.ErrorIs(err, ErrInvalidTransition)

	require.NoError(s.Close())
	require.Equal(model.StateClosed, s.ConnectionState())

	transports := factory.transports()
	require.Len(transports, 1)
	require.False(transports[0].IsOpen())

	select {
	case err := <-sendErr:
		require.ErrorIs(err, protocol.ErrIOFailure)
	case <-time.After(2 * time.Second):
		require.Fail("in-flight command did not fail after close")
	}
	require.Equal(model.StateClosed, s.ConnectionState())

	// The service is usable again
	_, err = s.Connect(ctx, "dummy", 9600)
	require.NoError(err)
	_, err = s.SendCommand(ctx, "G28", false)
	require.NoError(err)
	require.Equal(model.StateConnected, s.ConnectionState())
}

func TestStatusReportsTransportAndRetries(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	factory := newCountingFactory(protocol.DummyResponse{
		Pattern:  regexp.MustCompile(`^M400`),
		Generate: protocol.Sequence("resend 1\n", "ok\n"),
	})
	s := newTestService(t, Dependencies{Factory: factory})

	require.Nil(s.Status().Transport)

	_, err := s.Connect(ctx, "dummy", 9600)
	require.NoError(err)

	res, err := s.SendCommand(ctx, "M400", false)
	require.NoError(err)
	require.Equal(1, res.Retries)

	status := s.Status()
	require.EqualValues(1, status.Retries)
	require.NotNil(status.Transport)
	require.True(status.Transport.IsConnected)
	require.EqualValues(2, status.Transport.LinesWritten)
	require.EqualValues(2, status.Transport.LinesRead)
	require.Equal(int64(len("M400\n")*2), status.Transport.BytesWritten)
}

func TestOpenFailureMovesToError(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := newTestService(t, Dependencies{})

	_, err := s.Connect(ctx, "/dev/printer-service-missing-port", 115200)
	require.Error(err)
	require.True(errors.Is(err, protocol.ErrPortUnavailable))
	require.Equal(model.StateError, s.ConnectionState())

	state, err := s.Disconnect(ctx)
	require.NoError(err)
	require.Equal(model.StateError, state)

	// Error allows a fresh connect
	_, err = s.Connect(ctx, "dummy", 9600)
	require.NoError(err)
	require.Equal(model.StateConnected, s.ConnectionState())
}

func TestDisconnect(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := newTestService(t, Dependencies{})

	state, err := s.Disconnect(ctx)
	require.NoError(err)
	require.Equal(model.StateClosed, state)

	_, err = s.Connect(ctx, "dummy", 9600)
	require.NoError(err)

	state, err = s.Disconnect(ctx)
	require.NoError(err)
	require.Equal(model.StateClosed, state)

	_, err = s.SendCommand(ctx, "G28", false)
	require.ErrorIs(err, ErrNotConnected)
	require.ErrorIs(s.SetLineNumber(ctx, 10), ErrNotConnected)
}

func TestStateChangesArePublished(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(zap.NewNop())
	go bus.Run(ctx)
	_, ch := bus.Subscribe(model.EventStateChanged)

	s := newTestService(t, Dependencies{Bus: bus})

	_, err := s.Connect(ctx, "dummy", 9600)
	require.NoError(err)
	_, err = s.SendCommand(ctx, "G28", false)
	require.NoError(err)
	_, err = s.Disconnect(ctx)
	require.NoError(err)

	want := []model.ConnectionState{
		model.StateConnecting,
		model.StateConnected,
		model.StateBusy,
		model.StateConnected,
		model.StateClosed,
	}
	for _, state := range want {
		select {
		case ev := <-ch:
			data, ok := ev.Data.(model.StateChangedData)
			require.True(ok)
			require.Equal(state, data.Current)
		case <-time.After(time.Second):
			t.Fatalf("missing state event %s", state)
		}
	}
}

func TestSetLineNumberOnNullPortOnlyMovesCounter(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := newTestService(t, Dependencies{})

	_, err := s.Connect(ctx, "dummy", 9600)
	require.NoError(err)

	require.NoError(s.SetLineNumber(ctx, 40))
	require.Equal(40, s.Status().NextLine)
	require.Zero(s.Status().CommandsSent)
}

func TestListAvailablePortsAppendsNullPort(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	s := newTestService(t, Dependencies{Scanner: stubScanner{ports: []model.SerialPort{{Name: "/dev/ttyACM0", IsUSB: true}}}})
	ports, err := s.ListAvailablePorts(ctx)
	require.NoError(err)
	require.Len(ports, 2)
	require.Equal("/dev/ttyACM0", ports[0].Name)
	require.Equal("dummy", ports[1].Name)

	failing := newTestService(t, Dependencies{Scanner: stubScanner{err: errors.New("denied")}})
	_, err = failing.ListAvailablePorts(ctx)
	require.Error(err)
}

func TestCommandsArePersisted(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	repo := &memoryRepository{}
	s := newTestService(t, Dependencies{Repository: repo})

	_, err := s.Connect(ctx, "dummy", 9600)
	require.NoError(err)
	_, err = s.SendCommand(ctx, "G28", false)
	require.NoError(err)

	require.Eventually(func() bool { return repo.count() == 1 }, time.Second, 5*time.Millisecond)

	recent, err := s.RecentCommands(ctx, 10)
	require.NoError(err)
	require.Len(recent, 1)
	require.Equal("G28", recent[0].Gcode)
	require.Equal("ok", recent[0].Outcome)
	require.Equal(1, recent[0].Sequence)

	deleted, err := s.PruneCommandLog(ctx, -time.Hour)
	require.NoError(err)
	require.Equal(int64(1), deleted)
}
