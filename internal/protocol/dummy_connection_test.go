package protocol

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOpenDummy(t *testing.T, cfg DummyConfig) *DummyConnection {
	t.Helper()
	dc := NewDummyConnection(cfg, zap.NewNop())
	require.NoError(t, dc.Open(context.Background()))
	return dc
}

func TestDummyFirstMatchWins(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dc := newOpenDummy(t, DummyConfig{
		Port: "dummy",
		Responses: []DummyResponse{
			{Pattern: regexp.MustCompile(`^G28`), Reply: "echo:homing\nok\n"},
			{Pattern: regexp.MustCompile(`^G`), Reply: "wrong\n"},
		},
	})

	require.NoError(dc.Write(ctx, []byte("G28\n")))

	line, err := dc.ReadLine(ctx, time.Second)
	require.NoError(err)
	require.Equal("echo:homing", line)

	line, err = dc.ReadLine(ctx, time.Second)
	require.NoError(err)
	require.Equal("ok", line)
}

func TestDummyDefaultReply(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dc := newOpenDummy(t, DummyConfig{Port: "dummy"})
	require.NoError(dc.Write(ctx, []byte("M999\n")))

	line, err := dc.ReadLine(ctx, time.Second)
	require.NoError(err)
	require.Equal("ok", line)
	require.Equal([]string{"M999\n"}, dc.Written())
}

func TestDummyReadTimesOutEmpty(t *testing.T) {
	require := require.New(t)

	dc := newOpenDummy(t, DummyConfig{Port: "dummy"})

	start := time.Now()
	line, err := dc.ReadLine(context.Background(), 30*time.Millisecond)
	require.NoError(err)
	require.Empty(line)
	require.GreaterOrEqual(time.Since(start), 30*time.Millisecond)
}

func TestDummyBannerAndInject(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dc := newOpenDummy(t, DummyConfig{Port: "dummy", Banner: "start\necho:Marlin\n"})

	line, _ := dc.ReadLine(ctx, time.Second)
	require.Equal("start", line)
	line, _ = dc.ReadLine(ctx, time.Second)
	require.Equal("echo:Marlin", line)

	dc.Inject("T:20.0 /0.0\n")
	line, _ = dc.ReadLine(ctx, time.Second)
	require.Equal("T:20.0 /0.0", line)
}

func TestDummySkipsBlankReplyLines(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dc := newOpenDummy(t, DummyConfig{Port: "dummy"})
	dc.Inject("\r\n\n \nok\r\n")

	line, err := dc.ReadLine(ctx, time.Second)
	require.NoError(err)
	require.Equal("ok", line)

	line, err = dc.ReadLine(ctx, 10*time.Millisecond)
	require.NoError(err)
	require.Empty(line)
}

func TestDummyCloseWakesReader(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dc := newOpenDummy(t, DummyConfig{Port: "dummy"})

	errs := make(chan error, 1)
	go func() {
		_, err := dc.ReadLine(ctx, time.Minute)
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(dc.Close())

	select {
	case err := <-errs:
		require.ErrorIs(err, ErrNotOpen)
	case <-time.After(time.Second):
		require.Fail("reader still blocked after close")
	}
}

func TestDummyClosedTransport(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dc := NewDummyConnection(DummyConfig{Port: "dummy"}, zap.NewNop())
	require.ErrorIs(dc.Write(ctx, []byte("G28\n")), ErrNotOpen)

	require.NoError(dc.Open(ctx))
	require.True(dc.IsOpen())
	require.NoError(dc.Close())
	require.False(dc.IsOpen())

	_, err := dc.ReadLine(ctx, time.Millisecond)
	require.ErrorIs(err, ErrNotOpen)
}

func TestDefaultDummyResponses(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	bounds := DummyBounds{
		HotendMin: 170, HotendMax: 195, HotendTarget: 190,
		BedMin: 20, BedMax: 35, BedTarget: 24, AxisMax: 200,
	}
	dc := newOpenDummy(t, DummyConfig{Port: "dummy", Responses: DefaultDummyResponses(bounds)})

	require.NoError(dc.Write(ctx, []byte("N3M105*0\n")))
	line, err := dc.ReadLine(ctx, time.Second)
	require.NoError(err)
	require.True(strings.HasPrefix(line, "ok T:"), line)

	hotend, err := strconv.ParseFloat(strings.Fields(line)[1][2:], 64)
	require.NoError(err)
	require.GreaterOrEqual(hotend, 170.0)
	require.LessOrEqual(hotend, 195.0)

	require.NoError(dc.Write(ctx, []byte("XXX\n")))
	line, _ = dc.ReadLine(ctx, time.Second)
	require.Equal("!!", line)

	require.NoError(dc.Write(ctx, []byte("N4M115*0\n")))
	line, _ = dc.ReadLine(ctx, time.Second)
	require.True(strings.HasPrefix(line, "FIRMWARE_NAME:DUMMY"))
}

func TestSequence(t *testing.T) {
	require := require.New(t)

	next := Sequence("Resend: 1\n", "ok\n")
	require.Equal("Resend: 1\n", next(""))
	require.Equal("ok\n", next(""))
	require.Equal("ok\n", next(""))
}

func TestFactory(t *testing.T) {
	require := require.New(t)

	f := NewFactory(FactoryConfig{NullPort: "dummy"}, zap.NewNop())
	require.True(f.IsNullPort("dummy"))
	require.True(f.IsNullPort("dummy2"))
	require.False(f.IsNullPort("/dev/ttyUSB0"))

	tr, err := f.Create("dummy", 9600)
	require.NoError(err)
	require.IsType(&DummyConnection{}, tr)
	require.Equal("dummy", tr.PortName())

	tr, err = f.Create("/dev/ttyUSB0", 250000)
	require.NoError(err)
	require.IsType(&SerialConnection{}, tr)

	_, err = f.Create("", 9600)
	require.ErrorIs(err, ErrPortUnavailable)
}

func TestDecodeLine(t *testing.T) {
	require := require.New(t)

	require.Equal("ok", DecodeLine([]byte("ok\r\n")))
	require.Equal("T:20°", DecodeLine([]byte("T:20°")))
	// 0xF8 is the degree sign in code page 437
	require.Equal("T:20°", DecodeLine([]byte{'T', ':', '2', '0', 0xF8}))
}
