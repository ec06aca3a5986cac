package serial

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

func TestScanFiltersAndSorts(t *testing.T) {
	require := require.New(t)

	s := NewScanner(zap.NewNop(), &Config{PortPatterns: []string{"/dev/ttyUSB*", "/dev/ttyACM*"}})
	s.list = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB1"},
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0042", Product: "Mega 2560"},
		}, nil
	}

	ports, err := s.Scan(context.Background())
	require.NoError(err)
	require.Len(ports, 2)
	require.Equal("/dev/ttyACM0", ports[0].Name)
	require.True(ports[0].IsUSB)
	require.Equal("2341", ports[0].VID)
	require.Equal("Arduino Mega 2560 R3", ports[0].Board)
	require.Empty(ports[1].Board)
	require.Equal("/dev/ttyUSB1", ports[1].Name)
}

func TestScanWithoutPatternsKeepsAll(t *testing.T) {
	s := NewScanner(zap.NewNop(), &Config{})
	s.list = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{{Name: "COM3"}, {Name: "/dev/ttyS0"}}, nil
	}

	ports, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 2)
}

func TestScanError(t *testing.T) {
	s := NewScanner(zap.NewNop(), nil)
	s.list = func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no permission")
	}

	_, err := s.Scan(context.Background())
	require.Error(t, err)
}

func TestBoardLookup(t *testing.T) {
	db := NewBoardDatabase()

	tests := []struct {
		name  string
		vid   string
		pid   string
		board string
	}{
		{"prusa", "2C99", "0001", "Original Prusa i3 MK3"},
		{"hex prefix", "0x1a86", "0x7523", "CH340 serial bridge"},
		{"unknown product", "2341", "ffff", ""},
		{"unknown vendor", "dead", "beef", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := db.Lookup(tt.vid, tt.pid)
			if tt.board == "" {
				require.Nil(t, info)
				return
			}
			require.NotNil(t, info)
			require.Equal(t, tt.board, info.Board)
		})
	}

	require.True(t, db.IsKnownVendor("0483"))
	require.Greater(t, db.GetTotalProductCount(), 10)
}
