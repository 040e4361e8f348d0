package provider

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentence wraps a body in $...*hh framing with a computed checksum.
func sentence(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

func TestValidChecksum(t *testing.T) {
	good := sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	assert.True(t, validChecksum(good))
	assert.False(t, validChecksum("$GPRMC,123519,A*00"))
	assert.False(t, validChecksum("$GPRMC,123519,A"))
	assert.False(t, validChecksum("$GPRMC*Z"))
}

func TestParseCoord(t *testing.T) {
	assert.InDelta(t, 48.1173, parseCoord("4807.038", "N"), 1e-4)
	assert.InDelta(t, -48.1173, parseCoord("4807.038", "S"), 1e-4)
	assert.InDelta(t, 11.516667, parseCoord("01131.000", "E"), 1e-4)
	assert.InDelta(t, -11.516667, parseCoord("01131.000", "W"), 1e-4)
	assert.Equal(t, 0.0, parseCoord("", "N"))
	assert.Equal(t, 0.0, parseCoord("garbage", "N"))
}

func TestParseTimestamp(t *testing.T) {
	ts, ok := parseTimestamp("230394", "123519")
	require.True(t, ok)
	assert.Equal(t, time.Date(2094, 3, 23, 12, 35, 19, 0, time.UTC), ts)

	ts, ok = parseTimestamp("150624", "083015.50")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 15, 8, 30, 15, int(5e8), time.UTC), ts)

	_, ok = parseTimestamp("2303", "123519")
	assert.False(t, ok)
	_, ok = parseTimestamp("230394", "12")
	assert.False(t, ok)
}

func TestRMCUpdatesPosition(t *testing.T) {
	n := NewNMEA(NMEAConfig{})
	n.handleSentence(sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,150624,003.1,W"))

	pos, err := n.Location()
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, pos.Latitude, 1e-4)
	assert.InDelta(t, 11.516667, pos.Longitude, 1e-4)
	assert.InDelta(t, 22.4*1.852, pos.Speed, 1e-6) // knots to km/h
	assert.InDelta(t, 84.4, pos.Direction, 1e-6)
	assert.Equal(t, time.Date(2024, 6, 15, 12, 35, 19, 0, time.UTC), pos.Timestamp)
}

func TestRMCVoidFixInvalidatesLocation(t *testing.T) {
	n := NewNMEA(NMEAConfig{})
	n.handleSentence(sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,150624,003.1,W"))
	n.handleSentence(sentence("GPRMC,123520,V,,,,,,,150624,,"))

	_, err := n.Location()
	assert.Error(t, err)

	// The cached fix stays available after the signal drops.
	last, err := n.LastLocation()
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, last.Latitude, 1e-4)
}

func TestGGAUpdatesAltitudeAndAccuracy(t *testing.T) {
	n := NewNMEA(NMEAConfig{})
	n.handleSentence(sentence("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))

	pos, err := n.Location()
	require.NoError(t, err)
	assert.Equal(t, 1, pos.Level)
	assert.InDelta(t, 545.4, pos.Altitude, 1e-6)
	assert.InDelta(t, 0.9, pos.Horizontal, 1e-6)
	assert.InDelta(t, 1.35, pos.Vertical, 1e-6)
}

func TestGSACountsActiveSatellites(t *testing.T) {
	n := NewNMEA(NMEAConfig{})
	n.handleSentence(sentence("GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1"))

	sat, err := n.Satellites()
	require.NoError(t, err)
	assert.Equal(t, 5, sat.Active)
	assert.False(t, sat.Timestamp.IsZero())
}

func TestGSVAccumulatesGroupsAndMarksInUse(t *testing.T) {
	n := NewNMEA(NMEAConfig{})
	n.handleSentence(sentence("GPGSA,A,3,01,24,,,,,,,,,,,2.5,1.3,2.1"))
	n.handleSentence(sentence("GPGSV,2,1,08,01,40,083,46,02,17,308,41,12,07,344,39,14,22,228,45"))

	// Group incomplete: in-view count not committed yet.
	sat, _ := n.Satellites()
	assert.Equal(t, 0, sat.InView)

	n.handleSentence(sentence("GPGSV,2,2,08,24,12,141,00,25,60,110,00,30,15,270,35,31,45,123,44"))

	sat, _ = n.Satellites()
	assert.Equal(t, 8, sat.InView)

	var details []SatelliteDetail
	n.EachSatelliteInView(func(d SatelliteDetail) bool {
		details = append(details, d)
		return true
	})
	require.Len(t, details, 8)
	assert.Equal(t, uint(1), details[0].PRN)
	assert.Equal(t, uint(40), details[0].Elevation)
	assert.Equal(t, uint(83), details[0].Azimuth)
	assert.Equal(t, 46, details[0].SNR)
	assert.True(t, details[0].InUse)
	assert.False(t, details[1].InUse)
	assert.True(t, details[4].InUse) // PRN 24
}

func TestGSVRestartOnNewGroup(t *testing.T) {
	n := NewNMEA(NMEAConfig{})
	n.handleSentence(sentence("GPGSV,2,1,08,01,40,083,46,02,17,308,41,12,07,344,39,14,22,228,45"))
	// A fresh group starts before the previous one completes.
	n.handleSentence(sentence("GPGSV,1,1,02,05,30,100,40,07,55,200,42"))

	var count int
	n.EachSatelliteInView(func(SatelliteDetail) bool {
		count++
		return true
	})
	assert.Equal(t, 2, count)
}

func TestPositionCallbackDelivery(t *testing.T) {
	n := NewNMEA(NMEAConfig{})
	var got []Position
	require.NoError(t, n.WatchPosition(func(p Position) { got = append(got, p) }, 0))

	n.handleSentence(sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,150624,003.1,W"))
	require.Len(t, got, 1)
	assert.InDelta(t, 48.1173, got[0].Latitude, 1e-4)

	// A void fix must not trigger the callback.
	n.handleSentence(sentence("GPRMC,123520,V,,,,,,,150624,,"))
	assert.Len(t, got, 1)

	n.UnwatchPosition()
	n.handleSentence(sentence("GPRMC,123521,A,4807.038,N,01131.000,E,022.4,084.4,150624,003.1,W"))
	assert.Len(t, got, 1)
}

func TestPositionCallbackIntervalGate(t *testing.T) {
	n := NewNMEA(NMEAConfig{})
	var count int
	require.NoError(t, n.WatchPosition(func(Position) { count++ }, time.Hour))

	n.handleSentence(sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,150624,003.1,W"))
	n.handleSentence(sentence("GPRMC,123520,A,4807.038,N,01131.000,E,022.4,084.4,150624,003.1,W"))
	assert.Equal(t, 1, count)
}

func TestStateCallbackOnChangeOnly(t *testing.T) {
	n := NewNMEA(NMEAConfig{})
	var states []ServiceState
	require.NoError(t, n.WatchState(func(s ServiceState) { states = append(states, s) }))

	n.handleSentence(sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,150624,003.1,W"))
	n.handleSentence(sentence("GPRMC,123520,A,4807.038,N,01131.000,E,022.4,084.4,150624,003.1,W"))
	n.handleSentence(sentence("GPRMC,123521,V,,,,,,,150624,,"))

	assert.Equal(t, []ServiceState{StateEnabled, StateSearching}, states)
}

func TestRawSentenceRetained(t *testing.T) {
	n := NewNMEA(NMEAConfig{})
	_, err := n.NMEA()
	assert.Error(t, err)

	line := sentence("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	n.handleSentence(line)
	raw, err := n.NMEA()
	require.NoError(t, err)
	assert.Equal(t, line, raw)
}
