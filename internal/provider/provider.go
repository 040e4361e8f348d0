package provider

import "time"

// ServiceState mirrors the state reported by the location subsystem.
type ServiceState int

const (
	// StateDisabled means the subsystem is not producing fixes.
	StateDisabled ServiceState = iota
	// StateEnabled means the subsystem has a usable fix.
	StateEnabled
	// StateSearching means the subsystem is up but still acquiring.
	StateSearching
)

func (s ServiceState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	case StateSearching:
		return "searching"
	}
	return "unknown"
}

// Position holds a single location fix.
type Position struct {
	Latitude   float64   // Decimal degrees
	Longitude  float64   // Decimal degrees
	Altitude   float64   // Meters
	Climb      float64   // m/s vertical rate
	Direction  float64   // Degrees true
	Speed      float64   // km/h
	Horizontal float64   // Horizontal accuracy, meters
	Vertical   float64   // Vertical accuracy, meters
	Level      int       // Accuracy level ordinal
	Timestamp  time.Time // Fix time as reported by the subsystem
}

// SatelliteCount holds constellation visibility counts.
type SatelliteCount struct {
	Active    int // Satellites used in the fix
	InView    int // Satellites currently visible
	Timestamp time.Time
}

// SatelliteDetail describes one visible satellite. Diagnostic only; the
// bridge logs these but never forwards or stores them.
type SatelliteDetail struct {
	Azimuth   uint
	Elevation uint
	PRN       uint
	SNR       int
	InUse     bool
}

// Callback signatures for the watch subscriptions.
type (
	StateFunc      func(ServiceState)
	PositionFunc   func(Position)
	SatellitesFunc func(SatelliteCount)
	// SatelliteIterFunc is invoked once per visible satellite.
	// Return false to stop the iteration early.
	SatelliteIterFunc func(SatelliteDetail) bool
)

// Provider is the interface every location backend must implement.
// Constructors do no I/O; Start opens the underlying device or connection
// and begins producing updates, Stop halts it, Close releases everything.
//
// Callbacks may be invoked from the provider's own goroutine; callers that
// need serial delivery must funnel them onto their own loop.
type Provider interface {
	// Name returns the human-readable name of this backend.
	Name() string
	// Start opens the backend and begins producing updates.
	Start() error
	// Stop halts updates but keeps the provider reusable via Start.
	Stop() error
	// Close stops the provider and releases its resources.
	Close() error

	// WatchState registers the service-state change callback.
	WatchState(fn StateFunc) error
	// UnwatchState removes the state callback.
	UnwatchState()
	// WatchPosition registers the position callback, delivered at most
	// once per interval.
	WatchPosition(fn PositionFunc, interval time.Duration) error
	// UnwatchPosition removes the position callback.
	UnwatchPosition()
	// WatchSatellites registers the satellite-count callback, delivered
	// at most once per interval.
	WatchSatellites(fn SatellitesFunc, interval time.Duration) error
	// UnwatchSatellites removes the satellite callback.
	UnwatchSatellites()

	// Location returns the current fix. May block briefly.
	Location() (Position, error)
	// LastLocation returns the most recently cached fix without waiting
	// for a new one.
	LastLocation() (Position, error)
	// Satellites returns the current visibility counts.
	Satellites() (SatelliteCount, error)
	// LastSatellites returns the most recently cached counts.
	LastSatellites() (SatelliteCount, error)
	// EachSatelliteInView iterates over currently visible satellites.
	EachSatelliteInView(fn SatelliteIterFunc) error
	// NMEA returns a raw positioning sentence for diagnostics, if the
	// backend exposes one.
	NMEA() (string, error)
	// Connected reports the device-level GPS status.
	Connected() bool
}
