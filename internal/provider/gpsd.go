package provider

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	gpsd "github.com/stratoberry/go-gpsd"
)

// staleAfter is how long the gpsd backend may go without any report before
// Connected() turns false.
const staleAfter = 10 * time.Second

// GPSD reads fixes from a gpsd daemon over its JSON socket protocol.
// TPV reports feed position updates, SKY reports feed satellite visibility.
type GPSD struct {
	addr string

	mu      sync.Mutex
	session *gpsd.Session
	started bool

	state    ServiceState
	pos      Position
	havePos  bool
	sat      SatelliteCount
	haveSat  bool
	details  []SatelliteDetail
	lastSeen time.Time

	stateFn StateFunc
	posFn   PositionFunc
	posIvl  time.Duration
	posLast time.Time
	satFn   SatellitesFunc
	satIvl  time.Duration
	satLast time.Time
}

// GPSDConfig holds connection configuration for the gpsd backend.
type GPSDConfig struct {
	Addr string `yaml:"addr" json:"addr"` // e.g. localhost:2947
}

// NewGPSD creates a gpsd-backed provider. No I/O happens until Start.
func NewGPSD(cfg GPSDConfig) *GPSD {
	addr := cfg.Addr
	if addr == "" {
		addr = gpsd.DefaultAddress
	}
	return &GPSD{addr: addr}
}

func (g *GPSD) Name() string { return "gpsd" }

func (g *GPSD) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return nil
	}

	session, err := gpsd.Dial(g.addr)
	if err != nil {
		return fmt.Errorf("gpsd: dial %s: %w", g.addr, err)
	}

	session.AddFilter("TPV", func(r interface{}) {
		if tpv, ok := r.(*gpsd.TPVReport); ok {
			g.handleTPV(tpv)
		}
	})
	session.AddFilter("SKY", func(r interface{}) {
		if sky, ok := r.(*gpsd.SKYReport); ok {
			g.handleSKY(sky)
		}
	})
	session.Watch()

	g.session = session
	g.started = true
	log.Printf("[gpsd] watching %s", g.addr)
	return nil
}

func (g *GPSD) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return nil
	}
	err := g.session.Close()
	g.session = nil
	g.started = false
	return err
}

func (g *GPSD) Close() error { return g.Stop() }

func (g *GPSD) WatchState(fn StateFunc) error {
	g.mu.Lock()
	g.stateFn = fn
	g.mu.Unlock()
	return nil
}

func (g *GPSD) UnwatchState() {
	g.mu.Lock()
	g.stateFn = nil
	g.mu.Unlock()
}

func (g *GPSD) WatchPosition(fn PositionFunc, interval time.Duration) error {
	g.mu.Lock()
	g.posFn = fn
	g.posIvl = interval
	g.posLast = time.Time{}
	g.mu.Unlock()
	return nil
}

func (g *GPSD) UnwatchPosition() {
	g.mu.Lock()
	g.posFn = nil
	g.mu.Unlock()
}

func (g *GPSD) WatchSatellites(fn SatellitesFunc, interval time.Duration) error {
	g.mu.Lock()
	g.satFn = fn
	g.satIvl = interval
	g.satLast = time.Time{}
	g.mu.Unlock()
	return nil
}

func (g *GPSD) UnwatchSatellites() {
	g.mu.Lock()
	g.satFn = nil
	g.mu.Unlock()
}

// handleTPV converts a time-position-velocity report and fans it out to the
// state and position subscribers.
func (g *GPSD) handleTPV(tpv *gpsd.TPVReport) {
	pos := Position{
		Latitude:   tpv.Lat,
		Longitude:  tpv.Lon,
		Altitude:   tpv.Alt,
		Climb:      tpv.Climb,
		Direction:  tpv.Track,
		Speed:      tpv.Speed * 3.6, // m/s to km/h
		Horizontal: maxf(tpv.Epx, tpv.Epy),
		Vertical:   tpv.Epv,
		Level:      int(tpv.Mode),
		Timestamp:  tpv.Time,
	}

	state := StateSearching
	if tpv.Mode >= 2 {
		state = StateEnabled
	}

	g.mu.Lock()
	g.pos = pos
	g.havePos = true
	g.lastSeen = time.Now()

	var stateFn StateFunc
	if state != g.state {
		g.state = state
		stateFn = g.stateFn
	}

	var posFn PositionFunc
	now := time.Now()
	if g.posFn != nil && now.Sub(g.posLast) >= g.posIvl {
		g.posLast = now
		posFn = g.posFn
	}
	g.mu.Unlock()

	if stateFn != nil {
		stateFn(state)
	}
	if posFn != nil {
		posFn(pos)
	}
}

// handleSKY converts a sky-view report and fans it out to the satellite
// subscriber.
func (g *GPSD) handleSKY(sky *gpsd.SKYReport) {
	details := make([]SatelliteDetail, 0, len(sky.Satellites))
	active := 0
	for _, s := range sky.Satellites {
		if s.Used {
			active++
		}
		details = append(details, SatelliteDetail{
			Azimuth:   uint(s.Az),
			Elevation: uint(s.El),
			PRN:       uint(s.PRN),
			SNR:       int(s.Ss),
			InUse:     s.Used,
		})
	}
	sat := SatelliteCount{Active: active, InView: len(sky.Satellites), Timestamp: sky.Time}

	g.mu.Lock()
	g.sat = sat
	g.haveSat = true
	g.details = details
	g.lastSeen = time.Now()

	var satFn SatellitesFunc
	now := time.Now()
	if g.satFn != nil && now.Sub(g.satLast) >= g.satIvl {
		g.satLast = now
		satFn = g.satFn
	}
	g.mu.Unlock()

	if satFn != nil {
		satFn(sat)
	}
}

// Location returns the latest streamed fix. gpsd has no request/response
// query, so "current" and "last cached" are the same report.
func (g *GPSD) Location() (Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.havePos {
		return Position{}, errors.New("gpsd: no fix received yet")
	}
	return g.pos, nil
}

func (g *GPSD) LastLocation() (Position, error) { return g.Location() }

func (g *GPSD) Satellites() (SatelliteCount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.haveSat {
		return SatelliteCount{}, errors.New("gpsd: no sky report received yet")
	}
	return g.sat, nil
}

func (g *GPSD) LastSatellites() (SatelliteCount, error) { return g.Satellites() }

func (g *GPSD) EachSatelliteInView(fn SatelliteIterFunc) error {
	g.mu.Lock()
	details := make([]SatelliteDetail, len(g.details))
	copy(details, g.details)
	g.mu.Unlock()

	for _, det := range details {
		if !fn(det) {
			break
		}
	}
	return nil
}

// NMEA is unavailable over the gpsd JSON protocol; raw sentence passthrough
// would require watching in NMEA mode, which would stop the JSON reports.
func (g *GPSD) NMEA() (string, error) {
	return "", errors.New("gpsd: raw sentence passthrough not available")
}

func (g *GPSD) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started && time.Since(g.lastSeen) < staleAfter
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
