package provider

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Demo generates simulated GPS data: a vehicle driving in a circle around a
// fixed point. It implements the full Provider interface so the bridge can be
// exercised without hardware or a gpsd socket.
type Demo struct {
	mu sync.Mutex
	t  float64

	started bool
	stop    chan struct{}

	stateFn StateFunc
	posFn   PositionFunc
	posIvl  time.Duration
	satFn   SatellitesFunc
	satIvl  time.Duration
}

// NewDemo creates a simulated provider.
func NewDemo() *Demo { return &Demo{} }

func (d *Demo) Name() string { return "Demo GPS (Simulated)" }

func (d *Demo) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	d.started = true
	d.stop = make(chan struct{})
	go d.run(d.stop)
	return nil
}

func (d *Demo) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	close(d.stop)
	d.started = false
	return nil
}

func (d *Demo) Close() error { return d.Stop() }

func (d *Demo) WatchState(fn StateFunc) error {
	d.mu.Lock()
	d.stateFn = fn
	d.mu.Unlock()
	return nil
}

func (d *Demo) UnwatchState() {
	d.mu.Lock()
	d.stateFn = nil
	d.mu.Unlock()
}

func (d *Demo) WatchPosition(fn PositionFunc, interval time.Duration) error {
	d.mu.Lock()
	d.posFn = fn
	d.posIvl = interval
	d.mu.Unlock()
	return nil
}

func (d *Demo) UnwatchPosition() {
	d.mu.Lock()
	d.posFn = nil
	d.mu.Unlock()
}

func (d *Demo) WatchSatellites(fn SatellitesFunc, interval time.Duration) error {
	d.mu.Lock()
	d.satFn = fn
	d.satIvl = interval
	d.mu.Unlock()
	return nil
}

func (d *Demo) UnwatchSatellites() {
	d.mu.Lock()
	d.satFn = nil
	d.mu.Unlock()
}

// run announces the enabled state, then delivers position and satellite
// updates at the subscribed intervals until stopped.
func (d *Demo) run(stop chan struct{}) {
	// Simulated acquisition delay before the fix becomes available.
	select {
	case <-stop:
		return
	case <-time.After(200 * time.Millisecond):
	}

	d.mu.Lock()
	stateFn := d.stateFn
	d.mu.Unlock()
	if stateFn != nil {
		stateFn(StateEnabled)
	}

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	var lastPos, lastSat time.Time
	for {
		select {
		case <-stop:
			d.mu.Lock()
			stateFn := d.stateFn
			d.mu.Unlock()
			if stateFn != nil {
				stateFn(StateDisabled)
			}
			return
		case now := <-tick.C:
			d.mu.Lock()
			posFn, posIvl := d.posFn, d.posIvl
			satFn, satIvl := d.satFn, d.satIvl
			d.mu.Unlock()

			if posFn != nil && now.Sub(lastPos) >= posIvl {
				lastPos = now
				posFn(d.fix())
			}
			if satFn != nil && now.Sub(lastSat) >= satIvl {
				lastSat = now
				satFn(d.counts())
			}
		}
	}
}

// fix returns the next simulated position on the circular route.
func (d *Demo) fix() Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.t += 0.1

	centerLat := 38.7169 // Lisbon
	centerLon := -9.1399
	radius := 0.005 // ~500m

	return Position{
		Latitude:   centerLat + radius*math.Sin(d.t*0.1),
		Longitude:  centerLon + radius*math.Cos(d.t*0.1),
		Altitude:   95 + 5*math.Sin(d.t*0.05),
		Climb:      0.2 * math.Cos(d.t*0.05),
		Direction:  math.Mod(d.t*10, 360),
		Speed:      40 + 20*math.Sin(d.t*0.3) + rand.Float64()*5,
		Horizontal: 3.5,
		Vertical:   5.0,
		Level:      3,
		Timestamp:  time.Now(),
	}
}

func (d *Demo) counts() SatelliteCount {
	return SatelliteCount{Active: 8, InView: 12, Timestamp: time.Now()}
}

func (d *Demo) Location() (Position, error)     { return d.fix(), nil }
func (d *Demo) LastLocation() (Position, error) { return d.fix(), nil }

func (d *Demo) Satellites() (SatelliteCount, error)     { return d.counts(), nil }
func (d *Demo) LastSatellites() (SatelliteCount, error) { return d.counts(), nil }

func (d *Demo) EachSatelliteInView(fn SatelliteIterFunc) error {
	c := d.counts()
	for i := 0; i < c.InView; i++ {
		det := SatelliteDetail{
			Azimuth:   uint((i * 30) % 360),
			Elevation: uint(20 + (i*5)%60),
			PRN:       uint(i + 1),
			SNR:       30 + i%15,
			InUse:     i < c.Active,
		}
		if !fn(det) {
			break
		}
	}
	return nil
}

func (d *Demo) NMEA() (string, error) {
	p := d.fix()
	body := fmt.Sprintf("GPGGA,%s,%09.4f,N,%010.4f,W,1,08,0.9,%.1f,M,,M,,",
		p.Timestamp.UTC().Format("150405.00"),
		math.Abs(p.Latitude)*100, math.Abs(p.Longitude)*100, p.Altitude)
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum), nil
}

func (d *Demo) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}
