package bridge

import (
	"log"
	"time"

	"github.com/andygmpub/gpsbridge/internal/bundle"
	"github.com/andygmpub/gpsbridge/internal/channel"
	"github.com/andygmpub/gpsbridge/internal/provider"
	"github.com/andygmpub/gpsbridge/internal/tracklog"
)

// ProviderOpener opens the location backend. Injected so the forwarder can
// be tested with a fake provider and so Initialize owns the handle lifetime.
type ProviderOpener func() (provider.Provider, error)

// Forwarder bridges the location provider to the remote message channel.
//
// It tracks enablement of the position and satellite subscriptions
// independently, keeps the last-known snapshots, and forwards updates to the
// remote endpoint as bundles. All state is owned by a single event loop
// (Run); provider callbacks are funneled onto it, so no locking is needed
// around the state below.
type Forwarder struct {
	open  ProviderOpener
	ch    channel.Channel
	track *tracklog.Recorder

	positionIvl  time.Duration
	satelliteIvl time.Duration
	freshness    time.Duration
	retryIvl     time.Duration
	legacyAlt    bool

	events  chan event
	suspend chan struct{}
	now     func() time.Time

	prov       provider.Provider
	state      provider.ServiceState
	gpsEnabled bool
	satEnabled bool
	connected  bool
	dataSent   bool

	pos provider.Position
	sat provider.SatelliteCount

	retry *time.Ticker
}

// New creates a Forwarder. Nothing is opened until Initialize.
func New(cfg *Config, open ProviderOpener, ch channel.Channel) *Forwarder {
	fc := cfg.Forwarder
	if fc.PositionIntervalSec <= 0 {
		fc.PositionIntervalSec = 3
	}
	if fc.SatelliteIntervalSec <= 0 {
		fc.SatelliteIntervalSec = 10
	}
	if fc.FreshnessSec <= 0 {
		fc.FreshnessSec = 30
	}
	if fc.RetryIntervalSec <= 0 {
		fc.RetryIntervalSec = 5
	}

	return &Forwarder{
		open:         open,
		ch:           ch,
		track:        tracklog.New(cfg.TrackLog),
		positionIvl:  time.Duration(fc.PositionIntervalSec) * time.Second,
		satelliteIvl: time.Duration(fc.SatelliteIntervalSec) * time.Second,
		freshness:    time.Duration(fc.FreshnessSec) * time.Second,
		retryIvl:     time.Duration(fc.RetryIntervalSec) * time.Second,
		legacyAlt:    fc.LegacyAltitude,
		events:       make(chan event, 16),
		suspend:      make(chan struct{}, 1),
		now:          time.Now,
	}
}

// Initialize opens the provider, registers the state-change watch, starts
// the service and probes the remote endpoint. Position and satellite
// subscriptions are not armed here; that happens once the provider reports
// an enabled state.
func (f *Forwarder) Initialize() bool {
	prov, err := f.open()
	if err != nil {
		log.Printf("[bridge] provider open failed: %v", err)
		return false
	}
	f.prov = prov

	if err := prov.WatchState(f.postState); err != nil {
		log.Printf("[bridge] state watch failed: %v", err)
		f.Finalize()
		return false
	}

	if err := prov.Start(); err != nil {
		log.Printf("[bridge] provider start failed: %v", err)
	}

	// Startup diagnostics: device-level GPS status plus transport probe.
	log.Printf("[bridge] provider %s, device connected: %v", prov.Name(), prov.Connected())
	f.checkRemote()

	return true
}

// Stop suspends location services. Functionally identical to Finalize; the
// host lifecycle table distinguishes the two signals, so both names stay.
func (f *Forwarder) Stop() {
	f.Finalize()
}

// Finalize disables the satellite and position subscriptions, halts a
// pending bootstrap retry and releases the provider. Idempotent; safe to
// call on an already-uninitialized forwarder.
func (f *Forwarder) Finalize() {
	f.disableSat()
	f.disableGPS()
	f.stopRetry()
	if f.prov != nil {
		f.prov.UnwatchState()
		if err := f.prov.Stop(); err != nil {
			log.Printf("[bridge] provider stop: %v", err)
		}
		if err := f.prov.Close(); err != nil {
			log.Printf("[bridge] provider close: %v", err)
		}
	}
	f.prov = nil
	f.track.Close()
}

// checkRemote probes the channel once and caches the answer. There is no
// re-probe after startup; a consumer that appears later is not picked up
// until the service restarts.
func (f *Forwarder) checkRemote() {
	ok, err := f.ch.CheckRemote()
	if err != nil {
		log.Printf("[bridge] remote check: %v", err)
	}
	f.connected = ok
	log.Printf("[bridge] remote %s reachable: %v", f.ch.Name(), ok)
}

func (f *Forwarder) enableGPS() bool {
	if f.gpsEnabled {
		return true
	}
	if f.prov == nil {
		return false
	}

	if err := f.prov.WatchPosition(f.postPosition, f.positionIvl); err != nil {
		log.Printf("[bridge] position watch failed: %v", err)
		f.disableGPS()
		return false
	}

	if !f.initDataSend() {
		log.Printf("[bridge] initial send failed, retry timer armed")
		f.startRetry()
	}

	f.gpsEnabled = true
	return true
}

func (f *Forwarder) enableSat() bool {
	if f.satEnabled {
		return true
	}
	if f.prov == nil {
		return false
	}

	if err := f.prov.WatchSatellites(f.postSatellites, f.satelliteIvl); err != nil {
		log.Printf("[bridge] satellite watch failed: %v", err)
		f.disableSat()
		return false
	}

	f.satEnabled = true
	return true
}

func (f *Forwarder) disableGPS() {
	if f.prov != nil {
		f.prov.UnwatchPosition()
	}
	f.gpsEnabled = false
}

func (f *Forwarder) disableSat() {
	if f.prov != nil {
		f.prov.UnwatchSatellites()
	}
	f.satEnabled = false
}

// onStateChange reacts to provider service-state transitions. On enable it
// arms the subscriptions and pulls one synchronous reading for the logs; on
// disable it disarms them but keeps the provider open for a later re-enable.
// A state event can still sit in the queue when shutdown releases the
// provider, so a released forwarder ignores it.
func (f *Forwarder) onStateChange(state provider.ServiceState) {
	if f.prov == nil {
		return
	}
	f.state = state

	switch state {
	case provider.StateEnabled:
		f.enableGPS()
		if f.prov.Connected() {
			f.enableSat()
		}

		if pos, err := f.prov.Location(); err != nil {
			log.Printf("[bridge] location read: %v", err)
		} else {
			f.pos = pos
			log.Printf("[bridge] location: lat %f lon %f alt %f climb %f dir %f spd %f lvl %d hor %f ver %f",
				pos.Latitude, pos.Longitude, pos.Altitude,
				pos.Climb, pos.Direction, pos.Speed,
				pos.Level, pos.Horizontal, pos.Vertical)
		}

		if sat, err := f.prov.Satellites(); err != nil {
			log.Printf("[bridge] satellite read: %v", err)
		} else {
			f.sat = sat
			log.Printf("[bridge] satellites: active %d in view %d", sat.Active, sat.InView)
		}

		f.logNMEA(1)

	case provider.StateDisabled:
		f.disableSat()
		f.disableGPS()

	case provider.StateSearching:
		// No transition while acquiring.
	}
}

// onPositionChange records the fix unconditionally, opportunistically arms
// the satellite subscription, and forwards the fix when the bootstrap has
// completed and the reading is fresh. Stale or pre-bootstrap fixes are
// dropped, not queued.
func (f *Forwarder) onPositionChange(pos provider.Position) {
	f.pos = pos

	if f.prov != nil && f.prov.Connected() {
		f.enableSat()
	}

	if f.dataSent && f.now().Sub(pos.Timestamp) < f.freshness {
		if err := f.sendPosition(); err != nil {
			log.Printf("[bridge] position forward failed")
		} else {
			log.Printf("[bridge] position: lat %f lon %f alt %f", pos.Latitude, pos.Longitude, pos.Altitude)
			f.track.Record(pos)
		}
	}
}

// onSatelliteChange records the counts unconditionally and forwards them
// when the bootstrap has completed. Unlike positions, satellite counts are
// not freshness-checked.
func (f *Forwarder) onSatelliteChange(sat provider.SatelliteCount) {
	f.sat = sat

	if sat.InView > 0 && f.prov != nil {
		if err := f.prov.EachSatelliteInView(f.logSatellite); err != nil {
			log.Printf("[bridge] satellite iteration: %v", err)
		}
	}

	if f.dataSent {
		if err := f.sendSatellite(); err != nil {
			log.Printf("[bridge] satellite forward failed")
		} else {
			log.Printf("[bridge] satellites: active %d, in view %d", sat.Active, sat.InView)
		}
	}
}

// logSatellite logs one visible satellite. Diagnostic only; details are
// never forwarded or stored.
func (f *Forwarder) logSatellite(det provider.SatelliteDetail) bool {
	log.Printf("[bridge] satellite: azimuth %d elevation %d prn %d snr %d inUse %v",
		det.Azimuth, det.Elevation, det.PRN, det.SNR, det.InUse)
	return true
}

// onRetryTick re-attempts the bootstrap send; the ticker stops itself once
// a bootstrap succeeds.
func (f *Forwarder) onRetryTick() {
	if f.initDataSend() {
		f.stopRetry()
	}
}

func (f *Forwarder) startRetry() {
	if f.retry != nil {
		return
	}
	f.retry = time.NewTicker(f.retryIvl)
}

func (f *Forwarder) stopRetry() {
	if f.retry != nil {
		f.retry.Stop()
		f.retry = nil
	}
}

// initDataSend pulls the cached readings and forwards both snapshots. On
// success the bootstrap is marked complete, which opens the gate for live
// forwarding.
func (f *Forwarder) initDataSend() bool {
	if !f.initData() {
		log.Printf("[bridge] bootstrap: no usable cached data")
		return false
	}

	if err := f.sendSatellite(); err != nil {
		log.Printf("[bridge] bootstrap: satellite send failed")
		return false
	}
	if err := f.sendPosition(); err != nil {
		log.Printf("[bridge] bootstrap: position send failed")
		return false
	}

	f.dataSent = true
	return true
}

// initData refreshes both snapshots from the provider caches. Fails when the
// cached location is older than the freshness window; that failure is what
// arms the bootstrap retry.
func (f *Forwarder) initData() bool {
	if f.prov == nil {
		return false
	}

	if pos, err := f.prov.LastLocation(); err != nil {
		log.Printf("[bridge] cached location: %v", err)
	} else {
		f.pos = pos
		log.Printf("[bridge] cached location: lat %f lon %f alt %f climb %f dir %f spd %f lvl %d hor %f ver %f",
			pos.Latitude, pos.Longitude, pos.Altitude,
			pos.Climb, pos.Direction, pos.Speed,
			pos.Level, pos.Horizontal, pos.Vertical)
	}

	if f.now().Sub(f.pos.Timestamp) > f.freshness {
		log.Printf("[bridge] cached location expired")
		return false
	}

	if sat, err := f.prov.LastSatellites(); err != nil {
		log.Printf("[bridge] cached satellites: %v", err)
	} else {
		f.sat = sat
		log.Printf("[bridge] cached satellites: active %d in view %d", sat.Active, sat.InView)
	}

	if f.sat.InView > 0 {
		if err := f.prov.EachSatelliteInView(f.logSatellite); err != nil {
			log.Printf("[bridge] satellite iteration: %v", err)
		}
	}

	return true
}

// sendPosition forwards the position snapshot. With legacy altitude enabled
// the altitude field carries the longitude value; see ForwarderConfig.
func (f *Forwarder) sendPosition() error {
	b := bundle.New(bundle.TypePositionUpdate)
	b.SetFloat("latitude", f.pos.Latitude)
	b.SetFloat("longitude", f.pos.Longitude)
	if f.legacyAlt {
		b.SetFloat("altitude", f.pos.Longitude)
	} else {
		b.SetFloat("altitude", f.pos.Altitude)
	}
	return f.sendMessage(b)
}

// sendSatellite forwards the satellite snapshot.
func (f *Forwarder) sendSatellite() error {
	b := bundle.New(bundle.TypeSatellitesUpdate)
	b.SetInt("active", f.sat.Active)
	b.SetInt("inview", f.sat.InView)
	return f.sendMessage(b)
}

// sendMessage delivers a bundle over the channel. An endpoint that was
// unreachable at startup turns sends into successful no-ops.
func (f *Forwarder) sendMessage(b bundle.Bundle) error {
	if !f.connected {
		return nil
	}
	if err := f.ch.Send(b); err != nil {
		log.Printf("[bridge] send: %v", err)
		return err
	}
	return nil
}

// logNMEA samples raw positioning sentences for diagnostics.
func (f *Forwarder) logNMEA(samples int) {
	for i := 0; i < samples; i++ {
		sentence, err := f.prov.NMEA()
		if err != nil {
			log.Printf("[bridge] nmea sample: %v", err)
			continue
		}
		log.Printf("[bridge] nmea #%d: %s", i, sentence)
	}
}
