package bridge

import (
	"context"
	"log"
	"time"

	"github.com/andygmpub/gpsbridge/internal/provider"
)

// eventKind enumerates the provider callbacks that drive the forwarder.
// Together with the bootstrap retry tick and lifecycle suspension they all
// arrive through the same single-consumer loop, which is what makes the
// no-reentrancy assumption hold.
type eventKind int

const (
	evState eventKind = iota
	evPosition
	evSatellites
)

type event struct {
	kind  eventKind
	state provider.ServiceState
	pos   provider.Position
	sat   provider.SatelliteCount
}

// Run consumes events until the context is cancelled, then finalizes.
// It is the only goroutine that touches forwarder state after Initialize.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		// The retry ticker exists only while a bootstrap is pending;
		// a nil channel arm simply never fires.
		var retryC <-chan time.Time
		if f.retry != nil {
			retryC = f.retry.C
		}

		select {
		case <-ctx.Done():
			f.Finalize()
			return
		case <-f.suspend:
			f.Stop()
		case ev := <-f.events:
			f.dispatch(ev)
		case <-retryC:
			f.onRetryTick()
		}
	}
}

func (f *Forwarder) dispatch(ev event) {
	switch ev.kind {
	case evState:
		f.onStateChange(ev.state)
	case evPosition:
		f.onPositionChange(ev.pos)
	case evSatellites:
		f.onSatelliteChange(ev.sat)
	}
}

// Suspend asks the event loop to halt location services without tearing the
// process down. Used by the low-battery lifecycle signal. It travels on its
// own single-slot channel so a saturated event queue cannot drop it;
// repeated suspends coalesce.
func (f *Forwarder) Suspend() {
	select {
	case f.suspend <- struct{}{}:
	default:
	}
}

// postState, postPosition and postSatellites adapt provider callbacks onto
// the event loop. They may run on the provider's goroutine.
func (f *Forwarder) postState(state provider.ServiceState) {
	f.post(event{kind: evState, state: state})
}

func (f *Forwarder) postPosition(pos provider.Position) {
	f.post(event{kind: evPosition, pos: pos})
}

func (f *Forwarder) postSatellites(sat provider.SatelliteCount) {
	f.post(event{kind: evSatellites, sat: sat})
}

// post enqueues without blocking; when the loop is saturated the update is
// dropped, matching the forwarder's no-queue, latest-wins semantics.
func (f *Forwarder) post(ev event) {
	select {
	case f.events <- ev:
	default:
		log.Printf("[bridge] event queue full, dropping")
	}
}
