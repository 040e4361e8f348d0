package service

import (
	"context"
	"errors"
	"log"

	"github.com/andygmpub/gpsbridge/internal/bridge"
)

// Signal is a host-delivered lifecycle signal.
type Signal int

const (
	SigCreate Signal = iota
	SigTerminate
	SigAppControl
	SigLowBattery
	SigLowMemory
	SigLanguageChanged
	SigRegionChanged
)

func (s Signal) String() string {
	switch s {
	case SigCreate:
		return "create"
	case SigTerminate:
		return "terminate"
	case SigAppControl:
		return "app-control"
	case SigLowBattery:
		return "low-battery"
	case SigLowMemory:
		return "low-memory"
	case SigLanguageChanged:
		return "language-changed"
	case SigRegionChanged:
		return "region-changed"
	}
	return "unknown"
}

// ErrInitialize is returned by Run when the forwarder fails to come up.
var ErrInitialize = errors.New("service: forwarder initialization failed")

// Service routes host lifecycle signals to forwarder operations. It holds
// no state of its own beyond the delivery channel.
type Service struct {
	fwd     *bridge.Forwarder
	battery *BatteryWatcher
	signals chan Signal
	cancel  context.CancelFunc
}

// New creates the lifecycle shim. battery may be nil.
func New(fwd *bridge.Forwarder, battery *BatteryWatcher) *Service {
	return &Service{
		fwd:     fwd,
		battery: battery,
		signals: make(chan Signal, 8),
	}
}

// Deliver queues a lifecycle signal for dispatch.
func (s *Service) Deliver(sig Signal) {
	select {
	case s.signals <- sig:
	default:
		log.Printf("[service] signal queue full, dropping %s", sig)
	}
}

// Run initializes the forwarder (the create signal), then dispatches
// lifecycle signals until terminated. Returns ErrInitialize when the
// forwarder cannot come up, mirroring a host aborting service creation.
func (s *Service) Run(ctx context.Context) error {
	if !s.fwd.Initialize() {
		return ErrInitialize
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel

	done := make(chan struct{})
	go func() {
		s.fwd.Run(ctx)
		close(done)
	}()

	if s.battery != nil {
		go s.battery.Run(ctx, func() { s.Deliver(SigLowBattery) })
	}

	for {
		select {
		case <-ctx.Done():
			<-done // Run finalizes the forwarder before exiting
			return nil
		case sig := <-s.signals:
			s.dispatch(sig)
		}
	}
}

// dispatch is the signal table. Create is handled in Run; everything else
// routes here.
func (s *Service) dispatch(sig Signal) {
	log.Printf("[service] signal: %s", sig)

	switch sig {
	case SigTerminate:
		s.cancel()
	case SigLowBattery:
		s.fwd.Suspend()
	case SigCreate, SigAppControl, SigLowMemory, SigLanguageChanged, SigRegionChanged:
		// No action.
	}
}
