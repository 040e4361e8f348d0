package service

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BatteryWatcher polls the kernel power-supply interface and fires once when
// capacity drops to the threshold while discharging. It stands in for the
// platform low-battery event on plain Linux hosts.
type BatteryWatcher struct {
	dir       string
	threshold int
	interval  time.Duration
}

// NewBatteryWatcher creates a watcher over the given sysfs directory
// (normally /sys/class/power_supply).
func NewBatteryWatcher(dir string, thresholdPct, pollSec int) *BatteryWatcher {
	if thresholdPct <= 0 {
		thresholdPct = 5
	}
	if pollSec <= 0 {
		pollSec = 60
	}
	return &BatteryWatcher{
		dir:       dir,
		threshold: thresholdPct,
		interval:  time.Duration(pollSec) * time.Second,
	}
}

// Run polls until the context ends or the low-battery condition fires.
// notify is called at most once.
func (w *BatteryWatcher) Run(ctx context.Context, notify func()) {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if w.low() {
				log.Printf("[battery] capacity at or below %d%%, signaling", w.threshold)
				notify()
				return
			}
		}
	}
}

// low reports whether any discharging battery is at or below the threshold.
// Hosts without a battery (or without sysfs) never trigger.
func (w *BatteryWatcher) low() bool {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return false
	}

	for _, e := range entries {
		base := filepath.Join(w.dir, e.Name())

		typ, err := os.ReadFile(filepath.Join(base, "type"))
		if err != nil || strings.TrimSpace(string(typ)) != "Battery" {
			continue
		}

		status, err := os.ReadFile(filepath.Join(base, "status"))
		if err != nil || strings.TrimSpace(string(status)) != "Discharging" {
			continue
		}

		capRaw, err := os.ReadFile(filepath.Join(base, "capacity"))
		if err != nil {
			continue
		}
		capacity, err := strconv.Atoi(strings.TrimSpace(string(capRaw)))
		if err != nil {
			continue
		}

		if capacity <= w.threshold {
			return true
		}
	}
	return false
}
