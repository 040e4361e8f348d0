package tracklog

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andygmpub/gpsbridge/internal/provider"
)

// Recorder writes forwarded fixes to timestamped CSV files with automatic
// rotation. Purely diagnostic; delivery to the consumer does not depend on
// it in any way.
type Recorder struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds track log configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

const maxRowsPerFile = 100_000 // Rotate after 100k rows

var csvHeader = []string{
	"timestamp", "fix_time", "latitude", "longitude", "altitude",
	"speed_kph", "direction", "climb", "horizontal", "vertical", "level",
}

// New creates a Recorder.
func New(cfg Config) *Recorder {
	if cfg.Path == "" {
		cfg.Path = "/var/log/gpsbridge"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	return &Recorder{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
	}
}

// Record writes a fix if the minimum interval has elapsed.
func (r *Recorder) Record(pos provider.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return
	}

	now := time.Now()
	if now.Sub(r.lastTs) < r.interval {
		return
	}
	r.lastTs = now

	if r.writer == nil || r.rows >= maxRowsPerFile {
		if err := r.rotate(now); err != nil {
			log.Printf("[tracklog] rotate failed: %v", err)
			return
		}
	}

	row := []string{
		now.Format(time.RFC3339Nano),
		pos.Timestamp.UTC().Format(time.RFC3339),
		fmt.Sprintf("%.6f", pos.Latitude),
		fmt.Sprintf("%.6f", pos.Longitude),
		fmt.Sprintf("%.1f", pos.Altitude),
		fmt.Sprintf("%.1f", pos.Speed),
		fmt.Sprintf("%.1f", pos.Direction),
		fmt.Sprintf("%.2f", pos.Climb),
		fmt.Sprintf("%.1f", pos.Horizontal),
		fmt.Sprintf("%.1f", pos.Vertical),
		fmt.Sprintf("%d", pos.Level),
	}
	if err := r.writer.Write(row); err != nil {
		log.Printf("[tracklog] write failed: %v", err)
		return
	}
	r.writer.Flush()
	r.rows++
}

// Close flushes and closes the current file.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeFile()
}

func (r *Recorder) rotate(now time.Time) error {
	r.closeFile()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", r.dir, err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("track_%s.csv", now.Format("2006-01-02_150405")))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	r.file = f
	r.writer = csv.NewWriter(f)
	r.rows = 0

	if err := r.writer.Write(csvHeader); err != nil {
		return err
	}
	r.writer.Flush()

	log.Printf("[tracklog] opened %s", path)
	return nil
}

func (r *Recorder) closeFile() {
	if r.writer != nil {
		r.writer.Flush()
		r.writer = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}
