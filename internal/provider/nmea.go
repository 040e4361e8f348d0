package provider

import (
	"bufio"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// NMEA reads NMEA 0183 sentences from a UART GPS receiver. Compatible with
// u-blox NEO-M8N and any standard NMEA GPS.
//
// RMC and GGA sentences feed position updates, GSA and GSV feed satellite
// visibility. The most recent raw sentence is retained for diagnostics.
type NMEA struct {
	portPath string
	baudRate int

	mu      sync.Mutex
	port    serial.Port
	started bool
	stop    chan struct{}

	state   ServiceState
	pos     Position
	sat     SatelliteCount
	details []SatelliteDetail
	raw     string
	valid   bool
	seen    time.Time

	// GSV sentences arrive in groups; pending accumulates until the
	// final message of the group commits it to details.
	pending []SatelliteDetail
	inUse   map[uint]bool

	stateFn StateFunc
	posFn   PositionFunc
	posIvl  time.Duration
	posLast time.Time
	satFn   SatellitesFunc
	satIvl  time.Duration
	satLast time.Time
}

// NMEAConfig holds configuration for the NMEA serial backend.
type NMEAConfig struct {
	PortPath string `yaml:"port_path" json:"portPath"`
	BaudRate int    `yaml:"baud_rate" json:"baudRate"`
}

// NewNMEA creates a serial NMEA provider. The port is opened on Start.
func NewNMEA(cfg NMEAConfig) *NMEA {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600 // Standard NMEA default
	}
	return &NMEA{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		inUse:    make(map[uint]bool),
	}
}

func (n *NMEA) Name() string { return "NMEA GPS" }

func (n *NMEA) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: n.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(n.portPath, mode)
	if err != nil {
		return fmt.Errorf("nmea: failed to open %s: %w", n.portPath, err)
	}
	port.SetReadTimeout(200 * time.Millisecond)

	n.port = port
	n.started = true
	n.stop = make(chan struct{})
	go n.readLoop(port, n.stop)

	log.Printf("[nmea] connected to %s at %d baud", n.portPath, n.baudRate)
	return nil
}

func (n *NMEA) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return nil
	}
	close(n.stop)
	err := n.port.Close()
	n.port = nil
	n.started = false
	return err
}

func (n *NMEA) Close() error { return n.Stop() }

func (n *NMEA) WatchState(fn StateFunc) error {
	n.mu.Lock()
	n.stateFn = fn
	n.mu.Unlock()
	return nil
}

func (n *NMEA) UnwatchState() {
	n.mu.Lock()
	n.stateFn = nil
	n.mu.Unlock()
}

func (n *NMEA) WatchPosition(fn PositionFunc, interval time.Duration) error {
	n.mu.Lock()
	n.posFn = fn
	n.posIvl = interval
	n.posLast = time.Time{}
	n.mu.Unlock()
	return nil
}

func (n *NMEA) UnwatchPosition() {
	n.mu.Lock()
	n.posFn = nil
	n.mu.Unlock()
}

func (n *NMEA) WatchSatellites(fn SatellitesFunc, interval time.Duration) error {
	n.mu.Lock()
	n.satFn = fn
	n.satIvl = interval
	n.satLast = time.Time{}
	n.mu.Unlock()
	return nil
}

func (n *NMEA) UnwatchSatellites() {
	n.mu.Lock()
	n.satFn = nil
	n.mu.Unlock()
}

// readLoop scans sentences until the provider is stopped. Read timeouts
// produce empty scans and are retried; a closed port ends the loop.
func (n *NMEA) readLoop(port serial.Port, stop chan struct{}) {
	scanner := bufio.NewScanner(port)
	for {
		select {
		case <-stop:
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				select {
				case <-stop:
				default:
					log.Printf("[nmea] read error: %v", err)
					n.setState(StateDisabled)
				}
				return
			}
			// Timeout with no data; scanner is done, restart it.
			scanner = bufio.NewScanner(port)
			continue
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") || !validChecksum(line) {
			continue
		}
		n.handleSentence(line)
	}
}

// handleSentence dispatches one validated sentence to its parser and fans
// out any resulting updates.
func (n *NMEA) handleSentence(line string) {
	n.mu.Lock()
	n.raw = line
	n.seen = time.Now()
	n.mu.Unlock()

	talker := line
	if idx := strings.Index(line, ","); idx >= 0 {
		talker = line[1:idx]
	}
	// Strip the two-letter talker prefix (GP, GN, GL, ...).
	typ := talker
	if len(talker) == 5 {
		typ = talker[2:]
	}

	switch typ {
	case "RMC":
		n.parseRMC(line)
	case "GGA":
		n.parseGGA(line)
	case "GSA":
		n.parseGSA(line)
	case "GSV":
		n.parseGSV(line)
	}
}

func (n *NMEA) parseRMC(line string) {
	// $GPRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,x.x,x.x,ddmmyy,x.x,a*hh
	parts := splitSentence(line)
	if len(parts) < 10 {
		return
	}

	valid := parts[2] == "A"
	n.mu.Lock()
	n.valid = valid
	if valid {
		n.pos.Latitude = parseCoord(parts[3], parts[4])
		n.pos.Longitude = parseCoord(parts[5], parts[6])
		if spd, err := strconv.ParseFloat(parts[7], 64); err == nil {
			n.pos.Speed = spd * 1.852 // Knots to km/h
		}
		if dir, err := strconv.ParseFloat(parts[8], 64); err == nil {
			n.pos.Direction = dir
		}
		if ts, ok := parseTimestamp(parts[9], parts[1]); ok {
			n.pos.Timestamp = ts
		}
	}
	pos := n.pos
	emit := n.emitPositionLocked()
	n.mu.Unlock()

	n.setState(stateFor(valid))
	if emit != nil {
		emit(pos)
	}
}

func (n *NMEA) parseGGA(line string) {
	// $GPGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,x,xx,x.x,x.x,M,x.x,M,x.x,xxxx*hh
	parts := splitSentence(line)
	if len(parts) < 11 {
		return
	}

	n.mu.Lock()
	if fix, err := strconv.Atoi(parts[6]); err == nil {
		n.pos.Level = fix
		n.valid = fix > 0
	}
	if hdop, err := strconv.ParseFloat(parts[8], 64); err == nil {
		n.pos.Horizontal = hdop
		n.pos.Vertical = hdop * 1.5 // VDOP not in GGA; rough estimate
	}
	if alt, err := strconv.ParseFloat(parts[9], 64); err == nil {
		n.pos.Altitude = alt
	}
	valid := n.valid
	n.mu.Unlock()

	n.setState(stateFor(valid))
}

func (n *NMEA) parseGSA(line string) {
	// $GPGSA,A,3,prn,prn,...,pdop,hdop,vdop*hh
	parts := splitSentence(line)
	if len(parts) < 17 {
		return
	}

	active := 0
	used := make(map[uint]bool)
	for _, p := range parts[3:15] {
		if p == "" {
			continue
		}
		active++
		if prn, err := strconv.Atoi(p); err == nil {
			used[uint(prn)] = true
		}
	}

	n.mu.Lock()
	n.sat.Active = active
	// GSA carries no time field; reception time stands in.
	n.sat.Timestamp = time.Now()
	n.inUse = used
	sat := n.sat
	emit := n.emitSatellitesLocked()
	n.mu.Unlock()

	if emit != nil {
		emit(sat)
	}
}

func (n *NMEA) parseGSV(line string) {
	// $GPGSV,total,msgnum,inview,prn,el,az,snr,...*hh
	parts := splitSentence(line)
	if len(parts) < 4 {
		return
	}

	total, err1 := strconv.Atoi(parts[1])
	msgNum, err2 := strconv.Atoi(parts[2])
	inview, err3 := strconv.Atoi(parts[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return
	}

	n.mu.Lock()
	if msgNum == 1 {
		n.pending = n.pending[:0]
	}
	for i := 4; i+3 < len(parts); i += 4 {
		prn, err := strconv.Atoi(parts[i])
		if err != nil {
			continue
		}
		det := SatelliteDetail{PRN: uint(prn), InUse: n.inUse[uint(prn)]}
		if el, err := strconv.Atoi(parts[i+1]); err == nil {
			det.Elevation = uint(el)
		}
		if az, err := strconv.Atoi(parts[i+2]); err == nil {
			det.Azimuth = uint(az)
		}
		if snr, err := strconv.Atoi(parts[i+3]); err == nil {
			det.SNR = snr
		}
		n.pending = append(n.pending, det)
	}

	var sat SatelliteCount
	var emitFn SatellitesFunc
	if msgNum == total {
		n.details = make([]SatelliteDetail, len(n.pending))
		copy(n.details, n.pending)
		n.sat.InView = inview
		// Reception time again; GSV has no time field either.
		n.sat.Timestamp = time.Now()
		sat = n.sat
		emitFn = n.emitSatellitesLocked()
	}
	n.mu.Unlock()

	if emitFn != nil {
		emitFn(sat)
	}
}

// emitPositionLocked returns the position callback if the delivery interval
// has elapsed. Caller must hold n.mu.
func (n *NMEA) emitPositionLocked() PositionFunc {
	if n.posFn == nil || !n.valid {
		return nil
	}
	now := time.Now()
	if now.Sub(n.posLast) < n.posIvl {
		return nil
	}
	n.posLast = now
	return n.posFn
}

// emitSatellitesLocked returns the satellite callback if the delivery
// interval has elapsed. Caller must hold n.mu.
func (n *NMEA) emitSatellitesLocked() SatellitesFunc {
	if n.satFn == nil {
		return nil
	}
	now := time.Now()
	if now.Sub(n.satLast) < n.satIvl {
		return nil
	}
	n.satLast = now
	return n.satFn
}

// setState emits the state callback when the state actually changes.
func (n *NMEA) setState(state ServiceState) {
	n.mu.Lock()
	var fn StateFunc
	if state != n.state {
		n.state = state
		fn = n.stateFn
	}
	n.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (n *NMEA) Location() (Position, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.valid {
		return Position{}, fmt.Errorf("nmea: no valid fix")
	}
	return n.pos, nil
}

func (n *NMEA) LastLocation() (Position, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pos.Timestamp.IsZero() {
		return Position{}, fmt.Errorf("nmea: no fix cached")
	}
	return n.pos, nil
}

func (n *NMEA) Satellites() (SatelliteCount, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sat, nil
}

func (n *NMEA) LastSatellites() (SatelliteCount, error) { return n.Satellites() }

func (n *NMEA) EachSatelliteInView(fn SatelliteIterFunc) error {
	n.mu.Lock()
	details := make([]SatelliteDetail, len(n.details))
	copy(details, n.details)
	n.mu.Unlock()

	for _, det := range details {
		if !fn(det) {
			break
		}
	}
	return nil
}

func (n *NMEA) NMEA() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.raw == "" {
		return "", fmt.Errorf("nmea: no sentence received yet")
	}
	return n.raw, nil
}

func (n *NMEA) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started && n.valid && time.Since(n.seen) < staleAfter
}

func stateFor(valid bool) ServiceState {
	if valid {
		return StateEnabled
	}
	return StateSearching
}

// splitSentence splits a sentence into fields, stripping the leading $ and
// the checksum suffix.
func splitSentence(line string) []string {
	if idx := strings.Index(line, "*"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimPrefix(line, "$")
	return strings.Split(line, ",")
}

// parseCoord converts NMEA ddmm.mmmm format to decimal degrees.
func parseCoord(raw, dir string) float64 {
	if raw == "" || dir == "" {
		return 0
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	deg := math.Floor(val / 100)
	min := val - deg*100
	result := deg + min/60

	if dir == "S" || dir == "W" {
		result = -result
	}
	return result
}

// parseTimestamp combines RMC date (ddmmyy) and time (hhmmss.ss) fields
// into a UTC timestamp.
func parseTimestamp(date, clock string) (time.Time, bool) {
	if len(date) != 6 || len(clock) < 6 {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(date[0:2])
	mon, err2 := strconv.Atoi(date[2:4])
	year, err3 := strconv.Atoi(date[4:6])
	hour, err4 := strconv.Atoi(clock[0:2])
	minute, err5 := strconv.Atoi(clock[2:4])
	sec, err6 := strconv.ParseFloat(clock[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return time.Time{}, false
	}
	nsec := int((sec - math.Floor(sec)) * 1e9)
	return time.Date(2000+year, time.Month(mon), day, hour, minute, int(sec), nsec, time.UTC), true
}

// validChecksum checks the XOR checksum after *.
func validChecksum(line string) bool {
	idx := strings.Index(line, "*")
	if idx < 0 || idx+3 > len(line) {
		return false
	}
	body := line[1:idx] // Between $ and *
	var calc byte
	for i := 0; i < len(body); i++ {
		calc ^= body[i]
	}
	expected, err := strconv.ParseUint(line[idx+1:idx+3], 16, 8)
	if err != nil {
		return false
	}
	return byte(expected) == calc
}
