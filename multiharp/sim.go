package multiharp

import (
	"fmt"
	"time"

	"github.com/openflim/scanhub/scanimg"
	"github.com/openflim/scanhub/tttr"
)

// Sim is a Device that replays a canned record stream.  It stands in
// for hardware in tests and in simulator deployments.  The exported
// knobs are read at call time by the single acquisition worker; set
// them before starting a run.
type Sim struct {
	// BatchSize caps the records returned per ReadFiFo call
	BatchSize int

	// FIFOFullAt raises the FIFO-full flag once this many records
	// have been consumed; negative means never
	FIFOFullAt int

	// StartErr, ReadErr, FlagsErr inject failures
	StartErr error
	ReadErr  error
	FlagsErr error

	// Endless keeps CTCStatus false after the script is exhausted,
	// modelling a measurement that outlives its record supply
	Endless bool

	// Rates are the per-channel count rates reported by CountRate
	Rates [MaxChannels]int

	records      []tttr.Record
	pos          int
	running      bool
	resolutionPs uint64
	offsets      [MaxChannels]int
}

// NewSim returns a simulator that will replay records on each run.
func NewSim(records []tttr.Record, resolutionPs uint64) *Sim {
	return &Sim{
		BatchSize:    512,
		FIFOFullAt:   -1,
		records:      records,
		resolutionPs: resolutionPs,
	}
}

// StartMeasurement rewinds the script and begins a run.
func (s *Sim) StartMeasurement(d time.Duration) error {
	if s.StartErr != nil {
		return s.StartErr
	}
	s.pos = 0
	s.running = true
	return nil
}

// StopMeasurement ends the run.
func (s *Sim) StopMeasurement() error {
	s.running = false
	return nil
}

// Flags reports FIFO-full once the configured trip point is passed.
func (s *Sim) Flags() (uint32, error) {
	if s.FlagsErr != nil {
		return 0, s.FlagsErr
	}
	if s.FIFOFullAt >= 0 && s.pos >= s.FIFOFullAt {
		return FlagFIFOFull, nil
	}
	return 0, nil
}

// ReadFiFo copies the next batch of scripted records into buf.
func (s *Sim) ReadFiFo(buf []tttr.Record) (int, error) {
	if s.ReadErr != nil {
		return 0, s.ReadErr
	}
	n := len(s.records) - s.pos
	if n > len(buf) {
		n = len(buf)
	}
	if n > s.BatchSize {
		n = s.BatchSize
	}
	if n <= 0 {
		return 0, nil
	}
	copy(buf, s.records[s.pos:s.pos+n])
	s.pos += n
	return n, nil
}

// CTCStatus reports done once the script is exhausted.
func (s *Sim) CTCStatus() (bool, error) {
	if s.Endless {
		return false, nil
	}
	return s.pos >= len(s.records), nil
}

// CountRate returns the scripted rate for one channel.
func (s *Sim) CountRate(channel int) (int, error) {
	if channel < 0 || channel >= MaxChannels {
		return 0, fmt.Errorf("multiharp: channel %d outside [0, %d)", channel, MaxChannels)
	}
	return s.Rates[channel], nil
}

// SetInputOffset stores the offset after bounds checking.
func (s *Sim) SetInputOffset(channel, offsetPs int) error {
	if err := validateOffset(channel, offsetPs); err != nil {
		return err
	}
	s.offsets[channel] = offsetPs
	return nil
}

// Resolution returns the configured sync tick size.
func (s *Sim) Resolution() (uint64, error) {
	return s.resolutionPs, nil
}

// Close is a no-op for the simulator.
func (s *Sim) Close() error {
	s.running = false
	return nil
}

// Script assembles a TTTR record stream from events placed at absolute
// picosecond timestamps.  It inserts the overflow records a real
// device would emit when the sync counter wraps, so the stream decodes
// back to the requested timestamps.
type Script struct {
	layout       tttr.Layout
	markers      tttr.Markers
	resolutionPs uint64
	modulus      uint64
	wraps        uint64
	recs         []tttr.Record
}

// NewScript returns an empty script for the given wire configuration.
func NewScript(layout tttr.Layout, markers tttr.Markers, resolutionPs uint64) *Script {
	return &Script{
		layout:       layout,
		markers:      markers,
		resolutionPs: resolutionPs,
		modulus:      layout.SyncModulus(),
	}
}

// catchUp emits overflow records until the wrap counter covers tsPs,
// returning the residual sync value for a record at that time.
func (s *Script) catchUp(tsPs uint64) uint32 {
	ticks := tsPs / s.resolutionPs
	want := ticks / s.modulus
	if want > s.wraps {
		delta := want - s.wraps
		s.recs = append(s.recs, s.layout.Pack(tttr.Event{
			Sync:    uint32(delta),
			Channel: s.markers.Overflow,
			Special: true,
		}))
		s.wraps = want
	}
	return uint32(ticks % s.modulus)
}

// Marker appends a scan marker at the given absolute time.
func (s *Script) Marker(code uint8, tsPs uint64) {
	sync := s.catchUp(tsPs)
	s.recs = append(s.recs, s.layout.Pack(tttr.Event{
		Sync:    sync,
		Channel: code,
		Special: true,
	}))
}

// Photon appends a photon detection on the given channel.
func (s *Script) Photon(channel uint8, tsPs uint64) {
	sync := s.catchUp(tsPs)
	s.recs = append(s.recs, s.layout.Pack(tttr.Event{
		Sync:    sync,
		TimeBin: 1,
		Channel: channel,
		Special: false,
	}))
}

// Records returns the assembled stream.
func (s *Script) Records() []tttr.Record {
	return s.recs
}

// ScanRecords scripts a complete scan of the given geometry: a priming
// line so the dwell time is known before the first frame, then frames
// of line markers with one photon per pixel on channel 0, placed
// mid-dwell.  dwellPs sets the per-pixel dwell time.
func ScanRecords(geom scanimg.Geometry, layout tttr.Layout, markers tttr.Markers, resolutionPs, dwellPs uint64, frames int) []tttr.Record {
	sc := NewScript(layout, markers, resolutionPs)
	lineDur := dwellPs * uint64(geom.FrameWidth())
	// scanner turnaround between a line end and the next line start
	flyback := dwellPs
	ts := uint64(0)

	// line clocks free-run; one full line before the frame clock
	// establishes the dwell
	sc.Marker(markers.LineStart, ts)
	ts += lineDur
	sc.Marker(markers.LineEnd, ts)

	for f := 0; f < frames; f++ {
		sc.Marker(markers.FrameStart[0], ts)
		for line := 0; line < geom.FrameHeight(); line++ {
			start := ts + flyback
			sc.Marker(markers.LineStart, start)
			for px := 0; px < geom.FrameWidth(); px++ {
				sc.Photon(0, start+uint64(px)*dwellPs+dwellPs/2)
			}
			ts = start + lineDur
			sc.Marker(markers.LineEnd, ts)
		}
	}
	return sc.Records()
}
