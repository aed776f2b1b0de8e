package multiharp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openflim/scanhub/rawrec"
	"github.com/openflim/scanhub/scanimg"
	"github.com/openflim/scanhub/tttr"
)

// Mode selects what GetFrame returns.
type Mode int

const (
	// ModeLiveImage returns the frame accumulated by the acquisition
	// loop
	ModeLiveImage Mode = iota + 1

	// ModeTestPattern renders a synthetic checkerboard
	ModeTestPattern

	// ModeHistogram renders per-channel count rate bars, or a decay
	// curve when no rates have been measured
	ModeHistogram
)

func (m Mode) String() string {
	switch m {
	case ModeTestPattern:
		return "TestPattern"
	case ModeHistogram:
		return "Histogram"
	default:
		return "LiveImage"
	}
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "LiveImage":
		return ModeLiveImage, nil
	case "TestPattern":
		return ModeTestPattern, nil
	case "Histogram":
		return ModeHistogram, nil
	default:
		return 0, fmt.Errorf("multiharp: unknown mode %q", s)
	}
}

// RunStatus is the outcome of the most recent acquisition run.
type RunStatus int

const (
	// StatusIdle means no run has been started
	StatusIdle RunStatus = iota

	// StatusRunning means a run is in flight
	StatusRunning

	// StatusCompleted means the run finished its full duration
	StatusCompleted

	// StatusAborted means the run was stopped by request
	StatusAborted

	// StatusOverflow means the hardware FIFO filled and the run was
	// cut short; data accumulated up to that point is kept
	StatusOverflow

	// StatusFailed means a hardware or IO error ended the run
	StatusFailed
)

func (s RunStatus) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusAborted:
		return "Aborted"
	case StatusOverflow:
		return "Overflow"
	case StatusFailed:
		return "Failed"
	default:
		return "Idle"
	}
}

// Camera adapts a MultiHarp Device into a frame-producing camera.  One
// background worker per Camera runs the acquisition loop; the
// configuration methods belong to the foreground and are rejected
// while a run is in flight where a mid-run change would corrupt it.
type Camera struct {
	dev     Device
	layout  tttr.Layout
	markers tttr.Markers

	// Rec persists raw records when its Enabled flag is set
	Rec *rawrec.Recorder

	frame *scanimg.Frame

	// rates are touched with atomics: the worker increments them
	// per photon while telemetry reads them
	rates [MaxChannels]uint64

	// synthPhase animates the test pattern between renders
	synthPhase uint64

	mu            sync.Mutex
	geom          scanimg.Geometry
	format        scanimg.PixelFormat
	exposureMs    float64
	mode          Mode
	reverseBeams  bool
	frameRepeats  int
	frameTracker  int
	resolutionPs  uint64
	offsets       [MaxChannels]int
	simLifetimeNs float64
	lifetimeRange float64
	pollInterval  time.Duration

	running bool
	status  RunStatus
	runErr  error
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCamera returns a camera around the device with the default scan
// configuration.  The device's resolution is queried once here and
// assumed stable.
func NewCamera(dev Device) (*Camera, error) {
	res, err := dev.Resolution()
	if err != nil {
		return nil, fmt.Errorf("multiharp: querying resolution: %w", err)
	}
	geom := scanimg.Geometry{ScanPixelsX: 512, ScanPixelsY: 512, BeamsX: 1, BeamsY: 1}
	c := &Camera{
		dev:           dev,
		layout:        tttr.DefaultLayout,
		markers:       tttr.DefaultMarkers,
		Rec:           &rawrec.Recorder{Prefix: "mh_"},
		geom:          geom,
		format:        scanimg.Mono16,
		exposureMs:    MinExposureMs,
		mode:          ModeLiveImage,
		reverseBeams:  true,
		frameRepeats:  1,
		resolutionPs:  res,
		simLifetimeNs: 3.0,
		lifetimeRange: 1.0,
		pollInterval:  time.Millisecond,
	}
	c.frame = scanimg.NewFrame(geom.FrameWidth(), geom.FrameHeight(), c.format)
	return c, nil
}

// SetRecordLayout replaces the wire format, for firmware variants with
// different field widths.
func (c *Camera) SetRecordLayout(l tttr.Layout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAcquisitionRunning
	}
	c.layout = l
	return nil
}

// SetMarkers replaces the scan marker codes.
func (c *Camera) SetMarkers(m tttr.Markers) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAcquisitionRunning
	}
	c.markers = m
	return nil
}

// SetExposureTime sets the acquisition duration.
func (c *Camera) SetExposureTime(d time.Duration) error {
	ms := float64(d) / float64(time.Millisecond)
	if err := validateExposure(ms); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAcquisitionRunning
	}
	c.exposureMs = ms
	return nil
}

// GetExposureTime returns the acquisition duration.
func (c *Camera) GetExposureTime() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(c.exposureMs * float64(time.Millisecond)), nil
}

// SetScanGeometry reconfigures the scan raster and resizes the frame
// buffer, zeroing it.
func (c *Camera) SetScanGeometry(g scanimg.Geometry) error {
	if err := g.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAcquisitionRunning
	}
	c.geom = g
	c.frame.Resize(g.FrameWidth(), g.FrameHeight(), c.format)
	return nil
}

// GetScanGeometry returns the scan raster.
func (c *Camera) GetScanGeometry() (scanimg.Geometry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.geom, nil
}

// SetPixelFormat selects 8 or 16 bit pixels, resizing (zeroing) the
// frame buffer.
func (c *Camera) SetPixelFormat(f scanimg.PixelFormat) error {
	if f != scanimg.Mono8 && f != scanimg.Mono16 {
		return fmt.Errorf("multiharp: invalid pixel format %d", f)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAcquisitionRunning
	}
	c.format = f
	c.frame.Resize(c.geom.FrameWidth(), c.geom.FrameHeight(), f)
	return nil
}

// GetPixelFormat returns the pixel format.
func (c *Camera) GetPixelFormat() (scanimg.PixelFormat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format, nil
}

// SetMode selects the display mode.
func (c *Camera) SetMode(m Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
	return nil
}

// GetMode returns the display mode.
func (c *Camera) GetMode() (Mode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, nil
}

// SetFrameRepeats sets how many runs accumulate into the frame before
// it is cleared; 1 clears at the start of every run.
func (c *Camera) SetFrameRepeats(n int) error {
	if n < 1 {
		return fmt.Errorf("multiharp: frame repeats %d, must be >= 1", n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAcquisitionRunning
	}
	c.frameRepeats = n
	c.frameTracker = 0
	return nil
}

// GetFrameRepeats returns the accumulation depth.
func (c *Camera) GetFrameRepeats() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameRepeats, nil
}

// SetReverseBeams selects the channel-to-beam assignment order.
func (c *Camera) SetReverseBeams(b bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAcquisitionRunning
	}
	c.reverseBeams = b
	return nil
}

// SetInputOffset applies a per-channel timing calibration offset to
// the hardware.  Rejected values leave the prior offset in place.
func (c *Camera) SetInputOffset(channel, offsetPs int) error {
	if err := validateOffset(channel, offsetPs); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAcquisitionRunning
	}
	if err := c.dev.SetInputOffset(channel, offsetPs); err != nil {
		return err
	}
	c.offsets[channel] = offsetPs
	return nil
}

// GetInputOffset returns the offset applied to one channel.
func (c *Camera) GetInputOffset(channel int) (int, error) {
	if channel < 0 || channel >= MaxChannels {
		return 0, fmt.Errorf("multiharp: channel %d outside [0, %d)", channel, MaxChannels)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offsets[channel], nil
}

// SetSimLifetime sets the decay constant of the simulated histogram,
// in nanoseconds.
func (c *Camera) SetSimLifetime(ns float64) error {
	if ns <= 0 {
		return fmt.Errorf("multiharp: lifetime %g ns, must be positive", ns)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simLifetimeNs = ns
	return nil
}

// SetLifetimeRange sets the fractional noise spread of the simulated
// histogram.
func (c *Camera) SetLifetimeRange(r float64) error {
	if r < 0 {
		return fmt.Errorf("multiharp: lifetime range %g, must be non-negative", r)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lifetimeRange = r
	return nil
}

// CountRate queries the hardware rate meter for one input channel, in
// counts per second.  Unlike LiveRates it reflects the detector even
// when no run is in flight.
func (c *Camera) CountRate(channel int) (int, error) {
	if channel < 0 || channel >= MaxChannels {
		return 0, fmt.Errorf("multiharp: channel %d outside [0, %d)", channel, MaxChannels)
	}
	return c.dev.CountRate(channel)
}

// Status returns the state of the most recent run.
func (c *Camera) Status() RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the error that ended the last run, if any.
func (c *Camera) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

// LiveRates returns the per-channel event counts accumulated during
// the current (or most recent) run.
func (c *Camera) LiveRates() [MaxChannels]uint64 {
	var out [MaxChannels]uint64
	for i := range out {
		out[i] = atomic.LoadUint64(&c.rates[i])
	}
	return out
}

// Command drives the run lifecycle from a status string, one of Idle,
// Start, Running, Abort.  Idle and Running are readback states and do
// nothing.
func (c *Camera) Command(cmd string) error {
	switch strings.ToLower(cmd) {
	case "start":
		return c.Start()
	case "abort":
		c.Abort()
		return nil
	case "idle", "running":
		return nil
	default:
		return fmt.Errorf("multiharp: unknown command %q", cmd)
	}
}

// Start launches one acquisition run on the background worker.  It
// returns ErrAcquisitionRunning if a run is already in flight.
func (c *Camera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAcquisitionRunning
	}
	p := runParams{
		layout:       c.layout,
		markers:      c.markers,
		geom:         c.geom,
		exposure:     time.Duration(c.exposureMs * float64(time.Millisecond)),
		resolutionPs: c.resolutionPs,
		reverse:      c.reverseBeams,
		poll:         c.pollInterval,
		clearFrame:   c.frameTracker%c.frameRepeats == 0,
	}
	if c.Rec != nil && c.Rec.Enabled {
		p.rec = c.Rec
	}
	c.frameTracker++

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.running = true
	c.status = StatusRunning
	c.runErr = nil
	c.cancel = cancel
	c.done = done
	go c.run(ctx, p, done)
	return nil
}

// Abort requests the running acquisition to stop.  It does not block;
// use Wait to observe completion.  Aborting an idle camera is a no-op.
func (c *Camera) Abort() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run finishes.  It returns immediately
// if no run is in flight.
func (c *Camera) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// GetFrame renders the current mode's content into the frame buffer
// as needed and returns a strided 16-bit copy.
func (c *Camera) GetFrame() ([]uint16, error) {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()
	switch mode {
	case ModeTestPattern:
		c.renderTestPattern()
	case ModeHistogram:
		c.renderHistogram()
	}
	return c.frame.Snapshot(), nil
}

// Snap runs one full acquisition synchronously and returns the frame.
func (c *Camera) Snap() ([]uint16, error) {
	if err := c.Start(); err != nil {
		return nil, err
	}
	c.Wait()
	c.mu.Lock()
	status, err := c.status, c.runErr
	c.mu.Unlock()
	if status == StatusFailed {
		return nil, err
	}
	return c.frame.Snapshot(), nil
}

// Close aborts any running acquisition and releases the device.
func (c *Camera) Close() error {
	c.Abort()
	c.Wait()
	return c.dev.Close()
}

var errRunAborted = errors.New("multiharp: run aborted")
