package multiharp

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openflim/scanhub/scanimg"
	"github.com/openflim/scanhub/tttr"
)

// testResolutionPs keeps the arithmetic in the scripted scenarios easy
// to follow: one sync tick per nanosecond.
const testResolutionPs = 1000

// newTestCamera wires a camera to a simulator replaying records, with
// the raster set directly so scenarios smaller than the configuration
// bounds can be expressed.
func newTestCamera(t *testing.T, records []tttr.Record, geom scanimg.Geometry) (*Camera, *Sim) {
	t.Helper()
	sim := NewSim(records, testResolutionPs)
	cam, err := NewCamera(sim)
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	cam.geom = geom
	cam.frame.Resize(geom.FrameWidth(), geom.FrameHeight(), scanimg.Mono16)
	return cam, sim
}

// scriptTwoLineFrame scripts a 4 pixel wide, 2 line frame with one
// photon per pixel at a 1000 ps dwell.  The scanner's line clock
// free-runs, so a full line precedes the frame clock and establishes
// the dwell before line 0.
func scriptTwoLineFrame() []tttr.Record {
	m := tttr.DefaultMarkers
	sc := NewScript(tttr.DefaultLayout, m, testResolutionPs)
	sc.Marker(m.LineStart, 0)
	sc.Marker(m.LineEnd, 4000)
	sc.Marker(m.FrameStart[0], 4000)
	for line := 0; line < 2; line++ {
		// 1000 ps flyback between a line end and the next start
		start := uint64(5000 + line*5000)
		sc.Marker(m.LineStart, start)
		for px := 0; px < 4; px++ {
			sc.Photon(0, start+uint64(px)*1000)
		}
		sc.Marker(m.LineEnd, start+4000)
	}
	return sc.Records()
}

func runToCompletion(t *testing.T, cam *Camera) {
	t.Helper()
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cam.Wait()
}

func TestAcquireEndToEnd(t *testing.T) {
	geom := scanimg.Geometry{ScanPixelsX: 4, ScanPixelsY: 2, BeamsX: 1, BeamsY: 1}
	cam, _ := newTestCamera(t, scriptTwoLineFrame(), geom)
	runToCompletion(t, cam)

	if cam.Status() != StatusCompleted {
		t.Fatalf("status, expected Completed, got %v (err %v)", cam.Status(), cam.LastError())
	}
	img, err := cam.GetFrame()
	if err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	for i, px := range img {
		if px != 1 {
			t.Errorf("pixel %d, expected 1, got %d", i, px)
		}
	}
	rates := cam.LiveRates()
	if rates[0] != 8 {
		t.Errorf("channel 0 rate, expected 8, got %d", rates[0])
	}
}

func TestAcquireFIFOFullKeepsPartialData(t *testing.T) {
	geom := scanimg.Geometry{ScanPixelsX: 4, ScanPixelsY: 2, BeamsX: 1, BeamsY: 1}
	cam, sim := newTestCamera(t, scriptTwoLineFrame(), geom)
	// the first 9 records cover line 0; the flag trips before line 1
	sim.BatchSize = 9
	sim.FIFOFullAt = 9
	runToCompletion(t, cam)

	if cam.Status() != StatusOverflow {
		t.Fatalf("status, expected Overflow, got %v", cam.Status())
	}
	img, _ := cam.GetFrame()
	for x := 0; x < 4; x++ {
		if img[x] != 1 {
			t.Errorf("row 0 pixel %d, expected 1, got %d", x, img[x])
		}
		if img[4+x] != 0 {
			t.Errorf("row 1 pixel %d, expected 0, got %d", x, img[4+x])
		}
	}
}

func TestAcquireAcrossSyncWraps(t *testing.T) {
	// 100 us lines are long enough that the 10-bit sync counter
	// wraps many times per line
	geom := scanimg.Geometry{ScanPixelsX: 16, ScanPixelsY: 16, BeamsX: 1, BeamsY: 1}
	recs := ScanRecords(geom, tttr.DefaultLayout, tttr.DefaultMarkers, testResolutionPs, 100_000, 1)
	cam, _ := newTestCamera(t, recs, geom)
	runToCompletion(t, cam)

	if cam.Status() != StatusCompleted {
		t.Fatalf("status, expected Completed, got %v (err %v)", cam.Status(), cam.LastError())
	}
	img, _ := cam.GetFrame()
	for i, px := range img {
		if px != 1 {
			t.Fatalf("pixel %d, expected 1, got %d", i, px)
		}
	}
}

func TestAcquireStartFailureIsFatal(t *testing.T) {
	geom := scanimg.Geometry{ScanPixelsX: 4, ScanPixelsY: 2, BeamsX: 1, BeamsY: 1}
	cam, sim := newTestCamera(t, nil, geom)
	sim.StartErr = errors.New("device unplugged")
	runToCompletion(t, cam)

	if cam.Status() != StatusFailed {
		t.Fatalf("status, expected Failed, got %v", cam.Status())
	}
	if cam.LastError() == nil {
		t.Error("expected a run error")
	}
}

func TestAcquireMidRunReadErrorEndsRun(t *testing.T) {
	geom := scanimg.Geometry{ScanPixelsX: 4, ScanPixelsY: 2, BeamsX: 1, BeamsY: 1}
	cam, sim := newTestCamera(t, scriptTwoLineFrame(), geom)
	sim.ReadErr = errors.New("usb stall")
	runToCompletion(t, cam)

	if cam.Status() != StatusFailed {
		t.Fatalf("status, expected Failed, got %v", cam.Status())
	}
}

func TestAbort(t *testing.T) {
	geom := scanimg.Geometry{ScanPixelsX: 4, ScanPixelsY: 2, BeamsX: 1, BeamsY: 1}
	cam, sim := newTestCamera(t, nil, geom)
	sim.Endless = true
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := cam.Start(); !errors.Is(err, ErrAcquisitionRunning) {
		t.Errorf("second start, expected ErrAcquisitionRunning, got %v", err)
	}
	cam.Abort()
	cam.Wait()
	if cam.Status() != StatusAborted {
		t.Fatalf("status, expected Aborted, got %v", cam.Status())
	}
}

func TestFrameRepeatsAccumulate(t *testing.T) {
	geom := scanimg.Geometry{ScanPixelsX: 4, ScanPixelsY: 2, BeamsX: 1, BeamsY: 1}
	cam, _ := newTestCamera(t, scriptTwoLineFrame(), geom)
	if err := cam.SetFrameRepeats(2); err != nil {
		t.Fatalf("SetFrameRepeats: %v", err)
	}

	wants := []uint16{1, 2, 1} // third run crosses the repeat boundary
	for run, want := range wants {
		runToCompletion(t, cam)
		img, _ := cam.GetFrame()
		for i, px := range img {
			if px != want {
				t.Fatalf("run %d pixel %d, expected %d, got %d", run, i, want, px)
			}
		}
	}
}

func TestRawSinkPersistsRecords(t *testing.T) {
	geom := scanimg.Geometry{ScanPixelsX: 4, ScanPixelsY: 2, BeamsX: 1, BeamsY: 1}
	recs := scriptTwoLineFrame()
	cam, _ := newTestCamera(t, recs, geom)
	cam.Rec.Root = t.TempDir()
	cam.Rec.Enabled = true
	runToCompletion(t, cam)

	var files []string
	err := filepath.Walk(cam.Rec.Root, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, path)
		}
		return err
	})
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one run file, got %v (err %v)", files, err)
	}
	buf, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(buf) != 4*len(recs) {
		t.Fatalf("file length, expected %d, got %d", 4*len(recs), len(buf))
	}
	for i, want := range recs {
		if got := binary.LittleEndian.Uint32(buf[4*i:]); got != uint32(want) {
			t.Fatalf("record %d, expected %08x, got %08x", i, uint32(want), got)
		}
	}
}

func TestConfigRejection(t *testing.T) {
	cam, _ := newTestCamera(t, nil, scanimg.Geometry{ScanPixelsX: 16, ScanPixelsY: 16, BeamsX: 1, BeamsY: 1})
	cases := []struct {
		descr string
		op    func() error
	}{
		{"exposure too short", func() error { return cam.SetExposureTime(time.Millisecond) }},
		{"exposure too long", func() error { return cam.SetExposureTime(time.Hour) }},
		{"offset channel", func() error { return cam.SetInputOffset(8, 0) }},
		{"offset range", func() error { return cam.SetInputOffset(0, 10001) }},
		{"geometry", func() error {
			return cam.SetScanGeometry(scanimg.Geometry{ScanPixelsX: 1, ScanPixelsY: 16, BeamsX: 1, BeamsY: 1})
		}},
		{"frame repeats", func() error { return cam.SetFrameRepeats(0) }},
		{"mode", func() error { _, err := ParseMode("Spectrogram"); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.descr, func(t *testing.T) {
			if tc.op() == nil {
				t.Error("expected rejection, got nil")
			}
		})
	}
	// prior state retained after a rejected change
	if off, _ := cam.GetInputOffset(0); off != 0 {
		t.Errorf("offset mutated by rejected change, got %d", off)
	}
}

func TestConfigRejectedWhileRunning(t *testing.T) {
	geom := scanimg.Geometry{ScanPixelsX: 16, ScanPixelsY: 16, BeamsX: 1, BeamsY: 1}
	cam, sim := newTestCamera(t, nil, geom)
	sim.Endless = true
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		cam.Abort()
		cam.Wait()
	}()
	if err := cam.SetScanGeometry(geom); !errors.Is(err, ErrAcquisitionRunning) {
		t.Errorf("geometry change mid-run, expected ErrAcquisitionRunning, got %v", err)
	}
	if err := cam.SetExposureTime(2 * time.Second); !errors.Is(err, ErrAcquisitionRunning) {
		t.Errorf("exposure change mid-run, expected ErrAcquisitionRunning, got %v", err)
	}
}

func TestCommand(t *testing.T) {
	geom := scanimg.Geometry{ScanPixelsX: 4, ScanPixelsY: 2, BeamsX: 1, BeamsY: 1}
	cam, _ := newTestCamera(t, scriptTwoLineFrame(), geom)
	if err := cam.Command("Start"); err != nil {
		t.Fatalf("Command(Start): %v", err)
	}
	cam.Wait()
	if err := cam.Command("Idle"); err != nil {
		t.Errorf("Command(Idle): %v", err)
	}
	if err := cam.Command("launch"); err == nil {
		t.Error("unknown command accepted")
	}
}

func TestTestPatternRender(t *testing.T) {
	geom := scanimg.Geometry{ScanPixelsX: 128, ScanPixelsY: 128, BeamsX: 1, BeamsY: 1}
	cam, _ := newTestCamera(t, nil, geom)
	cam.SetMode(ModeTestPattern)
	img, err := cam.GetFrame()
	if err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	var lit, dark bool
	for _, px := range img {
		if px == 0 {
			dark = true
		} else {
			lit = true
		}
	}
	if !lit || !dark {
		t.Error("test pattern is uniform")
	}
}

func TestHistogramDecayRender(t *testing.T) {
	geom := scanimg.Geometry{ScanPixelsX: 64, ScanPixelsY: 64, BeamsX: 1, BeamsY: 1}
	cam, _ := newTestCamera(t, nil, geom)
	cam.SetMode(ModeHistogram)
	img, err := cam.GetFrame()
	if err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	// no rates measured yet, so a decay is simulated: the bottom
	// left is lit, the top right is not
	if img[63*64] == 0 {
		t.Error("bottom left of decay is dark")
	}
	if img[63] != 0 {
		t.Error("top right of decay is lit")
	}
}
