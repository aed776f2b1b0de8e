package scanimg

import (
	"testing"

	"github.com/openflim/scanhub/tttr"
)

func TestGeometryValidate(t *testing.T) {
	cases := []struct {
		descr string
		geom  Geometry
		ok    bool
	}{
		{"typical", Geometry{512, 512, 1, 1}, true},
		{"min pixels", Geometry{16, 16, 1, 1}, true},
		{"max pixels", Geometry{33000, 33000, 1, 1}, true},
		{"x too small", Geometry{15, 512, 1, 1}, false},
		{"y too large", Geometry{512, 33001, 1, 1}, false},
		{"zero beams x", Geometry{512, 512, 0, 1}, false},
		{"too many beams y", Geometry{512, 512, 1, 9}, false},
		{"full multibeam", Geometry{256, 256, 2, 4}, true},
	}
	for _, tc := range cases {
		t.Run(tc.descr, func(t *testing.T) {
			err := tc.geom.Validate()
			if tc.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestGeometryFrameSize(t *testing.T) {
	g := Geometry{ScanPixelsX: 100, ScanPixelsY: 50, BeamsX: 2, BeamsY: 3}
	if g.Beams() != 6 {
		t.Errorf("beams, expected 6, got %d", g.Beams())
	}
	if g.FrameWidth() != 200 {
		t.Errorf("frame width, expected 200, got %d", g.FrameWidth())
	}
	if g.FrameHeight() != 150 {
		t.Errorf("frame height, expected 150, got %d", g.FrameHeight())
	}
}

func TestFrameSaturation(t *testing.T) {
	cases := []struct {
		format PixelFormat
		incrs  int
		want   uint32
	}{
		{Mono8, 300, 255},
		{Mono8, 10, 10},
		{Mono16, 70000, 65535},
		{Mono16, 10, 10},
	}
	for _, tc := range cases {
		t.Run(tc.format.String(), func(t *testing.T) {
			f := NewFrame(4, 4, tc.format)
			for i := 0; i < tc.incrs; i++ {
				f.Incr(1, 2)
			}
			if got := f.At(1, 2); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestFrameOutOfBoundsDropped(t *testing.T) {
	f := NewFrame(4, 4, Mono16)
	f.Incr(-1, 0)
	f.Incr(0, -1)
	f.Incr(4, 0)
	f.Incr(0, 4)
	for _, px := range f.Snapshot() {
		if px != 0 {
			t.Fatal("out of bounds increment modified the buffer")
		}
	}
}

func TestFrameSnapshotWidens8Bit(t *testing.T) {
	f := NewFrame(2, 2, Mono8)
	f.Incr(1, 1)
	f.Incr(1, 1)
	snap := f.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("expected 4 pixels, got %d", len(snap))
	}
	if snap[3] != 2 {
		t.Errorf("expected 2, got %d", snap[3])
	}
}

// lineDur is the line period used throughout the state machine tests;
// with a frame width of 4 it yields a 1000 ps dwell.
const lineDur = 4000

func singleBeam4x2() Geometry {
	return Geometry{ScanPixelsX: 4, ScanPixelsY: 2, BeamsX: 1, BeamsY: 1}
}

func TestStateDwellInvalidUntilFullLine(t *testing.T) {
	st := NewState(tttr.DefaultMarkers, singleBeam4x2())

	if _, ok := st.DwellPs(); ok {
		t.Fatal("dwell usable before any marker")
	}
	// line end with no preceding start must not produce a dwell
	st.HandleMarker(tttr.DefaultMarkers.LineEnd, 500)
	if _, ok := st.DwellPs(); ok {
		t.Fatal("dwell usable after stray line end")
	}
	st.HandleMarker(tttr.DefaultMarkers.LineStart, 1000)
	if _, ok := st.DwellPs(); ok {
		t.Fatal("dwell usable after line start only")
	}
	st.HandleMarker(tttr.DefaultMarkers.LineEnd, 1000+lineDur)
	d, ok := st.DwellPs()
	if !ok {
		t.Fatal("dwell not usable after a full line")
	}
	if d != 1000 {
		t.Errorf("dwell, expected 1000, got %d", d)
	}
}

func TestStateFrameCycle(t *testing.T) {
	m := tttr.DefaultMarkers
	st := NewState(m, singleBeam4x2())

	if st.Phase() != NoFrame {
		t.Fatalf("initial phase, expected NoFrame, got %v", st.Phase())
	}
	// line clocks free-run before the frame clock and must not
	// advance the line counter
	st.HandleMarker(m.LineStart, 0)
	st.HandleMarker(m.LineEnd, lineDur)
	if st.Line() != -1 {
		t.Errorf("line advanced outside a frame, got %d", st.Line())
	}

	st.HandleMarker(m.FrameStart[0], lineDur)
	if st.Phase() != FrameActive {
		t.Fatalf("expected FrameActive, got %v", st.Phase())
	}
	if st.FramesStarted() != 1 {
		t.Errorf("frames started, expected 1, got %d", st.FramesStarted())
	}

	// frame height is 2: two line starts, then the third ends it
	for i := 0; i < 2; i++ {
		ts := uint64(lineDur * (i + 1))
		st.HandleMarker(m.LineStart, ts)
		if st.Line() != i {
			t.Errorf("line, expected %d, got %d", i, st.Line())
		}
		st.HandleMarker(m.LineEnd, ts+lineDur)
	}
	st.HandleMarker(m.LineStart, lineDur*3)
	if st.Phase() != FrameDone {
		t.Errorf("expected FrameDone after last line, got %v", st.Phase())
	}

	// second frame clock code restarts the cycle
	st.HandleMarker(m.FrameStart[1], lineDur*4)
	if st.Phase() != FrameActive || st.Line() != -1 {
		t.Errorf("frame restart, phase %v line %d", st.Phase(), st.Line())
	}
	if st.FramesStarted() != 2 {
		t.Errorf("frames started, expected 2, got %d", st.FramesStarted())
	}
}

func TestStateUnknownMarkerIgnored(t *testing.T) {
	st := NewState(tttr.DefaultMarkers, singleBeam4x2())
	st.HandleMarker(37, 1234)
	if st.Phase() != NoFrame || st.Line() != -1 {
		t.Error("unknown marker changed state")
	}
}

// primeState runs a full line and a frame clock so the dwell is known
// and line 0 is active starting at the returned timestamp. A short
// flyback separates the free-running line from the first frame line.
func primeState(st *State, m tttr.Markers) uint64 {
	st.HandleMarker(m.LineStart, 0)
	st.HandleMarker(m.LineEnd, lineDur)
	st.HandleMarker(m.FrameStart[0], lineDur)
	start := uint64(lineDur + 1000)
	st.HandleMarker(m.LineStart, start)
	return start
}

func TestMapperSingleBeam(t *testing.T) {
	m := tttr.DefaultMarkers
	st := NewState(m, singleBeam4x2())
	mp := NewMapper(singleBeam4x2(), true)
	t0 := primeState(st, m)

	for i := 0; i < 4; i++ {
		ts := t0 + uint64(i)*1000
		x, y, ok := mp.Map(0, ts, st)
		if !ok {
			t.Fatalf("photon %d rejected", i)
		}
		if x != i || y != 0 {
			t.Errorf("photon %d, expected (%d,0), got (%d,%d)", i, i, x, y)
		}
	}
}

func TestMapperClampsToLastPixel(t *testing.T) {
	m := tttr.DefaultMarkers
	st := NewState(m, singleBeam4x2())
	mp := NewMapper(singleBeam4x2(), true)
	t0 := primeState(st, m)

	// far past the nominal end of the line
	x, y, ok := mp.Map(0, t0+4*lineDur, st)
	if !ok {
		t.Fatal("late photon rejected")
	}
	if x != 3 || y != 0 {
		t.Errorf("expected (3,0), got (%d,%d)", x, y)
	}
}

func TestMapperRejectsFlyback(t *testing.T) {
	m := tttr.DefaultMarkers
	st := NewState(m, singleBeam4x2())
	mp := NewMapper(singleBeam4x2(), true)
	t0 := primeState(st, m)

	st.HandleMarker(m.LineEnd, t0+lineDur)
	if _, _, ok := mp.Map(0, t0+lineDur+500, st); ok {
		t.Error("photon during flyback was mapped")
	}
	// next line start re-opens mapping
	st.HandleMarker(m.LineStart, t0+2*lineDur)
	if _, _, ok := mp.Map(0, t0+2*lineDur+500, st); !ok {
		t.Error("photon after line restart was rejected")
	}
}

func TestMapperRejectsBeforeDwellKnown(t *testing.T) {
	m := tttr.DefaultMarkers
	st := NewState(m, singleBeam4x2())
	mp := NewMapper(singleBeam4x2(), true)

	// frame and line start with no completed line yet
	st.HandleMarker(m.FrameStart[0], 0)
	st.HandleMarker(m.LineStart, 0)
	if _, _, ok := mp.Map(0, 500, st); ok {
		t.Error("photon mapped before the dwell was known")
	}
}

func TestMapperMultiBeamTiling(t *testing.T) {
	// 6 beams tile the frame 2 wide by 3 tall
	geom := Geometry{ScanPixelsX: 4, ScanPixelsY: 2, BeamsX: 2, BeamsY: 3}
	m := tttr.DefaultMarkers
	st := NewState(m, geom)
	mp := NewMapper(geom, true)

	// frame width 8, line period 8000 ps, dwell 1000 ps
	st.HandleMarker(m.LineStart, 0)
	st.HandleMarker(m.LineEnd, 8000)
	st.HandleMarker(m.FrameStart[0], 8000)
	st.HandleMarker(m.LineStart, 9000)

	cases := []struct {
		channel uint8
		offset  uint64
		x, y    int
	}{
		// channel 5 is beam 0: tile origin (0,0)
		{5, 0, 0, 0},
		{5, 2000, 1, 0},
		// channel 4 is beam 1: tile origin (0,2)
		{4, 0, 0, 2},
		// channel 3 is beam 2: tile origin (0,4)
		{3, 6000, 3, 4},
		// channel 2 is beam 3: tile origin (4,0)
		{2, 0, 4, 0},
		// channel 0 is beam 5: tile origin (4,4)
		{0, 7000, 7, 4},
	}
	for _, tc := range cases {
		x, y, ok := mp.Map(tc.channel, 9000+tc.offset, st)
		if !ok {
			t.Errorf("channel %d rejected", tc.channel)
			continue
		}
		if x != tc.x || y != tc.y {
			t.Errorf("channel %d offset %d, expected (%d,%d), got (%d,%d)",
				tc.channel, tc.offset, tc.x, tc.y, x, y)
		}
	}

	// with 6 beams wired, channels 6 and 7 have no tile
	if _, _, ok := mp.Map(6, 9000, st); ok {
		t.Error("channel with no beam was mapped")
	}
}
