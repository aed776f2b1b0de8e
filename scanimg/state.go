package scanimg

import (
	"github.com/openflim/scanhub/tttr"
)

// Phase is the scan state machine's position within the frame cycle.
type Phase int

const (
	// NoFrame means no frame clock has been seen yet; line clocks
	// are tracked (the scanner free-runs) but nothing is mapped
	NoFrame Phase = iota

	// FrameActive means a frame clock arrived and lines are being
	// counted
	FrameActive

	// FrameDone means the line counter ran past the frame height;
	// nothing more is mapped until the next frame clock
	FrameDone
)

func (p Phase) String() string {
	switch p {
	case FrameActive:
		return "FrameActive"
	case FrameDone:
		return "FrameDone"
	default:
		return "NoFrame"
	}
}

// State tracks frame and line boundaries from scan marker events and
// derives the per-pixel dwell time.  It is owned by the acquisition
// loop and never shared.
type State struct {
	markers tttr.Markers

	frameWidth    int
	linesPerFrame int

	phase Phase
	line  int

	lineStartPs uint64
	lineEndPs   uint64

	// dwellPs stays at its last computed value across frame
	// boundaries; it is only unusable before the first completed
	// line of a run
	dwellPs    uint64
	dwellValid bool

	haveLineStart bool
	framesStarted int
}

// NewState returns a state machine for the given markers and geometry.
func NewState(markers tttr.Markers, geom Geometry) *State {
	s := &State{
		markers:       markers,
		frameWidth:    geom.FrameWidth(),
		linesPerFrame: geom.FrameHeight(),
	}
	s.Reset()
	return s
}

// Reset returns the machine to its start-of-run condition.
func (s *State) Reset() {
	s.phase = NoFrame
	s.line = -1
	s.lineStartPs = 0
	s.lineEndPs = 0
	s.dwellPs = 0
	s.dwellValid = false
	s.haveLineStart = false
	s.framesStarted = 0
}

// HandleMarker applies one special marker event at the given absolute
// timestamp.  Unrecognized codes are ignored so newer firmware marker
// assignments pass through harmlessly.
func (s *State) HandleMarker(code uint8, tsPs uint64) {
	switch {
	case code == s.markers.LineEnd:
		s.lineEndPs = tsPs
		if s.haveLineStart && tsPs > s.lineStartPs {
			s.dwellPs = (tsPs - s.lineStartPs) / uint64(s.frameWidth)
			s.dwellValid = s.dwellPs > 0
		}
	case code == s.markers.LineStart:
		s.lineStartPs = tsPs
		s.haveLineStart = true
		if s.phase == FrameActive {
			s.line++
			if s.line >= s.linesPerFrame {
				s.phase = FrameDone
			}
		}
	case s.markers.IsFrameStart(code):
		// the next line clock corresponds to line 0
		s.phase = FrameActive
		s.line = -1
		s.framesStarted++
	}
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	return s.phase
}

// Line returns the current line index; negative means not within a
// counted line.
func (s *State) Line() int {
	return s.line
}

// InLine reports whether a photon arriving now belongs to the active
// scan of a counted line, i.e. not line flyback and not outside a
// frame.
func (s *State) InLine() bool {
	return s.phase == FrameActive && s.line >= 0 && s.lineEndPs < s.lineStartPs
}

// DwellPs returns the per-pixel dwell time and whether it is usable
// yet.  It is not usable until one full line has completed since
// Reset.
func (s *State) DwellPs() (uint64, bool) {
	return s.dwellPs, s.dwellValid
}

// LineStartPs returns the timestamp of the most recent line start.
func (s *State) LineStartPs() uint64 {
	return s.lineStartPs
}

// FramesStarted returns the number of frame clocks seen since Reset.
func (s *State) FramesStarted() int {
	return s.framesStarted
}
