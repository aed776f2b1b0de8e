package scanimg

// Mapper converts a photon's detection channel and timestamp into
// frame coordinates.  With multiple excitation beams the frame is a
// grid of sub-images, one tile per beam, and each channel lands in its
// own tile.
type Mapper struct {
	geom  Geometry
	beams int

	// reverse maps channel 0 to the highest beam index, matching
	// detector wiring where the last channel sees the first beam
	reverse bool
}

// NewMapper returns a mapper for the given geometry.  reverseBeams
// selects the channel-to-beam assignment order.
func NewMapper(geom Geometry, reverseBeams bool) *Mapper {
	return &Mapper{geom: geom, beams: geom.Beams(), reverse: reverseBeams}
}

// Map converts one photon into frame coordinates.  ok is false when
// the photon cannot be placed: outside a counted line, before the
// dwell time is known, or on a channel with no beam assigned.
// Photons past the nominal end of a line land in the last pixel.
func (m *Mapper) Map(channel uint8, tsPs uint64, st *State) (x, y int, ok bool) {
	if !st.InLine() {
		return 0, 0, false
	}
	dwell, valid := st.DwellPs()
	if !valid {
		return 0, 0, false
	}
	beam := int(channel)
	if m.reverse {
		beam = m.beams - 1 - beam
	}
	if beam < 0 || beam >= m.beams {
		return 0, 0, false
	}
	xShift := (beam / m.geom.BeamsY) * m.geom.ScanPixelsX
	yShift := (beam % m.geom.BeamsY) * m.geom.ScanPixelsY

	start := st.LineStartPs()
	if tsPs < start {
		return 0, 0, false
	}
	pix := int((tsPs-start)/dwell) / m.geom.BeamsX
	if pix > m.geom.ScanPixelsX-1 {
		pix = m.geom.ScanPixelsX - 1
	}
	return pix + xShift, st.Line() + yShift, true
}
