package tttr

// Clock converts the wrapping sync counter into an absolute timestamp
// in picoseconds.  The hardware emits an overflow marker record each
// time the counter wraps; the marker's sync field holds the number of
// wraps, which may be more than one when the photon flux is low.
//
// Correctness depends on records being fed in FIFO order.  If overflow
// markers are lost (FIFO full), timestamps silently desynchronize; the
// acquisition loop surfaces that condition, the clock does not.
type Clock struct {
	resolutionPs uint64
	modulus      uint64
	overflowCode uint8
	overflows    uint64
}

// NewClock returns a clock for the given record layout and marker set.
// resolutionPs is the device time tick (sync period) in picoseconds.
func NewClock(layout Layout, markers Markers, resolutionPs uint64) *Clock {
	return &Clock{
		resolutionPs: resolutionPs,
		modulus:      layout.SyncModulus(),
		overflowCode: markers.Overflow,
	}
}

// Advance consumes an overflow marker, adding its wrap count.  It
// returns true if the event was an overflow marker, false otherwise
// (in which case the caller should handle the event itself).
func (c *Clock) Advance(e Event) bool {
	if !e.Special || e.Channel != c.overflowCode {
		return false
	}
	c.overflows += uint64(e.Sync)
	return true
}

// TimestampPs returns the absolute time of a record with the given
// sync counter value, in picoseconds since acquisition start.
func (c *Clock) TimestampPs(sync uint32) uint64 {
	return (uint64(sync) + c.overflows*c.modulus) * c.resolutionPs
}

// Overflows returns the accumulated wrap count.
func (c *Clock) Overflows() uint64 {
	return c.overflows
}

// Reset zeroes the wrap count for a new acquisition.
func (c *Clock) Reset() {
	c.overflows = 0
}
