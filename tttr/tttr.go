/*Package tttr implements the T3 time-tagged time-resolved record format
used by MultiHarp-class photon counting hardware.

A record is one 32-bit word read from the device FIFO.  From the lowest
bit upward it packs a wrapping sync counter, a TCSPC time bin, an input
channel number, and a single "special" flag in the top bit:

	|special| channel | time bin  |   sync   |
	|   1   |    6    |    15     |    10    |

When the special flag is set the channel field carries a scan-control
marker code (line/frame boundaries, sync counter overflow) instead of a
detector channel.  The widths and marker codes are firmware conventions,
so both are carried in configuration structs rather than as literals.
*/
package tttr

import "fmt"

// Record is one raw 32-bit word from the device FIFO.
type Record uint32

// Event is the decoded form of a Record.
type Event struct {
	// Sync is the value of the wrapping sync counter
	Sync uint32

	// TimeBin is the TCSPC time bin within the sync period
	TimeBin uint32

	// Channel is the detector input channel, or a marker code when
	// Special is true
	Channel uint8

	// Special marks scan-control records (markers, overflows)
	Special bool
}

// Layout describes the bit packing of a Record.  The sync counter
// occupies the lowest bits, then the time bin, then the channel; the
// special flag is always the most significant bit.
type Layout struct {
	SyncBits    uint
	TimeBits    uint
	ChannelBits uint
}

// DefaultLayout is the MultiHarp T3 wire format.
var DefaultLayout = Layout{SyncBits: 10, TimeBits: 15, ChannelBits: 6}

// Validate checks that the fields plus the special flag cover exactly
// 32 bits.
func (l Layout) Validate() error {
	total := l.SyncBits + l.TimeBits + l.ChannelBits + 1
	if total != 32 {
		return fmt.Errorf("tttr: record layout covers %d bits, want 32", total)
	}
	return nil
}

// SyncModulus is the wrap point of the sync counter, 1024 for the
// default layout.
func (l Layout) SyncModulus() uint64 {
	return 1 << l.SyncBits
}

// Decode unpacks a single record.  It cannot fail; garbage in produces
// garbage out, which downstream bounds checks absorb.
func (l Layout) Decode(r Record) Event {
	var (
		syncMask = uint32(1)<<l.SyncBits - 1
		timeMask = uint32(1)<<l.TimeBits - 1
		chanMask = uint32(1)<<l.ChannelBits - 1

		timeShift = l.SyncBits
		chanShift = l.SyncBits + l.TimeBits
	)
	v := uint32(r)
	return Event{
		Sync:    v & syncMask,
		TimeBin: (v >> timeShift) & timeMask,
		Channel: uint8((v >> chanShift) & chanMask),
		Special: v>>31&1 == 1,
	}
}

// Pack is the inverse of Decode.  Field values beyond their bit widths
// are truncated.  It is used by the simulator and by tests.
func (l Layout) Pack(e Event) Record {
	var (
		syncMask = uint32(1)<<l.SyncBits - 1
		timeMask = uint32(1)<<l.TimeBits - 1
		chanMask = uint32(1)<<l.ChannelBits - 1
	)
	v := e.Sync & syncMask
	v |= (e.TimeBin & timeMask) << l.SyncBits
	v |= (uint32(e.Channel) & chanMask) << (l.SyncBits + l.TimeBits)
	if e.Special {
		v |= 1 << 31
	}
	return Record(v)
}

// Markers holds the special-channel codes emitted by the scan
// controller.  The values here are what the galvo firmware is wired to
// produce; other rigs may route the markers differently, so these are
// configuration, not law.
type Markers struct {
	// LineEnd marks the end of a line's active scan
	LineEnd uint8

	// LineStart marks the start of a line's active scan
	LineStart uint8

	// FrameStart codes mark the start of a frame.  Two codes are
	// listed because the frame clock may arrive on either marker
	// input depending on edge configuration.
	FrameStart []uint8

	// Overflow marks a sync counter rollover; the record's sync
	// field carries the number of wraps
	Overflow uint8
}

// DefaultMarkers matches the marker routing of the reference scan head.
var DefaultMarkers = Markers{
	LineEnd:    1,
	LineStart:  2,
	FrameStart: []uint8{3, 4},
	Overflow:   63,
}

// IsFrameStart reports whether code is one of the frame start codes.
func (m Markers) IsFrameStart(code uint8) bool {
	for _, c := range m.FrameStart {
		if c == code {
			return true
		}
	}
	return false
}
