package scanimg

import (
	"fmt"
	"sync"
)

// PixelFormat selects the element width of a Frame.
type PixelFormat int

const (
	// Mono8 is 1 byte per pixel, saturating at 255
	Mono8 PixelFormat = iota + 1

	// Mono16 is 2 bytes per pixel, saturating at 65535
	Mono16
)

// Bytes is the element width in bytes.
func (p PixelFormat) Bytes() int {
	if p == Mono8 {
		return 1
	}
	return 2
}

// Max is the saturation ceiling of the format.
func (p PixelFormat) Max() uint32 {
	if p == Mono8 {
		return 255
	}
	return 65535
}

func (p PixelFormat) String() string {
	if p == Mono8 {
		return "8bit"
	}
	return "16bit"
}

// ParsePixelFormat converts a format name to a PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "8bit":
		return Mono8, nil
	case "16bit":
		return Mono16, nil
	default:
		return 0, fmt.Errorf("scanimg: unknown pixel format %q, expected 8bit or 16bit", s)
	}
}

// Frame is the shared image buffer.  The acquisition loop increments
// pixels while display and telemetry consumers read snapshots; every
// touch happens under one mutex, scoped to the individual operation so
// the lock is never held across a hardware FIFO read.
type Frame struct {
	mu     sync.Mutex
	width  int
	height int
	format PixelFormat
	pix8   []uint8
	pix16  []uint16
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height int, format PixelFormat) *Frame {
	f := &Frame{}
	f.Resize(width, height, format)
	return f
}

// Resize reallocates the buffer for new dimensions or pixel format,
// zeroing its contents.
func (f *Frame) Resize(width, height int, format PixelFormat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.width = width
	f.height = height
	f.format = format
	f.pix8 = nil
	f.pix16 = nil
	if format == Mono8 {
		f.pix8 = make([]uint8, width*height)
	} else {
		f.pix16 = make([]uint16, width*height)
	}
}

// Clear zeroes all pixels without reallocating.
func (f *Frame) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.pix8 {
		f.pix8[i] = 0
	}
	for i := range f.pix16 {
		f.pix16[i] = 0
	}
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height
}

// Format returns the pixel format.
func (f *Frame) Format() PixelFormat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.format
}

// Incr adds one count to pixel (x, y), saturating at the format's
// ceiling.  Out-of-range coordinates are dropped; a mis-mapped photon
// must never crash the stream or write out of bounds.
func (f *Frame) Incr(x, y int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return
	}
	i := y*f.width + x
	if f.format == Mono8 {
		if f.pix8[i] != 255 {
			f.pix8[i]++
		}
		return
	}
	if f.pix16[i] != 65535 {
		f.pix16[i]++
	}
}

// At returns the value of pixel (x, y), widened to uint32.  Out of
// range coordinates return 0.
func (f *Frame) At(x, y int) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return 0
	}
	i := y*f.width + x
	if f.format == Mono8 {
		return uint32(f.pix8[i])
	}
	return uint32(f.pix16[i])
}

// Fill overwrites every pixel with fn(x, y), clamped to the format
// ceiling.  The lock is held for the whole render, so fn must not
// touch the frame.  Used by the display synthesizers.
func (f *Frame) Fill(fn func(x, y int) uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := f.format.Max()
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			v := fn(x, y)
			if v > max {
				v = max
			}
			i := y*f.width + x
			if f.format == Mono8 {
				f.pix8[i] = uint8(v)
			} else {
				f.pix16[i] = uint16(v)
			}
		}
	}
}

// Snapshot copies the buffer out as 16-bit values regardless of the
// underlying format.  8-bit pixels are widened, not rescaled.
func (f *Frame) Snapshot() []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint16, f.width*f.height)
	if f.format == Mono8 {
		for i, v := range f.pix8 {
			out[i] = uint16(v)
		}
		return out
	}
	copy(out, f.pix16)
	return out
}
