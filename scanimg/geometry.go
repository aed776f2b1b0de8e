/*Package scanimg reconstructs scan-synchronized image frames from
asynchronous photon event timing.

The scan controller raster-scans a (possibly multi-beam) excitation
spot across the sample and tags the photon stream with line and frame
markers.  This package tracks those markers, derives the per-pixel
dwell time from completed line durations, and maps each photon's
absolute timestamp to a pixel in a shared, lock-protected frame buffer.
*/
package scanimg

import "fmt"

// Geometry bounds.  Pixel counts cover everything from coarse survey
// scans to the largest stage-stitched fields; beam counts are limited
// by the detector channel count.
const (
	MinScanPixels = 16
	MaxScanPixels = 33000
	MinBeams      = 1
	MaxBeams      = 8
)

// Geometry describes the scan raster.  It is fixed for the duration of
// an acquisition run; changing it mid-run is not supported.
type Geometry struct {
	// ScanPixelsX, ScanPixelsY are the pixels per axis covered by
	// one beam
	ScanPixelsX int `json:"scanPixelsX" yaml:"ScanPixelsX"`
	ScanPixelsY int `json:"scanPixelsY" yaml:"ScanPixelsY"`

	// BeamsX, BeamsY describe the excitation beamlet array
	BeamsX int `json:"beamsX" yaml:"BeamsX"`
	BeamsY int `json:"beamsY" yaml:"BeamsY"`
}

// Validate bounds-checks every field independently.
func (g Geometry) Validate() error {
	for _, v := range []struct {
		name string
		val  int
	}{
		{"scanPixelsX", g.ScanPixelsX},
		{"scanPixelsY", g.ScanPixelsY},
	} {
		if v.val < MinScanPixels || v.val > MaxScanPixels {
			return fmt.Errorf("scanimg: %s=%d outside [%d, %d]", v.name, v.val, MinScanPixels, MaxScanPixels)
		}
	}
	for _, v := range []struct {
		name string
		val  int
	}{
		{"beamsX", g.BeamsX},
		{"beamsY", g.BeamsY},
	} {
		if v.val < MinBeams || v.val > MaxBeams {
			return fmt.Errorf("scanimg: %s=%d outside [%d, %d]", v.name, v.val, MinBeams, MaxBeams)
		}
	}
	return nil
}

// Beams is the total beamlet count.
func (g Geometry) Beams() int {
	return g.BeamsX * g.BeamsY
}

// FrameWidth is the de-interleaved image width in pixels.
func (g Geometry) FrameWidth() int {
	return g.ScanPixelsX * g.BeamsX
}

// FrameHeight is the de-interleaved image height in pixels.
func (g Geometry) FrameHeight() int {
	return g.ScanPixelsY * g.BeamsY
}
