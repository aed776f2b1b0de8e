// Package multiharp provides an adapter to PicoQuant MultiHarp photon
// counting and event timing hardware, reconstructing scan-synchronized
// image frames from the device's TTTR event stream.
package multiharp

import (
	"errors"
	"fmt"
	"time"

	"github.com/openflim/scanhub/tttr"
)

// status flag bits returned by Device.Flags
const (
	// FlagOverflow indicates histogram bin overflow
	FlagOverflow = 0x0001

	// FlagFIFOFull indicates the hardware FIFO filled and records
	// were lost
	FlagFIFOFull = 0x0002
)

const (
	// MaxChannels is the number of input channels the adapter tracks
	// rates for
	MaxChannels = 8

	// TTReadMax is the largest number of records one FiFo read may
	// return
	TTReadMax = 1048576

	// MinExposureMs and MaxExposureMs bound the acquisition duration
	MinExposureMs = 1000
	MaxExposureMs = 100000

	// MinOffsetPs and MaxOffsetPs bound per-channel input offsets
	MinOffsetPs = 0
	MaxOffsetPs = 10000

	// DefaultResolutionPs is the sync tick size of the reference
	// hardware configuration
	DefaultResolutionPs = 12618
)

// ErrAcquisitionRunning is returned when an operation requires the
// device to be idle but an acquisition is in flight.
var ErrAcquisitionRunning = errors.New("multiharp: acquisition already running")

// Device is a handle to MultiHarp-like event timing hardware.  The
// acquisition loop is the only user of a Device while a run is active.
type Device interface {
	// StartMeasurement begins a timed measurement
	StartMeasurement(d time.Duration) error

	// StopMeasurement halts the measurement
	StopMeasurement() error

	// Flags returns the device status flag bits
	Flags() (uint32, error)

	// ReadFiFo reads up to len(buf) records from the hardware FIFO,
	// returning the number read.  Zero with a nil error means the
	// FIFO was empty.
	ReadFiFo(buf []tttr.Record) (int, error)

	// CTCStatus reports whether the timed measurement has expired
	CTCStatus() (bool, error)

	// CountRate returns the hardware count rate of one input channel
	// in counts per second
	CountRate(channel int) (int, error)

	// SetInputOffset applies a timing calibration offset to one
	// input channel
	SetInputOffset(channel int, offsetPs int) error

	// Resolution returns the sync tick size in picoseconds
	Resolution() (uint64, error)

	// Close releases the device handle
	Close() error
}

// validateOffset bounds-checks a per-channel input offset.
func validateOffset(channel, offsetPs int) error {
	if channel < 0 || channel >= MaxChannels {
		return fmt.Errorf("multiharp: channel %d outside [0, %d)", channel, MaxChannels)
	}
	if offsetPs < MinOffsetPs || offsetPs > MaxOffsetPs {
		return fmt.Errorf("multiharp: offset %d ps outside [%d, %d]", offsetPs, MinOffsetPs, MaxOffsetPs)
	}
	return nil
}

// validateExposure bounds-checks an exposure time in milliseconds.
func validateExposure(ms float64) error {
	if ms < MinExposureMs || ms > MaxExposureMs {
		return fmt.Errorf("multiharp: exposure %g ms outside [%d, %d]", ms, MinExposureMs, MaxExposureMs)
	}
	return nil
}
