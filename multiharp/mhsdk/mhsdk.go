/*Package mhsdk exposes control of PicoQuant MultiHarp event timers in
Go via the vendor library, mhlib.

 */
package mhsdk

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmhlib
#include <stdlib.h>
#include <mhdefin.h>
#include <mhlib.h>
*/
import "C"
import (
	"fmt"
	"time"
	"unsafe"

	"github.com/openflim/scanhub/tttr"
)

const (
	// ModeT3 is the T3 time-tagged measurement mode
	ModeT3 = 3

	// TTReadMax mirrors the header's TTREADMAX, the fixed read size
	// of MH_ReadFiFo in records
	TTReadMax = 1048576

	// WRAPVER is the mhlib wrapper code version.
	// Increment this when pkg mhsdk is updated.
	WRAPVER = 1
)

// SDKError represents an mhlib error code
type SDKError int

// Error satisfies the error interface, fetching the text from the
// library
func (e SDKError) Error() string {
	buf := (*C.char)(C.malloc(40))
	defer C.free(unsafe.Pointer(buf))
	C.MH_GetErrorString(buf, C.int(e))
	return fmt.Sprintf("%d - %s", int(e), C.GoString(buf))
}

// Error returns nil on code 0 or an SDKError otherwise
func Error(code int) error {
	if code == 0 {
		return nil
	}
	return SDKError(code)
}

// enrich wraps an error with the name of the call that produced it
func enrich(err error, call string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", call, err)
}

// LibraryVersion returns the mhlib version string
func LibraryVersion() (string, error) {
	buf := (*C.char)(C.malloc(8))
	defer C.free(unsafe.Pointer(buf))
	err := Error(int(C.MH_GetLibraryVersion(buf)))
	return C.GoString(buf), err
}

// MH is a handle to one MultiHarp device.  One background worker
// accesses the handle at a time by convention.
type MH struct {
	// DevIdx is the library device index, 0-7
	DevIdx int

	// Serial is the device serial number reported at open
	Serial string

	resolutionPs uint64
}

// Open opens and initializes device devIdx in T3 mode.  The device is
// left in a closed state if initialization fails.
func Open(devIdx int) (*MH, error) {
	m := &MH{DevIdx: devIdx}
	buf := (*C.char)(C.malloc(8))
	defer C.free(unsafe.Pointer(buf))
	err := enrich(Error(int(C.MH_OpenDevice(C.int(devIdx), buf))), "MH_OpenDevice")
	if err != nil {
		return nil, err
	}
	m.Serial = C.GoString(buf)
	err = enrich(Error(int(C.MH_Initialize(C.int(devIdx), ModeT3, 0))), "MH_Initialize")
	if err != nil {
		C.MH_CloseDevice(C.int(devIdx))
		return nil, err
	}
	return m, nil
}

// StartMeasurement begins a timed T3 measurement
func (m *MH) StartMeasurement(d time.Duration) error {
	return enrich(Error(int(C.MH_StartMeas(C.int(m.DevIdx), C.int(d.Milliseconds())))), "MH_StartMeas")
}

// StopMeasurement halts the measurement
func (m *MH) StopMeasurement() error {
	return enrich(Error(int(C.MH_StopMeas(C.int(m.DevIdx)))), "MH_StopMeas")
}

// Flags returns the device status flag bits
func (m *MH) Flags() (uint32, error) {
	var flags C.int
	err := enrich(Error(int(C.MH_GetFlags(C.int(m.DevIdx), &flags))), "MH_GetFlags")
	return uint32(flags), err
}

// ReadFiFo drains records from the hardware FIFO into buf.  The
// library reads up to TTREADMAX records per call and requires the
// buffer to be at least that large.
func (m *MH) ReadFiFo(buf []tttr.Record) (int, error) {
	if len(buf) < TTReadMax {
		return 0, fmt.Errorf("MH_ReadFiFo: buffer holds %d records, need %d", len(buf), TTReadMax)
	}
	var n C.int
	err := enrich(Error(int(C.MH_ReadFiFo(
		C.int(m.DevIdx),
		(*C.uint)(unsafe.Pointer(&buf[0])),
		&n))), "MH_ReadFiFo")
	return int(n), err
}

// CTCStatus reports whether the timed measurement has expired
func (m *MH) CTCStatus() (bool, error) {
	var ctc C.int
	err := enrich(Error(int(C.MH_CTCStatus(C.int(m.DevIdx), &ctc))), "MH_CTCStatus")
	return ctc != 0, err
}

// CountRate returns the count rate of one input channel in counts per
// second
func (m *MH) CountRate(channel int) (int, error) {
	var rate C.int
	err := enrich(Error(int(C.MH_GetCountRate(C.int(m.DevIdx), C.int(channel), &rate))), "MH_GetCountRate")
	return int(rate), err
}

// SetInputOffset applies a timing calibration offset to one input
// channel, in picoseconds
func (m *MH) SetInputOffset(channel, offsetPs int) error {
	return enrich(Error(int(C.MH_SetInputChannelOffset(C.int(m.DevIdx), C.int(channel), C.int(offsetPs)))), "MH_SetInputChannelOffset")
}

// Resolution returns the sync tick size in picoseconds.  In T3 mode
// timestamps advance one sync period per tick, so the tick is derived
// from the measured sync rate, not the TCSPC bin resolution.
func (m *MH) Resolution() (uint64, error) {
	if m.resolutionPs != 0 {
		return m.resolutionPs, nil
	}
	var syncRate C.int
	err := enrich(Error(int(C.MH_GetSyncRate(C.int(m.DevIdx), &syncRate))), "MH_GetSyncRate")
	if err != nil {
		return 0, err
	}
	if syncRate <= 0 {
		return 0, fmt.Errorf("MH_GetSyncRate: no sync signal present")
	}
	m.resolutionPs = uint64(1e12 / float64(syncRate))
	return m.resolutionPs, nil
}

// Close releases the device handle
func (m *MH) Close() error {
	return enrich(Error(int(C.MH_CloseDevice(C.int(m.DevIdx)))), "MH_CloseDevice")
}
