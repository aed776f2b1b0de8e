package mhsdk

import "github.com/google/gousb"

// USB identifiers of MultiHarp-class devices
const (
	// VendorID is PicoQuant's USB vendor ID
	VendorID = 0x0e0d

	// ProductID is the MultiHarp 150 product ID
	ProductID = 0x0013
)

// Probe reports whether a MultiHarp is present on the USB bus without
// opening it through mhlib.  Useful to fail fast (or fall back to the
// simulator) before paying the library initialization cost.
func Probe() (bool, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(VendorID) && desc.Product == gousb.ID(ProductID)
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return false, err
	}
	return len(devs) > 0, nil
}
