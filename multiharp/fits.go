package multiharp

import (
	"io"
	"time"

	"github.com/astrogo/fitsio"
)

// writeFits streams a frame to w as a 16-bit FITS image.
func writeFits(w io.Writer, cards []fitsio.Card, img []uint16, width, height int) error {
	cards = append(cards,
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0})
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer f.Close()
	im := fitsio.NewImage(16, []int{width, height})
	defer im.Close()
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	ints := make([]int16, len(img))
	for i, v := range img {
		ints[i] = int16(int32(v) - 32768)
	}
	if err := im.Write(ints); err != nil {
		return err
	}
	return f.Write(im)
}

// CollectHeaderMetadata produces the FITS cards describing the
// acquisition configuration.
func (c *Camera) CollectHeaderMetadata() []fitsio.Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	return []fitsio.Card{
		{Name: "HDRVER", Value: "scanhub-1", Comment: "header version"},
		{Name: "INSTRUME", Value: "MultiHarp", Comment: "instrument"},
		{Name: "DATE", Value: time.Now().UTC().Format(time.RFC3339), Comment: "acquisition time, UTC"},
		{Name: "EXPTIME", Value: c.exposureMs / 1000, Comment: "exposure time, seconds"},
		{Name: "RESPS", Value: int(c.resolutionPs), Comment: "sync tick, picoseconds"},
		{Name: "SCANX", Value: c.geom.ScanPixelsX, Comment: "scan pixels per beam, x"},
		{Name: "SCANY", Value: c.geom.ScanPixelsY, Comment: "scan pixels per beam, y"},
		{Name: "BEAMSX", Value: c.geom.BeamsX, Comment: "beamlet columns"},
		{Name: "BEAMSY", Value: c.geom.BeamsY, Comment: "beamlet rows"},
		{Name: "MODE", Value: c.mode.String(), Comment: "display mode"},
		{Name: "STATUS", Value: c.status.String(), Comment: "last run status"},
	}
}
