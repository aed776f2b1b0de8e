// tttrdump replays a raw record dump captured by the acquisition server
// and renders the accumulated image as FITS.  It exists so that data
// saved with the raw sink enabled can be re-binned offline with a
// different raster or marker routing than the live run used.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/theckman/yacspin"

	"github.com/openflim/scanhub/multiharp"
	"github.com/openflim/scanhub/scanimg"
	"github.com/openflim/scanhub/tttr"
)

func main() {
	var (
		in      = flag.String("in", "", "raw record file to read (required)")
		out     = flag.String("out", "", "FITS file to write, default <in>.fits")
		px      = flag.Int("x", 512, "scan pixels per beam, x")
		py      = flag.Int("y", 512, "scan pixels per beam, y")
		bx      = flag.Int("bx", 1, "beamlet columns")
		by      = flag.Int("by", 1, "beamlet rows")
		res     = flag.Uint64("res", multiharp.DefaultResolutionPs, "sync tick, picoseconds")
		reverse = flag.Bool("reverse", true, "beamlet index runs opposite to channel index")
	)
	flag.Parse()
	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *out == "" {
		*out = strings.TrimSuffix(*in, ".out") + ".fits"
	}

	geom := scanimg.Geometry{ScanPixelsX: *px, ScanPixelsY: *py, BeamsX: *bx, BeamsY: *by}
	if err := geom.Validate(); err != nil {
		log.Fatal(err)
	}

	raw, err := os.ReadFile(*in)
	if err != nil {
		log.Fatal(err)
	}
	if len(raw)%4 != 0 {
		log.Fatalf("%s: size %d is not a whole number of records", *in, len(raw))
	}
	nrec := len(raw) / 4

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[11],
		Suffix:          " tttrdump",
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()

	var (
		layout  = tttr.DefaultLayout
		markers = tttr.DefaultMarkers
		clock   = tttr.NewClock(layout, markers, *res)
		state   = scanimg.NewState(markers, geom)
		mapper  = scanimg.NewMapper(geom, *reverse)
		frame   = scanimg.NewFrame(geom.FrameWidth(), geom.FrameHeight(), scanimg.Mono16)
		photons int
	)
	for i := 0; i < nrec; i++ {
		rec := tttr.Record(binary.LittleEndian.Uint32(raw[i*4:]))
		ev := layout.Decode(rec)
		if clock.Advance(ev) {
			continue
		}
		ts := clock.TimestampPs(ev.Sync)
		if ev.Special {
			state.HandleMarker(ev.Channel, ts)
			continue
		}
		if x, y, ok := mapper.Map(ev.Channel, ts, state); ok {
			frame.Incr(x, y)
			photons++
		}
		if i%100000 == 0 {
			spinner.Message(fmt.Sprintf("%d/%d records", i, nrec))
		}
	}
	spinner.Message(fmt.Sprintf("%d records, %d frames, %d photons binned", nrec, state.FramesStarted(), photons))
	spinner.Stop()

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	cards := []fitsio.Card{
		{Name: "HDRVER", Value: "scanhub-1", Comment: "header version"},
		{Name: "SRCFILE", Value: *in, Comment: "raw record source"},
		{Name: "DATE", Value: time.Now().UTC().Format(time.RFC3339), Comment: "conversion time, UTC"},
		{Name: "RESPS", Value: int(*res), Comment: "sync tick, picoseconds"},
		{Name: "SCANX", Value: geom.ScanPixelsX, Comment: "scan pixels per beam, x"},
		{Name: "SCANY", Value: geom.ScanPixelsY, Comment: "scan pixels per beam, y"},
		{Name: "BEAMSX", Value: geom.BeamsX, Comment: "beamlet columns"},
		{Name: "BEAMSY", Value: geom.BeamsY, Comment: "beamlet rows"},
		{Name: "NFRAMES", Value: state.FramesStarted(), Comment: "frames accumulated"},
	}
	err = writeFits(f, cards, frame.Snapshot(), frame.Width(), frame.Height())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("wrote", *out)
}

// writeFits streams the image as 16-bit FITS with the unsigned
// convention (BZERO 32768).
func writeFits(w *os.File, cards []fitsio.Card, img []uint16, width, height int) error {
	cards = append(cards,
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0})
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
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
	return fits.Write(im)
}
