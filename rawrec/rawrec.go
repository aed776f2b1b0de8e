// Package rawrec contains a recorder used to persist raw TTTR records
// to disk, one file per acquisition run, in yyyy-mm-dd subfolders.
package rawrec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/openflim/scanhub/generichttp"
	"github.com/openflim/scanhub/tttr"
)

// Recorder opens run files with timestamped names in dated subfolders.
// It is not thread safe; the acquisition loop is its only user while a
// run is active.
type Recorder struct {
	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Enabled allows consumers to disable raw saving without
	// clearing the configuration
	Enabled bool
}

// mkDir makes the dated subfolder for now and returns it.
func (r *Recorder) mkDir(now time.Time) (string, error) {
	fldr := path.Join(r.Root, now.Format("2006-01-02"))
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

// NewRun creates the record file for one acquisition run.  The caller
// owns the returned Writer and must close it on every exit path.
func (r *Recorder) NewRun() (*Writer, error) {
	now := time.Now()
	fldr, err := r.mkDir(now)
	if err != nil {
		return nil, err
	}
	fn := fmt.Sprintf("%s%s_tttr.out", r.Prefix, now.Format("150405"))
	f, err := os.Create(path.Join(fldr, fn))
	if err != nil {
		return nil, err
	}
	return &Writer{f: f, buf: bufio.NewWriter(f), name: f.Name()}, nil
}

// Writer streams raw records to one run file.  The format is
// sequential 4-byte little-endian records with no header, written
// verbatim from the FIFO read batches.
type Writer struct {
	f    *os.File
	buf  *bufio.Writer
	name string
	word [4]byte
}

// Name returns the path of the run file.
func (w *Writer) Name() string {
	return w.name
}

// Append writes one FIFO batch.
func (w *Writer) Append(recs []tttr.Record) error {
	for _, rec := range recs {
		binary.LittleEndian.PutUint32(w.word[:], uint32(rec))
		if _, err := w.buf.Write(w.word[:]); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the run file.
func (w *Writer) Close() error {
	ferr := w.buf.Flush()
	cerr := w.f.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// HTTPWrapper allows the recorder's folder, prefix and enable flag to
// be changed on the fly.
//
// it does not implement generichttp.HTTPer, offering an Inject method
// allowing it to be injected into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// Inject adds GET and POST routes under /rawsave to the HTTPer which
// manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rec := h.Recorder
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/rawsave/root"}] = generichttp.GetString(func() (string, error) {
		return rec.Root, nil
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/rawsave/root"}] = generichttp.SetString(func(s string) error {
		rec.Root = s
		_, err := rec.mkDir(time.Now())
		return err
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/rawsave/prefix"}] = generichttp.GetString(func() (string, error) {
		return rec.Prefix, nil
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/rawsave/prefix"}] = generichttp.SetString(func(s string) error {
		rec.Prefix = s
		return nil
	})
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/rawsave/enabled"}] = generichttp.GetBool(func() (bool, error) {
		return rec.Enabled, nil
	})
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/rawsave/enabled"}] = generichttp.SetBool(func(b bool) error {
		rec.Enabled = b
		return nil
	})
}
