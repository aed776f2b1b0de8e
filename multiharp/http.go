package multiharp

import (
	"encoding/json"
	"go/types"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"time"

	"github.com/openflim/scanhub/generichttp"
	"github.com/openflim/scanhub/rawrec"
	"github.com/openflim/scanhub/scanimg"
	"github.com/openflim/scanhub/util"
)

// HTTPWrapper wraps a Camera in an HTTP interface.
type HTTPWrapper struct {
	// Camera is the wrapped device adapter
	*Camera

	// RouteTable maps the endpoints to their handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a wrapper with the route table populated.
func NewHTTPWrapper(c *Camera) HTTPWrapper {
	w := HTTPWrapper{Camera: c}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/exposure-time"}:  w.GetExposureTime,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/exposure-time"}: w.SetExposureTime,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/frame"}:          w.GetFrame,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/scan-geometry"}:  w.GetScanGeometry,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/scan-geometry"}: w.SetScanGeometry,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/pixel-format"}: generichttp.GetString(func() (string, error) {
			f, err := c.GetPixelFormat()
			return f.String(), err
		}),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/pixel-format"}: generichttp.SetString(func(s string) error {
			f, err := scanimg.ParsePixelFormat(s)
			if err != nil {
				return err
			}
			return c.SetPixelFormat(f)
		}),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/mode"}: generichttp.GetString(func() (string, error) {
			m, err := c.GetMode()
			return m.String(), err
		}),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/mode"}: generichttp.SetString(func(s string) error {
			m, err := ParseMode(s)
			if err != nil {
				return err
			}
			return c.SetMode(m)
		}),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/frame-repeats"}:  generichttp.GetInt(c.GetFrameRepeats),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/frame-repeats"}: generichttp.SetInt(c.SetFrameRepeats),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/cmd"}:           generichttp.SetString(c.Command),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}: generichttp.GetString(func() (string, error) {
			return c.Status().String(), nil
		}),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/live-rates"}:    w.GetLiveRates,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/count-rate"}:    w.GetCountRate,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/input-offset"}:  w.GetInputOffset,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/input-offset"}: w.SetInputOffset,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/sim-lifetime"}: generichttp.SetFloat(c.SetSimLifetime),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/lifetime-range"}: generichttp.SetFloat(
			c.SetLifetimeRange),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/telemetry"}: w.Telemetry,
	}
	w.RouteTable = rt
	rawrec.NewHTTPWrapper(c.Rec).Inject(w)
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// SetExposureTime sets the exposure time on a POST request.
// it can be provided either as a query parameter exposureTime,
// formatted in a way that is parseable by golang/time.ParseDuration,
// or a json payload with key f64, holding the exposure time in
// seconds.
func (h HTTPWrapper) SetExposureTime(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	texp := q.Get("exposureTime")
	var d time.Duration
	var err error
	if texp == "" {
		f := generichttp.FloatT{}
		err = json.NewDecoder(r.Body).Decode(&f)
		d = time.Duration(f.F64 * float64(time.Second))
	} else {
		if util.AllElementsNumbers(texp) {
			texp = texp + "s"
		}
		d, err = time.ParseDuration(texp)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Camera.SetExposureTime(d)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetExposureTime gets the exposure time on a GET request
func (h HTTPWrapper) GetExposureTime(w http.ResponseWriter, r *http.Request) {
	d, err := h.Camera.GetExposureTime()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := generichttp.HumanPayload{T: types.Float64, Float: d.Seconds()}
	hp.EncodeAndRespond(w, r)
}

// GetScanGeometry returns the scan raster as json
func (h HTTPWrapper) GetScanGeometry(w http.ResponseWriter, r *http.Request) {
	g, err := h.Camera.GetScanGeometry()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(g)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetScanGeometry parses a json Geometry and applies it
func (h HTTPWrapper) SetScanGeometry(w http.ResponseWriter, r *http.Request) {
	g := scanimg.Geometry{}
	err := json.NewDecoder(r.Body).Decode(&g)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Camera.SetScanGeometry(g)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetLiveRates returns the per-channel live rate counters as a json
// array
func (h HTTPWrapper) GetLiveRates(w http.ResponseWriter, r *http.Request) {
	rates := h.Camera.LiveRates()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(rates[:])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetCountRate returns the hardware rate meter reading for the
// channel given in the query parameter "channel"
func (h HTTPWrapper) GetCountRate(w http.ResponseWriter, r *http.Request) {
	ch, err := util.ParseIntQuery(r, "channel")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rate, err := h.Camera.CountRate(ch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hp := generichttp.HumanPayload{T: types.Int, Int: rate}
	hp.EncodeAndRespond(w, r)
}

// offsetT is the json body of the input-offset routes
type offsetT struct {
	Channel  int `json:"channel"`
	OffsetPs int `json:"offsetPs"`
}

// GetInputOffset returns one channel's timing offset; the channel is
// the query parameter "channel"
func (h HTTPWrapper) GetInputOffset(w http.ResponseWriter, r *http.Request) {
	ch, err := util.ParseIntQuery(r, "channel")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ps, err := h.Camera.GetInputOffset(ch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hp := generichttp.HumanPayload{T: types.Int, Int: ps}
	hp.EncodeAndRespond(w, r)
}

// SetInputOffset applies a timing offset from a json body of
// {"channel": c, "offsetPs": ps}
func (h HTTPWrapper) SetInputOffset(w http.ResponseWriter, r *http.Request) {
	o := offsetT{}
	err := json.NewDecoder(r.Body).Decode(&o)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Camera.SetInputOffset(o.Channel, o.OffsetPs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetFrame returns the current frame on a GET request.
//
// the image format may be specified in a query parameter; default to
// jpg.  fits responses embed the acquisition metadata as header cards.
func (h HTTPWrapper) GetFrame(w http.ResponseWriter, r *http.Request) {
	img, err := h.Camera.GetFrame()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	width := h.Camera.frame.Width()
	height := h.Camera.frame.Height()

	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = "jpg"
	}
	switch format {
	case "jpg", "png":
		buf := make([]byte, len(img))
		for idx := 0; idx < len(img); idx++ {
			buf[idx] = byte(img[idx] / 256) // scale 16 to 8 bits
		}
		im := &image.Gray{Pix: buf, Stride: width, Rect: image.Rect(0, 0, width, height)}
		if format == "jpg" {
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
			jpeg.Encode(w, im, nil)
		} else {
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
			png.Encode(w, im)
		}
	case "fits":
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=frame.fits")
		err = writeFits(w, h.Camera.CollectHeaderMetadata(), img, width, height)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "fmt must be one of jpg, png, fits", http.StatusBadRequest)
	}
}
