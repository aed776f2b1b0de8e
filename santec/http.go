package santec

import (
	"net/http"

	"github.com/openflim/scanhub/generichttp"
)

// HTTPWrapper wraps an SLM in an HTTP interface.
type HTTPWrapper struct {
	// SLM is the wrapped modulator
	*SLM

	// RouteTable maps the endpoints to their handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a wrapper with the route table populated.
func NewHTTPWrapper(s *SLM) HTTPWrapper {
	w := HTTPWrapper{SLM: s}
	w.RouteTable = generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/wavelength"}:  generichttp.GetFloat(s.GetWavelength),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/wavelength"}: generichttp.SetFloat(s.SetWavelength),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/grey-level"}: generichttp.SetInt(s.SetGreyLevel),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/display"}:    generichttp.SetInt(s.DisplayMemory),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/id"}:          generichttp.GetString(s.ID),
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}
