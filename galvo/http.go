package galvo

import (
	"encoding/json"
	"net/http"

	"github.com/openflim/scanhub/generichttp"
)

// HTTPWrapper wraps a Controller in an HTTP interface.
type HTTPWrapper struct {
	// Controller is the wrapped galvo client
	*Controller

	// RouteTable maps the endpoints to their handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a wrapper with the route table populated.
func NewHTTPWrapper(c *Controller) HTTPWrapper {
	w := HTTPWrapper{Controller: c}
	w.RouteTable = generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/scan-config"}:  w.GetScanConfig,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/scan-config"}: w.SetScanConfig,
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// GetScanConfig returns the last acknowledged configuration
func (h HTTPWrapper) GetScanConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.Controller.LastConfig()
	if !ok {
		http.Error(w, "no scan config has been sent", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetScanConfig parses a json ScanConfig and pushes it to the
// controller
func (h HTTPWrapper) SetScanConfig(w http.ResponseWriter, r *http.Request) {
	cfg := ScanConfig{}
	err := json.NewDecoder(r.Body).Decode(&cfg)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Controller.Configure(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
