// Package generichttp defines small interfaces and helpers used to wrap
// device adapters in an HTTP interface.  Each adapter exposes a
// RouteTable; the server binds the tables onto sub-muxes, one per
// device.
package generichttp

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
)

// MethodPath is an HTTP method and URL path pair, the key type of a
// RouteTable.
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps method/path pairs to the handlers that serve them.
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints returns the "METHOD /path" strings in the table.
func (rt RouteTable) Endpoints() []string {
	eps := make([]string, 0, len(rt))
	for mp := range rt {
		eps = append(eps, mp.Method+" "+mp.Path)
	}
	return eps
}

// Bind attaches every route in the table to the router, plus an
// introspection endpoint listing the routes.
func (rt RouteTable) Bind(r chi.Router) {
	for mp, handler := range rt {
		p := mp.Path
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		r.Method(mp.Method, p, handler)
	}
	r.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(rt.Endpoints())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// SubMuxSanitize ensures an endpoint is rooted with no trailing slash
// so it can be used as a mount point for a sub-router.  chi adds the
// wildcard itself when mounting.
func SubMuxSanitize(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return strings.TrimSuffix(endpoint, "/")
}

// HTTPer is a type which exposes an HTTP route table.
type HTTPer interface {
	RT() RouteTable
}

// FloatT is a struct with a single field F64, used for json IO
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single field Int, used for json IO
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single field Str, used for json IO
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single field Bool, used for json IO
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload is a union of the basic types, tagged by T.  It
// converts "dumb" values into the json bodies the routes speak.
type HumanPayload struct {
	// T is the type of the data held
	T types.BasicKind

	// Float holds a float64 when T is types.Float64
	Float float64

	// Int holds an int when T is types.Int
	Int int

	// String holds a string when T is types.String
	String string

	// Bool holds a bool when T is types.Bool
	Bool bool
}

// EncodeAndRespond writes the payload to w as json with the
// appropriate single-key body.
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var (
		obj interface{}
		err error
	)
	switch hp.T {
	case types.Float64:
		obj = FloatT{F64: hp.Float}
	case types.Int:
		obj = IntT{Int: hp.Int}
	case types.String:
		obj = StrT{Str: hp.String}
	case types.Bool:
		obj = BoolT{Bool: hp.Bool}
	default:
		http.Error(w, fmt.Sprintf("unknown payload type %v", hp.T), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(obj)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetFloat calls a float-getting function and returns the response
// as json {'f64': value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
	}
}

// SetFloat parses a JSON input of {'f64': value} and
// calls fcn with it
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(f.F64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetInt calls an int-getting function and returns the response
// as json {'int': value}
func GetInt(fcn func() (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Int, Int: i}
		hp.EncodeAndRespond(w, r)
	}
}

// SetInt parses a JSON input of {'int': value} and
// calls fcn with it
func SetInt(fcn func(int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := IntT{}
		err := json.NewDecoder(r.Body).Decode(&i)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(i.Int)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetString calls a string-getting function and returns the response
// as json {'str': value}
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.String, String: s}
		hp.EncodeAndRespond(w, r)
	}
}

// SetString parses a JSON input of {'str': value} and
// calls fcn with it
func SetString(fcn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := StrT{}
		err := json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(s.Str)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Bool, Bool: b}
		hp.EncodeAndRespond(w, r)
	}
}

// SetBool parses a JSON input of {'bool': value} and
// calls fcn with it
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(b.Bool)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
