package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/openflim/scanhub/galvo"
	"github.com/openflim/scanhub/generichttp"
	"github.com/openflim/scanhub/multiharp"
	"github.com/openflim/scanhub/multiharp/mhsdk"
	"github.com/openflim/scanhub/santec"
	"github.com/openflim/scanhub/scanimg"
	"github.com/openflim/scanhub/server/middleware/locker"
	"github.com/openflim/scanhub/tttr"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-yaml/yaml"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ObjSetup holds the typical triplet of args for a New<device> call.
// Serial is not always used, and need not be populated in the config file
// if not used.
type ObjSetup struct {
	// Addr holds the network or filesystem address of the remote device,
	// e.g. 192.168.100.123:2006 for a device connected to a terminal
	// server, or /dev/ttyUSB0 for an RS232 device on a serial cable
	Addr string `yaml:"Addr"`

	// Endpoint is the final "directory" to put the node's routes under,
	// ex. Endpoint="/omc/mh" will produce routes of /omc/mh/frame, etc.
	Endpoint string `yaml:"Endpoint"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `yaml:"Serial"`

	// Type is the "type" of the object, e.g. multiharp
	Type string `yaml:"Type"`

	// Args holds any arguments to pass into the constructor for the object
	Args map[string]interface{} `yaml:"Args"`
}

// Config is a struct that holds the initialization parameters for various
// HTTP adapted devices.  It is to be populated by a yaml/unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Mock substitutes a simulator for every node that has one
	Mock bool `yaml:"Mock"`

	// Nodes is the list of nodes to set up
	Nodes []ObjSetup `yaml:"Nodes"`
}

// LoadYaml converts a (path to a) yaml file into a Config struct
func LoadYaml(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}

	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

// argInt digs an integer out of the freeform Args map; yaml decodes
// numbers as int or float64 depending on how they are written.
func argInt(args map[string]interface{}, key string, def int) int {
	if args == nil {
		return def
	}
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func argString(args map[string]interface{}, key, def string) string {
	if args == nil {
		return def
	}
	if v, ok := args[key].(string); ok {
		return v
	}
	return def
}

// simScript builds a one-frame scripted scan matching the camera's
// default raster, so a mocked counter produces a real image.
func simScript(args map[string]interface{}) ([]tttr.Record, uint64) {
	geom := scanimg.Geometry{
		ScanPixelsX: argInt(args, "ScanPixelsX", 512),
		ScanPixelsY: argInt(args, "ScanPixelsY", 512),
		BeamsX:      1,
		BeamsY:      1,
	}
	dwell := uint64(argInt(args, "DwellPs", 50000))
	res := uint64(multiharp.DefaultResolutionPs)
	recs := multiharp.ScanRecords(geom, tttr.DefaultLayout, tttr.DefaultMarkers, res, dwell, 1)
	return recs, res
}

// buildCounter makes the photon counter node, either the real device
// over USB or a simulator.
func buildCounter(node ObjSetup, mock bool) (*multiharp.Camera, error) {
	var dev multiharp.Device
	if mock {
		recs, res := simScript(node.Args)
		dev = multiharp.NewSim(recs, res)
	} else {
		present, err := mhsdk.Probe()
		if err != nil {
			log.Printf("usb probe failed: %v", err)
		} else if !present {
			log.Printf("no MultiHarp found on the usb bus, open may fail")
		}
		mh, err := mhsdk.Open(argInt(node.Args, "DevIdx", 0))
		if err != nil {
			return nil, err
		}
		dev = mh
	}
	cam, err := multiharp.NewCamera(dev)
	if err != nil {
		return nil, err
	}
	cam.Rec.Root = argString(node.Args, "Root", "")
	cam.Rec.Prefix = argString(node.Args, "Prefix", "mh_")
	return cam, nil
}

// BuildMux uses the config to construct a chi router with one sub-router
// per node.  The root serves /endpoints, a map of every node's routes,
// and /metrics for prometheus.
func BuildMux(c Config) chi.Router {
	// make the root handler
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	// for every node specified, build a submux
	for _, node := range c.Nodes {
		var httper generichttp.HTTPer
		typ := strings.ToLower(node.Type)
		switch typ {

		case "multiharp", "mh":
			cam, err := buildCounter(node, c.Mock)
			if err != nil {
				log.Fatal("multiharp setup: ", err)
			}
			httper = multiharp.NewHTTPWrapper(cam)

		case "multiharp-sim":
			cam, err := buildCounter(node, true)
			if err != nil {
				log.Fatal("multiharp-sim setup: ", err)
			}
			httper = multiharp.NewHTTPWrapper(cam)

		case "galvo", "scanner":
			if c.Mock {
				log.Fatal("galvo mock interface is not yet implemented")
			}
			ctl := galvo.NewController(node.Addr)
			httper = galvo.NewHTTPWrapper(ctl)

		case "slm", "santec":
			if c.Mock {
				log.Fatal("santec slm mock interface is not yet implemented")
			}
			slm := santec.NewSLM(node.Addr)
			httper = santec.NewHTTPWrapper(slm)

		default:
			log.Fatal("type ", typ, " not understood")
		}

		// prepare the URL, "omc/mh" => "/omc/mh"
		hndlS := generichttp.SubMuxSanitize(node.Endpoint)

		// add the endpoints to the graph
		supergraph[hndlS] = httper.RT().Endpoints()

		// add a lock interface for this node
		lock := locker.New()
		locker.Inject(httper, lock)

		// bind to the mux
		r := chi.NewRouter()
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	root.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return root
}
