// Package galvo provides a network client to the scanning galvo
// controller, which accepts scan configurations as JSON messages over
// a raw TCP socket.
package galvo

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/openflim/scanhub/comm"
)

// DefaultPort is the TCP port the scan controller listens on.
const DefaultPort = 54321

// ScanConfig mirrors the JSON message the scan controller accepts.
// The field names are the controller's wire vocabulary and are not
// negotiable here.
type ScanConfig struct {
	PixelsPerAxisX  int     `json:"pixels_per_axisX"`
	PixelsPerAxisY  int     `json:"pixels_per_axisY"`
	MicronsPerPixel float64 `json:"microns_per_pixel"`
	TimePerImage    float64 `json:"time_per_image"`
	Images          int     `json:"images"`
	FlybackFraction float64 `json:"flyback_fraction"`
	Magnification   float64 `json:"magnification"`
	ScansPerImage   int     `json:"scans_per_image"`
}

// Validate rejects configurations the controller would fault on.
func (c ScanConfig) Validate() error {
	if c.PixelsPerAxisX < 1 || c.PixelsPerAxisY < 1 {
		return fmt.Errorf("galvo: pixels per axis (%d, %d) must be positive", c.PixelsPerAxisX, c.PixelsPerAxisY)
	}
	if c.TimePerImage <= 0 {
		return fmt.Errorf("galvo: time per image %g must be positive", c.TimePerImage)
	}
	if c.FlybackFraction < 0 || c.FlybackFraction >= 1 {
		return fmt.Errorf("galvo: flyback fraction %g outside [0, 1)", c.FlybackFraction)
	}
	if c.Images < 1 || c.ScansPerImage < 1 {
		return fmt.Errorf("galvo: images %d and scans per image %d must be positive", c.Images, c.ScansPerImage)
	}
	return nil
}

// Controller is a client to one scan controller.  Connections are
// pooled and reopened on demand, since the controller drops idle
// sockets.
type Controller struct {
	pool *comm.Pool

	mu   sync.Mutex
	last ScanConfig
	sent bool
}

// NewController returns a controller client speaking to addr
// (host:port).
func NewController(addr string) *Controller {
	maker := func() (io.ReadWriteCloser, error) {
		return comm.TCPSetup(addr, 3*time.Second)
	}
	return &Controller{pool: comm.NewPool(1, time.Minute, maker)}
}

// Configure pushes a scan configuration to the controller and waits
// for its acknowledgement line.
func (c *Controller) Configure(cfg ScanConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	conn, err := c.pool.Get()
	if err != nil {
		return err
	}
	wrap := func(err error) error {
		c.pool.Destroy(conn)
		return fmt.Errorf("galvo: pushing scan config: %w", err)
	}
	buf, err := json.Marshal(cfg)
	if err != nil {
		return wrap(err)
	}
	buf = append(buf, '\n')
	if _, err := conn.Write(buf); err != nil {
		return wrap(err)
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return wrap(err)
	}
	c.pool.Put(conn)
	resp = strings.TrimSpace(resp)
	if !strings.EqualFold(resp, "ok") {
		return fmt.Errorf("galvo: controller rejected scan config: %s", resp)
	}
	c.mu.Lock()
	c.last = cfg
	c.sent = true
	c.mu.Unlock()
	return nil
}

// LastConfig returns the most recently acknowledged configuration and
// whether one has been sent.
func (c *Controller) LastConfig() (ScanConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.sent
}
