package multiharp

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/openflim/scanhub/rawrec"
	"github.com/openflim/scanhub/scanimg"
	"github.com/openflim/scanhub/tttr"
)

// runParams is the configuration snapshot one run operates on.  Taking
// a copy at Start keeps the loop insulated from the foreground.
type runParams struct {
	layout       tttr.Layout
	markers      tttr.Markers
	geom         scanimg.Geometry
	exposure     time.Duration
	resolutionPs uint64
	reverse      bool
	poll         time.Duration
	clearFrame   bool
	rec          *rawrec.Recorder
}

// run is the acquisition loop.  It owns the device and the scan state
// for the duration of one run and executes on the camera's single
// background worker.
func (c *Camera) run(ctx context.Context, p runParams, done chan struct{}) {
	status, err := c.acquire(ctx, p)
	c.mu.Lock()
	c.running = false
	c.status = status
	c.runErr = err
	c.cancel = nil
	c.mu.Unlock()
	close(done)
}

func (c *Camera) acquire(ctx context.Context, p runParams) (RunStatus, error) {
	for i := range c.rates {
		atomic.StoreUint64(&c.rates[i], 0)
	}
	if p.clearFrame {
		c.frame.Clear()
	}
	clock := tttr.NewClock(p.layout, p.markers, p.resolutionPs)
	state := scanimg.NewState(p.markers, p.geom)
	mapper := scanimg.NewMapper(p.geom, p.reverse)

	// a start failure is fatal to the run; nothing to release yet
	if err := c.dev.StartMeasurement(p.exposure); err != nil {
		log.Printf("multiharp: start measurement: %v", err)
		return StatusFailed, err
	}
	stop := func() {
		if err := c.dev.StopMeasurement(); err != nil {
			log.Printf("multiharp: stop measurement: %v", err)
		}
	}

	var sink *rawrec.Writer
	if p.rec != nil {
		w, err := p.rec.NewRun()
		if err != nil {
			stop()
			return StatusFailed, err
		}
		sink = w
		defer func() {
			if err := sink.Close(); err != nil {
				log.Printf("multiharp: closing raw sink: %v", err)
			}
		}()
	}
	defer stop()

	mRunsStarted.Inc()
	limiter := rate.NewLimiter(rate.Every(p.poll), 1)
	buf := make([]tttr.Record, TTReadMax)
	for {
		select {
		case <-ctx.Done():
			return StatusAborted, errRunAborted
		default:
		}

		flags, err := c.dev.Flags()
		if err != nil {
			log.Printf("multiharp: querying flags: %v", err)
			return StatusFailed, err
		}
		if flags&FlagFIFOFull != 0 {
			// lossy, not fatal: everything mapped so far is kept
			log.Print("multiharp: hardware FIFO full, ending run with partial data")
			mFIFOOverflows.Inc()
			return StatusOverflow, nil
		}

		n, err := c.dev.ReadFiFo(buf)
		if err != nil {
			log.Printf("multiharp: reading FIFO: %v", err)
			return StatusFailed, err
		}
		if n == 0 {
			finished, err := c.dev.CTCStatus()
			if err != nil {
				log.Printf("multiharp: querying CTC status: %v", err)
				return StatusFailed, err
			}
			if finished {
				return StatusCompleted, nil
			}
			if err := limiter.Wait(ctx); err != nil {
				return StatusAborted, errRunAborted
			}
			continue
		}

		// records must be consumed in FIFO order; the clock depends
		// on seeing overflow markers in sequence
		for _, rec := range buf[:n] {
			ev := p.layout.Decode(rec)
			if clock.Advance(ev) {
				continue
			}
			ts := clock.TimestampPs(ev.Sync)
			if ev.Special {
				state.HandleMarker(ev.Channel, ts)
				continue
			}
			if int(ev.Channel) < MaxChannels {
				atomic.AddUint64(&c.rates[ev.Channel], 1)
			}
			if x, y, ok := mapper.Map(ev.Channel, ts, state); ok {
				c.frame.Incr(x, y)
				mPhotonsMapped.Inc()
			}
		}
		mRecordsRead.Add(float64(n))

		if sink != nil {
			if err := sink.Append(buf[:n]); err != nil {
				log.Printf("multiharp: writing raw sink: %v", err)
				return StatusFailed, err
			}
		}
	}
}
