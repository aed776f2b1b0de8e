package multiharp

import (
	"math"
	"math/rand"
	"sync/atomic"
)

// side length of one checkerboard tile in the test pattern
const testPatternStride = 50

// renderTestPattern draws a moving checkerboard into the frame buffer
// so a stalled display is distinguishable from a static scene.
func (c *Camera) renderTestPattern() {
	phase := int(atomic.AddUint64(&c.synthPhase, 1))
	max := c.frame.Format().Max()
	c.frame.Fill(func(x, y int) uint32 {
		if ((x+phase)/testPatternStride+y/testPatternStride)%2 == 0 {
			return max
		}
		return 0
	})
}

// renderHistogram draws per-channel count rate bars from the live rate
// counters.  When no events have been counted (no acquisition yet), it
// draws a simulated exponential decay instead so the display pipeline
// can be exercised without hardware.
func (c *Camera) renderHistogram() {
	rates := c.LiveRates()
	c.mu.Lock()
	exposureMs := c.exposureMs
	lifetime := c.simLifetimeNs
	spread := c.lifetimeRange
	c.mu.Unlock()

	width := c.frame.Width()
	height := c.frame.Height()
	max := c.frame.Format().Max()

	var total, peak float64
	perSec := make([]float64, MaxChannels)
	for i, r := range rates {
		// counts over the run scaled to counts per second
		perSec[i] = float64(r) * 1000 / exposureMs
		total += perSec[i]
		if perSec[i] > peak {
			peak = perSec[i]
		}
	}

	if total == 0 {
		c.renderDecay(width, height, max, lifetime, spread)
		return
	}

	// one bar per channel, height proportional to its rate
	colWidth := width / MaxChannels
	if colWidth < 1 {
		colWidth = 1
	}
	heights := make([]int, MaxChannels)
	for i := range heights {
		heights[i] = int(perSec[i] / peak * float64(height))
	}
	c.frame.Fill(func(x, y int) uint32 {
		ch := x / colWidth
		if ch >= MaxChannels {
			return 0
		}
		// y runs downward; bars grow up from the bottom row
		if height-1-y < heights[ch] {
			return max
		}
		return 0
	})
}

// renderDecay draws exp(-t/tau) across the frame width with
// multiplicative noise, mimicking a fluorescence decay histogram.
func (c *Camera) renderDecay(width, height int, max uint32, lifetimeNs, spread float64) {
	// map the full width onto four lifetimes of decay
	curve := make([]float64, width)
	for x := range curve {
		t := float64(x) / float64(width) * 4 * lifetimeNs
		v := math.Exp(-t / lifetimeNs)
		if spread > 0 {
			v *= 1 + spread*(rand.Float64()-0.5)/10
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		curve[x] = v
	}
	c.frame.Fill(func(x, y int) uint32 {
		if float64(height-1-y) < curve[x]*float64(height) {
			return max
		}
		return 0
	})
}
