// SPDX-License-Identifier: EPL-2.0

package fx

import (
	"fmt"
	"sync"

	"github.com/ik5/stemmix/audio"
)

// Processor transforms interleaved float32 samples in place. Implementations
// keep per-channel filter state and must tolerate varying block sizes.
type Processor interface {
	// Process filters buf, which holds len(buf)/channels interleaved frames.
	Process(buf []float32, channels int)

	// Reset discards filter state, as after a seek.
	Reset()
}

// Latent is implemented by processors with inherent latency, such as the
// pitch shifter. The reported latency is in frames of delay between input
// and output.
type Latent interface {
	Latency() int
}

// Chain wraps a Source and runs an ordered processor list over everything
// read through it. Processors can be pushed and removed while the chain is
// playing; that is how the reverb voicing stages come and go.
type Chain struct {
	src audio.Source

	mu    sync.Mutex
	procs []Processor
}

func NewChain(src audio.Source) *Chain {
	return &Chain{src: src}
}

func (c *Chain) SampleRate() int { return c.src.SampleRate() }
func (c *Chain) Channels() int   { return c.src.Channels() }

// Push appends a processor to the end of the chain.
func (c *Chain) Push(p Processor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.procs = append(c.procs, p)
}

// Remove detaches a processor previously pushed. Returns false when the
// processor is not part of the chain.
func (c *Chain) Remove(p Processor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, q := range c.procs {
		if q == p {
			c.procs = append(c.procs[:i], c.procs[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the number of processors currently installed.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.procs)
}

// Latency sums the inherent latency of every installed processor.
func (c *Chain) Latency() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, p := range c.procs {
		if l, ok := p.(Latent); ok {
			total += l.Latency()
		}
	}
	return total
}

func (c *Chain) ReadSamples(dst []float32) (int, error) {
	n, err := c.src.ReadSamples(dst)
	if n > 0 {
		c.mu.Lock()
		for _, p := range c.procs {
			p.Process(dst[:n], c.src.Channels())
		}
		c.mu.Unlock()
	}
	return n, err
}

// SeekFrame forwards the seek to the wrapped source and resets all
// processor state so stale filter history does not bleed across the jump.
func (c *Chain) SeekFrame(frame int64) error {
	s, ok := c.src.(audio.Seeker)
	if !ok {
		return audio.ErrNotSeekable
	}
	if err := s.SeekFrame(frame); err != nil {
		return fmt.Errorf("%w", err)
	}

	c.mu.Lock()
	for _, p := range c.procs {
		p.Reset()
	}
	c.mu.Unlock()
	return nil
}

// CurrentFrame forwards to the wrapped source, or -1 when unknown.
func (c *Chain) CurrentFrame() int64 {
	if p, ok := c.src.(audio.Positioner); ok {
		return p.CurrentFrame()
	}
	return -1
}

// TotalFrames forwards to the wrapped source, or -1 when unknown.
func (c *Chain) TotalFrames() int64 {
	if l, ok := c.src.(audio.Lengther); ok {
		return l.TotalFrames()
	}
	return -1
}

func (c *Chain) Close() error {
	if err := c.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}
