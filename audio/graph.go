// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ChannelConfig controls how a source is inserted into a Graph.
type ChannelConfig struct {
	// Indices selects which source channels feed the mix. Nil means all
	// channels with default routing.
	Indices []int

	// Matrix is a per-output-channel row of gains over the selected
	// source channels. Nil means default routing (1:1 where counts
	// match, duplicate mono, average everything else).
	Matrix [][]float32

	// DelayFrames silences the channel for this many frames at the
	// start of the stream, shifting its content later in time. Used to
	// keep undelayed stems aligned with stems that pass through a
	// latency-adding pitch effect.
	DelayFrames int64
}

// GraphChannel is one input of a mixing Graph.
type GraphChannel struct {
	src    Source
	volume *Attribute

	indices []int
	matrix  [][]float32
	delay   int64 // configured insertion delay
	pending int64 // delay frames still to emit

	// done is atomic so pollers can check it without racing the render
	// goroutines.
	done atomic.Bool

	in       []float32
	out      []float32
	rendered int // frames rendered into out this cycle
}

// Volume is the channel's slidable volume attribute.
func (c *GraphChannel) Volume() *Attribute { return c.volume }

// Done reports whether the channel's source is exhausted.
func (c *GraphChannel) Done() bool { return c.done.Load() }

// Source returns the channel's input source.
func (c *GraphChannel) Source() Source { return c.src }

// Graph sums an arbitrary set of input channels into one interleaved
// output stream. It is itself a Source, so a graph can feed a tempo stage,
// an output device, or - decode-only - a background analysis loop.
//
// Structural mutations (add/remove/seek) and reads are serialized by an
// internal lock; callers get the same guarantee a native mixer backend
// provides between its control API and its audio thread.
type Graph struct {
	mu sync.Mutex

	sampleRate int
	channels   int
	chans      []*GraphChannel
	workers    int
	closed     bool
}

func NewGraph(sampleRate, channels int) *Graph {
	return &Graph{
		sampleRate: sampleRate,
		channels:   channels,
		workers:    1,
	}
}

func (g *Graph) SampleRate() int { return g.sampleRate }
func (g *Graph) Channels() int   { return g.channels }

// SetDecodeWorkers bounds how many channels decode in parallel per read.
func (g *Graph) SetDecodeWorkers(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n < 1 {
		n = 1
	}
	g.workers = n
}

// DecodeWorkers returns the current decode parallelism bound.
func (g *Graph) DecodeWorkers() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.workers
}

// ChannelCount returns the number of live input channels.
func (g *Graph) ChannelCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.chans)
}

// AddChannel inserts src into the mix. The source must produce audio at
// the graph's sample rate; resample before inserting.
func (g *Graph) AddChannel(src Source, cfg ChannelConfig) (*GraphChannel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrGraphClosed
	}

	srcCh := src.Channels()
	mixCh := srcCh
	if cfg.Indices != nil {
		for _, idx := range cfg.Indices {
			if idx < 0 || idx >= srcCh {
				return nil, fmt.Errorf("%w: index %d of %d channels", ErrChannelMismatch, idx, srcCh)
			}
		}
		mixCh = len(cfg.Indices)
	}

	if cfg.Matrix != nil {
		if len(cfg.Matrix) != g.channels {
			return nil, ErrBadMatrix
		}
		for _, row := range cfg.Matrix {
			if len(row) != mixCh {
				return nil, ErrBadMatrix
			}
		}
	}

	ch := &GraphChannel{
		src:     src,
		volume:  NewAttribute(1.0),
		indices: cfg.Indices,
		matrix:  cfg.Matrix,
		delay:   cfg.DelayFrames,
		pending: cfg.DelayFrames,
	}
	g.chans = append(g.chans, ch)
	return ch, nil
}

// RemoveChannel detaches the channel from the graph. The channel's source
// is not closed; ownership stays with the caller.
func (g *Graph) RemoveChannel(ch *GraphChannel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, c := range g.chans {
		if c == ch {
			g.chans = append(g.chans[:i], g.chans[i+1:]...)
			return true
		}
	}
	return false
}

// SeekFrame repositions every seekable channel source so the graph output
// resumes from the given frame. Channels whose source cannot seek fail the
// whole call.
func (g *Graph) SeekFrame(frame int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame < 0 {
		frame = 0
	}

	for _, ch := range g.chans {
		s, ok := ch.src.(Seeker)
		if !ok {
			return ErrNotSeekable
		}

		srcFrame := frame - ch.delay
		if srcFrame < 0 {
			ch.pending = -srcFrame
			srcFrame = 0
		} else {
			ch.pending = 0
		}
		if err := s.SeekFrame(srcFrame); err != nil {
			return fmt.Errorf("%w", err)
		}
		ch.done.Store(false)
	}
	return nil
}

// TotalFrames is the length of the longest channel including its insertion
// delay, or -1 when any channel length is unknown.
func (g *Graph) TotalFrames() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var total int64
	for _, ch := range g.chans {
		l, ok := ch.src.(Lengther)
		if !ok {
			return -1
		}
		if n := l.TotalFrames() + ch.delay; n > total {
			total = n
		}
	}
	return total
}

// ReadSamples mixes the next block. While at least one channel still has
// audio the full block is produced, padding finished channels with
// silence; once every channel is exhausted it returns io.EOF.
func (g *Graph) ReadSamples(dst []float32) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return 0, ErrGraphClosed
	}
	if len(dst)%g.channels != 0 {
		return 0, ErrInvalidDstSize
	}

	for i := range dst {
		dst[i] = 0
	}
	if len(g.chans) == 0 {
		return 0, io.EOF
	}

	frames := len(dst) / g.channels

	// Render each channel's contribution into its own buffer, bounded
	// by the decode worker count.
	sem := make(chan struct{}, g.workers)
	var wg sync.WaitGroup
	for _, ch := range g.chans {
		if ch.done.Load() {
			ch.rendered = 0
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(c *GraphChannel) {
			defer wg.Done()
			defer func() { <-sem }()
			c.render(frames, g.channels)
		}(ch)
	}
	wg.Wait()

	alive := false
	maxRendered := 0
	for _, ch := range g.chans {
		if ch.rendered > 0 {
			n := ch.rendered * g.channels
			for i := 0; i < n; i++ {
				dst[i] += ch.out[i]
			}
			if ch.rendered > maxRendered {
				maxRendered = ch.rendered
			}
		}
		if !ch.done.Load() {
			alive = true
		}
	}

	if !alive {
		// Deliver the tail mixed this cycle, if any, along with EOF.
		return maxRendered * g.channels, io.EOF
	}
	return len(dst), nil
}

// Close removes and closes every channel source. The first close error is
// returned but all sources are attempted.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	var firstErr error
	for _, ch := range g.chans {
		if err := ch.src.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w", err)
		}
	}
	g.chans = nil
	return firstErr
}

// render fills c.out with up to frames frames of routed, volume-ramped
// audio. Insertion delay is consumed first as silence.
func (c *GraphChannel) render(frames, outCh int) {
	need := frames * outCh
	if cap(c.out) < need {
		c.out = make([]float32, need)
	}
	c.out = c.out[:need]
	for i := range c.out {
		c.out[i] = 0
	}

	offset := 0 // frames of leading silence this block
	if c.pending > 0 {
		offset = frames
		if c.pending < int64(frames) {
			offset = int(c.pending)
		}
		c.pending -= int64(offset)
	}

	want := frames - offset
	if want == 0 {
		c.rendered = frames
		return
	}

	srcCh := c.src.Channels()
	if cap(c.in) < want*srcCh {
		c.in = make([]float32, want*srcCh)
	}
	c.in = c.in[:want*srcCh]

	n, err := c.src.ReadSamples(c.in)
	got := n / srcCh

	vol, volStep := c.volume.Advance(offset + got)

	for f := 0; f < got; f++ {
		v := float32(vol + volStep*float64(offset+f))
		in := c.in[f*srcCh : (f+1)*srcCh]
		out := c.out[(offset+f)*outCh : (offset+f+1)*outCh]
		c.route(in, out, v)
	}

	c.rendered = offset + got
	if err == io.EOF && got == 0 && offset == 0 {
		c.done.Store(true)
		c.rendered = 0
	} else if err == io.EOF && c.pending == 0 {
		// Out of source audio; deliver what we have and finish next
		// cycle.
		if got < want {
			c.done.Store(true)
		}
	}
}

// route mixes one source frame into one output frame at gain v.
func (c *GraphChannel) route(in, out []float32, v float32) {
	if c.matrix != nil {
		for oc := range out {
			row := c.matrix[oc]
			var sum float32
			if c.indices != nil {
				for k, idx := range c.indices {
					sum += row[k] * in[idx]
				}
			} else {
				for k := range row {
					sum += row[k] * in[k]
				}
			}
			out[oc] += sum * v
		}
		return
	}

	if c.indices != nil {
		// Selected channels, no matrix: 1:1 when counts line up,
		// otherwise average the selection into every output.
		if len(c.indices) == len(out) {
			for i, idx := range c.indices {
				out[i] += in[idx] * v
			}
			return
		}
		var sum float32
		for _, idx := range c.indices {
			sum += in[idx]
		}
		avg := sum / float32(len(c.indices)) * v
		for i := range out {
			out[i] += avg
		}
		return
	}

	switch {
	case len(in) == len(out):
		for i := range out {
			out[i] += in[i] * v
		}
	case len(in) == 1:
		for i := range out {
			out[i] += in[0] * v
		}
	default:
		var sum float32
		for _, s := range in {
			sum += s
		}
		avg := sum / float32(len(in)) * v
		for i := range out {
			out[i] += avg
		}
	}
}
