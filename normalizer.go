// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ik5/stemmix/audio"
)

// Loudness normalization tuning. The step cap is sized so a full swing
// from the initial gain to the cap completes within two minutes of
// analyzed audio, bounding both convergence time and per-window
// audibility.
const (
	normTargetRMS   = 0.12
	normInitialGain = 0.3
	normMaxGain     = 1.5
	normWindow      = 100 * time.Millisecond
)

var normMaxStep = (normMaxGain - normInitialGain) /
	float64(2*time.Minute/normWindow)

// atomicFloat64 is a lock-free float shared between the analysis task
// (writer) and the audio pull path (reader). Updates are bounded-step, so
// a stale read is off by at most one window's delta.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Store(v float64) { a.bits.Store(math.Float64bits(v)) }
func (a *atomicFloat64) Load() float64   { return math.Float64frombits(a.bits.Load()) }

// Normalizer steers a master gain toward a target loudness by analyzing
// the song on a decode-only shadow graph, ahead of and independent from
// playback. Every stem added restarts the analysis from the top so the
// gain estimate always covers the full mix heard so far.
type Normalizer struct {
	registry *audio.Registry
	log      *slog.Logger

	gain atomicFloat64

	mu        sync.Mutex
	graph     *audio.Graph
	cancel    context.CancelFunc
	done      chan struct{}
	observers []func(float64)
}

// NewNormalizer builds a normalizer decoding through the given registry
// at the mix rate.
func NewNormalizer(registry *audio.Registry, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	n := &Normalizer{registry: registry, log: log}
	n.gain.Store(normInitialGain)
	return n
}

// Gain returns the current smoothed gain, always in (0, normMaxGain].
func (n *Normalizer) Gain() float64 { return n.gain.Load() }

// OnGainChanged registers an observer for gain updates. Observers run on
// the analysis goroutine and must not block.
func (n *Normalizer) OnGainChanged(fn func(float64)) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.observers = append(n.observers, fn)
}

// AddStream clones the stem behind r into the shadow graph and restarts
// analysis from the beginning. The reader's position is saved up front
// and restored before returning, success or not, so the caller's decode
// state is never disturbed.
func (n *Normalizer) AddStream(r io.ReadSeeker, infos ...StemInfo) error {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	defer r.Seek(pos, io.SeekStart)

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w", err)
	}

	n.stop()

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graph == nil {
		n.graph = audio.NewGraph(MixRate, MixChannels)
	}

	for _, info := range infos {
		src, err := n.registry.Open(data)
		if err != nil {
			return fmt.Errorf("%s: %w", info.Stem, err)
		}

		var in audio.Source = src
		if src.SampleRate() != MixRate {
			in = audio.NewResampler(src, MixRate)
		}

		if _, err := n.graph.AddChannel(in, audio.ChannelConfig{
			Indices: info.Indices,
			Matrix:  info.matrix(),
		}); err != nil {
			in.Close()
			return fmt.Errorf("%s: %w", info.Stem, err)
		}
	}

	n.restartLocked()
	return nil
}

// restartLocked spawns a fresh analysis task over the current shadow
// graph. Cumulative stats start over; the published gain carries across
// restarts so playback never hears a reset. Callers hold n.mu with no
// analysis running.
func (n *Normalizer) restartLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	n.cancel = cancel
	n.done = done

	go n.analyze(ctx, n.graph, done)
}

// analyze is the background task: rewind the shadow graph, then walk it
// window by window, steering the gain by at most one clamped step per
// window. Any read failure simply ends the task; normalization degrades,
// playback does not.
func (n *Normalizer) analyze(ctx context.Context, graph *audio.Graph, done chan struct{}) {
	defer close(done)

	if err := graph.SeekFrame(0); err != nil {
		n.log.Error("normalizer: rewind failed, analysis skipped", "error", err)
		return
	}

	meter := audio.NewLevelMeter(graph)
	windowFrames := float64(meter.WindowFrames(normWindow))

	var sumSquares, totalSamples float64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rms, err := meter.RMS(normWindow)
		if err != nil {
			// End of audio or decode failure; either way analysis
			// is complete.
			return
		}

		sumSquares += rms * rms * windowFrames
		totalSamples += windowFrames

		cumulative := math.Sqrt(sumSquares / totalSamples)
		if cumulative <= 0 {
			continue
		}

		target := normTargetRMS / cumulative
		if target > normMaxGain {
			target = normMaxGain
		}

		gain := n.gain.Load()
		delta := target - gain
		if delta > normMaxStep {
			delta = normMaxStep
		} else if delta < -normMaxStep {
			delta = -normMaxStep
		}
		gain += delta

		n.gain.Store(gain)
		n.notify(gain)
	}
}

// notify fans the new gain out to the observers registered so far.
func (n *Normalizer) notify(gain float64) {
	n.mu.Lock()
	observers := make([]func(float64), len(n.observers))
	copy(observers, n.observers)
	n.mu.Unlock()

	for _, fn := range observers {
		fn(gain)
	}
}

// stop cancels any in-flight analysis and waits for it to unwind, so the
// shadow graph is safe to mutate afterwards.
func (n *Normalizer) stop() {
	n.mu.Lock()
	cancel := n.cancel
	done := n.done
	n.cancel = nil
	n.done = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Close tears the shadow graph down. Safe to call repeatedly and with no
// streams ever added.
func (n *Normalizer) Close() error {
	n.stop()

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graph == nil {
		return nil
	}
	err := n.graph.Close()
	n.graph = nil
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}
