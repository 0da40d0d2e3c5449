// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"fmt"

	"github.com/ik5/stemmix/audio"
	"github.com/ik5/stemmix/fx"
)

// streamLane is one half of a ChannelPair: an effect chain feeding one
// graph channel, with an optional whammy pitch shifter slot.
type streamLane struct {
	chain   *fx.Chain
	graphCh *audio.GraphChannel
	pitch   *fx.PitchShifter // nil when the stem is not pitch-bendable
}

func newLane(g *audio.Graph, src audio.Source, info StemInfo, pitch *fx.PitchShifter, delay int64) (*streamLane, error) {
	chain := fx.NewChain(src)
	if pitch != nil {
		chain.Push(pitch)
	}

	ch, err := g.AddChannel(chain, audio.ChannelConfig{
		Indices:     info.Indices,
		Matrix:      info.matrix(),
		DelayFrames: delay,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", info.Stem, err)
	}

	return &streamLane{chain: chain, graphCh: ch, pitch: pitch}, nil
}

// reverbEffects is the wet lane's voicing chain. The pair's transition
// methods are the only code that creates or removes these processors, so
// the chain can never end up with duplicates or dangling removals.
type reverbEffects struct {
	low, mid, high *fx.EQ
	verb           *fx.Reverb
}

// ChannelPair is the audio unit of one stem: a dry lane and a parallel
// wet (reverb-capable) lane over two independent decoders of the same
// bytes. Both lanes share routing and, when the stem is pitch-bendable,
// carry their own pitch shifter; non-bendable stems are instead delayed
// by the shifter latency so the mix stays time-aligned.
type ChannelPair struct {
	graph *audio.Graph

	dry *streamLane
	wet *streamLane

	sampleRate int
	channels   int

	effects *reverbEffects // nil while no reverb chain is installed
}

func newChannelPair(g *audio.Graph, drySrc, wetSrc audio.Source, info StemInfo, s *Settings) (*ChannelPair, error) {
	var dryPitch, wetPitch *fx.PitchShifter
	var delay int64
	if s.UseWhammyFx {
		if info.Stem.PitchBendable() {
			dryPitch = fx.NewPitchShifter(drySrc.Channels(), s.WhammyWindow)
			wetPitch = fx.NewPitchShifter(wetSrc.Channels(), s.WhammyWindow)
		} else {
			delay = int64(s.WhammyWindow)
		}
	}

	dry, err := newLane(g, drySrc, info, dryPitch, delay)
	if err != nil {
		return nil, err
	}

	wet, err := newLane(g, wetSrc, info, wetPitch, delay)
	if err != nil {
		g.RemoveChannel(dry.graphCh)
		return nil, err
	}

	// Wet lanes are silent until reverb is engaged.
	wet.graphCh.Volume().Set(0)

	return &ChannelPair{
		graph:      g,
		dry:        dry,
		wet:        wet,
		sampleRate: g.SampleRate(),
		channels:   wetSrc.Channels(),
	}, nil
}

// hasPitch reports whether the pair carries whammy pitch shifters.
func (p *ChannelPair) hasPitch() bool { return p.dry.pitch != nil }

// setPitchRatio applies the same pitch ratio to both lanes.
func (p *ChannelPair) setPitchRatio(ratio float64) {
	if p.dry.pitch == nil {
		return
	}
	p.dry.pitch.SetRatio(ratio)
	p.wet.pitch.SetRatio(ratio)
}

// enableReverb installs the three EQ stages plus the reverb on the wet
// lane. No-op when already installed.
func (p *ChannelPair) enableReverb() {
	if p.effects != nil {
		return
	}

	e := &reverbEffects{
		low:  fx.NewEQ(fx.LowEqParams, p.sampleRate, p.channels),
		mid:  fx.NewEQ(fx.MidEqParams, p.sampleRate, p.channels),
		high: fx.NewEQ(fx.HighEqParams, p.sampleRate, p.channels),
		verb: fx.NewReverb(p.sampleRate, p.channels),
	}
	p.wet.chain.Push(e.low)
	p.wet.chain.Push(e.mid)
	p.wet.chain.Push(e.high)
	p.wet.chain.Push(e.verb)
	p.effects = e
}

// disableReverb removes everything enableReverb installed. No-op when
// nothing is installed.
func (p *ChannelPair) disableReverb() {
	if p.effects == nil {
		return
	}

	p.wet.chain.Remove(p.effects.low)
	p.wet.chain.Remove(p.effects.mid)
	p.wet.chain.Remove(p.effects.high)
	p.wet.chain.Remove(p.effects.verb)
	p.effects = nil
}

// reverbInstalled reports whether the wet voicing chain is present.
func (p *ChannelPair) reverbInstalled() bool { return p.effects != nil }

// dispose detaches both lanes from the graph and closes their sources.
func (p *ChannelPair) dispose() error {
	p.graph.RemoveChannel(p.dry.graphCh)
	p.graph.RemoveChannel(p.wet.graphCh)

	err := p.dry.chain.Close()
	if werr := p.wet.chain.Close(); werr != nil && err == nil {
		err = werr
	}
	return err
}
