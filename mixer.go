// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ik5/stemmix/audio"
	"github.com/ik5/stemmix/fx"
)

// Master mix format and transport tuning.
const (
	MixRate     = 44100
	MixChannels = 2

	// maxDecodeThreads caps the graph's decode parallelism; past it more
	// workers just oversubscribe the CPU.
	maxDecodeThreads = 16

	// driftInterval is how often resting whammy channels are re-asserted
	// to flush accumulated pitch-shifter phase drift.
	driftInterval = time.Second

	MinSpeed = 0.05
	MaxSpeed = 50.0
)

// stemEntry caches what AddStems was given, so a seek can rebuild every
// channel from scratch.
type stemEntry struct {
	data []byte
	info StemInfo
}

// StemMixer is the top-level engine: it owns the mixing graph, the master
// tempo/pitch stage, the per-stem channels, the background normalizer and
// the playback transport. All control methods are safe for concurrent use
// from the control side; the audio pull path only shares the gain scalar
// with them, through an atomic.
type StemMixer struct {
	settings *Settings
	registry *audio.Registry
	device   Device
	log      *slog.Logger

	graph   *audio.Graph
	tempo   *fx.Tempo
	master  *masterReader
	samples *SampleQueue

	gain atomicFloat64

	mu             sync.Mutex
	norm           *Normalizer
	channels       map[Stem]*StemChannel
	entries        map[Stem]stemEntry
	speed          float64
	playing        bool
	started        bool
	gainSubscribed bool
	endInstalled   bool
	endObservers   []func()
	driftStop      chan struct{}
	closed         bool
}

// NewStemMixer builds a mixer playing through device. A nil settings
// pointer selects DefaultSettings; a nil logger selects slog.Default.
func NewStemMixer(settings *Settings, device Device, log *slog.Logger) *StemMixer {
	if settings == nil {
		settings = DefaultSettings()
	}
	if log == nil {
		log = slog.Default()
	}

	graph := audio.NewGraph(MixRate, MixChannels)
	m := &StemMixer{
		settings: settings,
		registry: DefaultRegistry(),
		device:   device,
		log:      log,
		graph:    graph,
		tempo:    fx.NewTempo(graph),
		samples:  NewSampleQueue(graph),
		channels: make(map[Stem]*StemChannel),
		entries:  make(map[Stem]stemEntry),
		speed:    1.0,
	}
	m.gain.Store(1.0)
	m.master = newMasterReader(m.tempo, &m.gain)

	if settings.EnableNormalization {
		m.norm = NewNormalizer(m.registry, log)
	}
	return m
}

// openSource decodes data through the registry and brings it to the mix
// rate.
func (m *StemMixer) openSource(data []byte) (audio.Source, error) {
	src, err := m.registry.Open(data)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	if src.SampleRate() != MixRate {
		return audio.NewResampler(src, MixRate), nil
	}
	return src, nil
}

// deriveChannelLocked opens fresh decoders over data and builds the full
// channel set for one stem: dry and wet lanes, plus the busted companion
// for pitch-bendable stems. Callers hold m.mu.
func (m *StemMixer) deriveChannelLocked(data []byte, info StemInfo) (*StemChannel, error) {
	drySrc, err := m.openSource(data)
	if err != nil {
		return nil, err
	}
	wetSrc, err := m.openSource(data)
	if err != nil {
		drySrc.Close()
		return nil, err
	}

	pair, err := newChannelPair(m.graph, drySrc, wetSrc, info, m.settings)
	if err != nil {
		drySrc.Close()
		wetSrc.Close()
		return nil, err
	}

	var busted *BustedChannel
	if info.Stem.PitchBendable() {
		bustedSrc, err := m.openSource(data)
		if err != nil {
			pair.dispose()
			return nil, err
		}
		busted, err = NewBustedChannel(m.graph, bustedSrc, info, StemBustedConfig, m.settings.WhammyWindow)
		if err != nil {
			bustedSrc.Close()
			pair.dispose()
			return nil, err
		}
	}

	return newStemChannel(info.Stem, pair, busted, m.settings), nil
}

// AddStems opens one decodable source over data and derives a channel per
// descriptor. On any failure the stems already derived in this call are
// rolled back; nothing half-added stays in the graph. A normalizer
// failure only disables normalization, never the add.
func (m *StemMixer) AddStems(data []byte, infos ...StemInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMixerClosed
	}
	for _, info := range infos {
		if _, ok := m.channels[info.Stem]; ok {
			return fmt.Errorf("%w: %s", ErrStemExists, info.Stem)
		}
	}

	added := make([]*StemChannel, 0, len(infos))
	for _, info := range infos {
		ch, err := m.deriveChannelLocked(data, info)
		if err != nil {
			for _, prev := range added {
				prev.dispose()
			}
			return err
		}
		added = append(added, ch)
	}

	for i, ch := range added {
		m.channels[ch.stem] = ch
		m.entries[ch.stem] = stemEntry{data: data, info: infos[i]}
	}
	m.updateThreadingLocked()

	if m.norm != nil {
		if err := m.norm.AddStream(bytes.NewReader(data), infos...); err != nil {
			m.log.Error("normalization disabled for this session", "error", err)
			m.norm.Close()
			m.norm = nil
			m.gain.Store(1.0)
		}
	}
	return nil
}

// updateThreadingLocked matches decode parallelism to the channel count
// while it stays under the cap. Callers hold m.mu.
func (m *StemMixer) updateThreadingLocked() {
	n := m.graph.ChannelCount()
	if n >= 1 && n <= maxDecodeThreads {
		m.graph.SetDecodeWorkers(n)
	}
}

// Play starts or resumes playback. Calling while already playing is a
// no-op. On the first play with normalization enabled, the normalizer's
// current gain is snapshotted and future updates are subscribed exactly
// once.
func (m *StemMixer) Play() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMixerClosed
	}
	if m.playing {
		m.mu.Unlock()
		return nil
	}

	if m.norm != nil {
		m.gain.Store(m.norm.Gain())
		if !m.gainSubscribed {
			m.gainSubscribed = true
			m.norm.OnGainChanged(func(g float64) { m.gain.Store(g) })
		}
	}
	m.ensureEndHandlerLocked()

	needStart := !m.started

	var err error
	if needStart {
		err = m.device.Start(m.master)
	} else {
		err = m.device.Resume()
	}
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w", err)
	}

	m.started = true
	m.playing = true

	var stop chan struct{}
	if m.settings.UseWhammyFx {
		stop = make(chan struct{})
		m.driftStop = stop
	}
	m.mu.Unlock()

	if stop != nil {
		go m.driftLoop(stop)
	}
	return nil
}

// Pause halts playback. Calling while already paused is a no-op. The
// whammy drift tick stops with the transport.
func (m *StemMixer) Pause() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMixerClosed
	}
	if !m.playing {
		m.mu.Unlock()
		return nil
	}
	m.playing = false
	stop := m.driftStop
	m.driftStop = nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if err := m.device.Pause(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// Playing reports the transport state.
func (m *StemMixer) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.playing
}

// driftLoop re-asserts a zero whammy bend on every resting channel about
// once a second while playing. The write looks like a no-op but resets
// the shifter's drift accumulator; it must not be optimized away. Ticks
// run strictly one at a time.
func (m *StemMixer) driftLoop(stop chan struct{}) {
	ticker := time.NewTicker(driftInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, ch := range m.stemChannels() {
				if ch.whammyAtRest() {
					ch.SetWhammyPitch(0)
				}
			}
		}
	}
}

// stemChannels snapshots the current channel set.
func (m *StemMixer) stemChannels() []*StemChannel {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*StemChannel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	return out
}

// pitchCompLocked is the position compensation for the whammy effect's
// inherent latency: added when seeking, subtracted when reading, so
// reported time matches what the ear hears. Callers hold m.mu.
func (m *StemMixer) pitchCompLocked() int64 {
	if !m.settings.UseWhammyFx {
		return 0
	}
	return int64(2 * m.settings.WhammyWindow)
}

// SetPosition seeks the whole mix to the given song time. The graph may
// hold read-ahead audio a plain seek would not flush, so every channel is
// torn down and re-derived from its cached bytes before the position is
// applied. Playback resumes afterwards if it was running.
func (m *StemMixer) SetPosition(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMixerClosed
	}

	wasPlaying := m.playing
	if wasPlaying {
		if err := m.device.Pause(); err != nil {
			return fmt.Errorf("%w", err)
		}
	}

	for stem, ch := range m.channels {
		volume := ch.Volume()
		reverb := ch.ReverbActive()
		whammy := ch.WhammyPitch()

		if err := ch.dispose(); err != nil {
			m.log.Error("stem teardown failed, stream will leak", "stem", stem.String(), "error", err)
		}

		entry := m.entries[stem]
		fresh, err := m.deriveChannelLocked(entry.data, entry.info)
		if err != nil {
			// Degrade: the stem drops out rather than failing the seek.
			m.log.Error("stem rebuild failed, dropping stem", "stem", stem.String(), "error", err)
			delete(m.channels, stem)
			delete(m.entries, stem)
			continue
		}
		fresh.restore(volume, reverb, whammy)
		m.channels[stem] = fresh
	}
	m.updateThreadingLocked()

	frame := int64(seconds*MixRate) + m.pitchCompLocked()
	if err := m.tempo.SeekFrame(frame); err != nil {
		return fmt.Errorf("%w", err)
	}
	m.master.rearm()

	if wasPlaying {
		if err := m.device.Resume(); err != nil {
			return fmt.Errorf("%w", err)
		}
	}
	return nil
}

// Position reports the current song time in seconds, compensated for the
// whammy effect latency.
func (m *StemMixer) Position() float64 {
	m.mu.Lock()
	comp := m.pitchCompLocked()
	m.mu.Unlock()

	frames := m.tempo.PositionFrames() - comp
	if frames < 0 {
		frames = 0
	}
	return float64(frames) / MixRate
}

// Duration reports the song length in seconds, or 0 when unknown.
func (m *StemMixer) Duration() float64 {
	total := m.tempo.TotalFrames()
	if total < 0 {
		return 0
	}
	return float64(total) / MixRate
}

// SetSpeed changes the playback speed, clamped to [MinSpeed, MaxSpeed].
// Setting the current speed again is a no-op. With shiftPitch and the
// chipmunk setting both on, pitch follows the speed instead of being
// corrected back.
func (m *StemMixer) SetSpeed(factor float64, shiftPitch bool) {
	if factor < MinSpeed {
		factor = MinSpeed
	} else if factor > MaxSpeed {
		factor = MaxSpeed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if factor == m.speed {
		return
	}
	m.speed = factor

	m.tempo.SetTempoPercent(factor*100 - 100)

	if shiftPitch && m.settings.ChipmunkSpeedup {
		semis := 12 * math.Log2(factor)
		if semis < -60 {
			semis = -60
		} else if semis > 60 {
			semis = 60
		}
		m.tempo.SetPitchSemitones(semis)
	}
}

// Speed reports the effective playback speed.
func (m *StemMixer) Speed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.speed
}

// RemoveStem tears one stem down and retunes decode threading. Removing
// a stem that was never added is an error.
func (m *StemMixer) RemoveStem(stem Stem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMixerClosed
	}
	ch, ok := m.channels[stem]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStemNotFound, stem)
	}
	delete(m.channels, stem)
	delete(m.entries, stem)

	if err := ch.dispose(); err != nil {
		m.log.Error("stem teardown failed, stream will leak", "stem", stem.String(), "error", err)
	}
	m.updateThreadingLocked()
	return nil
}

// Channel returns the control surface for one stem.
func (m *StemMixer) Channel(stem Stem) (*StemChannel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[stem]
	return ch, ok
}

// Stems lists the stems currently in the mix, in stable order.
func (m *StemMixer) Stems() []Stem {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Stem, 0, len(m.channels))
	for stem := range m.channels {
		out = append(out, stem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetVolume forwards to the stem's channel.
func (m *StemMixer) SetVolume(stem Stem, volume float64) error {
	ch, ok := m.Channel(stem)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStemNotFound, stem)
	}
	ch.SetVolume(volume)
	return nil
}

// SetWhammyPitch forwards to the stem's channel.
func (m *StemMixer) SetWhammyPitch(stem Stem, percent float64) error {
	ch, ok := m.Channel(stem)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStemNotFound, stem)
	}
	ch.SetWhammyPitch(percent)
	return nil
}

// SetReverb forwards to the stem's channel.
func (m *StemMixer) SetReverb(stem Stem, active bool) error {
	ch, ok := m.Channel(stem)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStemNotFound, stem)
	}
	ch.SetReverb(active)
	return nil
}

// PlayBustedNote forwards to the stem's channel.
func (m *StemMixer) PlayBustedNote(stem Stem) error {
	ch, ok := m.Channel(stem)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStemNotFound, stem)
	}
	ch.PlayBustedNote()
	return nil
}

// PlaySample queues a one-shot sample into the mix behind any sample
// already playing. Samples are short, so they are decoded fully up front;
// the queue then owns plain PCM with no decoder state behind it.
func (m *StemMixer) PlaySample(data []byte) error {
	src, err := m.openSource(data)
	if err != nil {
		return err
	}
	mem, err := audio.DecodeAll(src)
	src.Close()
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	if err := m.samples.Enqueue(mem); err != nil {
		mem.Close()
		return err
	}
	return nil
}

// Gain reports the current master gain applied on the pull path.
func (m *StemMixer) Gain() float64 { return m.gain.Load() }

// OnSongEnd registers fn to run once when the mix plays out. Handlers run
// on the device's pull goroutine and must return quickly.
func (m *StemMixer) OnSongEnd(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.endObservers = append(m.endObservers, fn)
	m.ensureEndHandlerLocked()
}

// ensureEndHandlerLocked installs the backend end-of-stream callback at
// most once, no matter how many subscribers arrive. Callers hold m.mu.
func (m *StemMixer) ensureEndHandlerLocked() {
	if m.endInstalled {
		return
	}
	m.endInstalled = true
	m.master.setEndHandler(m.fireSongEnd)
}

func (m *StemMixer) fireSongEnd() {
	m.mu.Lock()
	observers := make([]func(), len(m.endObservers))
	copy(observers, m.endObservers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// Close stops playback and releases every owned resource. Safe to call
// more than once.
func (m *StemMixer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.playing = false
	stop := m.driftStop
	m.driftStop = nil
	norm := m.norm
	m.norm = nil
	channels := m.channels
	m.channels = make(map[Stem]*StemChannel)
	m.entries = make(map[Stem]stemEntry)
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}

	var firstErr error
	if m.device != nil {
		if err := m.device.Close(); err != nil {
			firstErr = fmt.Errorf("%w", err)
		}
	}
	if err := m.samples.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%w", err)
	}
	if norm != nil {
		if err := norm.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w", err)
		}
	}
	for stem, ch := range channels {
		if err := ch.dispose(); err != nil {
			m.log.Error("stem teardown failed, stream will leak", "stem", stem.String(), "error", err)
		}
	}
	if err := m.graph.Close(); err != nil {
		m.log.Error("graph teardown failed, streams will leak", "error", err)
		if firstErr == nil {
			firstErr = fmt.Errorf("%w", err)
		}
	}
	return firstErr
}
