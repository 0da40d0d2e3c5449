// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
)

func TestStemMixer_SpeedClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want float64
	}{
		{0.01, 0.05},
		{0.05, 0.05},
		{0.5, 0.5},
		{2, 2},
		{50, 50},
		{75, 50},
	}

	for _, tt := range tests {
		m, _ := newTestMixer(t, quietSettings())
		m.SetSpeed(tt.in, false)
		if got := m.Speed(); got != tt.want {
			t.Errorf("SetSpeed(%v): Speed() = %v, want %v", tt.in, got, tt.want)
		}

		wantPercent := tt.want*100 - 100
		if got := m.tempo.TempoPercent(); math.Abs(got-wantPercent) > 1e-9 {
			t.Errorf("SetSpeed(%v): tempo percent = %v, want %v", tt.in, got, wantPercent)
		}
		m.Close()
	}
}

func TestStemMixer_SetSpeedChipmunk(t *testing.T) {
	t.Parallel()

	s := quietSettings()
	s.ChipmunkSpeedup = true
	m, _ := newTestMixer(t, s)

	m.SetSpeed(2, true)
	if got := m.tempo.PitchSemitones(); math.Abs(got-12) > 1e-9 {
		t.Errorf("pitch at speed 2 = %v semitones, want 12", got)
	}

	m.SetSpeed(0.05, true)
	want := 12 * math.Log2(0.05)
	if got := m.tempo.PitchSemitones(); math.Abs(got-want) > 1e-9 {
		t.Errorf("pitch at speed 0.05 = %v semitones, want %v", got, want)
	}
}

func TestStemMixer_SetSpeedSameValueNoOp(t *testing.T) {
	t.Parallel()

	m, _ := newTestMixer(t, quietSettings())

	m.SetSpeed(1.25, false)
	before := m.tempo.TempoPercent()
	m.SetSpeed(1.25, false)
	if got := m.tempo.TempoPercent(); got != before {
		t.Errorf("tempo percent changed on same-value SetSpeed: %v -> %v", before, got)
	}
}

func TestStemMixer_AddStemsDuplicate(t *testing.T) {
	t.Parallel()

	m, _ := newTestMixer(t, quietSettings())
	addTestStems(t, m, StemSong)

	data := sineWav(t, 0.1, 0.2)
	err := m.AddStems(data, StemInfo{Stem: StemSong})
	if !errors.Is(err, ErrStemExists) {
		t.Errorf("AddStems(duplicate) error = %v, want ErrStemExists", err)
	}
}

func TestStemMixer_AddStemsRollback(t *testing.T) {
	t.Parallel()

	m, _ := newTestMixer(t, quietSettings())

	// The second descriptor's pan matrix cannot match a missing channel
	// index, so the whole call must fail and the first stem must not
	// survive it.
	data := sineWav(t, 0.1, 0.2)
	err := m.AddStems(data,
		StemInfo{Stem: StemSong},
		StemInfo{Stem: StemDrums, Indices: []int{0, 7}},
	)
	if err == nil {
		t.Fatal("AddStems() with bad indices succeeded")
	}

	if got := m.graph.ChannelCount(); got != 0 {
		t.Errorf("graph channel count after failed add = %d, want 0", got)
	}
	if len(m.Stems()) != 0 {
		t.Errorf("Stems() after failed add = %v, want empty", m.Stems())
	}
}

func TestStemMixer_ThreadTuning(t *testing.T) {
	t.Parallel()

	m, _ := newTestMixer(t, quietSettings())
	addTestStems(t, m, StemGuitar, StemSong)

	// Guitar contributes dry+wet+busted, song dry+wet.
	if got := m.graph.ChannelCount(); got != 5 {
		t.Fatalf("graph channel count = %d, want 5", got)
	}
	if got := m.graph.DecodeWorkers(); got != 5 {
		t.Errorf("decode workers = %d, want 5", got)
	}

	if err := m.RemoveStem(StemGuitar); err != nil {
		t.Fatalf("RemoveStem() error = %v", err)
	}
	if got := m.graph.DecodeWorkers(); got != 2 {
		t.Errorf("decode workers after remove = %d, want 2", got)
	}
}

func TestStemMixer_RemoveMissingStem(t *testing.T) {
	t.Parallel()

	m, _ := newTestMixer(t, quietSettings())
	addTestStems(t, m, StemSong)

	before := m.graph.ChannelCount()
	err := m.RemoveStem(StemDrums)
	if !errors.Is(err, ErrStemNotFound) {
		t.Errorf("RemoveStem(missing) error = %v, want ErrStemNotFound", err)
	}
	if got := m.graph.ChannelCount(); got != before {
		t.Errorf("channel count changed on failed remove: %d -> %d", before, got)
	}
}

func TestStemMixer_PlayPauseIdempotent(t *testing.T) {
	t.Parallel()

	m, dev := newTestMixer(t, quietSettings())
	addTestStems(t, m, StemSong)

	if err := m.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := m.Play(); err != nil {
		t.Fatalf("second Play() error = %v", err)
	}
	if dev.starts != 1 {
		t.Errorf("device starts = %d, want 1", dev.starts)
	}
	if !m.Playing() {
		t.Error("Playing() = false after Play")
	}

	if err := m.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := m.Pause(); err != nil {
		t.Fatalf("second Pause() error = %v", err)
	}
	if dev.pauses != 1 {
		t.Errorf("device pauses = %d, want 1", dev.pauses)
	}

	// Resume goes through Resume, not a second Start.
	if err := m.Play(); err != nil {
		t.Fatalf("resume Play() error = %v", err)
	}
	if dev.starts != 1 || dev.resumes != 1 {
		t.Errorf("starts/resumes = %d/%d, want 1/1", dev.starts, dev.resumes)
	}
}

func TestStemMixer_GainSubscribedOnce(t *testing.T) {
	t.Parallel()

	s := quietSettings()
	s.EnableNormalization = true
	m, _ := newTestMixer(t, s)
	addTestStems(t, m, StemSong)

	if m.norm == nil {
		t.Fatal("normalizer unexpectedly disabled")
	}

	m.Play()
	m.Pause()
	m.Play()

	m.norm.mu.Lock()
	observers := len(m.norm.observers)
	m.norm.mu.Unlock()
	if observers != 1 {
		t.Errorf("gain observers after two plays = %d, want 1", observers)
	}
}

func TestStemMixer_PositionRoundTrip(t *testing.T) {
	t.Parallel()

	s := quietSettings()
	s.UseWhammyFx = true
	m, _ := newTestMixer(t, s)

	// 70 seconds of silence; long enough that the 30s seek target is in
	// range. Two stems, one pitch-bendable, exercise the latency
	// compensation on both channel shapes.
	data := buildWav(t, MixRate, MixChannels, make([]int16, 70*MixRate*MixChannels))
	if err := m.AddStems(data,
		StemInfo{Stem: StemGuitar},
		StemInfo{Stem: StemSong},
	); err != nil {
		t.Fatalf("AddStems() error = %v", err)
	}

	const tolerance = 0.1 // one analysis window
	for _, want := range []float64{0, 30, 35} {
		if err := m.SetPosition(want); err != nil {
			t.Fatalf("SetPosition(%v) error = %v", want, err)
		}
		if got := m.Position(); math.Abs(got-want) > tolerance {
			t.Errorf("Position() after SetPosition(%v) = %v", want, got)
		}
	}
}

func TestStemMixer_SetPositionPreservesChannelState(t *testing.T) {
	t.Parallel()

	s := quietSettings()
	s.UseWhammyFx = true
	m, _ := newTestMixer(t, s)
	addTestStems(t, m, StemGuitar)

	m.SetVolume(StemGuitar, 0.42)
	m.SetReverb(StemGuitar, true)
	m.SetWhammyPitch(StemGuitar, 0.3)

	if err := m.SetPosition(0.1); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}

	ch, ok := m.Channel(StemGuitar)
	if !ok {
		t.Fatal("guitar channel lost across seek")
	}
	if got := ch.Volume(); got != 0.42 {
		t.Errorf("volume after seek = %v, want 0.42", got)
	}
	if !ch.ReverbActive() {
		t.Error("reverb lost across seek")
	}
	if got := ch.WhammyPitch(); got != 0.3 {
		t.Errorf("whammy after seek = %v, want 0.3", got)
	}
}

func TestStemMixer_SetPositionWhilePlaying(t *testing.T) {
	t.Parallel()

	m, dev := newTestMixer(t, quietSettings())
	addTestStems(t, m, StemSong)

	m.Play()
	if err := m.SetPosition(0.2); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}

	// Transport pauses around the rebuild and resumes afterwards.
	if dev.pauses != 1 || dev.resumes != 1 {
		t.Errorf("pauses/resumes = %d/%d, want 1/1", dev.pauses, dev.resumes)
	}
	if !m.Playing() {
		t.Error("Playing() = false after mid-playback seek")
	}
}

func TestStemMixer_SongEndFiresOnce(t *testing.T) {
	t.Parallel()

	m, dev := newTestMixer(t, quietSettings())
	data := sineWav(t, 0.1, 0.3)
	if err := m.AddStems(data, StemInfo{Stem: StemSong}); err != nil {
		t.Fatalf("AddStems() error = %v", err)
	}

	var fired atomic.Int32
	m.OnSongEnd(func() { fired.Add(1) })
	m.OnSongEnd(func() { fired.Add(1) })

	if err := m.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	for i := 0; i < 100; i++ {
		if _, ended := dev.pull(t, 8192); ended {
			break
		}
	}
	// A few more pulls past the end must not re-fire the handlers.
	dev.pull(t, 8192)
	dev.pull(t, 8192)

	if got := fired.Load(); got != 2 {
		t.Errorf("song-end observers fired %d times total, want 2 (once each)", got)
	}
}

func TestStemMixer_ClosedOperations(t *testing.T) {
	t.Parallel()

	m, dev := newTestMixer(t, quietSettings())
	addTestStems(t, m, StemSong)

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if !dev.closed {
		t.Error("device not closed")
	}

	if err := m.Play(); !errors.Is(err, ErrMixerClosed) {
		t.Errorf("Play() after close error = %v, want ErrMixerClosed", err)
	}
	if err := m.AddStems(sineWav(t, 0.1, 0.2), StemInfo{Stem: StemDrums}); !errors.Is(err, ErrMixerClosed) {
		t.Errorf("AddStems() after close error = %v, want ErrMixerClosed", err)
	}
}

func TestStemMixer_ForwardingToMissingStem(t *testing.T) {
	t.Parallel()

	m, _ := newTestMixer(t, quietSettings())

	if err := m.SetVolume(StemDrums, 1); !errors.Is(err, ErrStemNotFound) {
		t.Errorf("SetVolume(missing) error = %v, want ErrStemNotFound", err)
	}
	if err := m.SetWhammyPitch(StemDrums, 0); !errors.Is(err, ErrStemNotFound) {
		t.Errorf("SetWhammyPitch(missing) error = %v, want ErrStemNotFound", err)
	}
	if err := m.SetReverb(StemDrums, true); !errors.Is(err, ErrStemNotFound) {
		t.Errorf("SetReverb(missing) error = %v, want ErrStemNotFound", err)
	}
	if err := m.PlayBustedNote(StemDrums); !errors.Is(err, ErrStemNotFound) {
		t.Errorf("PlayBustedNote(missing) error = %v, want ErrStemNotFound", err)
	}
}

func TestStemMixer_Duration(t *testing.T) {
	t.Parallel()

	m, _ := newTestMixer(t, quietSettings())
	data := buildWav(t, MixRate, MixChannels, make([]int16, 2*MixRate*MixChannels))
	if err := m.AddStems(data, StemInfo{Stem: StemSong}); err != nil {
		t.Fatalf("AddStems() error = %v", err)
	}

	if got := m.Duration(); math.Abs(got-2) > 0.01 {
		t.Errorf("Duration() = %v, want 2", got)
	}
}
