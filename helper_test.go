// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"testing"
)

// buildWav assembles a PCM16 WAV in memory for feeding AddStems.
func buildWav(t testing.TB, sampleRate, channels int, frames []int16) []byte {
	t.Helper()

	var data bytes.Buffer
	binary.Write(&data, binary.LittleEndian, frames)

	var fmtChunk bytes.Buffer
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(channels))
	binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&fmtChunk, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(channels*2))
	binary.Write(&fmtChunk, binary.LittleEndian, uint16(16))

	var out bytes.Buffer
	out.WriteString("RIFF")
	size := 4 + (8 + fmtChunk.Len()) + (8 + data.Len())
	binary.Write(&out, binary.LittleEndian, uint32(size))
	out.WriteString("WAVE")

	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(fmtChunk.Len()))
	out.Write(fmtChunk.Bytes())

	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, uint32(data.Len()))
	out.Write(data.Bytes())

	return out.Bytes()
}

// sineWav builds a stereo WAV at the mix rate carrying a sine tone.
func sineWav(t testing.TB, seconds float64, amplitude float64) []byte {
	t.Helper()

	frames := int(seconds * MixRate)
	pcm := make([]int16, frames*MixChannels)
	for f := 0; f < frames; f++ {
		v := int16(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(f)/MixRate))
		pcm[f*MixChannels] = v
		pcm[f*MixChannels+1] = v
	}
	return buildWav(t, MixRate, MixChannels, pcm)
}

// fakeDevice records transport calls and exposes the pull reader so tests
// drive playback by hand.
type fakeDevice struct {
	mu      sync.Mutex
	reader  io.Reader
	starts  int
	resumes int
	pauses  int
	closed  bool
}

func (d *fakeDevice) Start(r io.Reader) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reader = r
	d.starts++
	return nil
}

func (d *fakeDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.resumes++
	return nil
}

func (d *fakeDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pauses++
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	return nil
}

// pull reads n bytes from the device's reader, returning the bytes read
// and whether the stream ended.
func (d *fakeDevice) pull(t testing.TB, n int) ([]byte, bool) {
	t.Helper()

	d.mu.Lock()
	r := d.reader
	d.mu.Unlock()
	if r == nil {
		t.Fatal("device not started")
	}

	buf := make([]byte, n)
	read := 0
	for read < n {
		k, err := r.Read(buf[read:])
		read += k
		if err == io.EOF {
			return buf[:read], true
		}
		if err != nil {
			t.Fatalf("pull: %v", err)
		}
	}
	return buf, false
}

// quietSettings turns off everything asynchronous that a test does not
// exercise.
func quietSettings() *Settings {
	s := DefaultSettings()
	s.EnableNormalization = false
	s.UseWhammyFx = false
	return s
}

// newTestMixer builds a mixer over a fake device.
func newTestMixer(t testing.TB, s *Settings) (*StemMixer, *fakeDevice) {
	t.Helper()

	dev := &fakeDevice{}
	m := NewStemMixer(s, dev, nil)
	t.Cleanup(func() { m.Close() })
	return m, dev
}
