// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/oto/v2"

	"github.com/ik5/stemmix/audio"
	"github.com/ik5/stemmix/utils"
)

// Device is the playback sink. Start begins pulling 16-bit little-endian
// stereo PCM from r on the device's own schedule; Pause and Resume gate
// the pulling without dropping the reader.
type Device interface {
	Start(r io.Reader) error
	Resume() error
	Pause() error
	Close() error
}

// masterReader adapts the master stage to the byte stream a Device pulls:
// it applies the normalization gain to every sample, converts to PCM16,
// and fires the end-of-song handler once the stage runs dry. This is the
// real-time pull path; it takes no locks beyond one atomic gain load per
// buffer and never logs.
type masterReader struct {
	src  audio.Source
	gain *atomicFloat64

	buf []float32

	mu    sync.Mutex
	onEnd func()
	ended bool
}

func newMasterReader(src audio.Source, gain *atomicFloat64) *masterReader {
	return &masterReader{src: src, gain: gain}
}

// setEndHandler installs the end-of-stream callback. Installed at most
// once by the mixer.
func (r *masterReader) setEndHandler(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onEnd = fn
}

// rearm clears the end latch after a seek so the handler can fire again.
func (r *masterReader) rearm() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ended = false
}

func (r *masterReader) fireEnd() {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	fn := r.onEnd
	r.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (r *masterReader) Read(p []byte) (int, error) {
	want := len(p) / 2
	want -= want % MixChannels
	if want == 0 {
		return 0, nil
	}

	if cap(r.buf) < want {
		r.buf = make([]float32, want)
	}
	buf := r.buf[:want]

	n, err := r.src.ReadSamples(buf)

	g := float32(r.gain.Load())
	for i := 0; i < n; i++ {
		s := utils.Float32ToInt16(buf[i] * g)
		binary.LittleEndian.PutUint16(p[2*i:], uint16(s))
	}

	if err == io.EOF {
		r.fireEnd()
		if n == 0 {
			return 0, io.EOF
		}
		return n * 2, nil
	}
	if err != nil {
		return n * 2, fmt.Errorf("%w", err)
	}
	return n * 2, nil
}

// OtoDevice plays through the system's default output via oto.
type OtoDevice struct {
	ctx    *oto.Context
	player oto.Player
}

// NewOtoDevice opens the audio context at the mix format and waits until
// the device is ready.
func NewOtoDevice() (*OtoDevice, error) {
	ctx, ready, err := oto.NewContext(MixRate, MixChannels, 2)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	<-ready
	return &OtoDevice{ctx: ctx}, nil
}

func (d *OtoDevice) Start(r io.Reader) error {
	d.player = d.ctx.NewPlayer(r)
	d.player.Play()
	return nil
}

func (d *OtoDevice) Resume() error {
	if d.player != nil {
		d.player.Play()
	}
	return nil
}

func (d *OtoDevice) Pause() error {
	if d.player != nil {
		d.player.Pause()
	}
	return nil
}

func (d *OtoDevice) Close() error {
	if d.player == nil {
		return nil
	}
	if err := d.player.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}
