// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ik5/stemmix/utils"
)

// ExportWAV renders the mix offline from its current position to the end
// and writes it as a 16-bit PCM WAV. The normalization gain and every
// per-stem effect apply exactly as they would during playback. Export
// cannot run while the transport is playing; the two would race over the
// master stage.
func (m *StemMixer) ExportWAV(w io.WriteSeeker) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMixerClosed
	}
	if m.playing {
		m.mu.Unlock()
		return ErrExportPlaying
	}
	m.mu.Unlock()

	enc := wav.NewEncoder(w, MixRate, 16, MixChannels, 1)

	buf := make([]float32, 4096*MixChannels)
	out := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: MixChannels, SampleRate: MixRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(buf)),
	}

	for {
		n, err := m.tempo.ReadSamples(buf)
		if n > 0 {
			g := float32(m.gain.Load())
			for i := 0; i < n; i++ {
				out.Data[i] = int(utils.Float32ToInt16(buf[i] * g))
			}
			out.Data = out.Data[:n]
			if werr := enc.Write(out); werr != nil {
				return fmt.Errorf("%w", werr)
			}
			out.Data = out.Data[:cap(out.Data)]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}
