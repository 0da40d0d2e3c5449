// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"
)

// MemorySource is a fully decoded PCM buffer behaving as a seekable Source.
// Clones share the underlying sample data but keep independent cursors,
// which is what background analysis needs: reading a clone never disturbs
// the position of the source it was cloned from.
type MemorySource struct {
	data       []float32
	sampleRate int
	channels   int
	pos        int64 // frame cursor
}

func NewMemorySource(data []float32, sampleRate, channels int) *MemorySource {
	if channels < 1 {
		channels = 1
	}
	return &MemorySource{
		data:       data,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// DecodeAll drains src into memory and returns a seekable copy. The source
// is read to completion but not closed.
func DecodeAll(src Source) (*MemorySource, error) {
	buf := make([]float32, 4096)
	var data []float32

	for {
		n, err := src.ReadSamples(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w", err)
		}
	}

	return NewMemorySource(data, src.SampleRate(), src.Channels()), nil
}

func (m *MemorySource) SampleRate() int { return m.sampleRate }
func (m *MemorySource) Channels() int   { return m.channels }
func (m *MemorySource) Close() error    { return nil }

func (m *MemorySource) TotalFrames() int64 {
	return int64(len(m.data) / m.channels)
}

func (m *MemorySource) CurrentFrame() int64 { return m.pos }

func (m *MemorySource) SeekFrame(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if total := m.TotalFrames(); frame > total {
		frame = total
	}
	m.pos = frame
	return nil
}

// Clone returns an independent cursor over the same sample data.
func (m *MemorySource) Clone() *MemorySource {
	return NewMemorySource(m.data, m.sampleRate, m.channels)
}

func (m *MemorySource) ReadSamples(dst []float32) (int, error) {
	if len(dst)%m.channels != 0 {
		return 0, ErrInvalidDstSize
	}

	start := m.pos * int64(m.channels)
	if start >= int64(len(m.data)) {
		return 0, io.EOF
	}

	n := copy(dst, m.data[start:])
	n -= n % m.channels
	m.pos += int64(n / m.channels)

	if m.pos >= m.TotalFrames() {
		return n, io.EOF
	}
	return n, nil
}
