// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ik5/stemmix/audio"
)

type wavSource struct {
	r          io.ReadSeeker
	sampleRate int
	channels   int

	dataStart int64 // byte offset of the PCM payload
	dataLen   int64 // payload length in bytes
	pos       int64 // frame cursor

	buf []byte
}

func (s *wavSource) SampleRate() int { return s.sampleRate }
func (s *wavSource) Channels() int   { return s.channels }
func (s *wavSource) Close() error    { return nil }

func (s *wavSource) blockAlign() int64 { return int64(s.channels) * 2 }

func (s *wavSource) TotalFrames() int64 {
	return s.dataLen / s.blockAlign()
}

func (s *wavSource) CurrentFrame() int64 { return s.pos }

func (s *wavSource) SeekFrame(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if total := s.TotalFrames(); frame > total {
		frame = total
	}

	if _, err := s.r.Seek(s.dataStart+frame*s.blockAlign(), io.SeekStart); err != nil {
		return fmt.Errorf("%w", err)
	}
	s.pos = frame
	return nil
}

func (s *wavSource) ReadSamples(dst []float32) (int, error) {
	if len(dst)%s.channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}

	// Never read past the data chunk; trailing chunks are not audio.
	remain := (s.TotalFrames() - s.pos) * s.blockAlign()
	if remain <= 0 {
		return 0, io.EOF
	}
	want := int64(len(dst)) * 2
	if want > remain {
		want = remain
	}

	if int64(cap(s.buf)) < want {
		s.buf = make([]byte, want)
	}
	s.buf = s.buf[:want]

	n, err := io.ReadFull(s.r, s.buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("%w", err)
	}

	samples := n / 2
	samples -= samples % s.channels
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(s.buf[2*i : 2*i+2]))
		dst[i] = float32(v) / 32768.0
	}

	s.pos += int64(samples / s.channels)
	if s.pos >= s.TotalFrames() {
		return samples, io.EOF
	}
	return samples, nil
}

type Decoder struct{}

// Decode parses the RIFF chunk list, locates the fmt and data chunks and
// returns a frame-seekable source over the PCM payload. Only 16-bit PCM
// is supported.
func (Decoder) Decode(r io.ReadSeeker) (audio.Source, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, ErrNotWavFile
	}

	src := &wavSource{r: r}
	haveFmt := false

	// Chunk scan: fmt and data may be separated by fact, LIST, cue etc.
	offset := int64(12)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("%w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		offset += 8

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ErrUnsupportedWavLayout
			}
			var fmtChunk [16]byte
			if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
				return nil, fmt.Errorf("%w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(fmtChunk[0:2])
			src.channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			src.sampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			bitsPerSample := binary.LittleEndian.Uint16(fmtChunk[14:16])
			if audioFormat != 1 || bitsPerSample != 16 {
				return nil, ErrOnlyPCM16bitSupported
			}
			if src.channels < 1 {
				return nil, ErrUnsupportedWavLayout
			}
			haveFmt = true

			// Skip any fmt extension bytes.
			if _, err := r.Seek(offset+size, io.SeekStart); err != nil {
				return nil, fmt.Errorf("%w", err)
			}
		case "data":
			src.dataStart = offset
			src.dataLen = size
			if _, err := r.Seek(offset+size, io.SeekStart); err != nil {
				return nil, fmt.Errorf("%w", err)
			}
		default:
			if _, err := r.Seek(offset+size, io.SeekStart); err != nil {
				return nil, fmt.Errorf("%w", err)
			}
		}

		// Chunks are word-aligned.
		if size%2 == 1 {
			if _, err := r.Seek(1, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("%w", err)
			}
			offset++
		}
		offset += size
	}

	if !haveFmt {
		return nil, ErrUnsupportedWavLayout
	}
	if src.dataLen == 0 {
		return nil, ErrUnsupportedWavChunks
	}

	if err := src.SeekFrame(0); err != nil {
		return nil, err
	}
	return src, nil
}
