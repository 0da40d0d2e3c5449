// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"math"
	"time"
)

// LevelMeter measures mono RMS loudness over fixed windows of a Source.
// Each call consumes one window's worth of audio, so a meter over a
// decode-only graph doubles as the drive loop of background analysis: the
// stream is finished when RMS returns io.EOF.
type LevelMeter struct {
	mono *MonoMixer
	buf  []float32
}

func NewLevelMeter(src Source) *LevelMeter {
	return &LevelMeter{mono: NewMonoMixer(src)}
}

// WindowFrames returns how many frames one window of the given duration
// spans at the meter's sample rate.
func (l *LevelMeter) WindowFrames(window time.Duration) int64 {
	return int64(window.Seconds() * float64(l.mono.SampleRate()))
}

// RMS reads the next window and returns its root-mean-square level of the
// mono fold-down, in [0,1]. A short final window is measured over the
// frames actually read. io.EOF is returned once the source is exhausted.
func (l *LevelMeter) RMS(window time.Duration) (float64, error) {
	frames := int(l.WindowFrames(window))
	if frames < 1 {
		frames = 1
	}
	if cap(l.buf) < frames {
		l.buf = make([]float32, frames)
	}
	l.buf = l.buf[:frames]

	read := 0
	for read < frames {
		n, err := l.mono.ReadSamples(l.buf[read:])
		read += n
		if err != nil {
			if read == 0 {
				return 0, err
			}
			break
		}
		if n == 0 {
			break
		}
	}

	var sumSquares float64
	for _, s := range l.buf[:read] {
		sumSquares += float64(s) * float64(s)
	}
	return math.Sqrt(sumSquares / float64(read)), nil
}
