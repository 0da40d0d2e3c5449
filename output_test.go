// SPDX-License-Identifier: EPL-2.0

package stemmix

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/ik5/stemmix/internal/audiotest"
)

func TestMasterReader_AppliesGain(t *testing.T) {
	t.Parallel()

	var gain atomicFloat64
	gain.Store(0.5)

	src := audiotest.NewConstantSource(MixRate, MixChannels, 128, 0.8)
	r := newMasterReader(src, &gain)

	buf := make([]byte, 64*MixChannels*2)
	n, err := r.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read() error = %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Read() n = %d, want %d", n, len(buf))
	}

	// 0.8 * 0.5 = 0.4 full scale.
	got := int16(binary.LittleEndian.Uint16(buf))
	fullScale := float64(32767)
	want := int16(0.4 * fullScale)
	if got < want-2 || got > want+2 {
		t.Errorf("first sample = %d, want about %d", got, want)
	}
}

func TestMasterReader_OddBufferAlignment(t *testing.T) {
	t.Parallel()

	var gain atomicFloat64
	gain.Store(1)

	src := audiotest.NewConstantSource(MixRate, MixChannels, 128, 0.1)
	r := newMasterReader(src, &gain)

	// 10 bytes is 5 samples; only 4 (one whole frame pair) fit cleanly.
	buf := make([]byte, 10)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 8 {
		t.Errorf("Read() n = %d, want 8", n)
	}
}

func TestMasterReader_EndLatch(t *testing.T) {
	t.Parallel()

	var gain atomicFloat64
	gain.Store(1)

	src := audiotest.NewConstantSource(MixRate, MixChannels, 16, 0.2)
	r := newMasterReader(src, &gain)

	fired := 0
	r.setEndHandler(func() { fired++ })

	buf := make([]byte, 1024)
	for i := 0; i < 10; i++ {
		if _, err := r.Read(buf); err == io.EOF {
			break
		}
	}
	r.Read(buf)
	r.Read(buf)

	if fired != 1 {
		t.Errorf("end handler fired %d times, want 1", fired)
	}

	// rearm lets the handler fire again after a seek.
	src.Reset()
	r.rearm()
	for i := 0; i < 10; i++ {
		if _, err := r.Read(buf); err == io.EOF {
			break
		}
	}
	if fired != 2 {
		t.Errorf("end handler fired %d times after rearm, want 2", fired)
	}
}
