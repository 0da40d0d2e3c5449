// SPDX-License-Identifier: EPL-2.0

package stemmix

import "errors"

var (
	ErrStemNotFound  = errors.New("stem not present in mixer")
	ErrStemExists    = errors.New("stem already present in mixer")
	ErrMixerClosed   = errors.New("mixer is closed")
	ErrExportPlaying = errors.New("cannot export while playback is running")
	ErrQueueClosed   = errors.New("sample queue is closed")
)
