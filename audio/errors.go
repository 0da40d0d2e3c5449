// SPDX-License-Identifier: EPL-2.0

package audio

import "errors"

var (
	ErrInvalidDstSize  = errors.New("dst size must be multiple of channels")
	ErrNoDecoders      = errors.New("no decoders registered")
	ErrUnknownFormat   = errors.New("no registered decoder accepted the data")
	ErrNotSeekable     = errors.New("source does not support seeking")
	ErrChannelMismatch = errors.New("source channel count does not match routing")
	ErrBadMatrix       = errors.New("pan matrix shape does not match graph and source channels")
	ErrGraphClosed     = errors.New("mixing graph is closed")
)
