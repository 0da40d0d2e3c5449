// SPDX-License-Identifier: EPL-2.0

// Package aiff decodes 16-bit AIFF stems via github.com/go-audio/aiff.
// The library decodes forward-only, so seeks rewind and skip.
package aiff
