// SPDX-License-Identifier: GPL-3.0-or-later

package muxio

import "errors"

// Sentinel errors identifying which per-transfer callback caused an abort.
//
// When a caller-supplied callback fails, the corresponding [TransferSource]
// method wraps the callback's error with one of these sentinels, and the
// [Engine] surfaces the wrapped error as the transfer's Result. Use
// [errors.Is] to test for them.
var (
	// ErrReadBodyAbort means the read-body callback failed.
	ErrReadBodyAbort = errors.New("muxio: read body callback failed")

	// ErrSeekBodyAbort means the seek-body callback failed or no seek
	// callback was available for a custom body source.
	ErrSeekBodyAbort = errors.New("muxio: seek body callback failed")

	// ErrWriteHeaderAbort means the write-header callback failed.
	ErrWriteHeaderAbort = errors.New("muxio: write header callback failed")

	// ErrWriteBodyAbort means the write-body callback failed.
	ErrWriteBodyAbort = errors.New("muxio: write body callback failed")

	// ErrProgressAbort means the progress callback failed.
	ErrProgressAbort = errors.New("muxio: progress callback failed")
)

// ErrSeekOutOfRange is returned by the default in-memory body source when a
// seek would move the cursor outside the request body.
var ErrSeekOutOfRange = errors.New("muxio: seek position out of range")
