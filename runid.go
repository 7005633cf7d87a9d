// SPDX-License-Identifier: GPL-3.0-or-later

package muxio

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewRunID returns a UUIDv7 identifying one run of a transfer.
//
// A run is the span between starting a [Conn] and its finish or abort. The
// same [Conn] restarted gets a fresh run ID, so log events from different
// runs of the same connection can be told apart.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewRunID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
