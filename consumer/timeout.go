// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"sync/atomic"
	"time"
)

// guardWithTimeout wraps cb so it fires exactly once: either from the
// caller's own completion path, or from timeout elapsing first with
// ErrTimeout, whichever happens first. It is how Config.AckTimeout
// bounds the ack/seek/close fan-out rendezvous operations against a
// slow or unresponsive child, without those operations' own countdown
// logic needing to know a timeout exists. A non-positive timeout
// disables the guard and returns cb unchanged.
func guardWithTimeout(timeout time.Duration, cb func(error)) func(error) {
	if timeout <= 0 {
		return cb
	}

	var fired atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		if fired.CompareAndSwap(false, true) {
			cb(ErrTimeout)
		}
	})

	return func(err error) {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		timer.Stop()
		cb(err)
	}
}
