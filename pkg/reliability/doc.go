// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package reliability provides the bounded polling schedule for asynchronous
SEFAZ batches.

After an asynchronous submission SEFAZ returns a receipt number and the
result has to be fetched later. The loop is bounded both by attempts and by
wall time, with exponential backoff and jitter between attempts.

# Policy

	policy := reliability.DefaultPolicy()
	// 10 attempts, 90s, 2s base, x1.5, capped at 10s, ±30% jitter

# Tracker

	tracker := reliability.NewTracker(policy)
	for {
	    if err := tracker.Begin(); err != nil {
	        return err // ErrMaxAttempts or ErrTimeout
	    }
	    done, err := poll(ctx)
	    if done || err != nil {
	        return err
	    }
	    if err := tracker.Wait(ctx); err != nil {
	        return err // ErrMaxAttempts, ErrTimeout or ctx.Err()
	    }
	}

Tests inject a [Clock] that advances virtual time instead of sleeping.
*/
package reliability
