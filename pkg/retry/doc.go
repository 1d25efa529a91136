// Package retry runs an operation until it succeeds, with exponential or
// fixed backoff.
//
// Transports use Fixed for their reconnect loop: the context passed to Do is
// the transport session's context, so stopping the transport both interrupts
// the backoff sleep and prevents the next attempt from starting.
//
//	err := retry.Do(ctx, retry.Fixed(5*time.Second), func() error {
//		return session.run(ctx)
//	})
package retry
