// Package errors classifies failures into three classes.
//
// Transient errors (socket resets, dial timeouts, an unwritable cache file)
// are retried or tolerated by the component that saw them. Invalid errors
// (a corrupt sentence, a radar target with no own-ship fix) cause the single
// input to be dropped. Fatal errors are reserved for configuration problems
// detected at startup.
//
// Wrap helpers follow the "component.method: action failed: cause" format:
//
//	if err := dial(); err != nil {
//		return errors.WrapTransient(err, "tcp-input", "connect", "dial")
//	}
//
// Callers decide what to do with errors.IsTransient / IsInvalid / IsFatal.
package errors
