package contact

import (
	"context"
	stderrors "errors"
)

// Sink receives a copy of a contact after every successful merge. Push is
// called on the ingest path and must not block on the network.
type Sink interface {
	Push(ctx context.Context, c Contact) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, c Contact) error

// Push calls f.
func (f SinkFunc) Push(ctx context.Context, c Contact) error {
	return f(ctx, c)
}

type nopSink struct{}

func (nopSink) Push(context.Context, Contact) error { return nil }

// MultiSink fans a contact out to every non-nil sink. All sinks are tried;
// their errors are joined.
func MultiSink(sinks ...Sink) Sink {
	var active []Sink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	switch len(active) {
	case 0:
		return nopSink{}
	case 1:
		return active[0]
	}
	return multiSink(active)
}

type multiSink []Sink

func (m multiSink) Push(ctx context.Context, c Contact) error {
	var errs []error
	for _, s := range m {
		if err := s.Push(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
