package events

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

type NopRecorder struct{}

func (NopRecorder) Record(context.Context, SecurityEvent) error { return nil }

// MultiRecorder fans an event out to every sink in parallel. A failing sink
// does not stop the others; all failures are joined.
type MultiRecorder struct {
	recorders []Recorder
}

func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

func (m *MultiRecorder) Record(ctx context.Context, event SecurityEvent) error {
	errs := make([]error, len(m.recorders))

	var g errgroup.Group
	for i, r := range m.recorders {
		i, r := i, r
		g.Go(func() error {
			errs[i] = r.Record(ctx, event)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (m *MultiRecorder) Len() int {
	return len(m.recorders)
}
