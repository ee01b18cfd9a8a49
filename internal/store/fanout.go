package store

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jittakal/logaggregator/pkg/store"
)

// fanOutOpen/Close/Flush/PeriodicCheck run an operation over every child
// concurrently, tolerating and collecting per-child errors rather than
// aborting the group — MultiStore/BucketStore/CategoryStore children
// fail independently. Uses errgroup.Group for parallel fan-out with one
// goroutine per child (no concurrency limit is set), adapted here to not
// abort on first error.

func fanOutOpen(children []store.Store) []error {
	errs := make([]error, len(children))
	g := new(errgroup.Group)
	for i, c := range children {
		i, c := i, c
		g.Go(func() error {
			errs[i] = c.Open()
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func fanOutClose(children []store.Store) []error {
	errs := make([]error, len(children))
	g := new(errgroup.Group)
	for i, c := range children {
		i, c := i, c
		g.Go(func() error {
			errs[i] = c.Close()
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func fanOutFlush(children []store.Store) []error {
	errs := make([]error, len(children))
	g := new(errgroup.Group)
	for i, c := range children {
		i, c := i, c
		g.Go(func() error {
			errs[i] = c.Flush()
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func fanOutPeriodicCheck(ctx context.Context, children []store.Store) {
	g := new(errgroup.Group)
	for _, c := range children {
		c := c
		g.Go(func() error {
			c.PeriodicCheck(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

// handleResult holds a child's HandleMessages outcome; the fan-out
// helpers store it at the child's index, for MultiStore's success-policy
// aggregation.
type handleResult struct {
	ok bool
	residual store.MessageBatch
}

func fanOutHandleMessages(ctx context.Context, children []store.Store, batch store.MessageBatch) []handleResult {
	results := make([]handleResult, len(children))
	g := new(errgroup.Group)
	for i, c := range children {
		i, c := i, c
		g.Go(func() error {
			ok, residual := c.HandleMessages(ctx, batch)
			results[i] = handleResult{ok: ok, residual: residual}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// fanOutHandleMessagesPerChild is fanOutHandleMessages generalized to a
// distinct batch per child, used by BucketStore where each child
// receives a different sub-batch. An empty sub-batch is treated as a
// trivial success without calling the child.
func fanOutHandleMessagesPerChild(ctx context.Context, children []store.Store, batches []store.MessageBatch) []handleResult {
	results := make([]handleResult, len(children))
	g := new(errgroup.Group)
	for i, c := range children {
		i, c := i, c
		sub := batches[i]
		g.Go(func() error {
			if len(sub) == 0 {
				results[i] = handleResult{ok: true}
				return nil
			}
			ok, residual := c.HandleMessages(ctx, sub)
			results[i] = handleResult{ok: ok, residual: residual}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
