package application

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/metrics"
)

// section is one independent sub-fetch of a usage snapshot. run stores its
// result through a closure; a failure only affects that section.
type section struct {
	name string
	run  func(ctx context.Context) error
}

// aggregator runs the sections of one provider fetch concurrently.
type aggregator struct {
	provider model.ProviderID
	metrics  *metrics.Metrics
}

// run executes sections concurrently and returns their errors in input
// order. Sections never cancel each other, and a panicking section is
// reported as an error.
func (a aggregator) run(ctx context.Context, sections ...section) []error {
	errs := make([]error, len(sections))

	var g errgroup.Group
	for i, s := range sections {
		g.Go(func() error {
			if err := runSection(ctx, s); err != nil {
				errs[i] = err
				slog.Warn("usage section failed",
					"provider", a.provider,
					"section", s.name,
					"error", err,
				)
				a.metrics.SectionFailed(string(a.provider), s.name)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

func runSection(ctx context.Context, s section) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("section %s panicked: %v", s.name, r)
		}
	}()
	return s.run(ctx)
}
