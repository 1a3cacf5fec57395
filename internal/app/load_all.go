package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Amund211/asyncloader/internal/clock"
	"github.com/Amund211/asyncloader/internal/loader"
	"github.com/Amund211/asyncloader/internal/logging"
)

type LoadAll func(ctx context.Context, identifiers []string, opts ...loader.RequestOption) ([]*loader.Placeholder, error)

// BuildLoadAll requests every identifier and drives the frame clock until all of them are settled.
//
// On cancellation the placeholders are returned as they are, together with the context error.
func BuildLoadAll(l *loader.Loader, clk *clock.Clock, framesPerSecond int) LoadAll {
	return func(ctx context.Context, identifiers []string, opts ...loader.RequestOption) ([]*loader.Placeholder, error) {
		if framesPerSecond < 1 {
			return nil, fmt.Errorf("%w: %d", clock.ErrInvalidFrameRate, framesPerSecond)
		}

		placeholders := make([]*loader.Placeholder, 0, len(identifiers))
		if len(identifiers) == 0 {
			return placeholders, nil
		}

		remaining := atomic.Int64{}
		remaining.Store(int64(len(identifiers)))
		done := make(chan struct{})

		for _, identifier := range identifiers {
			placeholder := l.Request(ctx, identifier, opts...)
			placeholders = append(placeholders, placeholder)
			placeholder.OnLoad(func(p *loader.Placeholder) {
				logging.FromContext(ctx).InfoContext(ctx, "Image settled", "identifier", p.Identifier(), "state", p.State().String())
				if remaining.Add(-1) == 0 {
					close(done)
				}
			})
		}

		ticker := time.NewTicker(time.Second / time.Duration(framesPerSecond))
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return placeholders, nil
			case <-ctx.Done():
				return placeholders, fmt.Errorf("gave up waiting for %d images: %w", remaining.Load(), ctx.Err())
			case <-ticker.C:
				clk.Tick()
			}
		}
	}
}
