package audit

import (
	"context"
	"errors"
)

// FanOut appends every event to each store in order. All stores are tried
// even when one fails; the errors are joined.
type FanOut []Store

func (f FanOut) Append(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
