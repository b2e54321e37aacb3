package contentstore

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"ipfs-social/go-backend/pkg/models"
)

type throttled struct {
	next    Gateway
	limiter *rate.Limiter
}

// Throttle puts a token bucket in front of next. A non-positive rps disables throttling.
func Throttle(next Gateway, rps float64, burst int) Gateway {
	if next == nil || rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &throttled{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *throttled) Put(ctx context.Context, data []byte) (models.Address, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.next.Put(ctx, data)
}

func (t *throttled) Get(ctx context.Context, addr models.Address) ([]byte, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Get(ctx, addr)
}

// wait passes context errors through. The limiter refuses up front when the next token
// lies past the deadline; that means the store cannot be reached in time.
func (t *throttled) wait(ctx context.Context) error {
	err := t.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
