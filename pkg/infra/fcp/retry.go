package fcp

import (
	"context"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/interfaces"
	"github.com/cryptad/update-releaser/pkg/domain/types"
)

const (
	defaultAttempts = 3
	retryBackoff    = 2 * time.Second
)

// WithRetry wraps a content store so each call runs under a bounded timeout
// and transient failures are retried a fixed number of times. Pipeline stage
// logic stays free of retry-loop detail.
func WithRetry(inner interfaces.ContentStore, timeout time.Duration) interfaces.ContentStore {
	return &retryStore{inner: inner, attempts: defaultAttempts, timeout: timeout}
}

type retryStore struct {
	inner    interfaces.ContentStore
	attempts int
	timeout  time.Duration
}

func (r *retryStore) InsertBytes(ctx context.Context, uri string, data []byte, opts interfaces.PutOptions) (string, error) {
	return retry1(ctx, r, func(ctx context.Context) (string, error) {
		return r.inner.InsertBytes(ctx, uri, data, opts)
	})
}

func (r *retryStore) InsertFile(ctx context.Context, uri string, path string, opts interfaces.PutOptions) (string, error) {
	return retry1(ctx, r, func(ctx context.Context) (string, error) {
		return r.inner.InsertFile(ctx, uri, path, opts)
	})
}

func (r *retryStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	return retry1(ctx, r, func(ctx context.Context) ([]byte, error) {
		return r.inner.Fetch(ctx, uri)
	})
}

func (r *retryStore) CheckRetrievable(ctx context.Context, uri string) (bool, error) {
	return retry1(ctx, r, func(ctx context.Context) (bool, error) {
		return r.inner.CheckRetrievable(ctx, uri)
	})
}

func (r *retryStore) GenerateKeypair(ctx context.Context) (string, string, error) {
	var publicBase string
	privateBase, err := retry1(ctx, r, func(ctx context.Context) (string, error) {
		private, public, err := r.inner.GenerateKeypair(ctx)
		publicBase = public
		return private, err
	})
	return privateBase, publicBase, err
}

func (r *retryStore) DerivePublicBase(ctx context.Context, privateBase string) (string, error) {
	return retry1(ctx, r, func(ctx context.Context) (string, error) {
		return r.inner.DerivePublicBase(ctx, privateBase)
	})
}

func retry1[T any](ctx context.Context, r *retryStore, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		opCtx := ctx
		var cancel context.CancelFunc
		if r.timeout > 0 {
			opCtx, cancel = context.WithTimeout(ctx, r.timeout)
		}
		result, err := op(opCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return result, nil
		}
		if !goerr.HasTag(err, types.ErrTagTransient) {
			return zero, err
		}
		lastErr = err

		if attempt < r.attempts {
			ctxlog.From(ctx).Warn("transient content store failure, retrying",
				"attempt", attempt,
				"max_attempts", r.attempts,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return zero, goerr.Wrap(ctx.Err(), "cancelled while waiting to retry")
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
	}
	return zero, goerr.Wrap(lastErr, "content store operation failed after retries",
		goerr.T(types.ErrTagTransient), goerr.V("attempts", r.attempts))
}
