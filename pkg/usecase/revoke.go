package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/interfaces"
	"github.com/cryptad/update-releaser/pkg/domain/model"
	"github.com/cryptad/update-releaser/pkg/domain/types"
)

// Revoke publishes an emergency revocation message under the revocation key.
// It is a one-shot out-of-band broadcast: it touches no pipeline state and
// has no idempotency guarantee beyond retry-on-transient-failure.
func Revoke(ctx context.Context, store interfaces.ContentStore, revokeURI, message string, opts interfaces.PutOptions) (string, error) {
	logger := ctxlog.From(ctx)

	normalizedURI := strings.TrimSpace(revokeURI)
	if normalizedURI == "" {
		return "", goerr.New("revocation target URI is required", goerr.T(types.ErrTagConfig))
	}

	payload := []byte(strings.TrimSpace(message) + "\n\npublished_at=" + model.NowUTC() + "\n")
	resultURI, err := store.InsertBytes(ctx, normalizedURI, payload, opts)
	if err != nil {
		return "", goerr.Wrap(err, "failed to publish revocation message", goerr.V("uri", normalizedURI))
	}

	logger.Warn("published revocation message", "uri", resultURI)
	return resultURI, nil
}
