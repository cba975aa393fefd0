package interfaces

import "context"

// PutOptions tune how content is inserted into the network.
type PutOptions struct {
	Priority    int
	Persistence string
	GlobalQueue bool
}

// ContentStore is the content-addressed network the pipeline publishes into.
// Inserting identical bytes twice yields the same address; implementations
// treat duplicate-address signals from the network as success.
type ContentStore interface {
	// InsertBytes inserts a payload under the given target URI ("CHK@" for
	// content addressing) and returns the resulting address.
	InsertBytes(ctx context.Context, uri string, data []byte, opts PutOptions) (string, error)

	// InsertFile inserts a local file under the given target URI.
	InsertFile(ctx context.Context, uri string, path string, opts PutOptions) (string, error)

	// Fetch downloads the full content behind a URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)

	// CheckRetrievable performs a shallow existence check without
	// downloading the content. A false result with a nil error means the
	// network answered that the content is not available.
	CheckRetrievable(ctx context.Context, uri string) (bool, error)

	// GenerateKeypair creates a fresh channel key pair and returns the
	// private (insert) and public (request) base URIs.
	GenerateKeypair(ctx context.Context) (privateBase, publicBase string, err error)

	// DerivePublicBase resolves the public base URI of a private channel
	// key.
	DerivePublicBase(ctx context.Context, privateBase string) (string, error)
}
