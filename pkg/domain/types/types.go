package types

// Version is the update-releaser version, overridable at build time via
// -ldflags "-X github.com/cryptad/update-releaser/pkg/domain/types.Version=...".
var Version = "0.1.0"

// Publish targets. Staging uses a locally provisioned key pair, production
// requires the signing key to be entered interactively.
const (
	PublishToStaging    = "staging"
	PublishToProduction = "production"
)
