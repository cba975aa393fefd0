package interfaces

import (
	"context"

	"github.com/cryptad/update-releaser/pkg/domain/model"
)

// ReleaseSource supplies release metadata and asset downloads. It is an
// external collaborator; the pipeline never builds artifacts itself.
type ReleaseSource interface {
	// GetReleaseByTag fetches the release published under a tag.
	GetReleaseByTag(ctx context.Context, owner, repo, tag string) (*model.Release, error)

	// DownloadAsset streams an asset to dest, replacing it atomically.
	DownloadAsset(ctx context.Context, downloadURL, dest string) error
}
