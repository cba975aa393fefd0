// Package github implements the release source over the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/interfaces"
	"github.com/cryptad/update-releaser/pkg/domain/model"
	"github.com/cryptad/update-releaser/pkg/domain/types"
)

type client struct {
	githubClient *github.Client
	httpClient   *http.Client
	token        string
}

// NewClient creates a release source. The token is optional; without it only
// public releases are reachable and rate limits are tighter.
func NewClient(token string) interfaces.ReleaseSource {
	githubClient := github.NewClient(nil)
	if token != "" {
		githubClient = githubClient.WithAuthToken(token)
	}
	return &client{
		githubClient: githubClient,
		httpClient:   &http.Client{},
		token:        token,
	}
}

// GetReleaseByTag fetches the release published under a tag.
func (c *client) GetReleaseByTag(ctx context.Context, owner, repo, tag string) (*model.Release, error) {
	release, resp, err := c.githubClient.Repositories.GetReleaseByTag(ctx, owner, repo, tag)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, goerr.Wrap(err, "GitHub release not found",
				goerr.T(types.ErrTagConfig),
				goerr.V("owner", owner), goerr.V("repo", repo), goerr.V("tag", tag))
		}
		return nil, goerr.Wrap(err, "GitHub API request failed",
			goerr.T(types.ErrTagTransient),
			goerr.V("owner", owner), goerr.V("repo", repo), goerr.V("tag", tag))
	}

	assets := make([]model.ReleaseAsset, 0, len(release.Assets))
	for _, asset := range release.Assets {
		assets = append(assets, model.ReleaseAsset{
			ID:                 asset.GetID(),
			Name:               asset.GetName(),
			BrowserDownloadURL: asset.GetBrowserDownloadURL(),
			Size:               int64(asset.GetSize()),
		})
	}

	raw, err := json.MarshalIndent(release, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode release snapshot")
	}

	return &model.Release{
		ID:      release.GetID(),
		TagName: release.GetTagName(),
		Body:    release.GetBody(),
		Assets:  assets,
		Raw:     append(raw, '\n'),
	}, nil
}

// DownloadAsset streams an asset to dest. The download goes to a temp file
// next to dest and is renamed into place only when complete.
func (c *client) DownloadAsset(ctx context.Context, downloadURL, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create asset directory", goerr.V("dest", dest))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create download request", goerr.V("url", downloadURL))
	}
	req.Header.Set("Accept", "application/octet-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to download asset",
			goerr.T(types.ErrTagTransient), goerr.V("url", downloadURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return goerr.New("unexpected status downloading asset",
			goerr.T(types.ErrTagTransient),
			goerr.V("url", downloadURL), goerr.V("status", resp.StatusCode))
	}

	tmpPath := dest + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return goerr.Wrap(err, "failed to create temp download file", goerr.V("path", tmpPath))
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to write asset download",
			goerr.T(types.ErrTagTransient), goerr.V("path", tmpPath))
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to close download file", goerr.V("path", tmpPath))
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to move download into place", goerr.V("dest", dest))
	}
	return nil
}
