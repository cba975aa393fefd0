package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/types"
)

var (
	releasePathRe = regexp.MustCompile(`^/([^/]+)/([^/]+)/releases/tag/([^/]+)$`)
	numericTagRe  = regexp.MustCompile(`^v(\d+)$`)
	unsafeRunsRe  = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// ReleaseRef identifies the release a pipeline run operates on. The edition
// is derived from the tag and keys all persisted state; the struct is never
// mutated after parsing.
type ReleaseRef struct {
	Owner          string
	Repo           string
	Tag            string
	Edition        string
	ReleasePageURL string
}

// DeriveEdition derives the updater edition from a Git tag. Tags of the form
// v<digits> become the bare number; anything else is sanitized into a stable
// path-safe slug. Two sanitized tags may collide on the same slug; that is
// accepted rather than resolved.
func DeriveEdition(tag string) string {
	if m := numericTagRe.FindStringSubmatch(tag); m != nil {
		return m[1]
	}
	return sanitizeEditionSegment(tag)
}

func sanitizeEditionSegment(tag string) string {
	sanitized := unsafeRunsRe.ReplaceAllString(strings.TrimSpace(tag), "-")
	sanitized = strings.Trim(sanitized, ".-_")
	if sanitized != "" {
		return sanitized
	}
	digest := sha256.Sum256([]byte(tag))
	return "tag-" + hex.EncodeToString(digest[:])[:12]
}

// ParseReleasePageURL parses a GitHub release page URL into a ReleaseRef.
// Only https://github.com/<owner>/<repo>/releases/tag/<tag> is accepted.
func ParseReleasePageURL(releasePageURL string) (*ReleaseRef, error) {
	if releasePageURL == "" {
		return nil, goerr.New("release URL is required", goerr.T(types.ErrTagConfig))
	}

	parsed, err := url.Parse(releasePageURL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid release URL", goerr.T(types.ErrTagConfig))
	}
	if parsed.Scheme != "https" {
		return nil, goerr.New("invalid release URL: expected https://github.com/<owner>/<repo>/releases/tag/<tag>",
			goerr.T(types.ErrTagConfig), goerr.V("url", releasePageURL))
	}
	host := strings.ToLower(parsed.Host)
	if host != "github.com" && host != "www.github.com" {
		return nil, goerr.New("invalid release URL: expected host github.com",
			goerr.T(types.ErrTagConfig), goerr.V("host", parsed.Host))
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return nil, goerr.New("invalid release URL: query string and fragments are not allowed",
			goerr.T(types.ErrTagConfig), goerr.V("url", releasePageURL))
	}

	path := strings.TrimRight(parsed.EscapedPath(), "/")
	m := releasePathRe.FindStringSubmatch(path)
	if m == nil {
		return nil, goerr.New("invalid release URL path: expected /<owner>/<repo>/releases/tag/<tag>",
			goerr.T(types.ErrTagConfig), goerr.V("path", parsed.Path))
	}

	owner := mustUnescape(m[1])
	repo := mustUnescape(m[2])
	tag := mustUnescape(m[3])
	if owner == "" || repo == "" || tag == "" {
		return nil, goerr.New("invalid release URL: owner, repo, and tag must all be non-empty",
			goerr.T(types.ErrTagConfig))
	}
	if strings.Contains(tag, "/") {
		return nil, goerr.New("invalid release URL: tag may not contain '/'",
			goerr.T(types.ErrTagConfig), goerr.V("tag", tag))
	}

	return &ReleaseRef{
		Owner:          owner,
		Repo:           repo,
		Tag:            tag,
		Edition:        DeriveEdition(tag),
		ReleasePageURL: releasePageURL,
	}, nil
}

func mustUnescape(s string) string {
	unescaped, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return unescaped
}

// Release is a GitHub release as returned by the release source.
type Release struct {
	ID      int64
	TagName string
	Body    string
	Assets  []ReleaseAsset
	Raw     []byte // raw API payload, persisted as the release snapshot
}

// ReleaseAsset is one downloadable asset attached to a release.
type ReleaseAsset struct {
	ID                 int64
	Name               string
	BrowserDownloadURL string
	Size               int64
}
