package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/types"
)

// CHKPrefixes are the accepted content address forms inside a descriptor.
var CHKPrefixes = []string{"CHK@", "freenet:CHK@"}

// PackageEntry describes one artifact inside a descriptor. Exactly one of
// CHK or StoreURL must be set.
type PackageEntry struct {
	CHK      string `json:"chk,omitempty"`
	StoreURL string `json:"store_url,omitempty"`
	Size     *int64 `json:"size,omitempty"`
}

// Descriptor is the update manifest published under the channel key. Field
// order here is the canonical serialization order; the version is always a
// JSON string even when the edition is numeric.
type Descriptor struct {
	Version          string                  `json:"version"`
	ReleasePageURL   string                  `json:"release_page_url"`
	ChangelogCHK     string                  `json:"changelog_chk,omitempty"`
	FullChangelogCHK string                  `json:"fullchangelog_chk,omitempty"`
	Packages         map[string]PackageEntry `json:"packages"`
}

// DescriptorResult is a built descriptor together with its canonical
// serialization and the content hash of those bytes. The hash changes if and
// only if a semantic field changes.
type DescriptorResult struct {
	Descriptor Descriptor
	Document   []byte
	SHA256     string
}

// BuildDescriptor validates and canonically renders a descriptor. The output
// is byte-for-byte reproducible: stable field order, sorted package keys,
// two-space indentation, trailing newline, no timestamps.
func BuildDescriptor(ref *ReleaseRef, packages map[string]PackageEntry, changelogCHK, fullChangelogCHK string) (*DescriptorResult, error) {
	descriptor := Descriptor{
		Version:          ref.Edition,
		ReleasePageURL:   ref.ReleasePageURL,
		ChangelogCHK:     changelogCHK,
		FullChangelogCHK: fullChangelogCHK,
		Packages:         packages,
	}
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(descriptor); err != nil {
		return nil, goerr.Wrap(err, "failed to render descriptor")
	}

	document := buf.Bytes()
	digest := sha256.Sum256(document)
	return &DescriptorResult{
		Descriptor: descriptor,
		Document:   document,
		SHA256:     hex.EncodeToString(digest[:]),
	}, nil
}

// Validate checks the descriptor against the published schema.
func (d *Descriptor) Validate() error {
	if d.Version == "" {
		return goerr.New("'version' must be a non-empty string", goerr.T(types.ErrTagConfig))
	}
	if d.ReleasePageURL == "" {
		return goerr.New("'release_page_url' must be a non-empty string", goerr.T(types.ErrTagConfig))
	}
	if d.ChangelogCHK != "" && !hasCHKPrefix(d.ChangelogCHK) {
		return goerr.New("'changelog_chk' must be a CHK URI when present", goerr.T(types.ErrTagConfig))
	}
	if d.FullChangelogCHK != "" && !hasCHKPrefix(d.FullChangelogCHK) {
		return goerr.New("'fullchangelog_chk' must be a CHK URI when present", goerr.T(types.ErrTagConfig))
	}
	if len(d.Packages) == 0 {
		return goerr.New("'packages' must not be empty", goerr.T(types.ErrTagConfig))
	}
	for _, key := range SortedKeys(d.Packages) {
		if err := ValidatePackageKey(key); err != nil {
			return err
		}
		if err := d.Packages[key].Validate(key); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single package entry.
func (p PackageEntry) Validate(packageKey string) error {
	hasCHK := p.CHK != ""
	hasStoreURL := p.StoreURL != ""
	if hasCHK == hasStoreURL {
		return goerr.New("package must contain exactly one of 'chk' or 'store_url'",
			goerr.T(types.ErrTagConfig), goerr.V("package", packageKey))
	}
	if hasCHK && !hasCHKPrefix(p.CHK) {
		return goerr.New("package has invalid 'chk' value",
			goerr.T(types.ErrTagConfig), goerr.V("package", packageKey))
	}
	if p.Size != nil && *p.Size < 0 {
		return goerr.New("package has invalid negative size",
			goerr.T(types.ErrTagConfig), goerr.V("package", packageKey))
	}
	return nil
}

// ValidatePackageKey checks the <arch>.<ext> form of a package key.
func ValidatePackageKey(packageKey string) error {
	arch, ext, found := strings.Cut(packageKey, ".")
	if !found {
		return goerr.New("invalid package key: expected <arch>.<ext> format",
			goerr.T(types.ErrTagConfig), goerr.V("package", packageKey))
	}
	if !slices.Contains(SupportedArches, arch) {
		return goerr.New("invalid package key: unsupported arch",
			goerr.T(types.ErrTagConfig), goerr.V("package", packageKey), goerr.V("arch", arch))
	}
	if !slices.Contains(SupportedExtensions, ext) {
		return goerr.New("invalid package key: unsupported extension",
			goerr.T(types.ErrTagConfig), goerr.V("package", packageKey), goerr.V("extension", ext))
	}
	return nil
}

func hasCHKPrefix(uri string) bool {
	for _, prefix := range CHKPrefixes {
		if strings.HasPrefix(uri, prefix) {
			return true
		}
	}
	return false
}
