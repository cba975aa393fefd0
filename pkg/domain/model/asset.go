package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/types"
)

// SupportedArches lists the CPU architectures a package asset may target.
var SupportedArches = []string{"amd64", "arm64"}

// TarGzExtension needs special suffix handling because it contains a dot.
const TarGzExtension = "tar.gz"

// SupportedExtensions lists the package formats mapped into descriptors.
var SupportedExtensions = []string{
	"deb", "rpm", "dmg", "exe", "msi", TarGzExtension, "zip", "pkg", "flatpak", "snap",
}

var ignoredExactNames = map[string]bool{
	"sha256sums.txt": true,
	"cryptad.jar":    true,
}

var archTokenRe = regexp.MustCompile(`(?:^|[-_.])(amd64|arm64)(?:[-_.]|$)`)

// MappedAsset pairs a release asset with the package key it will occupy in
// the descriptor.
type MappedAsset struct {
	PackageKey string
	Asset      ReleaseAsset
	Arch       string
	Extension  string
}

// IsIgnoredAsset reports whether a release asset is intentionally excluded
// from package mapping (checksums, signatures, the raw jar).
func IsIgnoredAsset(filename string) bool {
	lowered := strings.ToLower(filename)
	if ignoredExactNames[lowered] {
		return true
	}
	return strings.HasSuffix(lowered, ".sig") || strings.HasSuffix(lowered, ".sig.txt")
}

// DetectExtension returns the supported package extension of a filename, or
// an empty string when the file is not a package.
func DetectExtension(filename string) string {
	lowered := strings.ToLower(filename)
	if strings.HasSuffix(lowered, "."+TarGzExtension) {
		return TarGzExtension
	}
	for _, ext := range SupportedExtensions {
		if ext == TarGzExtension {
			continue
		}
		if strings.HasSuffix(lowered, "."+ext) {
			return ext
		}
	}
	return ""
}

// MapAssetFilename maps a filename onto (packageKey, arch, extension).
// Ignored and non-package assets yield ok=false; a package-like asset
// without a recognizable arch token is an error.
func MapAssetFilename(filename string) (key, arch, ext string, ok bool, err error) {
	if IsIgnoredAsset(filename) {
		return "", "", "", false, nil
	}
	ext = DetectExtension(filename)
	if ext == "" {
		return "", "", "", false, nil
	}

	stem := strings.TrimSuffix(filename, "."+ext)
	m := archTokenRe.FindStringSubmatch(strings.ToLower(stem))
	if m == nil {
		return "", "", "", false, fmt.Errorf(
			"asset %q looks like a package (.%s) but has no supported arch token (amd64 or arm64)", filename, ext)
	}
	arch = m[1]
	return arch + "." + ext, arch, ext, true, nil
}

// MapReleaseAssets maps all package assets of a release onto unique package
// keys. Unmappable package-like assets and duplicate keys are collected and
// reported together in a single error.
func MapReleaseAssets(assets []ReleaseAsset) (map[string]MappedAsset, error) {
	mapped := map[string]MappedAsset{}
	var issues []string

	for _, asset := range assets {
		key, arch, ext, ok, err := MapAssetFilename(asset.Name)
		if err != nil {
			issues = append(issues, err.Error())
			continue
		}
		if !ok {
			continue
		}
		if prev, exists := mapped[key]; exists {
			issues = append(issues, fmt.Sprintf(
				"package key %q matched both %q and %q", key, prev.Asset.Name, asset.Name))
			continue
		}
		mapped[key] = MappedAsset{PackageKey: key, Asset: asset, Arch: arch, Extension: ext}
	}

	if len(issues) > 0 {
		return nil, goerr.New("release assets contain unmapped or conflicting package files:\n"+strings.Join(issues, "\n"),
			goerr.T(types.ErrTagConfig))
	}
	if len(mapped) == 0 {
		return nil, goerr.New("no package assets were detected in the release; check release artifacts and naming conventions",
			goerr.T(types.ErrTagConfig))
	}
	return mapped, nil
}

// SortedKeys returns the map keys in lexical order. Stage loops iterate in
// this order so logs and state writes are deterministic.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
