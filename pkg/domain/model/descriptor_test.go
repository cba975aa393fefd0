package model_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/cryptad/update-releaser/pkg/domain/model"
)

func testRef() *model.ReleaseRef {
	return &model.ReleaseRef{
		Owner:          "cryptad",
		Repo:           "cryptad",
		Tag:            "v2",
		Edition:        "2",
		ReleasePageURL: "https://github.com/cryptad/cryptad/releases/tag/v2",
	}
}

func sizePtr(v int64) *int64 { return &v }

func TestBuildDescriptorDeterministic(t *testing.T) {
	packages := map[string]model.PackageEntry{
		"arm64.deb": {CHK: "CHK@bbb", Size: sizePtr(200)},
		"amd64.deb": {CHK: "CHK@aaa", Size: sizePtr(100)},
	}

	first := gt.R1(model.BuildDescriptor(testRef(), packages, "CHK@short", "CHK@full")).NoError(t)
	second := gt.R1(model.BuildDescriptor(testRef(), packages, "CHK@short", "CHK@full")).NoError(t)

	gt.Value(t, string(first.Document)).Equal(string(second.Document))
	gt.Value(t, first.SHA256).Equal(second.SHA256)
	gt.String(t, string(first.Document)).HasSuffix("\n")
}

func TestBuildDescriptorVersionIsString(t *testing.T) {
	packages := map[string]model.PackageEntry{
		"amd64.deb": {CHK: "CHK@aaa"},
	}

	result := gt.R1(model.BuildDescriptor(testRef(), packages, "", "")).NoError(t)
	gt.String(t, string(result.Document)).Contains(`"version": "2"`)

	// The hash tracks the canonical bytes, not the struct.
	var decoded map[string]any
	gt.NoError(t, json.Unmarshal(result.Document, &decoded))
	gt.Value(t, decoded["version"]).Equal("2")
}

func TestBuildDescriptorFieldOrder(t *testing.T) {
	packages := map[string]model.PackageEntry{
		"amd64.deb": {CHK: "CHK@aaa"},
	}

	result := gt.R1(model.BuildDescriptor(testRef(), packages, "CHK@short", "")).NoError(t)
	document := string(result.Document)

	versionIdx := strings.Index(document, `"version"`)
	urlIdx := strings.Index(document, `"release_page_url"`)
	changelogIdx := strings.Index(document, `"changelog_chk"`)
	packagesIdx := strings.Index(document, `"packages"`)

	gt.Number(t, versionIdx).Less(urlIdx)
	gt.Number(t, urlIdx).Less(changelogIdx)
	gt.Number(t, changelogIdx).Less(packagesIdx)

	// Omitted optional fields leave no trace.
	gt.String(t, document).NotContains("fullchangelog_chk")
	gt.String(t, document).NotContains("store_url")
}

func TestBuildDescriptorHashChangesWithContent(t *testing.T) {
	packages := map[string]model.PackageEntry{
		"amd64.deb": {CHK: "CHK@aaa", Size: sizePtr(100)},
	}
	base := gt.R1(model.BuildDescriptor(testRef(), packages, "", "")).NoError(t)

	changed := map[string]model.PackageEntry{
		"amd64.deb": {CHK: "CHK@bbb", Size: sizePtr(100)},
	}
	other := gt.R1(model.BuildDescriptor(testRef(), changed, "", "")).NoError(t)

	gt.Value(t, base.SHA256).NotEqual(other.SHA256)
}

func TestDescriptorValidate(t *testing.T) {
	cases := []struct {
		name       string
		descriptor model.Descriptor
		wantErr    bool
	}{
		{
			name: "valid with chk",
			descriptor: model.Descriptor{
				Version:        "2",
				ReleasePageURL: "https://github.com/o/r/releases/tag/v2",
				Packages:       map[string]model.PackageEntry{"amd64.deb": {CHK: "CHK@x"}},
			},
		},
		{
			name: "valid with store url",
			descriptor: model.Descriptor{
				Version:        "2",
				ReleasePageURL: "https://github.com/o/r/releases/tag/v2",
				Packages:       map[string]model.PackageEntry{"amd64.deb": {StoreURL: "https://example.com/a.deb"}},
			},
		},
		{
			name: "missing version",
			descriptor: model.Descriptor{
				ReleasePageURL: "https://github.com/o/r/releases/tag/v2",
				Packages:       map[string]model.PackageEntry{"amd64.deb": {CHK: "CHK@x"}},
			},
			wantErr: true,
		},
		{
			name: "empty packages",
			descriptor: model.Descriptor{
				Version:        "2",
				ReleasePageURL: "https://github.com/o/r/releases/tag/v2",
				Packages:       map[string]model.PackageEntry{},
			},
			wantErr: true,
		},
		{
			name: "both chk and store url",
			descriptor: model.Descriptor{
				Version:        "2",
				ReleasePageURL: "https://github.com/o/r/releases/tag/v2",
				Packages: map[string]model.PackageEntry{
					"amd64.deb": {CHK: "CHK@x", StoreURL: "https://example.com/a.deb"},
				},
			},
			wantErr: true,
		},
		{
			name: "bad changelog uri",
			descriptor: model.Descriptor{
				Version:          "2",
				ReleasePageURL:   "https://github.com/o/r/releases/tag/v2",
				ChangelogCHK:     "SSK@not-a-chk",
				Packages:         map[string]model.PackageEntry{"amd64.deb": {CHK: "CHK@x"}},
				FullChangelogCHK: "",
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.descriptor.Validate()
			if tc.wantErr {
				gt.Error(t, err)
			} else {
				gt.NoError(t, err)
			}
		})
	}
}

func TestValidatePackageKey(t *testing.T) {
	gt.NoError(t, model.ValidatePackageKey("amd64.deb"))
	gt.NoError(t, model.ValidatePackageKey("arm64.tar.gz"))
	gt.Error(t, model.ValidatePackageKey("x86.deb"))
	gt.Error(t, model.ValidatePackageKey("amd64.iso"))
	gt.Error(t, model.ValidatePackageKey("amd64"))
}
