package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/cryptad/update-releaser/pkg/domain/model"
)

func TestMapAssetFilename(t *testing.T) {
	cases := []struct {
		filename string
		wantKey  string
		wantArch string
		wantExt  string
	}{
		{filename: "cryptad-1.2.3-amd64.deb", wantKey: "amd64.deb", wantArch: "amd64", wantExt: "deb"},
		{filename: "cryptad_1.2.3_arm64.rpm", wantKey: "arm64.rpm", wantArch: "arm64", wantExt: "rpm"},
		{filename: "Cryptad-arm64.dmg", wantKey: "arm64.dmg", wantArch: "arm64", wantExt: "dmg"},
		{filename: "cryptad-amd64-setup.exe", wantKey: "amd64.exe", wantArch: "amd64", wantExt: "exe"},
		{filename: "cryptad-1.0-amd64.tar.gz", wantKey: "amd64.tar.gz", wantArch: "amd64", wantExt: "tar.gz"},
		{filename: "cryptad.amd64.msi", wantKey: "amd64.msi", wantArch: "amd64", wantExt: "msi"},
	}

	for _, tc := range cases {
		t.Run(tc.filename, func(t *testing.T) {
			key, arch, ext, ok, err := model.MapAssetFilename(tc.filename)
			gt.NoError(t, err)
			gt.True(t, ok)
			gt.Value(t, key).Equal(tc.wantKey)
			gt.Value(t, arch).Equal(tc.wantArch)
			gt.Value(t, ext).Equal(tc.wantExt)
		})
	}
}

func TestMapAssetFilenameSkipped(t *testing.T) {
	skipped := []string{
		"SHA256SUMS.txt",
		"cryptad.jar",
		"cryptad-amd64.deb.sig",
		"cryptad-amd64.deb.sig.txt",
		"release-notes.md",
		"source.tar", // not a supported package extension
	}

	for _, filename := range skipped {
		t.Run(filename, func(t *testing.T) {
			_, _, _, ok, err := model.MapAssetFilename(filename)
			gt.NoError(t, err)
			gt.False(t, ok)
		})
	}
}

func TestMapAssetFilenameMissingArch(t *testing.T) {
	_, _, _, ok, err := model.MapAssetFilename("cryptad-universal.deb")
	gt.False(t, ok)
	gt.Error(t, err)
}

func TestMapReleaseAssets(t *testing.T) {
	assets := []model.ReleaseAsset{
		{ID: 1, Name: "cryptad-amd64.deb", Size: 100},
		{ID: 2, Name: "cryptad-arm64.deb", Size: 200},
		{ID: 3, Name: "SHA256SUMS.txt", Size: 5},
		{ID: 4, Name: "cryptad-amd64.deb.sig", Size: 6},
	}

	mapped := gt.R1(model.MapReleaseAssets(assets)).NoError(t)
	gt.Number(t, len(mapped)).Equal(2)
	gt.Value(t, mapped["amd64.deb"].Asset.ID).Equal(int64(1))
	gt.Value(t, mapped["arm64.deb"].Asset.ID).Equal(int64(2))
}

func TestMapReleaseAssetsDuplicateKey(t *testing.T) {
	assets := []model.ReleaseAsset{
		{ID: 1, Name: "cryptad-amd64.deb"},
		{ID: 2, Name: "cryptad_v2_amd64.deb"},
	}

	_, err := model.MapReleaseAssets(assets)
	gt.Error(t, err)
	gt.String(t, err.Error()).Contains("amd64.deb")
}

func TestMapReleaseAssetsCollectsAllIssues(t *testing.T) {
	assets := []model.ReleaseAsset{
		{ID: 1, Name: "cryptad-noarch.deb"},
		{ID: 2, Name: "cryptad-universal.rpm"},
	}

	_, err := model.MapReleaseAssets(assets)
	gt.Error(t, err)
	gt.String(t, err.Error()).Contains("cryptad-noarch.deb")
	gt.String(t, err.Error()).Contains("cryptad-universal.rpm")
}

func TestMapReleaseAssetsEmpty(t *testing.T) {
	_, err := model.MapReleaseAssets([]model.ReleaseAsset{
		{ID: 1, Name: "README.md"},
	})
	gt.Error(t, err)
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	gt.Array(t, model.SortedKeys(m)).Equal([]string{"a", "b", "c"})
}
