package statestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/cryptad/update-releaser/pkg/domain/model"
	"github.com/cryptad/update-releaser/pkg/infra/statestore"
)

func TestLoadMissingStateIsEmpty(t *testing.T) {
	store := statestore.New(t.TempDir())

	state := gt.R1(store.Load("42")).NoError(t)
	gt.Value(t, state.Release).Nil()
	gt.Number(t, len(state.Assets)).Equal(0)
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	base := t.TempDir()
	store := statestore.New(base)

	state := &model.PipelineState{
		Release: &model.ReleaseIdentity{
			Owner:          "cryptad",
			Repo:           "cryptad",
			Tag:            "v42",
			Edition:        "42",
			ReleasePageURL: "https://github.com/cryptad/cryptad/releases/tag/v42",
		},
		Packages: map[string]model.PackageRecord{
			"amd64.deb": {CHK: "CHK@aaa", Size: 100, AssetName: "cryptad-amd64.deb"},
		},
	}
	gt.NoError(t, store.Save("42", state))

	loaded := gt.R1(store.Load("42")).NoError(t)
	gt.Value(t, loaded.Release).Equal(state.Release)
	gt.Value(t, loaded.Packages["amd64.deb"].CHK).Equal("CHK@aaa")

	// No temp file debris survives a successful save.
	entries := gt.R1(os.ReadDir(filepath.Join(base, "42"))).NoError(t)
	gt.Number(t, len(entries)).Equal(1)
	gt.Value(t, entries[0].Name()).Equal("state.json")
}

func TestSaveReplacesExistingState(t *testing.T) {
	store := statestore.New(t.TempDir())

	gt.NoError(t, store.Save("7", &model.PipelineState{ReleaseBody: "first"}))
	gt.NoError(t, store.Save("7", &model.PipelineState{ReleaseBody: "second"}))

	loaded := gt.R1(store.Load("7")).NoError(t)
	gt.Value(t, loaded.ReleaseBody).Equal("second")
}

func TestLoadCorruptState(t *testing.T) {
	base := t.TempDir()
	store := statestore.New(base)

	dir := store.Dir("9")
	gt.NoError(t, os.MkdirAll(dir, 0o755))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{broken"), 0o644))

	_, err := store.Load("9")
	gt.Error(t, err)
}

func TestDir(t *testing.T) {
	store := statestore.New("/tmp/releaser")
	gt.Value(t, store.Dir("42")).Equal(filepath.Join("/tmp/releaser", "42"))
}
