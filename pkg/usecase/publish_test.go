package usecase_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/cryptad/update-releaser/pkg/usecase"
)

func TestNewTargetUnknownName(t *testing.T) {
	_, err := usecase.NewTarget("canary", "key.txt", nil, false, nil)
	gt.Error(t, err)
}

func TestStagingAutoProvisionsKeyPair(t *testing.T) {
	ctx := context.Background()
	keyFile := filepath.Join(t.TempDir(), "staging-usk.txt")

	store := &MockContentStore{
		generateKeypairFunc: func(ctx context.Context) (string, string, error) {
			return "USK@priv,AQECAAE/info/", "USK@pub,AQACAAE/info/", nil
		},
	}
	target := gt.R1(usecase.NewTarget("staging", keyFile, store, false, nil)).NoError(t)

	base := gt.R1(target.SigningBase(ctx)).NoError(t)
	gt.Value(t, base).Equal("USK@priv,AQECAAE/info/")

	// The private half lands in the key file with restrictive permissions,
	// the public half in the non-secret companion.
	privateContent := gt.R1(os.ReadFile(keyFile)).NoError(t)
	gt.Value(t, strings.TrimSpace(string(privateContent))).Equal("USK@priv,AQECAAE/info/")

	if runtime.GOOS != "windows" {
		info := gt.R1(os.Stat(keyFile)).NoError(t)
		gt.Value(t, info.Mode().Perm()).Equal(os.FileMode(0o600))
	}

	companion := filepath.Join(filepath.Dir(keyFile), "staging-usk.public.txt")
	publicContent := gt.R1(os.ReadFile(companion)).NoError(t)
	gt.Value(t, strings.TrimSpace(string(publicContent))).Equal("USK@pub,AQACAAE/info/")
}

func TestStagingReusesExistingKeyFile(t *testing.T) {
	ctx := context.Background()
	keyFile := filepath.Join(t.TempDir(), "staging-usk.txt")
	gt.NoError(t, os.WriteFile(keyFile, []byte("USK@existing,AQECAAE/info/\n"), 0o600))

	store := &MockContentStore{}
	target := gt.R1(usecase.NewTarget("staging", keyFile, store, false, nil)).NoError(t)

	base := gt.R1(target.SigningBase(ctx)).NoError(t)
	gt.Value(t, base).Equal("USK@existing,AQECAAE/info/")
}

func TestStagingPublicBasePrefersCompanionFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "staging-usk.txt")
	companion := filepath.Join(dir, "staging-usk.public.txt")

	gt.NoError(t, os.WriteFile(keyFile, []byte("USK@priv,AQECAAE/info/\n"), 0o600))
	gt.NoError(t, os.WriteFile(companion, []byte("USK@pub,AQACAAE/info/\n"), 0o644))

	target := gt.R1(usecase.NewTarget("staging", keyFile, nil, false, nil)).NoError(t)

	base := gt.R1(target.PublicBase(ctx)).NoError(t)
	gt.Value(t, base).Equal("USK@pub,AQACAAE/info/")
}

func TestStagingPublicBaseDerivesMissingCompanion(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "staging-usk.txt")
	gt.NoError(t, os.WriteFile(keyFile, []byte("USK@priv,AQECAAE/info/\n"), 0o600))

	store := &MockContentStore{
		derivePublicFunc: func(ctx context.Context, privateBase string) (string, error) {
			gt.Value(t, privateBase).Equal("USK@priv,AQECAAE/info/")
			return "USK@derived,AQACAAE/info/", nil
		},
	}
	target := gt.R1(usecase.NewTarget("staging", keyFile, store, false, nil)).NoError(t)

	base := gt.R1(target.PublicBase(ctx)).NoError(t)
	gt.Value(t, base).Equal("USK@derived,AQACAAE/info/")

	// The derived base is cached in the companion file for next time.
	companion := gt.R1(os.ReadFile(filepath.Join(dir, "staging-usk.public.txt"))).NoError(t)
	gt.Value(t, strings.TrimSpace(string(companion))).Equal("USK@derived,AQACAAE/info/")
}

func TestStagingPublicBaseUsesPublicKeyFileDirectly(t *testing.T) {
	ctx := context.Background()
	keyFile := filepath.Join(t.TempDir(), "staging-usk.txt")
	gt.NoError(t, os.WriteFile(keyFile, []byte("USK@pub,AQACAAE/info/\n"), 0o644))

	target := gt.R1(usecase.NewTarget("staging", keyFile, nil, false, nil)).NoError(t)

	base := gt.R1(target.PublicBase(ctx)).NoError(t)
	gt.Value(t, base).Equal("USK@pub,AQACAAE/info/")
}

func TestProductionSigningBaseComesFromPrompt(t *testing.T) {
	ctx := context.Background()

	prompts := 0
	prompt := func(text string) (string, error) {
		prompts++
		return "USK@prod,AQECAAE/info/\n", nil
	}
	target := gt.R1(usecase.NewTarget("production", "", nil, false, prompt)).NoError(t)

	base := gt.R1(target.SigningBase(ctx)).NoError(t)
	gt.Value(t, base).Equal("USK@prod,AQECAAE/info/")
	gt.Number(t, prompts).Equal(1)
}

func TestProductionRejectsInvalidPromptedBase(t *testing.T) {
	ctx := context.Background()

	prompt := func(text string) (string, error) {
		return "USK@prod,AQECAAE/wrong/", nil
	}
	target := gt.R1(usecase.NewTarget("production", "", nil, false, prompt)).NoError(t)

	_, err := target.SigningBase(ctx)
	gt.Error(t, err)
}

func TestProductionWithoutPromptFails(t *testing.T) {
	ctx := context.Background()
	target := gt.R1(usecase.NewTarget("production", "", nil, false, nil)).NoError(t)

	_, err := target.SigningBase(ctx)
	gt.Error(t, err)
}

func TestProductionDryRunNeedsNoPrompt(t *testing.T) {
	ctx := context.Background()
	target := gt.R1(usecase.NewTarget("production", "", nil, true, nil)).NoError(t)

	base := gt.R1(target.SigningBase(ctx)).NoError(t)
	gt.String(t, base).HasSuffix("/info/")
}
