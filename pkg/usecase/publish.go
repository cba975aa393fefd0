package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/term"

	"github.com/cryptad/update-releaser/pkg/domain/interfaces"
	"github.com/cryptad/update-releaser/pkg/domain/types"
	"github.com/cryptad/update-releaser/pkg/infra/fcp"
)

// PublishTarget is a publication channel with its own trust level. Staging
// auto-provisions a reusable key pair; production only ever takes its
// signing key interactively and holds it in memory for one publish.
type PublishTarget interface {
	// Name returns the target identifier used as the state map key.
	Name() string

	// SigningBase resolves the channel base URI that carries insert
	// rights. For staging a missing key file triggers key generation.
	SigningBase(ctx context.Context) (string, error)

	// PublicBase resolves the request-side channel base URI. Verification
	// must never require secret material, so staging substitutes the
	// public companion file when only a private key file is present.
	PublicBase(ctx context.Context) (string, error)
}

// PromptFunc reads a secret from the operator with echo suppressed.
type PromptFunc func(prompt string) (string, error)

// TerminalPrompt reads a secret from the controlling terminal.
func TerminalPrompt(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", goerr.New("no terminal available for interactive key prompt",
			goerr.T(types.ErrTagConfig))
	}
	fmt.Fprint(os.Stderr, prompt)
	entered, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read key from terminal")
	}
	return string(entered), nil
}

// NewTarget builds the publish target for a name. The prompt is only used by
// the production target; pass TerminalPrompt outside of tests.
func NewTarget(name, stagingKeyFile string, store interfaces.ContentStore, dryRun bool, prompt PromptFunc) (PublishTarget, error) {
	switch name {
	case types.PublishToStaging:
		return &stagingTarget{keyFile: stagingKeyFile, store: store, dryRun: dryRun}, nil
	case types.PublishToProduction:
		return &productionTarget{dryRun: dryRun, prompt: prompt}, nil
	default:
		return nil, goerr.New("unknown publish target",
			goerr.T(types.ErrTagConfig), goerr.V("target", name))
	}
}

type stagingTarget struct {
	keyFile string
	store   interfaces.ContentStore
	dryRun  bool
}

func (t *stagingTarget) Name() string { return types.PublishToStaging }

func (t *stagingTarget) SigningBase(ctx context.Context) (string, error) {
	if base, err := readKeyFile(t.keyFile); err == nil {
		return base, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	if t.dryRun {
		return "USK@<staging-placeholder>/info/", nil
	}
	if t.store == nil {
		return "", goerr.New("content store is required to auto-generate a staging key pair",
			goerr.T(types.ErrTagConfig))
	}
	return t.provisionKeyPair(ctx)
}

func (t *stagingTarget) PublicBase(ctx context.Context) (string, error) {
	logger := ctxlog.From(ctx)

	primary, err := readKeyFile(t.keyFile)
	if err != nil {
		if os.IsNotExist(err) && t.dryRun {
			return "USK@<staging-placeholder>/info/", nil
		}
		if os.IsNotExist(err) {
			return "", goerr.New("staging key file is missing; publish to staging first or create the file",
				goerr.T(types.ErrTagConfig), goerr.V("path", t.keyFile))
		}
		return "", err
	}
	if !fcp.LooksPrivate(primary) {
		return primary, nil
	}

	companion := publicCompanionPath(t.keyFile)
	if base, err := readKeyFile(companion); err == nil {
		logger.Info("using public staging key companion file", "path", companion)
		return base, nil
	}

	if t.store != nil && !t.dryRun {
		publicBase, err := t.store.DerivePublicBase(ctx, primary)
		if err != nil {
			return "", err
		}
		if err := writeKeyFile(companion, publicBase); err != nil {
			return "", err
		}
		logger.Warn("derived public staging key from private key and wrote companion file",
			"path", companion)
		return publicBase, nil
	}

	logger.Warn("staging key file appears private and no companion public file was found; using it as-is",
		"path", t.keyFile)
	return primary, nil
}

func (t *stagingTarget) provisionKeyPair(ctx context.Context) (string, error) {
	logger := ctxlog.From(ctx)

	privateBase, publicBase, err := t.store.GenerateKeypair(ctx)
	if err != nil {
		return "", err
	}
	if err := writeKeyFile(t.keyFile, privateBase); err != nil {
		return "", err
	}
	companion := publicCompanionPath(t.keyFile)
	if err := writeKeyFile(companion, publicBase); err != nil {
		return "", err
	}

	logger.Warn("staging key file was missing; generated a new key pair",
		"private_file", t.keyFile,
		"public_file", companion,
	)
	return privateBase, nil
}

type productionTarget struct {
	dryRun bool
	prompt PromptFunc
}

func (t *productionTarget) Name() string { return types.PublishToProduction }

func (t *productionTarget) SigningBase(ctx context.Context) (string, error) {
	if t.dryRun {
		return "USK@<production-redacted>/info/", nil
	}
	if t.prompt == nil {
		return "", goerr.New("production publishing requires an interactive prompt",
			goerr.T(types.ErrTagConfig))
	}
	entered, err := t.prompt("Production update channel base (must end with /info/): ")
	if err != nil {
		return "", err
	}
	return fcp.ValidateBase(entered)
}

func (t *productionTarget) PublicBase(ctx context.Context) (string, error) {
	if t.dryRun {
		return "USK@<production-redacted>/info/", nil
	}
	if t.prompt == nil {
		return "", goerr.New("production verification requires an interactive prompt",
			goerr.T(types.ErrTagConfig))
	}
	entered, err := t.prompt("Production update channel public base (must end with /info/): ")
	if err != nil {
		return "", err
	}
	return fcp.ValidateBase(entered)
}

func readKeyFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		return "", goerr.Wrap(err, "failed to read key file", goerr.V("path", path))
	}
	return fcp.ValidateBase(string(raw))
}

func writeKeyFile(path, base string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create key file directory", goerr.V("path", path))
	}
	content := strings.TrimRight(base, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return goerr.Wrap(err, "failed to write key file", goerr.V("path", path))
	}
	return nil
}

// publicCompanionPath derives the non-secret sibling of a key file:
// staging-usk.txt -> staging-usk.public.txt.
func publicCompanionPath(keyFile string) string {
	ext := filepath.Ext(keyFile)
	if ext == "" {
		return keyFile + ".public"
	}
	return strings.TrimSuffix(keyFile, ext) + ".public" + ext
}
