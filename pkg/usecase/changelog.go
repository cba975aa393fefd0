package usecase

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/types"
)

const changelogFallback = "No changelog content was provided in the GitHub release body.\n"

const shortChangelogMaxLines = 20

// DeriveChangelogTexts splits a release body into the short changelog (first
// markdown section, capped at 20 lines) and the full changelog.
func DeriveChangelogTexts(releaseBody string) (short, full string) {
	body := strings.TrimSpace(releaseBody)
	if body == "" {
		return changelogFallback, changelogFallback
	}

	lines := strings.Split(body, "\n")
	shortLines := firstSection(lines)
	if len(shortLines) == 0 {
		shortLines = lines
	}
	if len(shortLines) > shortChangelogMaxLines {
		shortLines = shortLines[:shortChangelogMaxLines]
	}

	short = strings.TrimSpace(strings.Join(shortLines, "\n")) + "\n"
	full = body + "\n"
	return short, full
}

// prepareChangelogFiles materializes the short/full changelog files in the
// edition workdir, honoring operator-supplied override files.
func prepareChangelogFiles(workdir, shortOverride, fullOverride, releaseBody string) (shortPath, fullPath string, err error) {
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return "", "", goerr.Wrap(err, "failed to create workdir", goerr.V("dir", workdir))
	}

	derivedShort, derivedFull := DeriveChangelogTexts(releaseBody)

	shortText := derivedShort
	if shortOverride != "" {
		raw, err := os.ReadFile(shortOverride)
		if err != nil {
			return "", "", goerr.Wrap(err, "failed to read changelog override",
				goerr.T(types.ErrTagConfig), goerr.V("path", shortOverride))
		}
		shortText = string(raw)
	}

	fullText := derivedFull
	if fullOverride != "" {
		raw, err := os.ReadFile(fullOverride)
		if err != nil {
			return "", "", goerr.Wrap(err, "failed to read full changelog override",
				goerr.T(types.ErrTagConfig), goerr.V("path", fullOverride))
		}
		fullText = string(raw)
	}

	shortPath = filepath.Join(workdir, "changelog-short.md")
	fullPath = filepath.Join(workdir, "changelog-full.md")
	if err := os.WriteFile(shortPath, []byte(ensureTrailingNewline(shortText)), 0o644); err != nil {
		return "", "", goerr.Wrap(err, "failed to write short changelog", goerr.V("path", shortPath))
	}
	if err := os.WriteFile(fullPath, []byte(ensureTrailingNewline(fullText)), 0o644); err != nil {
		return "", "", goerr.Wrap(err, "failed to write full changelog", goerr.V("path", fullPath))
	}
	return shortPath, fullPath, nil
}

// firstSection returns the leading markdown section: everything up to the
// next heading after content has started.
func firstSection(lines []string) []string {
	var section []string
	started := false
	for _, line := range lines {
		if !started && strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "#") && started && len(section) > 0 {
			break
		}
		started = true
		section = append(section, line)
	}
	return section
}

func ensureTrailingNewline(text string) string {
	if strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}
