package usecase_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/cryptad/update-releaser/pkg/domain/interfaces"
	"github.com/cryptad/update-releaser/pkg/infra/statestore"
	"github.com/cryptad/update-releaser/pkg/usecase"
)

func TestDeriveChangelogTextsFirstSection(t *testing.T) {
	body := "## Highlights\n- faster startup\n- smaller binary\n\n## Details\n- everything else"

	short, full := usecase.DeriveChangelogTexts(body)

	gt.String(t, short).Contains("faster startup")
	gt.String(t, short).NotContains("everything else")
	gt.String(t, full).Contains("everything else")
	gt.String(t, full).HasSuffix("\n")
	gt.String(t, short).HasSuffix("\n")
}

func TestDeriveChangelogTextsCapsShortLength(t *testing.T) {
	var lines []string
	for i := 0; i < 60; i++ {
		lines = append(lines, "- change entry")
	}
	body := strings.Join(lines, "\n")

	short, full := usecase.DeriveChangelogTexts(body)

	gt.Number(t, len(strings.Split(strings.TrimRight(short, "\n"), "\n"))).LessOrEqual(20)
	gt.Number(t, len(strings.Split(strings.TrimRight(full, "\n"), "\n"))).Equal(60)
}

func TestDeriveChangelogTextsEmptyBody(t *testing.T) {
	short, full := usecase.DeriveChangelogTexts("   \n  ")

	gt.Value(t, short).Equal(full)
	gt.String(t, short).Contains("No changelog content")
}

func TestDeriveChangelogTextsNoHeadings(t *testing.T) {
	body := "plain notes line one\nplain notes line two"

	short, full := usecase.DeriveChangelogTexts(body)

	gt.Value(t, short).Equal(body + "\n")
	gt.Value(t, full).Equal(body + "\n")
}

func TestDeriveChangelogTextsLeadingBlankLines(t *testing.T) {
	body := "\n\n## Only section\n- entry"

	short, _ := usecase.DeriveChangelogTexts(body)

	gt.String(t, short).HasPrefix("## Only section")
}

func TestUploadChangelogsHonorsOverrides(t *testing.T) {
	ctx := context.Background()

	override := filepath.Join(t.TempDir(), "notes.md")
	gt.NoError(t, os.WriteFile(override, []byte("operator supplied notes"), 0o644))

	store := &MockContentStore{
		insertFileFunc: func(ctx context.Context, uri, path string, opts interfaces.PutOptions) (string, error) {
			return "CHK@" + filepath.Base(path), nil
		},
	}
	states := statestore.New(t.TempDir())
	workflow := usecase.NewWorkflow(workflowRef(), states, newMockSource(), store)

	record := gt.R1(workflow.UploadChangelogs(ctx, override, "")).NoError(t)
	gt.Value(t, record.ChangelogCHK).Equal("CHK@changelog-short.md")

	// The override replaces the derived short text; a trailing newline is
	// always ensured.
	short := gt.R1(os.ReadFile(filepath.Join(states.Dir("42"), "changelog-short.md"))).NoError(t)
	gt.Value(t, string(short)).Equal("operator supplied notes\n")

	full := gt.R1(os.ReadFile(filepath.Join(states.Dir("42"), "changelog-full.md"))).NoError(t)
	gt.String(t, string(full)).Contains("faster startup")
}

func TestUploadChangelogsMissingOverrideFile(t *testing.T) {
	ctx := context.Background()

	store := &MockContentStore{
		insertFileFunc: func(ctx context.Context, uri, path string, opts interfaces.PutOptions) (string, error) {
			return "CHK@" + filepath.Base(path), nil
		},
	}
	states := statestore.New(t.TempDir())
	workflow := usecase.NewWorkflow(workflowRef(), states, newMockSource(), store)

	_, err := workflow.UploadChangelogs(ctx, filepath.Join(t.TempDir(), "missing.md"), "")
	gt.Error(t, err)
}
