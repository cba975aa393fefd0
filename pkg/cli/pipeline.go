package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/cryptad/update-releaser/pkg/cli/config"
	"github.com/cryptad/update-releaser/pkg/domain/interfaces"
	"github.com/cryptad/update-releaser/pkg/domain/model"
	"github.com/cryptad/update-releaser/pkg/domain/types"
	githubinfra "github.com/cryptad/update-releaser/pkg/infra/github"
	"github.com/cryptad/update-releaser/pkg/infra/statestore"
	"github.com/cryptad/update-releaser/pkg/usecase"
)

// stageConfig gathers the configuration shared by every pipeline stage
// command. Each command builds its own instance so flags stay scoped to the
// command that uses them.
type stageConfig struct {
	fcp      config.FCP
	github   config.GitHub
	pipeline config.Pipeline
}

func (x *stageConfig) flags() []cli.Flag {
	flags := x.pipeline.Flags()
	flags = append(flags, x.github.Flags()...)
	flags = append(flags, x.fcp.Flags()...)
	return flags
}

// releaseRef parses the positional release page URL argument.
func releaseRef(cmd *cli.Command) (*model.ReleaseRef, error) {
	raw := cmd.Args().First()
	if raw == "" {
		return nil, goerr.New("release page URL argument is required",
			goerr.T(types.ErrTagConfig))
	}
	return model.ParseReleasePageURL(raw)
}

// workflow builds the pipeline for the command's release argument. The
// content store is only dialed for real runs; dry runs work without a node.
func (x *stageConfig) workflow(ctx context.Context, cmd *cli.Command) (*usecase.Workflow, interfaces.ContentStore, error) {
	ref, err := releaseRef(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := x.fcp.ApplyFile(cmd); err != nil {
		return nil, nil, err
	}

	var store interfaces.ContentStore
	if !x.pipeline.DryRun {
		store = x.fcp.Configure(ctx)
	}

	ctxlog.From(ctx).Info("pipeline stage starting",
		"owner", ref.Owner, "repo", ref.Repo, "tag", ref.Tag, "edition", ref.Edition)

	workflow := usecase.NewWorkflow(
		ref,
		statestore.New(x.pipeline.Workdir),
		githubinfra.NewClient(x.github.Token),
		store,
		usecase.WithPutOptions(x.fcp.PutOptions()),
		usecase.WithDryRun(x.pipeline.DryRun),
		usecase.WithParallel(int(x.pipeline.Parallel)),
	)
	return workflow, store, nil
}

func (x *stageConfig) target(store interfaces.ContentStore, pubCfg *config.Publish) (usecase.PublishTarget, error) {
	return usecase.NewTarget(pubCfg.Target, pubCfg.StagingKeyFile, store, x.pipeline.DryRun, usecase.TerminalPrompt)
}

func cmdFetchAssets() *cli.Command {
	var cfg stageConfig
	return &cli.Command{
		Name:      "fetch-assets",
		Usage:     "Download the release's package assets into the edition workdir",
		ArgsUsage: "<release page URL>",
		Flags:     cfg.flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			workflow, _, err := cfg.workflow(ctx, cmd)
			if err != nil {
				return err
			}
			assets, err := workflow.FetchAssets(ctx)
			if err != nil {
				return err
			}
			ctxlog.From(ctx).Info("fetch-assets complete", "assets", len(assets))
			return nil
		},
	}
}

func cmdInsertArtifacts() *cli.Command {
	var cfg stageConfig
	return &cli.Command{
		Name:      "insert-artifacts",
		Usage:     "Insert downloaded package assets as content-addressed blobs",
		ArgsUsage: "<release page URL>",
		Flags:     cfg.flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			workflow, _, err := cfg.workflow(ctx, cmd)
			if err != nil {
				return err
			}
			packages, err := workflow.InsertArtifacts(ctx)
			if err != nil {
				return err
			}
			ctxlog.From(ctx).Info("insert-artifacts complete", "packages", len(packages))
			return nil
		},
	}
}

func cmdUploadChangelogs() *cli.Command {
	var cfg stageConfig
	var clCfg config.Changelog
	return &cli.Command{
		Name:      "upload-changelogs",
		Usage:     "Upload short and full changelog blobs",
		ArgsUsage: "<release page URL>",
		Flags:     append(cfg.flags(), clCfg.Flags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			workflow, _, err := cfg.workflow(ctx, cmd)
			if err != nil {
				return err
			}
			record, err := workflow.UploadChangelogs(ctx, clCfg.ShortFile, clCfg.FullFile)
			if err != nil {
				return err
			}
			if record != nil {
				ctxlog.From(ctx).Info("upload-changelogs complete",
					"changelog_chk", record.ChangelogCHK,
					"fullchangelog_chk", record.FullChangelogCHK)
			}
			return nil
		},
	}
}

func cmdGenerateDescriptor() *cli.Command {
	var cfg stageConfig
	return &cli.Command{
		Name:      "generate-descriptor",
		Usage:     "Build the canonical descriptor document from recorded state",
		ArgsUsage: "<release page URL>",
		Flags:     cfg.flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			workflow, _, err := cfg.workflow(ctx, cmd)
			if err != nil {
				return err
			}
			path, result, err := workflow.GenerateDescriptor(ctx)
			if err != nil {
				return err
			}
			if result != nil {
				ctxlog.From(ctx).Info("generate-descriptor complete",
					"path", path, "sha256", result.SHA256)
			}
			return nil
		},
	}
}

func cmdPublishDescriptor() *cli.Command {
	var cfg stageConfig
	var pubCfg config.Publish
	return &cli.Command{
		Name:      "publish-descriptor",
		Usage:     "Publish the descriptor under the target channel key",
		ArgsUsage: "<release page URL>",
		Flags:     append(cfg.flags(), pubCfg.Flags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			workflow, store, err := cfg.workflow(ctx, cmd)
			if err != nil {
				return err
			}
			target, err := cfg.target(store, &pubCfg)
			if err != nil {
				return err
			}
			uri, err := workflow.PublishDescriptor(ctx, target, pubCfg.ForceRepublish)
			if err != nil {
				return err
			}
			ctxlog.From(ctx).Info("publish-descriptor complete",
				"target", target.Name(), "uri", uri)
			return nil
		},
	}
}

func cmdVerify() *cli.Command {
	var cfg stageConfig
	var pubCfg config.Publish
	var deep bool
	flags := append(cfg.flags(), pubCfg.Flags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "deep",
		Usage:       "Download every referenced content address instead of an availability probe",
		Destination: &deep,
	})
	return &cli.Command{
		Name:      "verify",
		Usage:     "Fetch the published descriptor and confirm every referenced address is retrievable",
		ArgsUsage: "<release page URL>",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			workflow, store, err := cfg.workflow(ctx, cmd)
			if err != nil {
				return err
			}
			target, err := cfg.target(store, &pubCfg)
			if err != nil {
				return err
			}
			report, verifyErr := workflow.Verify(ctx, target, usecase.VerifyOptions{
				Timeout: cfg.fcp.Timeout,
				Deep:    deep,
			})
			if report != nil {
				printVerifySummary(report)
			}
			return verifyErr
		},
	}
}

func cmdPromote() *cli.Command {
	var cfg stageConfig
	var pubCfg config.Publish
	var clCfg config.Changelog
	var deep bool
	flags := append(cfg.flags(), pubCfg.Flags()...)
	flags = append(flags, clCfg.Flags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "deep",
		Usage:       "Run the final verification in deep mode",
		Destination: &deep,
	})
	return &cli.Command{
		Name:      "promote",
		Usage:     "Run the full pipeline: fetch, insert, changelogs, descriptor, publish, verify",
		ArgsUsage: "<release page URL>",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			workflow, store, err := cfg.workflow(ctx, cmd)
			if err != nil {
				return err
			}
			target, err := cfg.target(store, &pubCfg)
			if err != nil {
				return err
			}

			if _, err := workflow.FetchAssets(ctx); err != nil {
				return err
			}
			if _, err := workflow.InsertArtifacts(ctx); err != nil {
				return err
			}
			if _, err := workflow.UploadChangelogs(ctx, clCfg.ShortFile, clCfg.FullFile); err != nil {
				return err
			}
			if _, _, err := workflow.GenerateDescriptor(ctx); err != nil {
				return err
			}
			if _, err := workflow.PublishDescriptor(ctx, target, pubCfg.ForceRepublish); err != nil {
				return err
			}

			report, verifyErr := workflow.Verify(ctx, target, usecase.VerifyOptions{
				Timeout: cfg.fcp.Timeout,
				Deep:    deep,
			})
			if report != nil {
				printVerifySummary(report)
			}
			return verifyErr
		},
	}
}

// printVerifySummary renders a human-readable verification result on stdout.
// The machine-readable copy always lands in the workdir's verify.json.
func printVerifySummary(report *model.VerifyReport) {
	okMark := color.New(color.FgGreen).SprintFunc()
	ngMark := color.New(color.FgRed).SprintFunc()

	fmt.Printf("descriptor: %s\n", report.DescriptorURI)
	if report.FallbackUsed {
		fmt.Printf("  fetched via recorded publication locator: %s\n", report.DescriptorURIResolved)
	}
	for _, msg := range report.SchemaErrors {
		fmt.Printf("  %s schema: %s\n", ngMark("NG"), msg)
	}
	for _, msg := range report.IdentityErrors {
		fmt.Printf("  %s identity: %s\n", ngMark("NG"), msg)
	}
	for _, check := range report.CHKChecks {
		mark := okMark("OK")
		if !check.Retrievable {
			mark = ngMark("NG")
		}
		line := fmt.Sprintf("  %s %s %s", mark, check.Kind, check.Key)
		if check.Error != "" {
			line += " (" + check.Error + ")"
		}
		fmt.Fprintln(os.Stdout, line)
	}

	if report.OK {
		fmt.Printf("result: %s\n", okMark("verified"))
	} else {
		fmt.Printf("result: %s\n", ngMark("failed"))
	}
}
