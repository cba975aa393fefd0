package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/cryptad/update-releaser/pkg/cli/config"
	"github.com/cryptad/update-releaser/pkg/domain/types"
)

// Run runs the CLI application and returns the process exit code. Failed
// verification is distinguished from other errors so CI can react to it.
func Run(ctx context.Context, args []string) int {
	var loggerCfg config.Logger
	var logger *slog.Logger

	app := &cli.Command{
		Name:    "update-releaser",
		Usage:   "Promote GitHub release artifacts into update descriptors published over FCP",
		Version: types.Version,
		Flags:   loggerCfg.Flags(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			logger, err = loggerCfg.Configure()
			if err != nil {
				return nil, err
			}

			slog.SetDefault(logger)
			ctx = ctxlog.With(ctx, logger)
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmdFetchAssets(),
			cmdInsertArtifacts(),
			cmdUploadChangelogs(),
			cmdGenerateDescriptor(),
			cmdPublishDescriptor(),
			cmdVerify(),
			cmdPromote(),
			cmdRevoke(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("command failed", slog.Any("error", err))

		if goerr.HasTag(err, types.ErrTagVerifyFailed) {
			return 2
		}
		return 1
	}
	return 0
}
