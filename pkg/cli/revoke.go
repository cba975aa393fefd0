package cli

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/urfave/cli/v3"

	"github.com/cryptad/update-releaser/pkg/cli/config"
	"github.com/cryptad/update-releaser/pkg/usecase"
)

func cmdRevoke() *cli.Command {
	var fcpCfg config.FCP
	var revokeURI string
	var message string
	var dryRun bool

	flags := fcpCfg.Flags()
	flags = append(flags,
		&cli.StringFlag{
			Name:        "revoke-ssk",
			Usage:       "Insert URI of the revocation key",
			Required:    true,
			Destination: &revokeURI,
			Sources:     cli.EnvVars("RELEASER_REVOKE_SSK"),
		},
		&cli.StringFlag{
			Name:        "message",
			Usage:       "Human-readable reason broadcast to update clients",
			Required:    true,
			Destination: &message,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Print the planned revocation without inserting it",
			Destination: &dryRun,
		},
	)

	return &cli.Command{
		Name:  "revoke",
		Usage: "Publish an emergency revocation message under the revocation key",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := ctxlog.From(ctx)
			if err := fcpCfg.ApplyFile(cmd); err != nil {
				return err
			}
			if dryRun {
				logger.Info("[dry-run] would publish revocation message",
					"uri", revokeURI, "message", message)
				return nil
			}

			store := fcpCfg.Configure(ctx)
			uri, err := usecase.Revoke(ctx, store, revokeURI, message, fcpCfg.PutOptions())
			if err != nil {
				return err
			}
			logger.Info("revocation published", "uri", uri)
			return nil
		},
	}
}
