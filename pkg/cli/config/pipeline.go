package config

import (
	"github.com/urfave/cli/v3"

	"github.com/cryptad/update-releaser/pkg/domain/types"
)

// Pipeline holds shared pipeline run configuration
type Pipeline struct {
	Workdir  string
	DryRun   bool
	Parallel int64
}

// Flags returns CLI flags shared by all pipeline stages
func (c *Pipeline) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "workdir",
			Usage:       "Base working directory; state lives under <workdir>/<edition>/",
			Value:       "./dist",
			Destination: &c.Workdir,
			Sources:     cli.EnvVars("RELEASER_WORKDIR"),
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Print planned operations without mutating remote services",
			Destination: &c.DryRun,
		},
		&cli.Int64Flag{
			Name:        "parallel",
			Usage:       "Concurrent network operations within a stage",
			Value:       2,
			Destination: &c.Parallel,
			Sources:     cli.EnvVars("RELEASER_PARALLEL"),
		},
	}
}

// Publish holds publish target configuration
type Publish struct {
	Target         string
	StagingKeyFile string
	ForceRepublish bool
}

// Flags returns CLI flags for publish target selection
func (c *Publish) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "publish-to",
			Usage:       "Publish target (staging or production)",
			Value:       types.PublishToStaging,
			Destination: &c.Target,
			Sources:     cli.EnvVars("RELEASER_PUBLISH_TO"),
		},
		&cli.StringFlag{
			Name:        "staging-usk-file",
			Usage:       "Path to the staging channel key file; generated on first staging publish",
			Value:       "staging-usk.txt",
			Destination: &c.StagingKeyFile,
			Sources:     cli.EnvVars("RELEASER_STAGING_USK_FILE"),
		},
		&cli.BoolFlag{
			Name:        "force-republish",
			Usage:       "Allow publishing a changed descriptor to an already-published edition",
			Destination: &c.ForceRepublish,
		},
	}
}

// Changelog holds changelog override configuration
type Changelog struct {
	ShortFile string
	FullFile  string
}

// Flags returns CLI flags for changelog overrides
func (c *Changelog) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "changelog-file",
			Usage:       "Path to a short changelog text/markdown file",
			Destination: &c.ShortFile,
		},
		&cli.StringFlag{
			Name:        "fullchangelog-file",
			Usage:       "Path to a full changelog text/markdown file",
			Destination: &c.FullFile,
		},
	}
}
