package config

import "github.com/urfave/cli/v3"

// GitHub holds release source configuration
type GitHub struct {
	Token string
}

// Flags returns CLI flags for the release source
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "GitHub API token (optional for public releases)",
			Destination: &c.Token,
			Sources:     cli.EnvVars("GITHUB_TOKEN", "RELEASER_GITHUB_TOKEN"),
		},
	}
}
