package config

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/cryptad/update-releaser/pkg/domain/interfaces"
	"github.com/cryptad/update-releaser/pkg/domain/types"
	"github.com/cryptad/update-releaser/pkg/infra/fcp"
)

// FCP holds content network connection configuration. Values may come from
// flags, environment, or an optional TOML file; the file never carries any
// signing secret.
type FCP struct {
	Host        string
	Port        int64
	Priority    int64
	Persistence string
	GlobalQueue bool
	Timeout     time.Duration
	ConfigPath  string
}

type fcpFileConfig struct {
	FCP struct {
		Host        *string `toml:"host"`
		Port        *int64  `toml:"port"`
		Priority    *int64  `toml:"priority"`
		Persistence *string `toml:"persistence"`
		GlobalQueue *bool   `toml:"global_queue"`
	} `toml:"fcp"`
}

// Flags returns CLI flags for the content network connection
func (c *FCP) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "fcp-host",
			Usage:       "FCP host",
			Value:       "127.0.0.1",
			Destination: &c.Host,
			Sources:     cli.EnvVars("FCP_HOST", "RELEASER_FCP_HOST"),
		},
		&cli.Int64Flag{
			Name:        "fcp-port",
			Usage:       "FCP port",
			Value:       9481,
			Destination: &c.Port,
			Sources:     cli.EnvVars("FCP_PORT", "RELEASER_FCP_PORT"),
		},
		&cli.Int64Flag{
			Name:        "priority",
			Usage:       "FCP priority class (0 highest, 6 lowest)",
			Value:       1,
			Destination: &c.Priority,
			Sources:     cli.EnvVars("RELEASER_FCP_PRIORITY"),
		},
		&cli.StringFlag{
			Name:        "persistence",
			Usage:       "FCP request persistence mode (connection, reboot, forever)",
			Value:       "forever",
			Destination: &c.Persistence,
			Sources:     cli.EnvVars("RELEASER_FCP_PERSISTENCE"),
		},
		&cli.BoolFlag{
			Name:        "global-queue",
			Usage:       "Insert via the FCP global queue",
			Value:       true,
			Destination: &c.GlobalQueue,
			Sources:     cli.EnvVars("RELEASER_FCP_GLOBAL_QUEUE"),
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Timeout per network operation",
			Value:       60 * time.Second,
			Destination: &c.Timeout,
			Sources:     cli.EnvVars("RELEASER_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Optional TOML file with FCP connection defaults",
			Destination: &c.ConfigPath,
			Sources:     cli.EnvVars("RELEASER_CONFIG"),
		},
	}
}

// ApplyFile overlays values from the optional config file. Explicit flags
// and environment variables win over the file.
func (c *FCP) ApplyFile(cmd *cli.Command) error {
	if c.ConfigPath == "" {
		return nil
	}
	raw, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file",
			goerr.T(types.ErrTagConfig), goerr.V("path", c.ConfigPath))
	}

	var file fcpFileConfig
	if err := toml.Unmarshal(raw, &file); err != nil {
		return goerr.Wrap(err, "failed to parse config file",
			goerr.T(types.ErrTagConfig), goerr.V("path", c.ConfigPath))
	}

	if file.FCP.Host != nil && !cmd.IsSet("fcp-host") {
		c.Host = *file.FCP.Host
	}
	if file.FCP.Port != nil && !cmd.IsSet("fcp-port") {
		c.Port = *file.FCP.Port
	}
	if file.FCP.Priority != nil && !cmd.IsSet("priority") {
		c.Priority = *file.FCP.Priority
	}
	if file.FCP.Persistence != nil && !cmd.IsSet("persistence") {
		c.Persistence = *file.FCP.Persistence
	}
	if file.FCP.GlobalQueue != nil && !cmd.IsSet("global-queue") {
		c.GlobalQueue = *file.FCP.GlobalQueue
	}
	return nil
}

// Configure builds the content store client with bounded retry and timeout.
func (c *FCP) Configure(_ context.Context) interfaces.ContentStore {
	client := fcp.New(fcp.Config{Host: c.Host, Port: int(c.Port)})
	return fcp.WithRetry(client, c.Timeout)
}

// PutOptions returns the insert options derived from this configuration.
func (c *FCP) PutOptions() interfaces.PutOptions {
	return interfaces.PutOptions{
		Priority:    int(c.Priority),
		Persistence: c.Persistence,
		GlobalQueue: c.GlobalQueue,
	}
}
