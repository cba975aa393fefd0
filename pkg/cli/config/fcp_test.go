package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"

	"github.com/cryptad/update-releaser/pkg/cli/config"
)

func runFCPCommand(t *testing.T, cfg *config.FCP, args ...string) error {
	t.Helper()
	cmd := &cli.Command{
		Name:  "test",
		Flags: cfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			return cfg.ApplyFile(c)
		},
	}
	return cmd.Run(context.Background(), append([]string{"test"}, args...))
}

func TestFCPDefaults(t *testing.T) {
	var cfg config.FCP
	gt.NoError(t, runFCPCommand(t, &cfg))

	gt.Value(t, cfg.Host).Equal("127.0.0.1")
	gt.Value(t, cfg.Port).Equal(int64(9481))
	gt.Value(t, cfg.Persistence).Equal("forever")
	gt.True(t, cfg.GlobalQueue)
}

func TestFCPConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "releaser.toml")
	content := "[fcp]\nhost = \"node.internal\"\nport = 19481\npriority = 3\n"
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var cfg config.FCP
	gt.NoError(t, runFCPCommand(t, &cfg, "--config", path))

	gt.Value(t, cfg.Host).Equal("node.internal")
	gt.Value(t, cfg.Port).Equal(int64(19481))
	gt.Value(t, cfg.Priority).Equal(int64(3))
	// Values absent from the file keep their defaults.
	gt.Value(t, cfg.Persistence).Equal("forever")
}

func TestFCPExplicitFlagBeatsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "releaser.toml")
	content := "[fcp]\nhost = \"node.internal\"\n"
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var cfg config.FCP
	gt.NoError(t, runFCPCommand(t, &cfg, "--config", path, "--fcp-host", "10.0.0.1"))

	gt.Value(t, cfg.Host).Equal("10.0.0.1")
}

func TestFCPConfigFileErrors(t *testing.T) {
	var cfg config.FCP
	err := runFCPCommand(t, &cfg, "--config", filepath.Join(t.TempDir(), "missing.toml"))
	gt.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.toml")
	gt.NoError(t, os.WriteFile(path, []byte("[fcp\nbroken"), 0o644))

	var cfg2 config.FCP
	err = runFCPCommand(t, &cfg2, "--config", path)
	gt.Error(t, err)
}

func TestFCPPutOptions(t *testing.T) {
	cfg := config.FCP{Priority: 2, Persistence: "reboot", GlobalQueue: false}
	opts := cfg.PutOptions()

	gt.Value(t, opts.Priority).Equal(2)
	gt.Value(t, opts.Persistence).Equal("reboot")
	gt.False(t, opts.GlobalQueue)
}
