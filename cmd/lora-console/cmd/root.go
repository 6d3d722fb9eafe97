package cmd

import (
	"lora-console/api/client"
	"lora-console/config"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd is the root command called from main. All sub-commands are
// registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lora-console",
		Short:         "lora-console drives LoRA training jobs on a remote job server.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().String("config", "", "path to a YAML config file")
	cmd.PersistentFlags().String("api-url", "", "job API base URL (overrides config)")

	cmd.AddCommand(
		serveCmd(),
		watchCmd(),
		jobsCmd(),
		datasetCmd(),
		suggestCmd(),
	)
	return cmd
}

// env is what every networked command needs
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	api    *client.Client
}

func setup(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if apiURL, _ := cmd.Flags().GetString("api-url"); apiURL != "" {
		cfg.APIURL = apiURL
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	api, err := client.NewClient(cfg.APIURL, cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, api: api}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	return zcfg.Build()
}
