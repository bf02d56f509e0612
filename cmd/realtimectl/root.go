package main

import (
	"encoding/json"
	"io"

	config "github.com/avatarctic/realtime-core/configs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "realtimectl",
		Short: "Inspect the realtime cache and gateway",
		Long: `realtimectl reads the same environment (and .env file) as the gateway.

Examples:
  realtimectl cache stats
  realtimectl cache del-tag participant:client:42
  realtimectl token issue --type coach --id 7
  realtimectl listen --conversation c1 --token "$TOKEN"`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug/info/warn/error")

	cmd.AddCommand(newCacheCmd(opts))
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newListenCmd(opts))
	return cmd
}

func (o *rootOptions) logger(w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	return logger
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
