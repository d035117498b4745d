package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/datastash/stash"
	"github.com/datastash/stash/config"
)

var rootCmd = &cobra.Command{
	Use:   "stash",
	Short: "Move data between local paths and durable storage",
	Long:  "CLI for transferring files and directories between the local filesystem and s3, azure blob, or ftp storage.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("sandbox", "", "local scratch directory (default: a temp subdirectory)")
	rootCmd.PersistentFlags().String("raw-output-prefix", "", "default remote write root, e.g. s3://bucket/prefix")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	viper.SetEnvPrefix("STASH")
	viper.AutomaticEnv()
	viper.BindPFlag("sandbox", rootCmd.PersistentFlags().Lookup("sandbox"))
	viper.BindPFlag("raw_output_prefix", rootCmd.PersistentFlags().Lookup("raw-output-prefix"))
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if v, _ := rootCmd.PersistentFlags().GetBool("verbose"); v {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

func newProvider() (*stash.Provider, error) {
	cfg := config.FromEnv()

	sandbox := viper.GetString("sandbox")
	if sandbox == "" {
		sandbox = filepath.Join(os.TempDir(), "stash")
	}
	prefix := viper.GetString("raw_output_prefix")
	if prefix == "" {
		prefix = sandbox
	}

	return stash.New(sandbox, prefix, cfg, stash.WithLogger(newLogger()))
}
