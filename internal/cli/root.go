// Package cli implements the zonegraph command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/config"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/logging"
)

// app carries what every subcommand needs once the config is loaded.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *log.Logger
}

// NewRootCommand builds the zonegraph command tree. Each call gets its own
// viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "zonegraph",
		Short: "Zone-aware knowledge graph memory for MCP clients",
		Long: `zonegraph stores entities, observations and relations in isolated
memory zones on top of SQLite or Elasticsearch, and serves them to
MCP clients over stdio or streamable HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.zonegraph.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json, logfmt)")
	flags.String("driver", config.DriverSQLite, "search engine driver (sqlite, elasticsearch)")
	flags.String("data-dir", "", "directory for SQLite index files")
	flags.String("url", "", "Elasticsearch URL")
	flags.String("index-prefix", "", "prefix of every index name")

	bind := map[string]string{
		"log.level":           "log-level",
		"log.format":          "log-format",
		"engine.driver":       "driver",
		"engine.data_dir":     "data-dir",
		"engine.url":          "url",
		"engine.index_prefix": "index-prefix",
	}
	for key, flag := range bind {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newServeCommand(a),
		newZonesCommand(a),
		newExportCommand(a),
		newImportCommand(a),
		newCopyCommand(a),
		newMoveCommand(a),
		newMergeCommand(a),
	)
	return root
}

// Execute runs the command line until ctx is cancelled.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) load() error {
	if err := config.Init(a.v, a.cfgFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
