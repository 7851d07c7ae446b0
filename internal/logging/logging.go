// Package logging builds the structured logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Config selects the level and output format of the logger.
type Config struct {
	Level  string
	Format string
}

// New builds a logger writing to stderr. Stdout is reserved for the stdio
// MCP transport.
func New(cfg Config) (*log.Logger, error) {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(w io.Writer, cfg Config) (*log.Logger, error) {
	level := log.InfoLevel
	if cfg.Level != "" {
		l, err := log.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = l
	}

	var formatter log.Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("unknown log format %q (use text, json or logfmt)", cfg.Format)
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}), nil
}
