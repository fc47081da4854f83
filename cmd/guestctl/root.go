package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wedding-sync/internal/config"
	"wedding-sync/internal/engine"
	"wedding-sync/internal/gateway"
	"wedding-sync/internal/models"
	"wedding-sync/internal/storage"
)

// validFormats defines the allowed output formats.
var validFormats = []string{"text", "json"}

// console holds global flags and the engine shared by every command.
type console struct {
	backendURL string
	cacheFile  string
	eventID    string
	format     string
	verbose    bool

	out    io.Writer
	errOut io.Writer
	log    zerolog.Logger
	engine *engine.Engine
}

func newRootCommand(c *console) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "guestctl",
		Short:         "Manage wedding guests, tables and campaigns",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(c.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", c.format, validFormats)
			}
			return c.open(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&c.backendURL, "backend", "", "backend URL (default $BACKEND_URL)")
	cmd.PersistentFlags().StringVar(&c.cacheFile, "cache", "", "local cache file (default $CACHE_FILE)")
	cmd.PersistentFlags().StringVarP(&c.eventID, "event", "e", "", "event id (default: the current event)")
	cmd.PersistentFlags().StringVar(&c.format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newEventsCommand(c))
	cmd.AddCommand(newGuestsCommand(c))
	cmd.AddCommand(newAddCommand(c))
	cmd.AddCommand(newUpdateCommand(c))
	cmd.AddCommand(newRSVPCommand(c))
	cmd.AddCommand(newDeleteCommand(c))
	cmd.AddCommand(newSeatCommand(c))
	cmd.AddCommand(newTablesCommand(c))
	cmd.AddCommand(newImportCommand(c))
	cmd.AddCommand(newDrainCommand(c))
	cmd.AddCommand(newSyncCommand(c))
	cmd.AddCommand(newPendingCommand(c))
	cmd.AddCommand(newCampaignsCommand(c))
	cmd.AddCommand(newWatchCommand(c))

	return cmd
}

// open builds the engine and refreshes the cache from the backend. A
// backend that cannot be reached leaves the cached events in place.
func (c *console) open(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if c.backendURL == "" {
		c.backendURL = cfg.BackendURL
	}
	if c.cacheFile == "" {
		c.cacheFile = cfg.CacheFile
	}

	level := cfg.Level()
	if c.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: c.errOut, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
	c.log = logger

	campaigns, err := cfg.Campaigns()
	if err != nil {
		return err
	}
	store, err := storage.NewStorage(c.cacheFile)
	if err != nil {
		return err
	}
	gw, err := gateway.NewClient(gateway.Config{BaseURL: c.backendURL}, logger)
	if err != nil {
		return err
	}

	c.engine = engine.New(store, gw, engine.Config{
		PollInterval:     cfg.PollInterval,
		RequestTimeout:   cfg.RequestTimeout,
		DefaultCampaigns: campaigns,
	}, logger)

	_, err = c.engine.Refresh(cmd.Context(), false, true)
	return err
}

// close waits for background writes and saves the cache.
func (c *console) close() {
	if c.engine != nil {
		c.engine.Close()
	}
}

// event returns the event selected with --event or the current one.
func (c *console) event() (models.Event, error) {
	if c.eventID != "" {
		return c.engine.Event(c.eventID)
	}
	return c.engine.Current()
}

// print writes v as JSON, or calls text for the text format.
func (c *console) print(v any, text func(w io.Writer)) error {
	if c.format == "json" {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(c.out)
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}
