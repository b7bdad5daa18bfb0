// Package cli implements the orthanc-cli commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ewag/orthanc-graph/internal/config"
	"github.com/ewag/orthanc-graph/internal/entity"
	"github.com/ewag/orthanc-graph/internal/orthanc"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgFile    string
	jsonOutput bool

	cfg    *config.Config
	client *orthanc.Client
	graph  *entity.Graph
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "orthanc-cli",
		Short: "Browse an Orthanc archive and follow its change log",
		Long: `Inspect patients, studies, series and instances stored in an Orthanc
archive, and list entities that recently became stable.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: environment only)")
	rootCmd.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output results as JSON")

	rootCmd.AddCommand(
		newChangesCmd(a),
		newResetChangesCmd(a),
		newPatientCmd(a),
		newStudyCmd(a),
		newSeriesCmd(a),
		newInstanceCmd(a),
		newSendCmd(a),
		newModalitiesCmd(a),
	)
	return rootCmd
}

// Execute runs the CLI and exits non-zero on failure. Ctrl+C cancels any
// request or change log walk in flight.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	a.cfg = cfg
	a.client = orthanc.NewClient(cfg.OrthancURL, cfg.HttpClientTimeout,
		orthanc.WithBasicAuth(cfg.OrthancUsername, cfg.OrthancPassword),
		orthanc.WithLogger(logger),
	)
	a.graph = entity.NewGraph(a.client)
	return nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	return nil
}

// printFields writes label/value rows as an aligned table, skipping empty values.
func printFields(w io.Writer, rows [][2]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
	}
	return tw.Flush()
}
