// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command routerctl routes queries offline, prints decision reports and
// exports decision records.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/traylinx/switchai-router/internal/config"
	"github.com/traylinx/switchai-router/internal/export"
	"github.com/traylinx/switchai-router/internal/reporting"
	"github.com/traylinx/switchai-router/internal/routing"
	"github.com/traylinx/switchai-router/internal/store"
	"github.com/traylinx/switchai-router/internal/util"
)

var configFile string

func main() {
	log.SetLevel(log.WarnLevel)
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "routerctl",
		Short:        "Inspect and operate the model router",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (defaults when empty)")

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(validateCmd())
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(configFile)
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open decision store: %w", err)
	}
	return st, nil
}

func routeCmd() *cobra.Command {
	var (
		rc         routing.Context
		workspace  string
		current    string
		feature    string
		phase      string
		recent     []int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "route [query]",
		Short: "Show the routing decision for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			r, err := routing.NewRouter(cfg.Routing)
			if err != nil {
				return err
			}

			if workspace != "" {
				rc.WorkspaceType = &workspace
			}
			if current != "" {
				rc.CurrentModel = &current
			}
			if feature != "" {
				rc.FeatureMode = &routing.FeatureMode{Name: feature, Phase: routing.FeaturePhase(phase)}
			}
			rc.RecentScores = recent

			d := r.Route(args[0], rc)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			printDecision(cmd.OutOrStdout(), d)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&rc.Provider, "provider", "", "provider whose tier map is used")
	f.BoolVar(&rc.ThinkingMode, "thinking", false, "caller requested deep reasoning")
	f.StringVar(&rc.AccountTier, "account-tier", "", "account plan tier")
	f.StringVar(&workspace, "workspace", "", "workspace type")
	f.BoolVar(&rc.HasDocuments, "documents", false, "conversation has attached documents")
	f.IntVar(&rc.ConversationTurn, "turn", 1, "conversation turn number")
	f.StringVar(&current, "current-model", "", "model serving the conversation so far")
	f.StringVar(&feature, "feature", "", "active guided feature name")
	f.StringVar(&phase, "phase", "", "active feature phase")
	f.IntSliceVar(&recent, "recent", nil, "recent complexity scores")
	f.BoolVar(&jsonOutput, "json", false, "print the full decision as JSON")
	return cmd
}

func printDecision(w io.Writer, d routing.Decision) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Model:\t%s (%s)\n", d.SelectedModel, d.Provider)
	fmt.Fprintf(tw, "Tier:\t%s\n", d.Tier)
	fmt.Fprintf(tw, "Score:\t%d\n", d.Complexity.Score)
	fmt.Fprintf(tw, "Confidence:\t%.2f\n", d.Complexity.Confidence)
	fmt.Fprintf(tw, "Signals:\t%s\n", strings.Join(d.Complexity.MatchedSignalNames(), ", "))
	overrides := "none"
	if len(d.Overrides) > 0 {
		overrides = strings.Join(d.OverrideTypes(), ", ")
	}
	fmt.Fprintf(tw, "Overrides:\t%s\n", overrides)
	fmt.Fprintf(tw, "Reasoning:\t%s\n", d.Reasoning)
	fmt.Fprintf(tw, "Thresholds:\t%s\n", d.ThresholdsVersion)
	tw.Flush()
}

type windowFlags struct {
	account  string
	lookback time.Duration
	since    string
	until    string
}

func (w *windowFlags) register(cmd *cobra.Command, lookback time.Duration) {
	f := cmd.Flags()
	f.StringVar(&w.account, "account", "", "restrict to one account")
	f.DurationVar(&w.lookback, "lookback", lookback, "window length ending at --until or now")
	f.StringVar(&w.since, "since", "", "window start (RFC3339), overrides --lookback")
	f.StringVar(&w.until, "until", "", "window end (RFC3339)")
}

func (w *windowFlags) filter(now time.Time) (store.Filter, error) {
	f := store.Filter{AccountID: w.account, Until: now}
	if w.until != "" {
		t, err := time.Parse(time.RFC3339, w.until)
		if err != nil {
			return f, fmt.Errorf("invalid --until: %w", err)
		}
		f.Until = t
	}
	if w.since != "" {
		t, err := time.Parse(time.RFC3339, w.since)
		if err != nil {
			return f, fmt.Errorf("invalid --since: %w", err)
		}
		f.Since = t
	} else {
		if w.lookback <= 0 {
			return f, errors.New("--lookback must be positive")
		}
		f.Since = f.Until.Add(-w.lookback)
	}
	if !f.Since.Before(f.Until) {
		return f, errors.New("window start must be before its end")
	}
	return f, nil
}

func reportCmd() *cobra.Command {
	var window windowFlags
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the decision summary for a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			f, err := window.filter(time.Now())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			sum, err := reporting.New(st, cfg.Routing).Summary(ctx, f)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}
	window.register(cmd, 7*24*time.Hour)
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		window windowFlags
		codec  string
		out    string
		upload bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export decision records as compressed JSON Lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			f, err := window.filter(time.Now())
			if err != nil {
				return err
			}
			if codec != "" {
				cfg.Export.Codec = codec
			}
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			exp, err := export.New(st, cfg.Export)
			if err != nil {
				return err
			}
			if upload {
				res, errUpload := exp.Upload(ctx, f)
				if errUpload != nil {
					return errUpload
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d records to %s/%s (%d bytes)\n", res.Records, res.Bucket, res.Object, res.Bytes)
				return nil
			}

			if out == "-" {
				_, err = exp.Write(ctx, cmd.OutOrStdout(), f)
				return err
			}
			if out == "" {
				out = strings.ReplaceAll(export.ObjectName("", f, exp.Codec()), "/", "_")
			}
			var n int64
			err = util.SecureWrite(out, func(w io.Writer) error {
				var errWrite error
				n, errWrite = exp.Write(ctx, w, f)
				return errWrite
			}, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d records to %s\n", n, out)
			return nil
		},
	}
	window.register(cmd, 24*time.Hour)
	cmd.Flags().StringVar(&codec, "codec", "", "zstd, gzip, brotli or none (defaults to export.codec)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file, - for stdout (defaults to a name derived from the window)")
	cmd.Flags().BoolVar(&upload, "upload", false, "upload to the configured object store instead of writing locally")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and compile its context rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rules, err := routing.CompileRules(cfg.Routing.ContextRules)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: thresholds %s, %d providers, %d context rules\n",
				cfg.Routing.Thresholds.Version, len(cfg.Routing.Providers), rules.Len())
			return nil
		},
	}
}
