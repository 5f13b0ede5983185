// Package main provides the conformity binary entry point.
// Conformity checks Ansible-style repositories for naming and layout
// drift: role, group, host, and playbook names plus the variables they
// declare are validated against a rule table and reported in one pass.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/conformity/classify"
	"github.com/c360studio/conformity/config"
	"github.com/c360studio/conformity/metrics"
	"github.com/c360studio/conformity/report"
	"github.com/c360studio/conformity/ruleset"
	"github.com/c360studio/conformity/scan"
	"github.com/c360studio/conformity/validate"
	"github.com/c360studio/conformity/watch"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "conformity"
)

// Exit codes: 0 clean, 1 violations found, 2 invocation or environment error.
const (
	exitClean      = 0
	exitViolations = 1
	exitFatal      = 2
)

// exitError carries a specific process exit code out of cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(exitFatal)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
}

// rootFlags are the persistent flags shared by all subcommands.
type rootFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	rf := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "conformity",
		Short: "Naming and layout conformance checker for Ansible repositories",
		Long: `Conformity checks an Ansible-style repository against a table of
naming and layout rules.

It validates:
- Role, group, host, and playbook names (casing and plurality)
- Variable prefixes derived from the owning scope
- File and directory locations for each entity kind
- README documentation for public role defaults

A run scans the whole tree, classifies every entity against the rule
table, and reports all violations at once. Exit code 0 means the tree
is clean, 1 means violations or scan warnings were found, 2 means the
run itself failed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&rf.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&rf.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newCheckCmd(rf))
	cmd.AddCommand(newRulesCmd(rf))
	cmd.AddCommand(newWatchCmd(rf))
	cmd.AddCommand(newInitCmd(rf))

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func newCheckCmd(rf *rootFlags) *cobra.Command {
	var (
		format     string
		strict     bool
		workers    int
		publishURL string
	)

	cmd := &cobra.Command{
		Use:   "check <root>",
		Short: "Check a repository tree once and report all violations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogging(rf.logLevel)
			cfg, err := loadConfig(rf.configPath, args[0], logger)
			if err != nil {
				return err
			}
			if format != "" {
				cfg.Output.Format = format
			}
			if cmd.Flags().Changed("strict") {
				cfg.Output.Strict = strict
			}
			if workers > 0 {
				cfg.Workers = workers
			}
			if publishURL != "" {
				cfg.Publish.URL = publishURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runCheck(cmd.Context(), cfg, args[0], logger)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Report format (text, json)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on ambiguous and unclassified entities too")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent validation workers (0 = config value)")
	cmd.Flags().StringVar(&publishURL, "publish", "", "NATS URL to publish the report to")

	return cmd
}

func runCheck(ctx context.Context, cfg *config.Config, root string, logger *slog.Logger) error {
	p, err := newPipeline(cfg, root, logger)
	if err != nil {
		return err
	}

	rep, err := p.runOnce(ctx)
	if err != nil {
		return err
	}

	if err := emitReport(ctx, cfg, rep, logger); err != nil {
		return err
	}

	if code := rep.ExitCode(cfg.Output.Strict); code != exitClean {
		return &exitError{code: code}
	}
	return nil
}

func newRulesCmd(rf *rootFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the rule table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogging(rf.logLevel)
			cfg, err := loadConfig(rf.configPath, ".", logger)
			if err != nil {
				return err
			}
			if format != "" {
				cfg.Output.Format = format
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			table, err := ruleset.New(rulesetOptions(cfg))
			if err != nil {
				return fmt.Errorf("build rule table: %w", err)
			}
			return renderRules(os.Stdout, table, report.Format(cfg.Output.Format))
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (text, json)")

	return cmd
}

func newWatchCmd(rf *rootFlags) *cobra.Command {
	var (
		format      string
		strict      bool
		workers     int
		publishURL  string
		metricsAddr string
		debounce    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <root>",
		Short: "Re-run the check whenever files under the root change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogging(rf.logLevel)
			cfg, err := loadConfig(rf.configPath, args[0], logger)
			if err != nil {
				return err
			}
			if format != "" {
				cfg.Output.Format = format
			}
			if cmd.Flags().Changed("strict") {
				cfg.Output.Strict = strict
			}
			if workers > 0 {
				cfg.Workers = workers
			}
			if publishURL != "" {
				cfg.Publish.URL = publishURL
			}
			if metricsAddr != "" {
				cfg.Watch.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("debounce") {
				cfg.Watch.Debounce = debounce
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runWatch(cmd.Context(), cfg, args[0], logger)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Report format (text, json)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on ambiguous and unclassified entities too")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent validation workers (0 = config value)")
	cmd.Flags().StringVar(&publishURL, "publish", "", "NATS URL to publish reports to")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9187)")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Settle delay between a change and the re-run")

	return cmd
}

func runWatch(ctx context.Context, cfg *config.Config, root string, logger *slog.Logger) error {
	p, err := newPipeline(cfg, root, logger)
	if err != nil {
		return err
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if cfg.Watch.MetricsAddr != "" {
		server := metrics.SetupMetricsEndpoint(cfg.Watch.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		logger.Info("Metrics endpoint listening", "addr", cfg.Watch.MetricsAddr)
	}

	run := func(runCtx context.Context) (*report.Report, error) {
		start := time.Now()
		rep, err := p.runOnce(runCtx)
		if err != nil {
			if runCtx.Err() == nil {
				metrics.RecordRunError()
			}
			return nil, err
		}
		observeReport(rep, time.Since(start))
		return rep, nil
	}

	// Initial check before watching
	rep, err := run(signalCtx)
	if err != nil {
		return err
	}
	if err := emitReport(signalCtx, cfg, rep, logger); err != nil {
		return err
	}

	w, err := watch.New(root, run, watch.Options{
		Debounce: cfg.Watch.Debounce,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := w.Start(signalCtx); err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-signalCtx.Done():
			logger.Info("Received shutdown signal")
			return nil
		case rep, ok := <-w.Reports():
			if !ok {
				return nil
			}
			if err := emitReport(signalCtx, cfg, rep, logger); err != nil {
				logger.Error("Failed to render report", "error", err)
			}
		}
	}
}

func newInitCmd(rf *rootFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter " + config.ProjectConfigFile,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(rf.logLevel)
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path := filepath.Join(dir, config.ProjectConfigFile)
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}
			if err := config.DefaultConfig().SaveToFile(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// setupLogging configures the default slog logger on stderr. Reports go
// to stdout, diagnostics to stderr, so report output stays parseable.
func setupLogging(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig loads layered configuration, preferring an explicit file.
func loadConfig(configPath, startDir string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.NewLoader(logger).Load(startDir)
}

func rulesetOptions(cfg *config.Config) ruleset.Options {
	return ruleset.Options{
		Clusters:         cfg.Rules.Clusters,
		ClusterPattern:   cfg.Rules.ClusterPattern,
		PluralExceptions: cfg.Rules.PluralExceptions,
		ExemptGroups:     cfg.Rules.ExemptGroups,
		PlaybookDirs:     cfg.Scan.PlaybookDirs,
	}
}

// pipeline wires the scanner, classifier, and validator for one root.
type pipeline struct {
	root       string
	scanner    *scan.Scanner
	classifier *classify.Classifier
	validator  *validate.Validator
}

func newPipeline(cfg *config.Config, root string, logger *slog.Logger) (*pipeline, error) {
	table, err := ruleset.New(rulesetOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("build rule table: %w", err)
	}

	validator := validate.New(table)
	validator.Workers = cfg.Workers

	return &pipeline{
		root: root,
		scanner: scan.New(scan.Options{
			IgnorePatterns: cfg.Scan.Ignore,
			PlaybookDirs:   cfg.Scan.PlaybookDirs,
			Logger:         logger,
		}),
		classifier: classify.New(table),
		validator:  validator,
	}, nil
}

// runOnce executes one full scan, classify, validate pass.
func (p *pipeline) runOnce(ctx context.Context) (*report.Report, error) {
	scanRes, err := p.scanner.Scan(ctx, p.root)
	if err != nil {
		return nil, err
	}

	clsRes := p.classifier.Classify(scanRes.Entities)

	p.validator.Docs = scanRes.RoleDocs
	violations, err := p.validator.Validate(ctx, clsRes.Classified)
	if err != nil {
		return nil, err
	}

	return report.Build(scanRes, clsRes, violations), nil
}

// emitReport renders the report to stdout and publishes it when a NATS
// URL is configured.
func emitReport(ctx context.Context, cfg *config.Config, rep *report.Report, logger *slog.Logger) error {
	if err := report.Render(os.Stdout, rep, report.Format(cfg.Output.Format)); err != nil {
		return err
	}
	publishReport(ctx, cfg, rep, logger)
	return nil
}

// publishReport posts the report to NATS. Publish failures are logged,
// never fatal: the local report already reached stdout.
func publishReport(ctx context.Context, cfg *config.Config, rep *report.Report, logger *slog.Logger) {
	if cfg.Publish.URL == "" {
		return
	}

	pub, err := report.NewPublisher(cfg.Publish.URL, cfg.Publish.Subject)
	if err != nil {
		logger.Warn("Report publishing unavailable", "url", cfg.Publish.URL, "error", err)
		return
	}
	defer pub.Close()

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pub.Publish(pubCtx, rep); err != nil {
		logger.Warn("Failed to publish report", "error", err)
		return
	}
	logger.Debug("Report published", "run_id", rep.RunID)
}

// observeReport updates the watch-mode metrics from a completed run.
func observeReport(rep *report.Report, duration time.Duration) {
	metrics.RecordRun(rep.Passed(), duration)
	metrics.SetEntityCount(rep.Counts.Entities)
	metrics.ResetViolations()

	counts := make(map[string]int)
	for _, v := range rep.Violations {
		counts[string(v.Reason)]++
	}
	for reason, n := range counts {
		metrics.SetViolationCount(reason, n)
	}
}

// renderRules prints the rule table in the requested format.
func renderRules(w io.Writer, table *ruleset.Table, f report.Format) error {
	switch f {
	case report.FormatJSON:
		kinds := table.Kinds()
		rules := make([]ruleset.Rule, 0, len(kinds))
		for _, kind := range kinds {
			rule, err := table.RulesFor(kind)
			if err != nil {
				return err
			}
			rules = append(rules, rule)
		}
		data, err := json.MarshalIndent(rules, "", "  ")
		if err != nil {
			return fmt.Errorf("encode rules: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case report.FormatText:
		for _, kind := range table.Kinds() {
			rule, err := table.RulesFor(kind)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\n", kind)
			fmt.Fprintf(w, "  %s\n", rule.Description)
			fmt.Fprintf(w, "  plurality: %s\n", rule.NamePlurality)
			if rule.Marker != "" {
				fmt.Fprintf(w, "  marker:    %s\n", rule.Marker)
			}
			if len(rule.Locations) > 0 {
				fmt.Fprintf(w, "  locations: %s\n", strings.Join(rule.Locations, ", "))
			}
			if len(rule.VarLocations) > 0 {
				fmt.Fprintf(w, "  variables: %s\n", strings.Join(rule.VarLocations, ", "))
			}
			if rule.RequiresVarsDoc {
				fmt.Fprintf(w, "  readme:    required for public defaults\n")
			}
			fmt.Fprintln(w)
		}
		return nil

	default:
		return fmt.Errorf("unknown output format %q", f)
	}
}
