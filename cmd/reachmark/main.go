// Package main implements the CLI driver for the reachmark analyzer.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/715d/reachmark/internal/keeprules"
	"github.com/715d/reachmark/internal/resources"
	"github.com/715d/reachmark/pkg/dexmodel"
	"github.com/715d/reachmark/pkg/reachability"
)

// Config holds all command-line configuration options for reachmark.
type Config struct {
	Snapshot   string // program snapshot file to analyze
	ConfigFile string // yaml run configuration
	SeedsFile  string // seed allowlist override
	RulesFile  string // keep-rule file override
	APKDir     string // unpacked apk directory override
	ReportBase string // base path of the three report files
	Verbose    bool   // enables detailed output and statistics
	JSON       bool   // enables JSON output format
	Profile    bool   // enables CPU and memory profiling
}

const exitError = 2

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config

func main() {
	var rootCmd = &cobra.Command{
		Use:   "reachmark <snapshot>",
		Short: "Compute delete/rename safety verdicts for a compiled app",
		Long: `reachmark decides, for every class, method, and field of a compiled
application, whether later optimizer passes may delete or rename it.

Evidence sources: direct bytecode use, reflection-by-name, manifest and
layout references, native libraries, keep rules, and seed allowlists.
Verdicts are written as three report files: <base>.cant_delete,
<base>.cant_rename, and <base>.must_keep.`,
		Example: `  reachmark app.yaml                        # Analyze a program snapshot
  reachmark -c redex.yaml app.yaml          # With a run configuration
  reachmark --seeds seeds.txt app.yaml      # Explicit seed allowlist
  reachmark -v --json app.yaml              # Verbose JSON diagnostics`,
		Args:               cobra.ExactArgs(1),
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("reachmark version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	rootCmd.PersistentFlags().StringVarP(&cfg.ConfigFile, "config", "c", "", "YAML run configuration file")
	rootCmd.PersistentFlags().StringVar(&cfg.SeedsFile, "seeds", "", "Seed allowlist file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&cfg.RulesFile, "rules", "", "Keep-rule file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&cfg.APKDir, "apk-dir", "", "Unpacked apk directory (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&cfg.ReportBase, "report", "r", "", "Base path for report files (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")

	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func runCommand(_ *cobra.Command, args []string) error {
	cfg.Snapshot = args[0]

	result, err := runAnalysis(&cfg)
	if err != nil {
		return errWithCode(fmt.Errorf("analyze: %w", err), exitError)
	}

	if err := writeResults(result, &cfg); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}
	return nil
}

// Result represents the analysis output including the verdict lists and
// execution statistics.
type Result struct {
	Report *reachability.Report `json:"-"`
	Stats  struct {
		Classes          int           `json:"classes"`
		Entities         int           `json:"entities"`
		CantDelete       int           `json:"cant_delete"`
		CantRename       int           `json:"cant_rename"`
		Seeds            int           `json:"seeds"`
		AnalysisDuration time.Duration `json:"analysis_duration"`
	} `json:"stats"`
	ReportFiles []string `json:"report_files"`
}

func runAnalysis(cfg *Config) (*Result, error) {
	start := time.Now()

	runCfg := &reachability.Config{}
	if cfg.ConfigFile != "" {
		var err error
		runCfg, err = reachability.LoadConfig(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
	}
	applyOverrides(runCfg, cfg)

	slog.Info("loading program snapshot", "path", cfg.Snapshot)
	program, err := dexmodel.LoadSnapshot(cfg.Snapshot)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded program", "classes", len(program.Classes))

	rules, err := loadRules(runCfg)
	if err != nil {
		return nil, err
	}

	opts := reachability.Options{
		Config: runCfg,
		Rules:  rules,
	}
	if runCfg.APKDir != "" {
		opts.Resources = resources.NewExtractor(runCfg.APKDir)
	}

	table := reachability.NewTable(program)
	marker := reachability.NewMarker(program, table)

	slog.Info("evaluating evidence sources")
	eval, err := reachability.InitReachable(program, marker, opts)
	if err != nil {
		return nil, err
	}

	report := reachability.BuildReport(program, table)
	duration := time.Since(start)
	slog.Info("analysis completed", "dur", duration)

	result := &Result{Report: report}
	result.Stats.Classes = len(program.Classes)
	result.Stats.Entities = table.Len()
	result.Stats.CantDelete = len(report.CantDelete)
	result.Stats.CantRename = len(report.CantRename)
	result.Stats.Seeds = eval.SeedCount()
	result.Stats.AnalysisDuration = duration

	base := runCfg.ReportBase
	if base == "" {
		base = "reachmark-report"
	}
	files, err := writeReport(report, base)
	if err != nil {
		// Verdicts are a required downstream artifact; a write failure
		// is a hard failure of the run.
		return nil, err
	}
	result.ReportFiles = files

	return result, nil
}

func applyOverrides(runCfg *reachability.Config, cfg *Config) {
	if cfg.SeedsFile != "" {
		runCfg.SeedsFile = cfg.SeedsFile
	}
	if cfg.RulesFile != "" {
		runCfg.KeepRulesFile = cfg.RulesFile
	}
	if cfg.APKDir != "" {
		runCfg.APKDir = cfg.APKDir
	}
	if cfg.ReportBase != "" {
		runCfg.ReportBase = cfg.ReportBase
	}
}

func loadRules(runCfg *reachability.Config) ([]keeprules.Rule, error) {
	if runCfg.KeepRulesFile == "" {
		return nil, nil
	}
	rules, err := keeprules.ParseFile(runCfg.KeepRulesFile)
	if err != nil {
		return nil, fmt.Errorf("parsing keep rules: %w", err)
	}
	slog.Info("parsed keep rules", "path", runCfg.KeepRulesFile, "rules", len(rules))
	return rules, nil
}

// writeReport materializes the three verdict lists, each file overwritten
// on every run.
func writeReport(report *reachability.Report, base string) ([]string, error) {
	var files []string
	for _, section := range report.Sections() {
		path := base + section.Suffix
		var b strings.Builder
		for _, line := range section.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return nil, fmt.Errorf("writing report %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func writeResults(result *Result, cfg *Config) error {
	if cfg.JSON {
		data, err := json.MarshalIndent(jOutput{
			Stats:       result.Stats,
			ReportFiles: result.ReportFiles,
			Version:     version,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling json output: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%d classes analyzed: %d cannot be deleted, %d cannot be renamed, %d seeds\n",
		result.Stats.Classes, result.Stats.CantDelete, result.Stats.CantRename, result.Stats.Seeds)
	for _, f := range result.ReportFiles {
		fmt.Printf("  wrote %s\n", f)
	}
	return nil
}

type jOutput struct {
	Stats       any      `json:"stats"`
	ReportFiles []string `json:"report_files"`
	Version     string   `json:"version"`
	Timestamp   string   `json:"timestamp"`
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		logger := slog.New(handler)
		slog.SetDefault(logger)
	}

	if !cfg.Profile {
		return nil
	}

	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return &codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}
