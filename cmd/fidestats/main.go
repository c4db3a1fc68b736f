package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/fidestats/internal/config"
	"github.com/TobiSchelling/fidestats/internal/pipeline"
	"github.com/TobiSchelling/fidestats/internal/server"
	"github.com/TobiSchelling/fidestats/internal/subset"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fidestats",
	Short:   "FIDE rating history statistics",
	Long:    "fidestats joins the FIDE player and rating tables, filters and aggregates them, and exports JSON for the viewer.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setLogFlags(verbose)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if path != "" {
			log.Printf("Using config %s", path)
		}
		setLogFlags(verbose || strings.EqualFold(cfg.Logging.Level, "debug"))
		return nil
	},
}

func setLogFlags(debug bool) {
	if debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(subsetCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "fidestats", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/fidestats/",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Fprintf(out, "Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Fprintf(out, "Created config: %s\n", target)
		fmt.Fprintln(out, "Edit it to point input.dir at the directory holding players.tsv and ratings.tsv.")
		return nil
	},
}

// --- run command ---

var (
	dryRun        bool
	startYear     int
	endYear       int
	topCountries  int
	minPeakRating int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: load -> resolve -> enrich -> filter -> aggregate -> export",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("start-year") {
			cfg.Pipeline.StartYear = startYear
		}
		if flags.Changed("end-year") {
			cfg.Pipeline.EndYear = endYear
		}
		if flags.Changed("top") {
			cfg.Pipeline.TopCountries = topCountries
		}
		if flags.Changed("min-peak") {
			cfg.Pipeline.MinPeakRating = minPeakRating
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		result := pipeline.New(cfg).WithDryRun(dryRun).Run(context.Background())
		out := cmd.OutOrStdout()
		printSteps(out, result)

		if err := result.Err(); err != nil {
			return err
		}

		fmt.Fprintln(out)
		fmt.Fprint(out, result.Report)
		if !dryRun {
			fmt.Fprintln(out, "\nPipeline complete! Run 'fidestats serve' to open the viewer.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute everything but write nothing")
	runCmd.Flags().IntVar(&startYear, "start-year", 0, "First year to keep (overrides pipeline.start_year)")
	runCmd.Flags().IntVar(&endYear, "end-year", 0, "Last year to keep, 0 for the latest (overrides pipeline.end_year)")
	runCmd.Flags().IntVar(&topCountries, "top", 0, "Keep the N countries with most records, 0 for all (overrides pipeline.top_countries)")
	runCmd.Flags().IntVar(&minPeakRating, "min-peak", 0, "Minimum peak rating per player (overrides pipeline.min_peak_rating)")
}

func printSteps(w io.Writer, result *pipeline.Result) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed, color.Bold)

	for i, step := range result.Steps {
		fmt.Fprintln(w)
		bold.Fprintf(w, "Step %d: %s\n", i+1, step.Name)
		if step.Err != nil {
			red.Fprintf(w, "  Error: %v\n", step.Err)
		} else {
			green.Fprintf(w, "  %s\n", step.Summary)
		}
	}
}

// --- subset command ---

var (
	subsetDir     string
	subsetCountry string
	subsetElo     string
	subsetGender  string
	subsetYear    string
)

var subsetCmd = &cobra.Command{
	Use:   "subset <suffix>",
	Short: "Write players-<suffix>.tsv and ratings-<suffix>.tsv restricted to matching players",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := subset.DefaultOptions()
		opts.Country = subsetCountry
		opts.Gender = subsetGender
		opts.Suffix = args[0]

		var err error
		if subsetElo != "" {
			if opts.Elo, err = subset.ParseRange(subsetElo, opts.Elo); err != nil {
				return err
			}
		}
		if subsetYear != "" {
			if opts.Year, err = subset.ParseRange(subsetYear, opts.Year); err != nil {
				return err
			}
		}

		dir := subsetDir
		if dir == "" {
			dir = cfg.Input.Dir
		}
		res, err := subset.Run(dir, opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		green := color.New(color.FgGreen, color.Bold)
		green.Fprintf(out, "Wrote %s (%d players)\n", res.PlayersPath, res.Players)
		green.Fprintf(out, "Wrote %s (%d ratings)\n", res.RatingsPath, res.Ratings)
		if res.Malformed > 0 {
			color.New(color.FgYellow).Fprintf(out, "Skipped %d malformed lines\n", res.Malformed)
		}
		return nil
	},
}

func init() {
	defaults := subset.DefaultOptions()
	subsetCmd.Flags().StringVar(&subsetDir, "dir", "", "Directory with players.tsv and ratings.tsv (defaults to input.dir)")
	subsetCmd.Flags().StringVarP(&subsetCountry, "country", "c", "", "Keep players from federation <XXX>")
	subsetCmd.Flags().StringVarP(&subsetElo, "elo", "e", "", fmt.Sprintf("Keep players with peak rating in [min]-[max] (defaults to %s)", defaults.Elo))
	subsetCmd.Flags().StringVarP(&subsetGender, "gender", "g", "", "Keep players matching gender M or F")
	subsetCmd.Flags().StringVarP(&subsetYear, "year", "y", "", fmt.Sprintf("Keep players born in [min]-[max] (defaults to %s)", defaults.Year))
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local viewer on the first free port",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.BasePort = servePort
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")
		return server.Serve(server.Options{
			DataDir:        cfg.Output.Dir,
			AggregatedFile: cfg.Output.AggregatedFile,
			ReportFile:     cfg.Output.ReportFile,
		}, cfg.Server.BasePort, cfg.Server.PortSpan)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "First port to try (overrides server.base_port)")
}
