package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/signalindex/signalindex/internal/config"
	"github.com/signalindex/signalindex/internal/database"
	"github.com/signalindex/signalindex/internal/pipeline"
	"github.com/signalindex/signalindex/internal/registry"
	"github.com/signalindex/signalindex/internal/server"
	"github.com/signalindex/signalindex/internal/source"
	"github.com/signalindex/signalindex/internal/store"
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
	Use:     "signalindex",
	Short:   "Artist engagement tracking and ranking",
	Long:    "Signal Index collects engagement metrics from X, YouTube, Last.fm, music charts, and album sales, and ranks tracked artists by a weighted composite score.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// API credentials commonly live in a local .env file.
		godotenv.Load()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(artistsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("signalindex", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/signalindex/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		if _, err := registry.LoadOrCreate(registryPath()); err != nil {
			return fmt.Errorf("creating artist registry: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Printf("Created artist registry: %s\n", registryPath())
		fmt.Println("Edit the config to set API key environment variables and scoring weights.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg, err := registry.LoadOrCreate(registryPath())
		if err != nil {
			return err
		}

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Artists: %d tracked, %d active\n", len(reg.All()), len(reg.Active()))
		fmt.Printf("Runs recorded: %d across %d sources\n", stats.TotalRuns, stats.SourcesWithRuns)
		if stats.PendingCheckpoints > 0 {
			fmt.Printf("Pending checkpoints: %d (an interrupted run will resume)\n", stats.PendingCheckpoints)
		}

		reports, err := db.LatestRunReports()
		if err != nil {
			return err
		}
		if len(reports) > 0 {
			fmt.Println("\nLatest run per source:")
			for _, r := range reports {
				fmt.Printf("  %-8s %s: %d artists (%d failed), %d observations, %d throttle waits\n",
					r.Source, r.RunDate, r.ArtistsDone, r.ArtistsFailed, r.Observations, r.ThrottleWaits)
			}
		}
		return nil
	},
}

// --- collect command ---

var collectCmd = &cobra.Command{
	Use:   "collect [source]",
	Short: "Collect metrics from one source, then rescore",
	Long:  "Collect runs a single source's checkpointed batch (x, youtube, lastfm, charts, or sales) and recomputes the rankings.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := source.Name(args[0])
		known := false
		for _, s := range source.All {
			if s == src {
				known = true
			}
		}
		if !known {
			return fmt.Errorf("unknown source %q (use one of: %v)", args[0], source.All)
		}

		pipe, cleanup, err := openPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		runDate := database.Today()
		steps := []pipeline.StepResult{
			pipe.CollectSource(context.Background(), src, runDate),
			pipe.Score(runDate),
			pipe.Report(runDate),
		}
		printSteps(steps)
		return nil
	},
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: collect every source, score, report",
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, cleanup, err := openPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun()
		} else {
			result = pipe.Run(context.Background())
		}

		printSteps(result.Steps)
		if !dryRun {
			fmt.Println("\nRun complete. Use 'signalindex serve' to view the ranking.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

func printSteps(steps []pipeline.StepResult) {
	for i, step := range steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg, err := registry.LoadOrCreate(registryPath())
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting dashboard at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, reg, st, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run the dashboard on (default from config)")
}

// --- artists command ---

var artistsCmd = &cobra.Command{
	Use:   "artists",
	Short: "Manage the tracked-artist registry",
}

var artistsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked artists",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.LoadOrCreate(registryPath())
		if err != nil {
			return err
		}

		entries := reg.All()
		if len(entries) == 0 {
			fmt.Println("No artists tracked. Add one with: signalindex artists add")
			return nil
		}

		fmt.Println("Tracked artists:")
		fmt.Println()
		for _, e := range entries {
			icon := " "
			if e.Active {
				icon = "*"
			}
			fmt.Printf("  %s %-20s %-10s", icon, e.Name, e.Category)
			if e.Twitter != "" {
				fmt.Printf(" @%s", e.Twitter)
			}
			fmt.Println()
		}
		return nil
	},
}

var (
	addCategory string
	addTwitter  string
	addYouTube  string
	addLastfm   string
)

var artistsAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add an artist to the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.LoadOrCreate(registryPath())
		if err != nil {
			return err
		}

		entry := registry.Entry{
			Name:             args[0],
			Category:         addCategory,
			Twitter:          addTwitter,
			YouTubeChannelID: addYouTube,
			Lastfm:           addLastfm,
		}
		if err := reg.Add(entry); err != nil {
			return err
		}
		if err := reg.Save(); err != nil {
			return err
		}
		fmt.Printf("Added artist: %s\n", args[0])
		return nil
	},
}

var artistsToggleCmd = &cobra.Command{
	Use:   "toggle [name]",
	Short: "Toggle an artist's active state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.LoadOrCreate(registryPath())
		if err != nil {
			return err
		}

		name := args[0]
		active := false
		for _, e := range reg.All() {
			if e.Name == name {
				active = e.Active
			}
		}
		if err := reg.Toggle(name, !active); err != nil {
			return err
		}
		if err := reg.Save(); err != nil {
			return err
		}
		state := "active"
		if active {
			state = "inactive"
		}
		fmt.Printf("Artist %s is now %s\n", name, state)
		return nil
	},
}

func init() {
	artistsAddCmd.Flags().StringVar(&addCategory, "category", "", "Artist category (K-pop, Western, ...)")
	artistsAddCmd.Flags().StringVar(&addTwitter, "twitter", "", "X handle")
	artistsAddCmd.Flags().StringVar(&addYouTube, "youtube", "", "YouTube channel ID")
	artistsAddCmd.Flags().StringVar(&addLastfm, "lastfm", "", "Last.fm artist name (defaults to display name)")

	artistsCmd.AddCommand(artistsListCmd)
	artistsCmd.AddCommand(artistsAddCmd)
	artistsCmd.AddCommand(artistsToggleCmd)
}

func registryPath() string {
	if cfg != nil && filepath.IsAbs(cfg.Registry) {
		return cfg.Registry
	}
	name := "artists.json"
	if cfg != nil && cfg.Registry != "" {
		name = cfg.Registry
	}
	return filepath.Join(config.ConfigDir(), name)
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(filepath.Join(dataDir, "signalindex.db"))
}

func openStore() (*store.Store, error) {
	return store.New(cfg.GetDataDir())
}

func openPipeline() (*pipeline.Pipeline, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	reg, err := registry.LoadOrCreate(registryPath())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	st, err := openStore()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return pipeline.New(cfg, db, reg, st), func() { db.Close() }, nil
}
