// Package main is the entry point for the Gravitas CLI.
// Gravitas scores natural-language input for semantic density and routes
// it either to a single inference backend or to a council of backends
// whose responses are merged into one intent tree.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/gravitas/internal/backend"
	"github.com/normanking/gravitas/internal/bus"
	"github.com/normanking/gravitas/internal/config"
	"github.com/normanking/gravitas/internal/gate"
	"github.com/normanking/gravitas/internal/logging"
	"github.com/normanking/gravitas/internal/orchestrator"
	"github.com/normanking/gravitas/internal/outcome"
	"github.com/normanking/gravitas/internal/route"
	"github.com/normanking/gravitas/internal/server"
	"github.com/normanking/gravitas/internal/synth"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	log     *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gravitas",
		Short: "Gravitas - density-routed multi-backend intent resolution",
		Long: `Gravitas classifies how semantically dense an input is, then routes it:
sparse inputs go to a single backend, dense inputs convene a council of
backends whose responses are merged deterministically into an intent tree.

Resolve an input:        gravitas resolve "your request here"
Inspect the classifier:  gravitas classify "your request here"
Run the HTTP server:     gravitas serve`,
		PersistentPreRunE: initLogging,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.gravitas/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Gravitas v%s\n", version)
		},
	})

	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(backendsCmd())
	rootCmd.AddCommand(outcomesCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGING INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func initLogging(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	logDir := filepath.Join(home, ".gravitas", "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create log directory: %v\n", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logFile := filepath.Join(logDir, fmt.Sprintf("gravitas_%s.log", timestamp))

	var cfg *logging.Config
	if verbose {
		cfg = logging.VerboseConfig()
	} else {
		cfg = logging.DefaultConfig()
	}
	cfg.FilePath = logFile

	log = logging.New(cfg)
	logging.SetGlobal(log)

	if verbose {
		log.Debug("Verbose logging enabled")
		log.Debug("Config path: %s", configPath())
	}

	return nil
}

// configPath returns the effective config file location.
func configPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gravitas", "config.yaml")
	}
	return filepath.Join(home, ".gravitas", "config.yaml")
}

// loadConfig loads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromPath(configPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runtime bundles the wired components one command execution needs.
type runtime struct {
	cfg      *config.Config
	resolver *orchestrator.Resolver
	store    *outcome.Store
	events   *bus.Bus
}

// buildRuntime wires the resolver stack from configuration. withStore
// controls whether the outcome database is opened.
func buildRuntime(withStore bool) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	roster, err := backend.Roster(cfg)
	if err != nil {
		return nil, err
	}

	var store *outcome.Store
	if withStore && cfg.Outcome.Enabled {
		store, err = outcome.Open(cfg.Outcome.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open outcome store: %w", err)
		}
	}

	events := bus.New()
	return &runtime{
		cfg:      cfg,
		resolver: orchestrator.New(cfg, roster, store, events),
		store:    store,
		events:   events,
	}, nil
}

// close releases the runtime's resources.
func (r *runtime) close() {
	if r.store != nil {
		r.store.Close()
	}
	if r.events != nil {
		r.events.Close()
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// RESOLVE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func resolveCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve [text]",
		Short: "Resolve an input through the full pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(true)
			if err != nil {
				return err
			}
			defer rt.close()

			text := strings.Join(args, " ")
			res, err := rt.resolver.Resolve(cmd.Context(), gate.Input{Text: text})
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(res)
			}

			fmt.Printf("Request:  %s\n", res.RequestID)
			fmt.Printf("Density:  %.3f (%s)\n", res.Score.Score, res.Score.Band)
			fmt.Printf("Path:     %s (%s)\n", res.Path, res.RouteReason)
			fmt.Printf("Verdict:  %s", res.Verdict)
			if res.Tree.Degraded {
				fmt.Printf(" (degraded, missing: %s)", strings.Join(res.Tree.Missing, ", "))
			}
			fmt.Printf("\nDuration: %s\n\n", res.Duration.Round(time.Millisecond))

			printSlot("Explicit", res.Tree.Explicit)
			printSlot("Implicit", res.Tree.Implicit)
			printSlot("Deep", res.Tree.Deep)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full resolution as JSON")
	return cmd
}

// printSlot renders one intent tree slot with provenance.
func printSlot(name string, units []synth.Unit) {
	fmt.Printf("%s:\n", name)
	if len(units) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, u := range units {
		fmt.Printf("  - %s  [%s]\n", u.Value, strings.Join(u.Sources, ", "))
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CLASSIFY COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func classifyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Score an input's density without invoking any backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			classifier := gate.NewCompressionClassifier(cfg.Gate.EntropyFactor, cfg.Gate.CriticalEntropy)
			score := classifier.Classify(gate.Input{Text: strings.Join(args, " ")})
			decision := route.Route(score, route.Thresholds{Cutoff: cfg.Gate.Threshold})

			if asJSON {
				return printJSON(map[string]interface{}{
					"score":  score,
					"path":   decision.Path,
					"reason": decision.Reason,
				})
			}

			fmt.Printf("Score:    %.3f\n", score.Score)
			fmt.Printf("Entropy:  %.3f (%s)\n", score.Entropy, score.Band)
			fmt.Printf("Units:    %d\n", len(score.Units))
			if score.Degenerate {
				fmt.Printf("Degenerate: %s\n", score.Reason)
			}
			fmt.Printf("Path:     %s (%s)\n", decision.Path, decision.Reason)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the score as JSON")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// BACKENDS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List configured backends and their availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			roster, err := backend.Roster(cfg)
			if err != nil {
				return err
			}

			members := make(map[string]bool, len(cfg.Council.Members))
			for _, m := range cfg.Council.Members {
				members[m] = true
			}

			for name, conn := range roster {
				b := cfg.Backends[name]
				status := "unavailable"
				if conn.Available() {
					status = "available"
				}
				role := ""
				if name == cfg.Routing.DefaultBackend {
					role += " [default]"
				}
				if members[name] {
					role += " [council]"
				}
				fmt.Printf("%-12s %-10s kind=%s model=%s%s\n", name, status, b.Kind, b.Model, role)
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// OUTCOMES COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func outcomesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "List recent resolution outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Outcome.Enabled {
				return fmt.Errorf("outcome recording is disabled in configuration")
			}

			store, err := outcome.Open(cfg.Outcome.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No outcomes recorded yet.")
				return nil
			}

			for _, rec := range records {
				fmt.Printf("%s  %s  score=%.3f  path=%-7s  verdict=%-8s  %dms\n",
					rec.CreatedAt.Format("2006-01-02 15:04:05"),
					rec.RequestID, rec.Score, rec.Path, rec.Verdict, rec.DurationMs)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum outcomes to list")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP resolve server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(true)
			if err != nil {
				return err
			}
			defer rt.close()

			if host != "" {
				rt.cfg.Server.Host = host
			}
			if port != 0 {
				rt.cfg.Server.Port = port
			}

			srv := server.New(rt.cfg.Server, rt.resolver, rt.store, rt.events)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				log.Info("received %s, shutting down", sig)
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromPath(configPath())
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(configPath())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Println("Configuration is valid.")
			return nil
		},
	})

	return cmd
}

// printJSON pretty-prints v to stdout.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
