package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"pressline/internal/app"
	"pressline/internal/config"
	"pressline/internal/db"
	"pressline/internal/domain"
	"pressline/internal/orchestrator"
	"pressline/internal/repo"
	"pressline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Pressline CLI",
	Long: `Pressline turns approved communication opportunities into executed campaigns.
An opportunity is a strategic plan: stakeholders, messaging levers, and the
content deliverables each one needs. Executing it generates every deliverable
(owned channels and media channels), optionally builds a slide deck, and
records the finished campaign with a full event trail.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PRESSLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func registerCommands() {
	rootCmd.AddCommand(opportunityCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func opportunityCmd() *cobra.Command {
	opp := &cobra.Command{Use: "opportunity", Short: "Manage opportunities"}
	opp.AddCommand(opportunityListCmd())
	opp.AddCommand(opportunityShowCmd())
	opp.AddCommand(opportunityImportCmd())
	opp.AddCommand(opportunityExecuteCmd())
	opp.AddCommand(opportunityProgressCmd())
	return opp
}

func opportunityListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List opportunities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListOpportunities(ctx, repo.OpportunityFilters{OrgID: a.Cfg.Org.ID, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Executed", "Deck"})
				for _, o := range items {
					deck := ""
					if o.PresentationURL != nil {
						deck = *o.PresentationURL
					}
					tw.AppendRow(table.Row{o.ID, o.Title, o.Status, o.Executed, deck})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|executing|executed)")
	return cmd
}

func opportunityShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Repo.GetOpportunity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	return cmd
}

func opportunityImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an opportunity from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var o domain.Opportunity
			if err := json.Unmarshal(data, &o); err != nil {
				return fmt.Errorf("invalid opportunity json: %w", err)
			}
			if o.Title == "" {
				return fmt.Errorf("opportunity title is required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				now := time.Now().UTC().Format(time.RFC3339)
				if o.ID == "" {
					o.ID = uuid.NewString()
				}
				o.OrgID = a.Cfg.Org.ID
				o.Status = domain.StatusActive
				o.Executed = false
				o.CreatedAt = now
				o.UpdatedAt = now
				if err := a.Repo.InsertOpportunity(ctx, o); err != nil {
					return err
				}
				fmt.Println("imported", o.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to opportunity JSON")
	return cmd
}

func opportunityExecuteCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "execute <id>",
		Short: "Execute an opportunity into a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				run, err := a.Coordinator.Execute(ctx, args[0])
				if err != nil {
					if errors.Is(err, orchestrator.ErrAlreadyExecuting) && run != nil {
						fmt.Println("already executing, attaching to run", run.ID)
					} else {
						return err
					}
				} else {
					fmt.Println("started run", run.ID)
				}
				if !wait || run == nil {
					return nil
				}
				return watchRun(ctx, run)
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for the run to finish")
	return cmd
}

func watchRun(ctx context.Context, run *orchestrator.Run) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	last := -1.0
	for {
		select {
		case <-run.Done():
			res, _ := run.Result()
			if !res.Success {
				return fmt.Errorf("run failed: %s", res.Error)
			}
			fmt.Printf("done: %d assets generated", res.AssetCount)
			if res.PresentationURL != nil {
				fmt.Printf(", deck at %s", *res.PresentationURL)
			}
			fmt.Println()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := run.Progress()
			if snap.Percent != last {
				fmt.Printf("%5.1f%%  %s\n", snap.Percent, snap.Phase)
				last = snap.Percent
			}
		}
	}
}

func opportunityProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <id>",
		Short: "Show execution progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if run, ok := a.Coordinator.Attach(args[0]); ok {
					snap := run.Progress()
					fmt.Printf("%5.1f%%  %s\n", snap.Percent, snap.Phase)
					return nil
				}
				o, err := a.Repo.GetOpportunity(ctx, args[0])
				if err != nil {
					return err
				}
				if o.Executed {
					fmt.Println("100.0%  done")
				} else {
					fmt.Println("  0.0%  idle")
				}
				return nil
			})
		},
	}
	return cmd
}

func assetCmd() *cobra.Command {
	asset := &cobra.Command{Use: "asset", Short: "Inspect generated assets"}
	var oppID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List assets for an opportunity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if oppID == "" {
				return fmt.Errorf("--opportunity required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListAssets(ctx, a.Cfg.Org.ID, oppID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Lane", "Stakeholder", "Title"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Type, it.Lane, it.Stakeholder, it.Title})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&oppID, "opportunity", "", "opportunity id")
	asset.AddCommand(list)
	return asset
}

func runCmd() *cobra.Command {
	run := &cobra.Command{Use: "run", Short: "Inspect execution runs"}
	var oppID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List runs for an opportunity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if oppID == "" {
				return fmt.Errorf("--opportunity required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListRuns(ctx, oppID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Success", "Assets", "Error", "Started", "Finished"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Success, it.AssetCount, it.Error, it.StartedAt, it.FinishedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&oppID, "opportunity", "", "opportunity id")
	run.AddCommand(list)
	return run
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Repo.LatestEvents(ctx, n, a.Cfg.Org.ID, evtType, "", entityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default pressline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(orgID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "default-org", "organization id")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default("default-org")
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				handler, err := server.New(server.Config{
					Cfg:         a.Cfg,
					Repo:        a.Repo,
					Coordinator: a.Coordinator,
					Log:         a.Log,
					BasePath:    basePath,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Pressline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	a, cleanup, err := app.Assemble(ctx, viper.GetString("workspace"), log)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, a)
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if viper.GetBool("debug") {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	}
	return cfg.Build()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
