package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"demopilot/internal/app"
	"demopilot/internal/config"
	"demopilot/internal/db"
	"demopilot/internal/engine"
	"demopilot/internal/engine/auth"
	"demopilot/internal/events"
	"demopilot/internal/generator"
	"demopilot/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ddp",
	Short: "Demopilot CLI",
	Long: `Demopilot seeds a host application with realistic demo data and removes it again.
Core concepts:
- Generator: a plugin that knows how to create and delete one family of records (shop, hr).
- Kind: one record type a generator supports (products, customers, orders, employees).
- Tracking: every generated record is remembered so cleanup only ever touches demo rows.
- Batches: a run is split into batches; progress is published after each one.
- Activity log: a capped journal of what happened, view with 'ddp logs tail'.`,
	SilenceUsage: true,
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DDP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Uint64("seed", 0, "faker seed (0 picks a random one)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("seed", rootCmd.PersistentFlags().Lookup("seed"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(hostCmd())
	rootCmd.AddCommand(generatorsCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(pruneCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(uninstallCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage demopilot.yml"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default demopilot.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate demopilot.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
}

func hostCmd() *cobra.Command {
	h := &cobra.Command{Use: "host", Short: "Manage the host data store"}
	h.AddCommand(&cobra.Command{
		Use:   "init [generator...]",
		Short: "Create the host tables the generators write into",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.InstallHost(ctx, args...); err != nil {
					return err
				}
				driver, _ := app.HostTarget(a.Workspace, a.Config)
				fmt.Printf("Host tables ready (%s)\n", driver)
				return nil
			})
		},
	})
	return h
}

func generatorsCmd() *cobra.Command {
	g := &cobra.Command{Use: "generators", Short: "Inspect registered generators"}
	g.AddCommand(generatorsListCmd())
	g.AddCommand(generatorsShowCmd())
	return g
}

func generatorsListCmd() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List generators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListGenerators(ctx, active)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Slug", "Name", "Active", "Kinds", "Tracked"})
				for _, g := range items {
					tw.AppendRow(table.Row{g.Slug, g.Name, g.IsActive, strings.Join(kindNames(g.SupportedKinds), ", "), g.Stats.Total})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", false, "only generators whose host tables exist")
	return cmd
}

func generatorsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <slug>",
		Short: "Describe a generator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				info, err := a.Engine.GetGenerator(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(info)
			})
		},
	}
}

func generateCmd() *cobra.Command {
	var count, batchSize int
	var rawArgs []string
	var quiet bool
	cmd := &cobra.Command{
		Use:   "generate <generator> <kind>",
		Short: "Generate demo records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			genArgs, err := parseArgs(rawArgs)
			if err != nil {
				return err
			}
			if batchSize > 0 {
				genArgs["batch_size"] = batchSize
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if !quiet && !viper.GetBool("json") {
					stop := watchProgress(a.Engine, args[0], args[1])
					defer stop()
				}
				res, err := a.Engine.Generate(ctx, engine.GenerateRequest{
					Generator: args[0],
					Kind:      args[1],
					Count:     count,
					Args:      genArgs,
				})
				if err != nil {
					if len(res.GeneratedIDs) > 0 {
						fmt.Fprintf(os.Stderr, "%d records were created and tracked before the failure\n", len(res.GeneratedIDs))
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Generated %d %s records for %s in %d batches (run %s)\n", res.Count, res.Kind, res.Generator, res.Batches, res.RunID)
				if res.Untracked > 0 {
					fmt.Printf("warning: %d records could not be tracked\n", res.Untracked)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", engine.DefaultCount, "number of records")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per batch (defaults to generation.batch_size)")
	cmd.Flags().StringArrayVar(&rawArgs, "arg", nil, "generator argument key=value (repeatable)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

// watchProgress prints the run's snapshots until the returned func is called.
func watchProgress(e engine.Engine, gen, kind string) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		last := -1
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			snap, ok := e.GetProgress(gen, kind)
			if !ok || snap.CurrentBatch == last {
				continue
			}
			last = snap.CurrentBatch
			fmt.Fprintf(os.Stderr, "batch %d/%d  %d generated  %.0f%%\n", snap.CurrentBatch, snap.TotalBatches, snap.Generated, snap.Percentage)
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func parseArgs(raw []string) (generator.Args, error) {
	out := generator.Args{}
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q, expected key=value", kv)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

func cleanupCmd() *cobra.Command {
	var ids []string
	cmd := &cobra.Command{
		Use:   "cleanup <generator> <kind>",
		Short: "Delete tracked demo records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordIDs, err := parseIDs(ids)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.Cleanup(ctx, engine.CleanupRequest{Generator: args[0], Kind: args[1], IDs: recordIDs})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Cleaned up %d %s records for %s (%d untracked)\n", res.Count, res.Kind, res.Generator, res.Untracked)
				if len(res.Failed) > 0 {
					fmt.Printf("warning: %d records could not be deleted and stay tracked: %v\n", len(res.Failed), res.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "only these record ids (comma separated)")
	return cmd
}

func parseIDs(raw []string) ([]int64, error) {
	var out []int64
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", s)
		}
		out = append(out, id)
	}
	return out, nil
}

func statsCmd() *cobra.Command {
	var gen string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show tracked record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				stats, err := a.Tracker.Stats(ctx, gen)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Kind", "Tracked"})
				for _, kc := range stats.ByKind {
					tw.AppendRow(table.Row{kc.Kind, kc.Count})
				}
				tw.AppendFooter(table.Row{"Total", stats.Total})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&gen, "generator", "", "generator slug")
	return cmd
}

func pruneCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Clean up records tracked longer than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if !cmd.Flags().Changed("days") {
					days = a.Config.Cleanup.Days
				}
				if days < 1 {
					return fmt.Errorf("--days must be at least 1")
				}
				res, err := a.Engine.Prune(ctx, time.Duration(days)*24*time.Hour)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Pruned %d records tracked before %s\n", res.Records, res.Cutoff)
				for _, s := range res.Skipped {
					fmt.Printf("skipped %s: generator not registered\n", s)
				}
				if len(res.Failed) > 0 {
					fmt.Printf("warning: %d records could not be deleted and stay tracked: %v\n", len(res.Failed), res.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "age threshold in days (defaults to cleanup.days)")
	return cmd
}

func logsCmd() *cobra.Command {
	l := &cobra.Command{Use: "logs", Short: "Activity log"}
	l.AddCommand(logsTailCmd())
	l.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Journal.Clear(ctx)
			})
		},
	})
	l.AddCommand(logsToggleCmd("enable", true))
	l.AddCommand(logsToggleCmd("disable", false))
	return l
}

func logsTailCmd() *cobra.Command {
	var n int
	var level, gen string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Journal.Logs(ctx, events.Query{Limit: n, Level: level, Generator: gen})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				if !a.Journal.Enabled() {
					fmt.Fprintln(os.Stderr, "note: activity logging is disabled")
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Time", "Level", "Generator", "Message"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.Timestamp, e.Level, e.Generator, e.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&level, "level", "", "level filter (info, warning, error, success)")
	cmd.Flags().StringVar(&gen, "generator", "", "generator filter")
	return cmd
}

func logsToggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: strings.ToUpper(use[:1]) + use[1:] + " activity logging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if enabled {
					return a.Journal.Enable(ctx)
				}
				return a.Journal.Disable(ctx)
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apiKeyCreateCmd())
	k.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Repo.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Permissions", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.Name, strings.Join(key.Permissions, ","), key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	k.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return k
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	var perms []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.Validate(perms); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				key, secret, err := a.Repo.CreateAPIKey(ctx, name, perms)
				if err != nil {
					return err
				}
				out := map[string]any{
					"id":          key.ID,
					"name":        key.Name,
					"permissions": key.Permissions,
					"key":         secret,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("API key %s created. Store it now, it is not shown again:\n%s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	cmd.Flags().StringSliceVar(&perms, "perm", []string{auth.DemoRead}, "permissions (repeatable; demo.*, logs.*, * allowed)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var perms []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for the API (needs DDP_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var senv serveEnv
			if err := env.Parse(&senv); err != nil {
				return fmt.Errorf("parse env: %w", err)
			}
			if err := auth.Validate(perms); err != nil {
				return err
			}
			token, err := server.SignToken(senv.JWTSecret, subject, perms, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().StringSliceVar(&perms, "perm", []string{auth.Admin}, "permissions")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for none)")
	return cmd
}

func uninstallCmd() *cobra.Command {
	var drop, yes bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Forget all tracking, logs and settings (host data stays)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to uninstall without --yes")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Uninstall(ctx, drop)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Forgot %d tracked records\n", res.TrackedRows)
				if res.Dropped {
					fmt.Println("Dropped bookkeeping tables")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&drop, "drop", false, "also drop the bookkeeping tables")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

type serveEnv struct {
	JWTSecret      string `env:"DDP_JWT_SECRET"`
	Addr           string `env:"DDP_ADDR" envDefault:"127.0.0.1:8080"`
	BasePath       string `env:"DDP_BASE_PATH" envDefault:"/v1"`
	AllowAnonymous bool   `env:"DDP_ALLOW_ANONYMOUS"`
	DevLogin       bool   `env:"DDP_DEV_LOGIN"`
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var senv serveEnv
			if err := env.Parse(&senv); err != nil {
				return fmt.Errorf("parse env: %w", err)
			}
			if cmd.Flags().Changed("addr") {
				senv.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				senv.BasePath = basePath
			}
			if senv.JWTSecret == "" && !senv.AllowAnonymous {
				return fmt.Errorf("DDP_JWT_SECRET is required for bearer auth (or set DDP_ALLOW_ANONYMOUS for local use)")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Journal:  a.Journal,
					Repo:     a.Repo,
					BasePath: senv.BasePath,
					Auth: server.AuthConfig{
						JWTSecret:      senv.JWTSecret,
						AllowAnonymous: senv.AllowAnonymous,
						DevLogin:       senv.DevLogin,
						Logger:         a.Logger,
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: senv.Addr, Handler: handler}
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				g.Go(func() error {
					return server.RunWebhooks(gctx, a.Journal, a.Config.Webhooks, a.Logger)
				})
				g.Go(func() error {
					return autoPrune(gctx, a)
				})
				fmt.Printf("Serving demopilot API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", senv.Addr, senv.BasePath, senv.BasePath)
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (env DDP_ADDR)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path (env DDP_BASE_PATH)")
	return cmd
}

// autoPrune runs a prune pass at startup and then daily while cleanup.auto
// is set.
func autoPrune(ctx context.Context, a *app.App) error {
	if !a.Config.Cleanup.Auto {
		return nil
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		res, ran, err := a.AutoPrune(ctx)
		if err != nil {
			a.Logger.Printf("auto prune: %v", err)
		} else if ran && res.Records > 0 {
			a.Logger.Printf("auto prune removed %d records tracked before %s", res.Records, res.Cutoff)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, workspace, app.Options{
		Config: cfg,
		Logger: log.New(os.Stderr, "ddp: ", log.LstdFlags),
		Seed:   viper.GetUint64("seed"),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func kindNames(kinds map[string]string) []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
