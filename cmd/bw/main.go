package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"bountywizard/internal/app"
	"bountywizard/internal/config"
	"bountywizard/internal/db"
	"bountywizard/internal/domain"
	"bountywizard/internal/logging"
	"bountywizard/internal/repo"
	"bountywizard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bw",
	Short: "Bounty wizard CLI",
	Long: `Bounty wizard collects a bounty in three validated steps and submits it.
- Basics: title, description, type, dominant core, mode and (for physical work) a location.
- Rewards: currency, amount, winners, timeline, impact certificate and SDG tags.
- Backer: optional sponsor details and the terms checkbox.
Run 'bw serve' for the HTTP API, or 'bw draft check|submit' to replay a YAML draft locally.`,
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
	viper.SetEnvPrefix("BOUNTYWIZARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(draftCmd())
	rootCmd.AddCommand(bountyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(optionsCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var dev bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(viper.GetString("log-level"), dev)
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx := cmd.Context()
			rt, err := app.Open(ctx, viper.GetString("workspace"), logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if addr == "" {
				addr = rt.Config.Server.Addr
			}
			if basePath == "" {
				basePath = rt.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt-secret"),
				AllowLegacyActorHeader: rt.Config.Auth.AllowLegacyActorHeader,
				Logger:                 logger,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("BOUNTYWIZARD_JWT_SECRET is required for bearer auth")
			}
			deduper, closeDedup, err := rt.NewDeduper(ctx)
			if err != nil {
				return err
			}
			defer closeDedup()

			sessions := rt.NewSessions()
			if rt.Config.Wizard.SessionTTL > 0 {
				go sessions.Run(ctx, rt.Config.Wizard.SweepInterval)
			}
			dispatcher := server.NewWebhookDispatcher(rt.Engine.Repo, rt.Config.Webhooks, logger)
			go dispatcher.Run(ctx)

			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				Sessions: sessions,
				Deduper:  deduper,
				BasePath: basePath,
				Auth:     authCfg,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving bounty wizard API",
				zap.String("addr", "http://"+addr+basePath),
				zap.String("openapi", basePath+"/openapi.json"),
				zap.Int("webhooks", len(rt.Config.Webhooks)),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	cmd.Flags().BoolVar(&dev, "dev", false, "human-readable development logging")
	cmd.Flags().String("jwt-secret", "", "HMAC secret for bearer tokens")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage bountywizard.yml",
		Long:  "bountywizard.yml in the workspace holds server, wizard, auth, redis and webhook settings. Missing files fall back to the defaults.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !viper.GetBool("force") {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.ResolveConfig(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func draftCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "draft",
		Short: "Replay a YAML draft through the wizard",
		Long:  "A draft file uses the wizard field names (title, reward.amount as reward: {amount: ...}, has_backer, ...). Fields are applied in form order and each step is validated like the API does.",
	}
	d.AddCommand(draftCheckCmd())
	d.AddCommand(draftSubmitCmd())
	return d
}

func draftCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate every step of a draft file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := app.LoadDraftFile(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				s := rt.NewStore(viper.GetString("actor-id"), 0)
				if err := app.ApplyDraft(s, draft); err != nil {
					return err
				}
				view, reports, err := app.Walk(s)
				if err != nil {
					return err
				}
				if err := printReports(reports); err != nil {
					return err
				}
				if view != domain.ViewConfirmation {
					return fmt.Errorf("draft stops at %s", view)
				}
				return nil
			})
		},
	}
}

func draftSubmitCmd() *cobra.Command {
	var noDelay bool
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Validate and submit a draft file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := app.LoadDraftFile(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				delay := rt.Config.Wizard.SubmitDelay
				if noDelay {
					delay = 0
				}
				s := rt.NewStore(viper.GetString("actor-id"), delay)
				if err := app.ApplyDraft(s, draft); err != nil {
					return err
				}
				view, reports, err := app.Walk(s)
				if err != nil {
					return err
				}
				if view != domain.ViewConfirmation {
					if err := printReports(reports); err != nil {
						return err
					}
					return fmt.Errorf("draft stops at %s", view)
				}
				sub, err := s.Submit(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sub)
				}
				res, err := s.Result()
				if err != nil {
					return err
				}
				fmt.Printf("submitted %s\n%s\n", sub.ID, res.JSON)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noDelay, "no-delay", false, "skip the simulated submit latency")
	return cmd
}

func bountyCmd() *cobra.Command {
	b := &cobra.Command{
		Use:   "bounty",
		Short: "Inspect submitted bounties",
	}
	b.AddCommand(bountyListCmd())
	b.AddCommand(bountyShowCmd())
	return b
}

func bountyListCmd() *cobra.Command {
	var f repo.SubmissionFilter
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submitted bounties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if !all {
					f.ActorID = viper.GetString("actor-id")
				}
				items, err := rt.Engine.ListSubmissions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Reward", "Actor", "Created"})
				for _, s := range items {
					reward := ""
					if s.RewardCurrency != "" {
						reward = fmt.Sprintf("%.2f %s", s.RewardAmount, s.RewardCurrency)
					}
					tw.AppendRow(table.Row{s.ID, s.Title, s.Type, reward, s.ActorID, s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Type, "type", "", "bounty type filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	cmd.Flags().BoolVar(&all, "all", false, "include every actor")
	return cmd
}

func bountyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a submitted bounty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				sub, err := rt.Engine.GetSubmission(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(sub)
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every accepted submission appends a bounty.submitted event. Webhooks are fed from the same log.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				events, err := rt.Engine.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	return cmd
}

func optionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List the choices offered by each step",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := map[string][]string{
				domain.FieldType:           stringsOf(domain.BountyTypes),
				domain.FieldDominantCore:   stringsOf(domain.DominantCores),
				domain.FieldMode:           stringsOf(domain.Modes),
				domain.FieldRewardCurrency: stringsOf(domain.Currencies),
				domain.FieldSDGs:           domain.SDGOptions,
			}
			if viper.GetBool("json") {
				return printJSON(opts)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Field", "Options"})
			for _, f := range domain.Fields {
				if values, ok := opts[f.Path]; ok {
					tw.AppendRow(table.Row{f.Path, strings.Join(values, ", ")})
				}
			}
			tw.Render()
			return nil
		},
	}
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, viper.GetString("workspace"), nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func printReports(reports []app.StepReport) error {
	if viper.GetBool("json") {
		return printJSON(reports)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Step", "Valid", "Field", "Message"})
	for _, r := range reports {
		label := fmt.Sprintf("%d %s", r.Step, r.Name)
		if r.Valid {
			tw.AppendRow(table.Row{label, "yes", "", ""})
			continue
		}
		for _, fe := range r.Errors {
			tw.AppendRow(table.Row{label, "no", fe.Path, fe.Message})
		}
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stringsOf[T ~string](items []T) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = string(item)
	}
	return out
}
