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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"screenpilot/internal/agent"
	"screenpilot/internal/capture"
	"screenpilot/internal/config"
	"screenpilot/internal/db"
	"screenpilot/internal/domain"
	"screenpilot/internal/export"
	"screenpilot/internal/migrate"
	"screenpilot/internal/planner"
	"screenpilot/internal/server"
	"screenpilot/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "sp",
	Short: "Screenpilot CLI",
	Long: `Screenpilot turns a natural-language goal into a plan of small, individually
confirmable desktop actions and keeps an append-only audit log of everything
it does.

- Session: one bounded period of agent activity; only one is active at a time.
- Plan: a goal decomposed by the reasoning model into ordered actions.
- Action: one atomic step (screenshot, click, type, scroll, key, wait).
- Irreversible actions (delete, send, purchase, ...) always need an explicit
  confirmation before they run; a local keyword policy enforces this even
  when the model says otherwise.
- Audit log: chronological record of every lifecycle event, exportable with
  'sp log export'.`,
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
	viper.SetEnvPrefix("SCREENPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func sessionCmd() *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Manage agent sessions"}
	session.AddCommand(sessionStartCmd())
	session.AddCommand(sessionEndCmd())
	session.AddCommand(sessionShowCmd())
	session.AddCommand(sessionListCmd())
	session.AddCommand(sessionClearCmd())
	return session
}

func sessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a new session (ends any active one)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), false, func(ctx context.Context, a *agent.Agent) error {
				s := a.StartSession(ctx)
				return printJSONOrTable(s)
			})
		},
	}
}

func sessionEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "End the active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), true, func(ctx context.Context, a *agent.Agent) error {
				a.EndSession(ctx)
				fmt.Println("session ended")
				return nil
			})
		},
	}
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active session with its plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), true, func(ctx context.Context, a *agent.Agent) error {
				s := a.CurrentSession()
				if s == nil {
					return errors.New("no active session; run 'sp session start'")
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				printSession(*s)
				return nil
			})
		},
	}
}

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), false, func(ctx context.Context, a *agent.Agent) error {
				sessions := a.AllSessions(ctx)
				if viper.GetBool("json") {
					return printJSON(sessions)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Started", "Ended", "Active", "Plans", "Log entries"})
				for _, s := range sessions {
					ended := ""
					if s.EndedAt != nil {
						ended = *s.EndedAt
					}
					t.AppendRow(table.Row{s.ID, s.StartedAt, ended, s.Active, len(s.Plans), len(s.AuditLog)})
				}
				t.Render()
				return nil
			})
		},
	}
}

func sessionClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), false, func(ctx context.Context, a *agent.Agent) error {
				if err := a.ClearSessions(ctx); err != nil {
					return err
				}
				fmt.Println("all sessions cleared")
				return nil
			})
		},
	}
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Create and run plans"}
	plan.AddCommand(planCreateCmd())
	plan.AddCommand(planRunCmd())
	plan.AddCommand(planCancelCmd())
	return plan
}

func planCreateCmd() *cobra.Command {
	var goal, screenshotPath string
	var withScreen bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Decompose a goal into a plan of actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goal == "" {
				return fmt.Errorf("--goal required")
			}
			return withAgent(cmd.Context(), true, func(ctx context.Context, a *agent.Agent) error {
				var screenshot []byte
				if screenshotPath != "" {
					data, err := os.ReadFile(screenshotPath)
					if err != nil {
						return err
					}
					screenshot = data
				} else if withScreen {
					data, err := a.Capturer.Capture(ctx)
					if err != nil {
						return fmt.Errorf("capture screen: %w", err)
					}
					screenshot = data
				}
				p, err := a.CreatePlan(ctx, goal, screenshot)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printPlan(p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "natural-language goal")
	cmd.Flags().StringVar(&screenshotPath, "screenshot", "", "path to a PNG to send with the goal")
	cmd.Flags().BoolVar(&withScreen, "capture", false, "capture the current screen and send it with the goal")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func planRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <plan-id>",
		Short: "Execute a plan's confirmed actions in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), true, func(ctx context.Context, a *agent.Agent) error {
				summary, err := a.ExecutePlan(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(summary)
			})
		},
	}
}

func planCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <plan-id>",
		Short: "Cancel a plan and its non-terminal actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), true, func(ctx context.Context, a *agent.Agent) error {
				if err := a.CancelPlan(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("plan cancelled")
				return nil
			})
		},
	}
}

func actionCmd() *cobra.Command {
	action := &cobra.Command{Use: "action", Short: "Confirm, cancel and run single actions"}
	action.AddCommand(actionConfirmCmd())
	action.AddCommand(actionCancelCmd())
	action.AddCommand(actionRunCmd())
	return action
}

func actionConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <plan-id> <action-id>",
		Short: "Confirm an action for execution",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), true, func(ctx context.Context, a *agent.Agent) error {
				if err := a.ConfirmAction(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Println("action confirmed")
				return nil
			})
		},
	}
}

func actionCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <plan-id> <action-id>",
		Short: "Cancel an action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), true, func(ctx context.Context, a *agent.Agent) error {
				if err := a.CancelAction(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Println("action cancelled")
				return nil
			})
		},
	}
}

func actionRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <plan-id> <action-id>",
		Short: "Execute a single action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), true, func(ctx context.Context, a *agent.Agent) error {
				res, err := a.ExecuteAction(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

func analyzeCmd() *cobra.Command {
	var screenshotPath string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Describe the current screen (or a PNG file)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), false, func(ctx context.Context, a *agent.Agent) error {
				var screenshot []byte
				if screenshotPath != "" {
					data, err := os.ReadFile(screenshotPath)
					if err != nil {
						return err
					}
					screenshot = data
				} else {
					data, err := a.Capturer.Capture(ctx)
					if err != nil {
						return fmt.Errorf("capture screen: %w", err)
					}
					screenshot = data
				}
				analysis := a.AnalyzeScreen(ctx, screenshot)
				return printJSONOrTable(analysis)
			})
		},
	}
	cmd.Flags().StringVar(&screenshotPath, "screenshot", "", "path to a PNG to analyze instead of capturing")
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Inspect and export the audit log"}
	logc.AddCommand(logTailCmd())
	logc.AddCommand(logExportCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var sessionID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), true, func(ctx context.Context, a *agent.Agent) error {
				entries := a.ExportAuditLog(ctx, sessionID)
				if len(entries) > n {
					entries = entries[len(entries)-n:]
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"TS", "Kind", "Description"})
				for _, e := range entries {
					t.AppendRow(table.Row{e.TS, e.Kind, e.Description})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: current)")
	return cmd
}

func logExportCmd() *cobra.Command {
	var sessionID, outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a session's audit log to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), true, func(ctx context.Context, a *agent.Agent) error {
				entries := a.ExportAuditLog(ctx, sessionID)
				path, err := export.WriteJSON(entries, outDir, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("exported %d entries to %s\n", len(entries), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: current)")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default screenpilot.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAgent(cmd.Context(), true, func(ctx context.Context, a *agent.Agent) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("SCREENPILOT_JWT_SECRET")}
				if hashes := os.Getenv("SCREENPILOT_API_KEY_HASHES"); hashes != "" {
					authCfg.APIKeyHashes = strings.Split(hashes, ",")
				}
				handler, err := server.New(server.Config{Agent: a, BasePath: basePath, Auth: authCfg})
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
				fmt.Printf("Serving Screenpilot API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8321", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

// withAgent wires the store, planner and capturer and hands the agent to fn.
// When resume is set, the most recent persisted active session is adopted so
// that consecutive CLI invocations operate on the same session.
func withAgent(ctx context.Context, resume bool, fn func(context.Context, *agent.Agent) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	st := store.Store{DB: conn, MaxSessions: cfg.Retention.MaxSessions}
	var pl agent.Planner
	if cfg.IsConfigured() {
		pl = planner.New(cfg.APIKey(), cfg.Model.Name, cfg.Model.BaseURL)
	}
	a := agent.New(st, pl, capture.Display{Index: cfg.Capture.Display}, cfg)
	if resume {
		a.Resume(ctx)
	}
	return fn(ctx, a)
}

func printSession(s domain.Session) {
	fmt.Printf("Session %s (active=%v, started %s)\n", s.ID, s.Active, s.StartedAt)
	for _, p := range s.Plans {
		printPlan(p)
	}
}

func printPlan(p domain.Plan) {
	fmt.Printf("\nPlan %s [%s]\nGoal: %s\n", p.ID, p.Status, p.Goal)
	if p.Reasoning != "" {
		fmt.Printf("Reasoning: %s\n", p.Reasoning)
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "ID", "Kind", "Description", "Status", "Confirm", "Irreversible"})
	for i, a := range p.Actions {
		t.AppendRow(table.Row{i + 1, a.ID, a.Kind, a.Description, a.Status, a.RequiresConfirmation, a.IsIrreversible})
	}
	t.Render()
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
