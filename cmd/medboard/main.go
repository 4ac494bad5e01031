package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"medboard/internal/analysis"
	"medboard/internal/app"
	"medboard/internal/config"
	"medboard/internal/db"
	"medboard/internal/engine"
	"medboard/internal/kanban"
	"medboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "medboard",
	Short: "Medboard CLI",
	Long: `Medboard keeps medical record folders, their document analysis and a
treatment plan board per record.
- Workspace: the .medboard directory holding the database, plus medboard.yml.
- User: the profile of an email identity, created once with 'medboard user onboard'.
- Record: a named folder with one analysis and one board.
- Board: ordered columns of ordered tasks, generated from the analysis or edited by hand.
- Event log: diary of changes, view with 'medboard log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("debug") {
			log.SetLevel(log.DebugLevel)
		}
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
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MEDBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("user", "u", "", "email of the identity to act as")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long:  "Serve the API with OpenAPI at <base>/openapi.json and Swagger UI at /docs. Webhooks from medboard.yml are delivered while serving.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			env, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()
			cfg := env.Config
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:      viper.GetString("jwt_secret"),
				AllowDevHeader: cfg.Server.AllowDevHeader,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowDevHeader {
				return fmt.Errorf("MEDBOARD_JWT_SECRET is required for bearer auth")
			}
			if env.Engine.Analyzer == nil {
				log.Warn("MEDBOARD_GEMINI_API_KEY not set; analysis and plan generation are disabled")
			}
			handler, err := server.New(server.Config{
				Engine:   env.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Log:      log.StandardLogger(),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			dispatcher := server.NewWebhookDispatcher(env.Engine.Repo, cfg.Webhooks, log.StandardLogger())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.WithFields(log.Fields{"addr": addr, "base_path": basePath}).Info("serving medboard API")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return dispatcher.Run(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in medboard.yml in the workspace. Secrets come from MEDBOARD_JWT_SECRET, MEDBOARD_GEMINI_API_KEY and MEDBOARD_REDIS_URL.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
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
		Short: "Validate medboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
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

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default medboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage the user profile"}
	usr.AddCommand(userOnboardCmd())
	usr.AddCommand(userShowCmd())
	return usr
}

func userOnboardCmd() *cobra.Command {
	var opts engine.OnboardOptions
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Create the profile of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				u, err := s.Onboard(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Username, "username", "", "display name")
	cmd.Flags().IntVar(&opts.Age, "age", 0, "age in years")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("age")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func userShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the profile of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				u, err := s.User()
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
}

func recordCmd() *cobra.Command {
	rec := &cobra.Command{Use: "record", Short: "Manage record folders"}
	rec.AddCommand(recordCreateCmd())
	rec.AddCommand(recordListCmd())
	rec.AddCommand(recordShowCmd())
	return rec
}

func recordCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a record folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, email string) error {
				rec, err := e.CreateRecord(ctx, email, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec.Summary())
			})
		},
	}
}

func recordListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List record folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, email string) error {
				recs, err := e.ListRecords(ctx, email)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					out := make([]any, 0, len(recs))
					for _, r := range recs {
						out = append(out, r.Summary())
					}
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Analysis", "Board", "Updated"})
				for _, r := range recs {
					tw.AppendRow(table.Row{r.ID, r.RecordName, yesNo(r.HasAnalysis()), yesNo(r.HasBoard()), r.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func recordShowCmd() *cobra.Command {
	var withBoard bool
	cmd := &cobra.Command{
		Use:   "show <record-id>",
		Short: "Show a record and its analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				rec, err := s.SelectRecord(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") && !withBoard {
					return printJSON(rec)
				}
				if !viper.GetBool("json") {
					fmt.Printf("Record: %s (%s)\n", rec.RecordName, rec.ID)
					fmt.Printf("Board: %s\n", yesNo(rec.HasBoard()))
					if rec.HasAnalysis() {
						fmt.Println("Analysis:")
						fmt.Println(rec.AnalysisResult)
					} else {
						fmt.Println("Analysis: none")
					}
				}
				if !withBoard {
					return nil
				}
				view, err := s.ActiveBoard(ctx)
				if err != nil {
					return err
				}
				return printBoard(view)
			})
		},
	}
	cmd.Flags().BoolVar(&withBoard, "board", false, "also print the record's board")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var mimeType string
	cmd := &cobra.Command{
		Use:   "analyze <record-id> <file>",
		Short: "Analyze a document into a record",
		Long:  "Sends the document to the analysis model and stores the findings. A new analysis clears the record's board.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if mimeType == "" {
				mimeType = detectMIME(args[1], data)
			}
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, email string) error {
				rec, err := e.AnalyzeRecord(ctx, email, args[0], analysis.Document{MIMEType: mimeType, Data: data})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				fmt.Println(rec.AnalysisResult)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mimeType, "mime", "", "document MIME type (detected when empty)")
	return cmd
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <record-id>",
		Short: "Generate the treatment board from the analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, email string) error {
				out, err := e.GeneratePlan(ctx, email, args[0])
				if err != nil {
					return err
				}
				if !out.Generated && !viper.GetBool("json") {
					fmt.Println("Record already has a board.")
				}
				return printBoard(out.BoardView)
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	keys.AddCommand(apiKeyCreateCmd())
	keys.AddCommand(apiKeyListCmd())
	keys.AddCommand(apiKeyDeleteCmd())
	return keys
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, email string) error {
				key, secret, err := e.CreateAPIKey(ctx, email, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "name": key.Name, "key": secret})
				}
				fmt.Printf("API key %s created. Store it now, it is not shown again:\n%s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, email string) error {
				keys, err := e.ListAPIKeys(ctx, email)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
}

func apiKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, email string) error {
				return e.DeleteAPIKey(ctx, email, args[0])
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var recordID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, email string) error {
				var (
					items any
					err   error
				)
				if recordID != "" {
					items, err = e.RecordEvents(ctx, email, recordID, n, 0)
				} else {
					items, err = e.TailEvents(ctx, email, n)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&recordID, "record", "", "only events of this record")
	return cmd
}

// --- helpers ---

func openEnv(ctx context.Context) (*app.Env, error) {
	return app.Open(ctx, app.Options{
		Workspace:    viper.GetString("workspace"),
		GeminiAPIKey: viper.GetString("gemini_api_key"),
		RedisURL:     viper.GetString("redis_url"),
		Logger:       log.StandardLogger(),
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env.Engine)
}

func withIdentity(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	email, err := app.Identity(viper.GetString("user"))
	if err != nil {
		return err
	}
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		return fn(ctx, e, email)
	})
}

func withSession(ctx context.Context, fn func(context.Context, *app.Session) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		s := app.NewSession(e)
		if err := s.Login(ctx, viper.GetString("user")); err != nil {
			return err
		}
		defer s.Logout()
		return fn(ctx, s)
	})
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

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "-"
}

func detectMIME(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printBoard(view engine.BoardView) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{
			"record_id": view.RecordID,
			"columns":   view.Board.Columns(),
			"tasks":     view.Board.Tasks(),
			"notice":    view.Report.Notice(),
		})
	}
	if notice := view.Report.Notice(); notice != "" {
		fmt.Println(notice)
	}
	renderBoard(os.Stdout, view.Board)
	return nil
}

// renderBoard prints one table column per board column with tasks stacked
// in order below the title.
func renderBoard(w io.Writer, b *kanban.Board) {
	cols := b.Columns()
	if len(cols) == 0 {
		fmt.Fprintln(w, "(empty board)")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	header := table.Row{}
	lanes := make([][]kanban.Task, len(cols))
	depth := 0
	for i, c := range cols {
		header = append(header, fmt.Sprintf("%s [%s]", c.Title, c.ID))
		lanes[i] = b.TasksIn(c.ID)
		depth = max(depth, len(lanes[i]))
	}
	tw.AppendHeader(header)
	for row := 0; row < depth; row++ {
		r := table.Row{}
		for _, lane := range lanes {
			if row < len(lane) {
				r = append(r, fmt.Sprintf("%s [%s]", lane[row].Content, lane[row].ID))
			} else {
				r = append(r, "")
			}
		}
		tw.AppendRow(r)
	}
	tw.Render()
}
