package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kpcai/examfront/internal/api"
	"github.com/kpcai/examfront/internal/devstub"
	"github.com/kpcai/examfront/internal/handler"
	appI18n "github.com/kpcai/examfront/internal/i18n"
	"github.com/kpcai/examfront/internal/session"
)

//go:generate templ generate

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examfront",
		Short: "Web front-end for the generative AI competency assessment platform",
	}

	serve := serveCmd()
	root.AddCommand(serve, devserverCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examfront --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the exam web server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("api-url", "http://localhost:8000", "Assessment backend base URL (without /api)")
	f.StringP("lang", "l", "ko", "UI language (ko, en)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /exam)")
	f.Bool("secure-cookies", true, "Set Secure flag on auth cookies")
	f.Int("ai-usage-limit", 10, "Maximum AI-assist calls per question")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func devserverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Start a local stand-in for the assessment backend",
		RunE:  runDevserver,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8000", "HTTP listen address")
	f.String("db", "examfront.db", "SQLite database path")
	f.String("admin-email", "admin@example.com", "Seed admin email")
	f.String("admin-password", "", "Seed admin password (or set EXAMFRONT_ADMIN_PASSWORD)")
	f.StringSliceP("questions", "q", nil, "Paths to question JSON files (repeatable)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty for canned responses)")
	f.String("llm-key", "", "API key for the AI endpoint")
	f.String("llm-model", "gpt-4o-mini", "AI model name")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examfront")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examfront")
	v.AddConfigPath("/etc/examfront")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	apiURL := v.GetString("api-url")
	client := api.New(apiURL, api.WithUnauthorizedHook(func() {
		slog.Debug("backend returned 401")
	}))
	if err := client.CheckHealth(context.Background()); err != nil {
		slog.Warn("backend health check failed, starting anyway", "url", apiURL, "error", err)
	} else {
		slog.Info("backend OK", "url", apiURL)
	}

	sessions := session.NewManager(client)

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h, err := handler.New(client, sessions, handler.Config{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		AIUsageLimit:  v.GetInt("ai-usage-limit"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"api_url", apiURL,
		"lang", lang,
		"base_path", basePath,
		"ai_usage_limit", v.GetInt("ai-usage-limit"),
	)
	return http.ListenAndServe(addr, r)
}

func runDevserver(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	store, err := devstub.NewStore(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	password := v.GetString("admin-password")
	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMFRONT_ADMIN_PASSWORD env var")
	}
	if err := devstub.SeedAdmin(store, v.GetString("admin-email"), password); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	for _, path := range v.GetStringSlice("questions") {
		if err := devstub.ImportQuestions(store, path); err != nil {
			return fmt.Errorf("import questions: %w", err)
		}
	}

	ai := devstub.NewAssistant(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)

	h := devstub.NewHandler(store, ai)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting dev backend", "addr", addr, "db", v.GetString("db"))
	return http.ListenAndServe(addr, r)
}
