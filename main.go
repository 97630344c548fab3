package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/lexandro/embedsearch-mcp/backend"
	"github.com/lexandro/embedsearch-mcp/config"
	"github.com/lexandro/embedsearch-mcp/register"
	"github.com/lexandro/embedsearch-mcp/server"
	"github.com/lexandro/embedsearch-mcp/tools"
	"github.com/lexandro/embedsearch-mcp/watcher"
)

// serveFlags are the root command's flags. Non-empty values override the
// loaded configuration.
type serveFlags struct {
	configPath     string
	apiURL         string
	defaultProject string
	logLevel       string
	logFile        string
	excludes       []string
	watch          bool
	httpAddr       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "embedsearch-mcp",
		Short: "MCP server for semantic code search via an embedding server",
		Long: `embedsearch-mcp exposes semantic code search to MCP clients. Indexing and
search run on a separate embedding server; this process validates requests,
reads project files and forwards them.

Settings come from defaults, then --config, then EMBED_* environment
variables, then flags.`,
		Version:       server.Version,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&flags.apiURL, "api-url", "", "Embedding server base URL (overrides "+config.EnvAPIURL+")")
	cmd.Flags().StringVar(&flags.defaultProject, "default-project", "", "Project searched when search_code names none")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Log file path (default: stderr)")
	cmd.Flags().StringArrayVar(&flags.excludes, "exclude", nil, "Extra ignore pattern for indexing (repeatable)")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "Re-index projects when their files change")
	cmd.Flags().StringVar(&flags.httpAddr, "http", "", "Serve streamable HTTP on this address instead of stdio")

	cmd.AddCommand(newRegisterCmd())
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "register (project [directory] | user) [-- server flags...]",
		Short: "Add this server to an MCP client configuration",
		Long: `Writes a server entry into <directory>/.mcp.json (project scope) or
~/.claude.json (user scope). Arguments after -- are passed to the server on
launch, and the current ` + config.EnvAPIURL + ` and ` + config.EnvAPIKey + ` are stored as its env.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			positional, serverArgs := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				positional, serverArgs = args[:dash], args[dash:]
			}
			if len(positional) == 0 {
				return fmt.Errorf("missing scope: \"project\" or \"user\"")
			}

			scope, err := register.ParseScope(positional[0])
			if err != nil {
				return err
			}
			options := register.Options{
				ServerName: name,
				Scope:      scope,
				ServerArgs: serverArgs,
				Env:        register.EnvFromLookup(os.LookupEnv, config.EnvAPIURL, config.EnvAPIKey),
			}
			switch {
			case scope == register.ScopeProject && len(positional) > 2:
				return fmt.Errorf("project scope takes at most one directory, got %d", len(positional)-1)
			case scope == register.ScopeProject && len(positional) == 2:
				options.Directory = positional[1]
			case scope == register.ScopeUser && len(positional) > 1:
				return fmt.Errorf("user scope takes no directory")
			}
			if options.ServerName == "" {
				options.ServerName = register.DeriveServerName(os.Args[0])
			}

			configPath, err := register.Register(options)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\n", register.Describe(options), configPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Server name in the client config (default: derived from the binary name)")
	return cmd
}

// loadConfig resolves the effective configuration: file, environment, then flags.
func loadConfig(flags serveFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if flags.apiURL != "" {
		cfg.APIURL = flags.apiURL
	}
	if flags.defaultProject != "" {
		cfg.DefaultProject = flags.defaultProject
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFile != "" {
		cfg.Log.File = flags.logFile
	}
	cfg.Index.Exclude = append(cfg.Index.Exclude, flags.excludes...)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func serve(ctx context.Context, flags serveFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return err
	}

	// Logs go to a file or stderr, never stdout: stdout carries MCP stdio.
	logger, closeLog := setupLogger(cfg.Log.Level, cfg.Log.File)
	defer closeLog()

	client, err := backend.NewClient(backend.ClientOptions{
		BaseURL: cfg.APIURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		logger.Error("invalid backend configuration", "error", err)
		return err
	}

	logger.Info("starting embedsearch-mcp",
		"version", server.Version,
		"backend", client.BaseURL(),
		"auth", cfg.APIKey != "",
		"timeout", cfg.Timeout,
		"defaultProject", cfg.DefaultProject,
		"extensions", strings.Join(cfg.Index.Extensions, ","),
		"batchSize", cfg.Index.BatchSize,
		"watch", flags.watch,
	)

	indexHandler := &tools.IndexHandler{
		Backend: client,
		Options: tools.IndexOptionsFrom(cfg.Index),
		Logger:  logger,
	}

	if flags.watch {
		projectWatcher, err := watcher.New(watcher.Options{
			Exclude: cfg.Index.Exclude,
			Reindex: indexHandler.Run,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn("failed to start file watcher, continuing without live updates", "error", err)
		} else {
			indexHandler.Watcher = projectWatcher
			watchCtx, cancelWatch := context.WithCancel(ctx)
			watchDone := make(chan struct{})
			go func() {
				projectWatcher.Run(watchCtx)
				close(watchDone)
			}()
			defer func() {
				cancelWatch()
				<-watchDone
				logger.Info("file watcher stopped", "projects", projectWatcher.Projects())
				projectWatcher.Close()
			}()
		}
	}

	mcpServer := server.Setup(server.Handlers{
		Search:   &tools.SearchHandler{Backend: client, DefaultProject: cfg.DefaultProject, Logger: logger},
		Index:    indexHandler,
		Projects: &tools.ProjectsHandler{Backend: client, Logger: logger},
		Info:     &tools.ProjectInfoHandler{Backend: client, Logger: logger},
		Stats:    &tools.CacheStatsHandler{Backend: client, Logger: logger},
	})

	if flags.httpAddr != "" {
		err = server.ListenAndServe(ctx, flags.httpAddr, server.HTTPHandler(mcpServer), logger)
	} else {
		logger.Info("MCP server starting on stdio")
		err = mcpServer.Run(ctx, &mcp.StdioTransport{})
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("MCP server error", "error", err)
		return err
	}
	logger.Info("MCP server stopped")
	return nil
}

// setupLogger creates an slog.Logger writing to stderr or a file. The
// returned func closes the file, if any.
func setupLogger(level string, logFile string) (*slog.Logger, func()) {
	var writer io.Writer = os.Stderr
	closeFn := func() {}

	if logFile != "" {
		if dir := filepath.Dir(logFile); dir != "." {
			_ = os.MkdirAll(dir, 0755)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v, falling back to stderr\n", logFile, err)
		} else {
			writer = f
			closeFn = func() { f.Close() }
		}
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler), closeFn
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
