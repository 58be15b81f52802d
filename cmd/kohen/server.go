package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/infobmscommunity-ai/kohen-caption/internal/api"
	"github.com/infobmscommunity-ai/kohen-caption/internal/auth"
	"github.com/infobmscommunity-ai/kohen-caption/internal/config"
	"github.com/infobmscommunity-ai/kohen-caption/internal/generation"
	"github.com/infobmscommunity-ai/kohen-caption/internal/outbox"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
	"github.com/infobmscommunity-ai/kohen-caption/internal/studio"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the kohen server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running kohen server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kohen system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var mcpEmail string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the caption tools over MCP (stdio)",
	Long: "Runs an MCP server on stdin/stdout for the signed-in account. " +
		"Uses the saved session, or --email to pick an account directly.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd.Context())
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpEmail, "email", "", "act as the account with this email")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "kohen.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// services holds everything both the HTTP and MCP front ends share.
type services struct {
	store     *storage.Store
	auth      *auth.Service
	gen       *generation.Client
	workspace *studio.Workspace
}

func openServices(ctx context.Context, cfg config.Config) (*services, error) {
	if err := cfg.RequireGemini(); err != nil {
		return nil, err
	}
	if err := config.EnsureJWTSecret(&cfg); err != nil {
		return nil, fmt.Errorf("initializing session secret: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	authSvc, err := auth.NewService(store, auth.Options{
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		ProviderSecret: []byte(cfg.Auth.ProviderSecret),
		SessionTTL:     cfg.Auth.SessionTTL,
		ResetURL:       cfg.Auth.ResetURL,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("initializing auth: %w", err)
	}

	gen, err := generation.NewClient(ctx, generation.Options{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.Gemini.Timeout,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	ws := studio.NewWorkspace(store, gen)
	// Screen state belongs to the session; drop it when the user signs out.
	authSvc.Subscribe(func(c auth.StateChange) {
		if c.User == nil {
			ws.Forget(c.UserID)
		}
	})

	return &services{store: store, auth: authSvc, gen: gen, workspace: ws}, nil
}

func (s *services) close() {
	if err := s.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "kohen version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("kohen is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("kohen is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	worker := outbox.NewWorker(svc.store, outbox.LogMailer{}, cfg.Outbox.PollInterval)
	go worker.Run(ctx)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(api.AppDeps{
			Store:          svc.store,
			Auth:           svc.auth,
			Workspace:      svc.workspace,
			AllowedOrigins: cfg.Server.Origins(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "kohen listening on %s (model %s)\n", addr, svc.gen.Model())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs go to stderr only.
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := openServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	user, err := resolveMCPUser(ctx, svc)
	if err != nil {
		return err
	}
	slog.Info("MCP server started (stdio transport)", "user", user.Email)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     svc.store,
		Workspace: svc.workspace,
		UserID:    user.ID,
	})
	err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func resolveMCPUser(ctx context.Context, svc *services) (storage.User, error) {
	if mcpEmail != "" {
		u, err := svc.store.GetUserByEmail(ctx, mcpEmail)
		if err != nil {
			return storage.User{}, fmt.Errorf("looking up %s: %w", mcpEmail, err)
		}
		return u, nil
	}
	token := config.SessionToken()
	if token == "" {
		return storage.User{}, fmt.Errorf("not signed in; run `kohen auth login` or pass --email")
	}
	u, err := svc.auth.Authenticate(ctx, token)
	if err != nil {
		return storage.User{}, fmt.Errorf("saved session is no longer valid: %w", err)
	}
	return u, nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("kohen is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop kohen (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to kohen (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Gemini model", "%s", cfg.Gemini.Model)
	if cfg.Gemini.APIKey == "" {
		printStatus("Gemini key", "missing")
	} else {
		printStatus("Gemini key", "set")
	}

	// Show catalog/history counts if the server is running and we are signed in.
	token := config.SessionToken()
	if token == "" {
		printStatus("Account", "signed out")
	} else if resp != nil && resp.StatusCode == 200 {
		if meResp, err := apiGet(client, serverURL+"/auth/me", token); err == nil {
			var u storage.User
			if meResp.StatusCode == 200 && json.NewDecoder(meResp.Body).Decode(&u) == nil {
				printStatus("Account", "%s", u.Email)
			} else {
				printStatus("Account", "session expired")
			}
			meResp.Body.Close()
		}
		if catResp, err := apiGet(client, serverURL+"/catalog", token); err == nil {
			var items []json.RawMessage
			if json.NewDecoder(catResp.Body).Decode(&items) == nil {
				printStatus("Products", "%d", len(items))
			}
			catResp.Body.Close()
		}
		if histResp, err := apiGet(client, serverURL+"/captions?limit=100", token); err == nil {
			var captions []json.RawMessage
			if json.NewDecoder(histResp.Body).Decode(&captions) == nil {
				printStatus("Captions", "%s", countLabel(len(captions), 100))
			}
			histResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
