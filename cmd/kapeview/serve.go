package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kapeview/kapeview/internal/backup"
	"github.com/kapeview/kapeview/internal/duckdb"
	"github.com/kapeview/kapeview/internal/evidence"
	"github.com/kapeview/kapeview/internal/httpserver"
)

var (
	serveLogStderr bool
	serveAddr      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the evidence API, media server and snapshot loop.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return &exitError{code: 2, err: fmt.Errorf("loading config: %w", err)}
		}
		if serveAddr != "" {
			cfg.ListenAddr = serveAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveLogStderr, "log-stderr", false, "log to stderr instead of the state directory")
	serveCmd.Flags().StringVar(&serveAddr, "listen-addr", "", "override listen-addr")
}

func runServe(ctx context.Context, cfg serverConfig) error {
	cleanupLogger := configureRuntimeLogger(serveLogStderr)
	defer cleanupLogger()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	ws, err := evidence.New(evidence.Config{MediaRoot: cfg.MediaRoot, Parser: cfg.Parser}, store, nil)
	if err != nil {
		return err
	}
	srv := httpserver.New(httpserver.Config{Addr: cfg.ListenAddr, MediaRoot: ws.Root(), Debug: cfg.Debug}, store, ws)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	var snapshots *backup.Manager
	if cfg.Backup.Interval > 0 {
		snapshots, err = backup.NewManager(store, cfg.Backup)
		if err != nil {
			return fmt.Errorf("failed to initialize snapshots: %w", err)
		}
		g.Go(func() error { return snapshots.Run(gctx) })
	}

	printStartupBanner(cfg, ws.Root(), snapshots != nil)
	log.Printf("server: started (media %s, db %s)", ws.Root(), cfg.DBPath)

	if err := g.Wait(); err != nil {
		return err
	}
	log.Printf("server: stopped")
	return nil
}

func configureRuntimeLogger(toStderr bool) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if toStderr {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	logDir := filepath.Join(home, ".local", "state", "kapeview")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	f, err := os.OpenFile(filepath.Join(logDir, "kapeview.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	log.SetOutput(f)
	gin.DefaultWriter = f
	return func() { _ = f.Close() }
}

func printStartupBanner(cfg serverConfig, mediaRoot string, snapshots bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")
	row := func(mark, label, value string) string {
		return fmt.Sprintf("    %s  %-14s %s", mark, label, value)
	}

	lines := []string{
		"",
		cyan.Bold(true).Render("    kapeview"),
		"    " + dim.Render("v"+version),
		"",
		bold.Render("    Serving"),
		row(check, "Evidence API", cyan.Render("http://"+cfg.ListenAddr+"/api/")),
		row(check, "Media", dim.Render(shortenPath(mediaRoot))),
		row(check, "Metrics", cyan.Render("http://"+cfg.ListenAddr+"/metrics")),
		"",
		bold.Render("    Storage"),
		row(check, "Store", dim.Render(shortenPath(cfg.DBPath))),
	}
	if snapshots {
		lines = append(lines, row(check, "Snapshots", dim.Render(shortenPath(cfg.Backup.Dir)+" every "+cfg.Backup.Interval.String())))
	} else {
		lines = append(lines, row(dot, "Snapshots", dim.Render("disabled")))
	}
	lines = append(lines,
		"",
		bold.Render("    Parser"),
		row(check, "Image", dim.Render(cfg.Parser.Image)),
		"",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"),
		"",
	)
	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
