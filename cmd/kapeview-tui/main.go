package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/kapeview/kapeview/internal/apiclient"
	"github.com/kapeview/kapeview/internal/tui"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var evidenceID string
	var serverURL string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/kapeview/config.yml)")
	flag.StringVar(&evidenceID, "evidence", "", "evidence id to open in the browser")
	flag.StringVar(&serverURL, "server", "", "override the backend URL")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("kapeview-tui - Evidence Browser\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if evidenceID != "" {
		cfg.EvidenceID = evidenceID
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}

	if err := runTUI(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cfg cliConfig) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("TUI requires a real terminal")
	}

	closeLog := configureLogger(cfg.LogPath)
	defer closeLog()

	client, err := apiclient.New(cfg.ServerURL, cfg.RequestTimeout)
	if err != nil {
		return err
	}
	log.Printf("kapeview-tui: %s starting against %s", version, client.BaseURL())

	app := tui.New(client, tui.Options{
		EvidenceID:   cfg.EvidenceID,
		PageSize:     cfg.PageSize,
		ExportDir:    cfg.ExportDir,
		Timeout:      cfg.RequestTimeout,
		StageTimeout: cfg.StageTimeout,
		ResolveURL:   client.ResolveURL,
	})

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// configureLogger sends the std logger to path; stdout belongs to the
// alt screen. Logging is discarded when the file cannot be opened.
func configureLogger(path string) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if path == "" {
		log.SetOutput(io.Discard)
		return func() {}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.SetOutput(io.Discard)
		return func() {}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.SetOutput(io.Discard)
		return func() {}
	}
	log.SetOutput(f)
	return func() { _ = f.Close() }
}
