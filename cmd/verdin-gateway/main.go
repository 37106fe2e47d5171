// ABOUTME: Entry point for the verdin-gateway auto-reply server
// ABOUTME: Manages WhatsApp sessions and Gemini-generated replies

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/mdp/qrterminal/v3"

	"github.com/verdin/verdin/internal/config"
	"github.com/verdin/verdin/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                     _ _
__   _____ _ __ __| (_)_ __
\ \ / / _ \ '__/ _' | | '_ \
 \ V /  __/ | | (_| | | | | |
  \_/ \___|_|  \__,_|_|_| |_|
`

// getConfigPath returns the path to the gateway config file.
// Priority: VERDIN_CONFIG env var > XDG_CONFIG_HOME/verdin/gateway.yaml > ~/.config/verdin/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("VERDIN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "verdin", "gateway.yaml")
}

// getDataPath returns the path to the verdin data directory.
// Priority: XDG_DATA_HOME/verdin > ~/.local/share/verdin
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "verdin")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: verdin-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the gateway and its default session")
		fmt.Println("  init    Create a new config file interactively")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Store:   %s\n", cfg.WhatsApp.StoreDir)
	green.Print("    ▶ ")
	fmt.Printf("Model:   %s\n", cfg.Gemini.Model)
	fmt.Println()

	logger.Info("starting verdin-gateway",
		"config", configPath,
		"store_dir", cfg.WhatsApp.StoreDir,
		"model", cfg.Gemini.Model,
	)

	gw, err := gateway.New(ctx, cfg, displayChallenge, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// displayChallenge renders a credential challenge as a terminal QR code for
// the operator to scan from the phone.
func displayChallenge(sessionID, code string) {
	yellow := color.New(color.FgYellow)
	yellow.Printf("\n  Scan to link session %s:\n\n", sessionID)
	qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
	fmt.Println()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("verdin-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultStoreDir := filepath.Join(getDataPath(), "sessions")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// WhatsApp store
	fmt.Println("\n--- WhatsApp Configuration ---")
	storeDir := prompt(reader, "Device store directory", defaultStoreDir)

	// Gemini
	fmt.Println("\n--- Gemini Configuration ---")
	apiKey := prompt(reader, "API key (leave as-is to read from env)", "${GEMINI_API_KEY}")
	model := prompt(reader, "Model", "gemini-2.0-flash")

	// Sessions
	fmt.Println("\n--- Session Configuration ---")
	maxSessions := prompt(reader, "Max concurrent sessions", "3")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# verdin-gateway configuration\n")
	cfg.WriteString("# Generated by verdin-gateway init\n\n")

	cfg.WriteString("whatsapp:\n")
	cfg.WriteString(fmt.Sprintf("  store_dir: \"%s\"\n", storeDir))
	cfg.WriteString("\n")

	cfg.WriteString("gemini:\n")
	cfg.WriteString(fmt.Sprintf("  api_key: \"%s\"\n", apiKey))
	cfg.WriteString(fmt.Sprintf("  model: \"%s\"\n", model))
	cfg.WriteString("  request_timeout: \"15s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("sessions:\n")
	cfg.WriteString(fmt.Sprintf("  max_sessions: %s\n", maxSessions))
	cfg.WriteString("  max_credential_retries: 3\n")
	cfg.WriteString("  restart_delay: \"5s\"\n")
	cfg.WriteString("  settle_delay: \"3s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("replies:\n")
	cfg.WriteString("  history_limit: 10\n")
	cfg.WriteString("  rate_limit_max: 2\n")
	cfg.WriteString("  rate_limit_window: \"60s\"\n")
	cfg.WriteString("  history_retention: \"24h\"\n")
	cfg.WriteString("  staleness_window: \"5m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("typing:\n")
	cfg.WriteString("  min_delay: \"1s\"\n")
	cfg.WriteString("  max_delay: \"3s\"\n")
	cfg.WriteString("  per_char_delay: \"30ms\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure store directory exists
	if err := os.MkdirAll(storeDir, 0755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Device store: %s\n", storeDir)
	fmt.Println("\nTo start the gateway:")
	fmt.Printf("  verdin-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
