package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// CLIConfig holds the defaults for the command line flags
type CLIConfig struct {
	OutputDir   string
	DPI         int
	Format      string
	MinWidth    int
	MinHeight   int
	JPEGQuality int
	Renderer    string
	HistoryDB   string // empty disables the job history
	LogLevel    string
	LogOutput   string
	LogFile     string
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// SetupCLI loads configuration and returns CLIConfig and Logger
func SetupCLI() (CLIConfig, *slog.Logger) {
	// Load .env files (silently ignore if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")
	_ = godotenv.Load("pdf2img.env")

	cfg := CLIConfig{
		OutputDir:   filepath.ToSlash(getEnv("PDF2IMG_OUTPUT", "output")),
		DPI:         getEnvInt("PDF2IMG_DPI", 300),
		Format:      strings.ToLower(getEnv("PDF2IMG_FORMAT", "png")),
		MinWidth:    getEnvInt("PDF2IMG_MIN_WIDTH", 100),
		MinHeight:   getEnvInt("PDF2IMG_MIN_HEIGHT", 100),
		JPEGQuality: getEnvInt("PDF2IMG_JPEG_QUALITY", 95),
		Renderer:    strings.ToLower(getEnv("PDF2IMG_RENDERER", "fitz")),
		HistoryDB:   getEnv("PDF2IMG_HISTORY_DB", ""),
		LogLevel:    getEnv("LOG_LEVEL", "warn"),
		LogOutput:   getEnv("LOG_OUTPUT", "stderr"),
		LogFile:     getEnv("LOG_FILE", "pdf2img.log"),
	}
	if getEnvBool("PDF2IMG_NO_HISTORY", false) {
		cfg.HistoryDB = ""
	}

	logger := setupLogging(cfg)
	Logger = logger

	logger.Debug("Configuration loaded",
		"output", cfg.OutputDir,
		"dpi", cfg.DPI,
		"format", cfg.Format,
		"renderer", cfg.Renderer,
		"history", cfg.HistoryDB != "")

	return cfg, logger
}

// parseLevel maps LOG_LEVEL onto a slog level, falling back to warn
func parseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// setupLogging configures the application logger
func setupLogging(cfg CLIConfig) *slog.Logger {
	handlerOptions := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var logWriter io.Writer
	switch cfg.LogOutput {
	case "stdout":
		logWriter = os.Stdout
	case "file":
		logPath, err := filepath.Abs(filepath.ToSlash(cfg.LogFile))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating log file path: %v\n", err)
			logWriter = os.Stderr
			break
		}
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			logWriter = os.Stderr
			break
		}
		logWriter = logFile
	default:
		// stdout carries the conversion summary so logs stay off it
		logWriter = os.Stderr
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}
