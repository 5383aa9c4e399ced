// verdance runs plant, product and kit recommendations against a configured
// catalog source.
//
// Usage:
//
//	verdance recommend -prefs prefs.json [-user email] [-fresh]
//	verdance quota [-user email] [-feature name]
//	verdance catalog [-warnings]
//	verdance migrate
//	verdance health
//
// The catalog source is chosen from the environment: DATABASE_URL, then
// S3_ENDPOINT, then CATALOG_FILE. REDIS_ADDR switches quota counters and
// rate limits to Redis.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/verdance/verdance/platform/internal/config"
	"github.com/verdance/verdance/platform/internal/logging"
)

// validateEnv checks that connector environment variables have valid values.
// Returns a slice of validation errors (empty if all valid).
func validateEnv() []string {
	var errs []string

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if _, err := url.Parse(dbURL); err != nil {
			errs = append(errs, fmt.Sprintf("DATABASE_URL: invalid URL (%v)", err))
		}
	}

	for _, name := range []string{"S3_METADATA_TIMEOUT", "S3_DATA_TIMEOUT"} {
		if v := os.Getenv(name); v != "" {
			if _, err := time.ParseDuration(v); err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: must be a valid Go duration (e.g. 10s, 2m) (%v)", name, v, err))
			}
		}
	}

	// S3_ENDPOINT and REDIS_ADDR may be host:port without scheme.
	for _, name := range []string{"S3_ENDPOINT", "REDIS_ADDR"} {
		if v := os.Getenv(name); v != "" {
			if _, _, err := net.SplitHostPort(v); err != nil {
				if _, err := url.Parse("http://" + v); err != nil {
					errs = append(errs, fmt.Sprintf("%s=%q: must be a valid endpoint", name, v))
				}
			}
		}
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 0 {
			errs = append(errs, fmt.Sprintf("REDIS_DB=%q: must be a non-negative integer", v))
		}
	}

	if v := os.Getenv("S3_USE_SSL"); v != "" {
		if _, err := strconv.ParseBool(v); err != nil {
			errs = append(errs, fmt.Sprintf("S3_USE_SSL=%q: must be true or false", v))
		}
	}

	for _, name := range []string{"CATALOG_FILE", "USERS_FILE"} {
		if v := os.Getenv(name); v != "" {
			if _, err := os.Stat(v); err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", name, v, err))
			}
		}
	}

	return errs
}

// warnDefaultCredentials logs a warning when S3 or Postgres credentials look
// like well-known development defaults.
func warnDefaultCredentials() {
	if os.Getenv("S3_ACCESS_KEY") == "minioadmin" || os.Getenv("S3_SECRET_KEY") == "minioadmin" {
		slog.Warn("S3 credentials are set to default values (minioadmin), change these for production deployments")
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if u, err := url.Parse(dbURL); err == nil && u.User != nil {
			user := u.User.Username()
			pass, _ := u.User.Password()
			if (user == "verdance" && pass == "verdance") || (user == "postgres" && pass == "postgres") {
				slog.Warn("database credentials appear to be defaults, change these for production deployments",
					"user", user)
			}
		}
	}
}

// commands maps subcommand names to their entry points.
var commands = map[string]func(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error{
	"recommend": runRecommend,
	"quota":     runQuota,
	"catalog":   runCatalog,
	"migrate":   runMigrate,
	"health":    runHealth,
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: verdance <recommend|quota|catalog|migrate|health> [flags]")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}

	// Logs go to stderr so command output on stdout stays machine-readable.
	slog.SetDefault(logging.New(stderr, "json", "info"))

	if errs := validateEnv(); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("invalid environment variable", "error", e)
		}
		return 1
	}
	warnDefaultCredentials()

	// Config: VERDANCE_CONFIG env > ./verdance.yaml > built-in defaults.
	configPath := config.ResolvePath()
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		return 1
	}
	slog.SetDefault(logging.New(stderr, cfg.Log.Format, cfg.Log.Level))
	if configPath != "" {
		slog.Info("config loaded", "path", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, cfg, args[1:], stdout); err != nil {
		slog.Error("command failed", "command", args[0], "error", err)
		return 1
	}
	return 0
}
