package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/verdance/verdance/platform/internal/catalog"
	"github.com/verdance/verdance/platform/internal/config"
	"github.com/verdance/verdance/platform/internal/domain"
	"github.com/verdance/verdance/platform/internal/postgres"
	"github.com/verdance/verdance/platform/internal/quota"
	"github.com/verdance/verdance/platform/internal/recommend"
)

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// readPreferences decodes a JSON preferences document from path, or from
// stdin when path is "-".
func readPreferences(path string, stdin io.Reader) (domain.Preferences, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("read preferences: %w", err)
	}
	var prefs domain.Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return domain.Preferences{}, fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, nil
}

func runRecommend(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("recommend", flag.ContinueOnError)
	prefsPath := fs.String("prefs", "", "preferences JSON file, or - for stdin")
	email := fs.String("user", "", "user email (empty for anonymous)")
	fresh := fs.Bool("fresh", false, "bypass the result cache")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *prefsPath == "" {
		return errors.New("recommend: -prefs is required")
	}
	prefs, err := readPreferences(*prefsPath, os.Stdin)
	if err != nil {
		return err
	}

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, err := newService(ctx, cfg, b)
	if err != nil {
		return err
	}

	resp := svc.Recommend(ctx, recommend.Request{Preferences: prefs, Email: *email, Fresh: *fresh})
	if err := writeJSON(stdout, resp); err != nil {
		return err
	}
	// No matches is an answer, not a failure.
	if resp.Failed() && resp.Error != domain.ENoMatches {
		return fmt.Errorf("recommend: %s: %s", resp.Error, resp.Message)
	}
	return nil
}

type quotaReport struct {
	Email     string                  `json:"email,omitempty"`
	Tier      domain.SubscriptionTier `json:"tier"`
	Feature   string                  `json:"feature"`
	Allowed   bool                    `json:"allowed"`
	Limit     int                     `json:"limit"`
	Remaining int                     `json:"remaining"`
	Used      int                     `json:"used"`
	PeriodKey string                  `json:"period_key,omitempty"`
	Message   string                  `json:"message,omitempty"`
}

func runQuota(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("quota", flag.ContinueOnError)
	email := fs.String("user", "", "user email (empty for anonymous)")
	feature := fs.String("feature", quota.FeatureRecommendations, "metered feature")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, err := newService(ctx, cfg, b)
	if err != nil {
		return err
	}

	tier, d, err := svc.QuotaStatus(ctx, *email, *feature)
	if err != nil {
		return err
	}
	return writeJSON(stdout, quotaReport{
		Email:     *email,
		Tier:      tier,
		Feature:   *feature,
		Allowed:   d.Allowed,
		Limit:     d.Limit,
		Remaining: d.Remaining,
		Used:      d.Used,
		PeriodKey: d.PeriodKey,
		Message:   d.Message,
	})
}

type catalogReport struct {
	Source   string            `json:"source"`
	Plants   int               `json:"plants"`
	Products int               `json:"products"`
	Kits     int               `json:"kits"`
	Links    int               `json:"plant_product"`
	Warnings []string          `json:"warnings,omitempty"`
	Breakers map[string]string `json:"breakers"`
}

func runCatalog(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	showWarnings := fs.Bool("warnings", false, "list normalization warnings")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	breaker := catalog.NewBreakerSource(b.catalog, b.users, cfg.Breaker, slog.Default())
	snap, err := breaker.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	counts := snap.Counts()
	report := catalogReport{
		Source:   b.kind,
		Plants:   counts.Plants,
		Products: counts.Products,
		Kits:     counts.Kits,
		Links:    counts.PlantProducts,
		Breakers: breaker.State(),
	}
	if *showWarnings {
		report.Warnings = snap.Warnings
	}
	if counts.Warnings > 0 {
		slog.Warn("catalog normalized with warnings", "count", counts.Warnings)
	}
	return writeJSON(stdout, report)
}

func runMigrate(ctx context.Context, _ *config.Config, args []string, stdout io.Writer) error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return errors.New("migrate: DATABASE_URL is not set")
	}
	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	applied, err := postgres.AppliedMigrations(ctx, pool)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, strings.Join(applied, "\n"))
	return err
}

func runHealth(ctx context.Context, _ *config.Config, _ []string, stdout io.Writer) error {
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	report := make(map[string]string, len(b.health)+1)
	var failed []string
	for _, h := range b.health {
		if err := h.HealthCheck(ctx); err != nil {
			report[h.Name()] = err.Error()
			failed = append(failed, h.Name())
			continue
		}
		report[h.Name()] = "ok"
	}
	if _, err := b.catalog.LoadSnapshot(ctx); err != nil {
		report["catalog"] = err.Error()
		failed = append(failed, "catalog")
	} else {
		report["catalog"] = "ok"
	}

	if err := writeJSON(stdout, report); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("unhealthy: %s", strings.Join(failed, ", "))
	}
	return nil
}
