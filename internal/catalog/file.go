package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/verdance/verdance/platform/internal/domain"
)

// DecodeRaw decodes a catalog document. format is "json" or "yaml"; anything
// else is treated as JSON.
func DecodeRaw(data []byte, format string) (Raw, error) {
	var raw Raw
	var err error
	if isYAML(format) {
		err = yaml.Unmarshal(data, &raw)
	} else {
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return Raw{}, fmt.Errorf("decode %s catalog: %w", formatName(format), err)
	}
	return raw, nil
}

// DecodeUsers decodes a list of user records.
func DecodeUsers(data []byte, format string) ([]domain.User, error) {
	var users []domain.User
	var err error
	if isYAML(format) {
		var docs []userYAML
		err = yaml.Unmarshal(data, &docs)
		for _, d := range docs {
			users = append(users, d.user())
		}
	} else {
		err = json.Unmarshal(data, &users)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s users: %w", formatName(format), err)
	}
	for i := range users {
		users[i] = ResolveTier(users[i])
	}
	return users, nil
}

type userYAML struct {
	Email              string                       `yaml:"email"`
	SubscriptionStatus string                       `yaml:"subscription_status"`
	RequestTracking    map[string]usageSnapshotYAML `yaml:"request_tracking"`
}

type usageSnapshotYAML struct {
	PeriodKey string `yaml:"period_key"`
	Count     int    `yaml:"count"`
}

func (u userYAML) user() domain.User {
	out := domain.User{Email: u.Email, SubscriptionStatus: u.SubscriptionStatus}
	if len(u.RequestTracking) > 0 {
		out.RequestTracking = make(map[string]domain.UsageSnapshot, len(u.RequestTracking))
		for k, v := range u.RequestTracking {
			out.RequestTracking[k] = domain.UsageSnapshot{PeriodKey: v.PeriodKey, Count: v.Count}
		}
	}
	return out
}

// FormatFromPath returns "yaml" for .yaml/.yml paths and "json" otherwise.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}

func isYAML(format string) bool {
	f := strings.ToLower(format)
	return f == "yaml" || f == "yml"
}

func formatName(format string) string {
	if isYAML(format) {
		return "yaml"
	}
	return "json"
}

// FileSource reads a catalog (and optionally users) from local JSON or YAML
// files on every load. Pair it with the orchestrator's catalog cache.
type FileSource struct {
	CatalogPath string
	UsersPath   string
}

// NewFileSource creates a file-backed source. usersPath may be empty.
func NewFileSource(catalogPath, usersPath string) *FileSource {
	return &FileSource{CatalogPath: catalogPath, UsersPath: usersPath}
}

func (f *FileSource) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	raw, err := DecodeRaw(data, FormatFromPath(f.CatalogPath))
	if err != nil {
		return nil, err
	}
	return Build(raw), nil
}

func (f *FileSource) GetUser(ctx context.Context, email string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	if f.UsersPath == "" {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	data, err := os.ReadFile(f.UsersPath)
	if err != nil {
		return domain.User{}, fmt.Errorf("read users file: %w", err)
	}
	users, err := DecodeUsers(data, FormatFromPath(f.UsersPath))
	if err != nil {
		return domain.User{}, err
	}
	want := domain.Canonical(email)
	for _, u := range users {
		if domain.Canonical(u.Email) == want {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
}
