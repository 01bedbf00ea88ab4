package records

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLSource reads one <user_id>.yaml file per user from a directory. It is
// the development stand-in for the relational database.
type YAMLSource struct {
	dir string
}

func NewYAMLSource(dir string) (*YAMLSource, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure records dir: %w", err)
	}
	return &YAMLSource{dir: dir}, nil
}

func (s *YAMLSource) Dir() string { return s.dir }

func (s *YAMLSource) ListUsers(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read records dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if id, ok := userFromFile(e.Name()); ok && !e.IsDir() {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *YAMLSource) Load(ctx context.Context, userID string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" || strings.ContainsAny(userID, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUser, userID)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, userID+".yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("read records for %s: %w", userID, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode records for %s: %w", userID, err)
	}
	p.UserID = userID
	return &p, nil
}

func userFromFile(name string) (string, bool) {
	id, ok := strings.CutSuffix(filepath.Base(name), ".yaml")
	if !ok || id == "" || strings.HasPrefix(id, ".") {
		return "", false
	}
	return id, true
}
