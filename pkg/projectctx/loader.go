// Package projectctx assembles the project background block that rides in
// the opening round of a consultation. Context comes from doc files in a
// local project tree or from a single remote document URL; either way the
// result is normalized prose trimmed to a byte budget.
package projectctx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"

	"github.com/conclave-ai/conclave/pkg/config"
)

// Loader resolves a project path or document URL into the context text
// handed to the advisors. Remote documents are cached with a TTL so
// repeated consultations against the same project do not refetch.
type Loader struct {
	cfg     *config.ProjectContextConfig
	fetcher *Fetcher
	cache   *Cache
	logger  *slog.Logger
}

// NewLoader creates a Loader.
// githubToken is the resolved token value (empty string = no auth, public
// repos only).
func NewLoader(cfg *config.ProjectContextConfig, githubToken string) *Loader {
	ttl := 5 * time.Minute
	if cfg != nil && cfg.CacheTTL > 0 {
		ttl = cfg.CacheTTL
	}
	maxBytes := 0
	if cfg != nil {
		maxBytes = cfg.MaxDocBytes
	}

	return &Loader{
		cfg:     cfg,
		fetcher: NewFetcher(githubToken, maxBytes),
		cache:   NewCache(ttl),
		logger:  slog.Default().With("component", "projectctx"),
	}
}

// Load resolves path into context text. path is either a local project
// directory (doc files are collected via the configured globs), a single
// local file, or an http(s) URL for a remote document.
func (l *Loader) Load(ctx context.Context, path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return l.loadRemote(ctx, path)
	}
	return l.loadLocal(ctx, path)
}

func (l *Loader) loadRemote(ctx context.Context, docURL string) (string, error) {
	if err := ValidateContextURL(docURL, l.domains()); err != nil {
		return "", err
	}

	// Cache key: normalized URL
	key := ConvertToRawURL(docURL)
	if body, ok := l.cache.Get(key); ok {
		return body, nil
	}

	raw, err := l.fetcher.Fetch(ctx, docURL)
	if err != nil {
		return "", err
	}

	body := truncate(normalizeDoc(raw), l.budget())
	l.cache.Set(key, body)
	return body, nil
}

func (l *Loader) loadLocal(ctx context.Context, root string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("project path: %w", err)
	}

	// A single file is treated as the sole context document.
	if !info.IsDir() {
		doc, err := l.readDoc(filepath.Dir(root), root)
		if err != nil {
			return "", err
		}
		return truncate(doc, l.budget()), nil
	}

	files := l.collectDocs(root)
	if len(files) == 0 {
		l.logger.Debug("No context documents matched", "path", root, "globs", l.globs())
		return "", nil
	}

	budget := l.budget()
	var sections []string
	used := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if used >= budget {
			break
		}
		doc, err := l.readDoc(root, file)
		if err != nil {
			l.logger.Warn("Skipping unreadable context document", "file", file, "error", err)
			continue
		}
		if doc == "" {
			continue
		}
		sections = append(sections, doc)
		used += len(doc)
	}

	return truncate(strings.Join(sections, "\n\n"), budget), nil
}

// collectDocs returns doc files matching the configured globs, in glob
// order. Earlier patterns take priority when the budget runs out, so the
// default ordering puts README content ahead of deeper docs.
func (l *Loader) collectDocs(root string) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range l.globs() {
		matches, err := doublestar.Glob(filepath.Join(root, pattern))
		if err != nil {
			l.logger.Warn("Invalid context glob", "pattern", pattern, "error", err)
			continue
		}
		sort.Strings(matches)
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			if _, dup := seen[match]; dup {
				continue
			}
			seen[match] = struct{}{}
			files = append(files, match)
		}
	}
	return files
}

// readDoc reads one doc file, normalizes it, and prefixes a heading naming
// the file so advisors can tell which doc a passage came from.
func (l *Loader) readDoc(root, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if budget := l.budget(); len(raw) > budget {
		raw = raw[:budget]
	}

	body := normalizeDoc(string(raw))
	if body == "" {
		return "", nil
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return fmt.Sprintf("## %s\n\n%s", rel, body), nil
}

func (l *Loader) globs() []string {
	if l.cfg == nil || len(l.cfg.Globs) == 0 {
		return []string{"README*", "docs/*.md"}
	}
	return l.cfg.Globs
}

func (l *Loader) budget() int {
	if l.cfg == nil || l.cfg.MaxDocBytes <= 0 {
		return 64 * 1024
	}
	return l.cfg.MaxDocBytes
}

func (l *Loader) domains() []string {
	if l.cfg == nil {
		return nil
	}
	return l.cfg.AllowedDomains
}

// truncate cuts s to at most max bytes at a line boundary, marking the cut.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, "\n") + "\n\n[context truncated]"
}
