package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/opensource-finance/securescan/internal/domain"
)

// Source supplies a serialized model artifact.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// FileSource reads the artifact from a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) ([]byte, error) {
	return os.ReadFile(s.Path)
}

func (s FileSource) String() string { return "file:" + s.Path }

// RepositorySource reads the latest artifact stored under Name.
type RepositorySource struct {
	Repo domain.Repository
	Name string
}

func (s RepositorySource) Fetch(ctx context.Context) ([]byte, error) {
	artifact, err := s.Repo.GetModelArtifact(ctx, s.Name)
	if err != nil {
		return nil, err
	}
	return artifact.Body, nil
}

func (s RepositorySource) String() string { return "repository:" + s.Name }

// NewSource picks the artifact source from configuration. It returns a nil
// Source for "none".
func NewSource(cfg domain.ModelConfig, repo domain.Repository) (Source, error) {
	switch cfg.Source {
	case "file":
		return FileSource{Path: cfg.Path}, nil
	case "repository":
		if repo == nil {
			return nil, fmt.Errorf("model source repository requires a configured repository")
		}
		return RepositorySource{Repo: repo, Name: cfg.Name}, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported model source: %s", cfg.Source)
	}
}

// Loader loads the model at most once per process and caches the outcome,
// including a failure.
type Loader struct {
	source Source

	once  sync.Once
	model *Model
	err   error
}

// NewLoader creates a loader for src. A nil src never yields a model.
func NewLoader(src Source) *Loader {
	return &Loader{source: src}
}

// Preloaded wraps an already built model.
func Preloaded(m *Model) *Loader {
	l := &Loader{model: m}
	l.once.Do(func() {})
	if m == nil {
		l.err = fmt.Errorf("%w: no model", domain.ErrModelUnavailable)
	}
	return l
}

// Load returns the model, loading it on first use. Concurrent first calls
// share one load. A failed load is reported once and matches
// domain.ErrModelUnavailable on every call.
func (l *Loader) Load(ctx context.Context) (*Model, error) {
	l.once.Do(func() {
		l.model, l.err = l.load(ctx)
		if l.err != nil {
			slog.Warn("model unavailable, scoring with fallback rules", "error", l.err)
			return
		}
		slog.Info("model loaded",
			"source", l.source.String(),
			"name", l.model.Name(),
			"version", l.model.Version(),
			"capabilities", l.model.Capabilities(),
		)
	})
	return l.model, l.err
}

func (l *Loader) load(ctx context.Context) (*Model, error) {
	if l.source == nil {
		return nil, fmt.Errorf("%w: no model source configured", domain.ErrModelUnavailable)
	}

	body, err := l.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", domain.ErrModelUnavailable, l.source, err)
	}

	m, err := Build(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrModelUnavailable, l.source, err)
	}
	return m, nil
}

// Status describes the loaded model for health and info endpoints.
type Status struct {
	Available    bool     `json:"available"`
	Name         string   `json:"name,omitempty"`
	Version      string   `json:"version,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Status reports the outcome of the load. It triggers the load if needed.
func (l *Loader) Status(ctx context.Context) Status {
	m, err := l.Load(ctx)
	if err != nil {
		return Status{Error: err.Error()}
	}
	return Status{
		Available:    true,
		Name:         m.Name(),
		Version:      m.Version(),
		Capabilities: m.Capabilities(),
	}
}

// IsUnavailable reports whether err means no model is loaded.
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrModelUnavailable)
}
