package services

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

//go:embed prompts/default.yaml
var defaultPromptPack []byte

// PromptExample is one few-shot question/SQL pair
type PromptExample struct {
	Question string `yaml:"question"`
	SQL      string `yaml:"sql"`
}

// PromptPack is the YAML document the NL -> SQL prompt is built from
type PromptPack struct {
	Template     string            `yaml:"template"`
	Rules        []string          `yaml:"rules"`
	DialectNotes map[string]string `yaml:"dialect_notes"`
	Schema       string            `yaml:"schema"`
	Examples     []PromptExample   `yaml:"examples"`

	tmpl *template.Template
}

type promptData struct {
	DialectName string
	DialectNote string
	Rules       []string
	Schema      string
	Examples    []PromptExample
	Question    string
}

var dialectNames = map[string]string{
	"postgres": "PostgreSQL",
	"mysql":    "MySQL",
	"sqlite":   "SQLite",
}

// ParsePromptPack decodes and compiles a prompt pack
func ParsePromptPack(data []byte) (*PromptPack, error) {
	var pack PromptPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse prompt pack: %w", err)
	}
	if strings.TrimSpace(pack.Template) == "" {
		return nil, fmt.Errorf("prompt pack has no template")
	}
	if strings.TrimSpace(pack.Schema) == "" {
		return nil, fmt.Errorf("prompt pack has no schema")
	}

	tmpl, err := template.New("prompt").
		Funcs(template.FuncMap{"add": func(a, b int) int { return a + b }}).
		Option("missingkey=error").
		Parse(pack.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to compile prompt template: %w", err)
	}
	pack.tmpl = tmpl
	return &pack, nil
}

// Render builds the prompt for question in the given dialect
func (p *PromptPack) Render(question, dialect string) (string, error) {
	name, ok := dialectNames[dialect]
	if !ok {
		name = dialect
	}

	var buf bytes.Buffer
	err := p.tmpl.Execute(&buf, promptData{
		DialectName: name,
		DialectNote: p.DialectNotes[dialect],
		Rules:       p.Rules,
		Schema:      strings.TrimSpace(p.Schema),
		Examples:    p.Examples,
		Question:    question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// PromptService holds the active prompt pack and reloads it from disk
type PromptService struct {
	mu      sync.RWMutex
	pack    *PromptPack
	path    string
	dialect string
	logger  *slog.Logger
}

// NewPromptService loads the pack at path, or the embedded default when
// path is empty.
func NewPromptService(path, dialect string, logger *slog.Logger) (*PromptService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PromptService{path: path, dialect: dialect, logger: logger.With("component", "prompts")}

	if path == "" {
		pack, err := ParsePromptPack(defaultPromptPack)
		if err != nil {
			return nil, err
		}
		s.pack = pack
		return s, nil
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Render builds the prompt for question with the active pack
func (s *PromptService) Render(question string) (string, error) {
	s.mu.RLock()
	pack := s.pack
	s.mu.RUnlock()
	return pack.Render(question, s.dialect)
}

// Schema returns the schema description of the active pack
func (s *PromptService) Schema() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pack.Schema
}

// Reload re-reads the pack from disk. A broken file keeps the previous
// pack active.
func (s *PromptService) Reload() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read prompt pack %s: %w", s.path, err)
	}
	pack, err := ParsePromptPack(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pack = pack
	s.mu.Unlock()
	return nil
}

// Watch reloads the pack whenever its file changes, until ctx is done
func (s *PromptService) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for %s: %w", s.path, err)
	}

	// Watching the directory survives editors that replace the file
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}
	filename := filepath.Base(absPath)

	s.logger.Info("👁️  Watching prompt pack for changes", "path", s.path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(300*time.Millisecond, func() {
				if err := s.Reload(); err != nil {
					s.logger.Error("❌ Failed to reload prompt pack", "error", err)
					return
				}
				s.logger.Info("🔄 Prompt pack reloaded", "path", s.path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("⚠️  Prompt watcher error", "error", err)
		}
	}
}
