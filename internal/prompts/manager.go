// Package prompts manages the LLM prompt templates. Defaults are compiled
// in; a config-specified directory can override individual templates and is
// optionally watched so prompt edits take effect without a restart.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ciciliostudio/probe/internal/logging"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// Template names
const (
	TestCases       = "test_cases"
	TestCode        = "test_code"
	FailureAnalysis = "failure_analysis"
	FixCode         = "fix_code"
)

// Manager loads and renders prompt templates
type Manager struct {
	overrideDir string

	mu        sync.RWMutex
	templates map[string]*template.Template

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewManager creates a manager with the embedded defaults, overlaid with
// any .tmpl files found in overrideDir. An empty overrideDir uses defaults
// only.
func NewManager(overrideDir string) (*Manager, error) {
	m := &Manager{
		overrideDir: overrideDir,
		templates:   make(map[string]*template.Template),
		done:        make(chan struct{}),
	}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Watch starts watching the override directory for template edits. It is a
// no-op without an override directory.
func (m *Manager) Watch() error {
	if m.overrideDir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(m.overrideDir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", m.overrideDir, err)
	}
	m.watcher = watcher

	go m.watchLoop()
	logging.Info("Watching prompt templates in %s", m.overrideDir)
	return nil
}

func (m *Manager) watchLoop() {
	// Editors fire several events per save; coalesce them.
	var timer *time.Timer
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".tmpl" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(300*time.Millisecond, func() {
				if err := m.reload(); err != nil {
					logging.Error("Prompt template reload failed: %v", err)
					return
				}
				logging.Info("Prompt templates reloaded after change to %s", filepath.Base(event.Name))
			})
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Prompt template watcher error: %v", err)
		case <-m.done:
			return
		}
	}
}

// Close stops the watcher if one is running
func (m *Manager) Close() error {
	close(m.done)
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// reload rebuilds the template set: embedded defaults first, then override
// files on top
func (m *Manager) reload() error {
	templates := make(map[string]*template.Template)

	entries, err := defaultTemplates.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("failed to read embedded templates: %w", err)
	}
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".tmpl")
		data, err := defaultTemplates.ReadFile("templates/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read embedded template %s: %w", entry.Name(), err)
		}
		tmpl, err := template.New(name).Parse(string(data))
		if err != nil {
			return fmt.Errorf("failed to parse embedded template %s: %w", entry.Name(), err)
		}
		templates[name] = tmpl
	}

	if m.overrideDir != "" {
		overrides, err := os.ReadDir(m.overrideDir)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read override directory: %w", err)
		}
		for _, entry := range overrides {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".tmpl" {
				continue
			}
			name := strings.TrimSuffix(entry.Name(), ".tmpl")
			data, err := os.ReadFile(filepath.Join(m.overrideDir, entry.Name()))
			if err != nil {
				return fmt.Errorf("failed to read override template %s: %w", entry.Name(), err)
			}
			tmpl, err := template.New(name).Parse(string(data))
			if err != nil {
				return fmt.Errorf("failed to parse override template %s: %w", entry.Name(), err)
			}
			templates[name] = tmpl
		}
	}

	m.mu.Lock()
	m.templates = templates
	m.mu.Unlock()
	return nil
}

// Render executes the named template with the given data
func (m *Manager) Render(name string, data interface{}) (string, error) {
	m.mu.RLock()
	tmpl, ok := m.templates[name]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown prompt template: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}
