// Package templates manages the YAML-configured set of diagnosis templates.
package templates

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/orthomate/pkg/models"
)

// DefaultNames is the built-in template list used when no YAML file exists.
var DefaultNames = []models.Template{
	"Rotator Cuff Tear",
	"Carpal Tunnel Syndrome",
	"Hip Arthritis",
	"Knee Arthritis",
	"Meniscus Tear",
	"Distal Radius Fracture",
}

// Template describes one selectable diagnosis.
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Config is the top-level YAML structure.
type Config struct {
	Templates []Template `yaml:"templates"`
}

// Registry holds the loaded templates in definition order.
type Registry struct {
	path   string
	mu     sync.RWMutex
	byName map[models.Template]*Template
	order  []models.Template
}

// Default returns a registry holding DefaultNames.
func Default() *Registry {
	r := &Registry{}
	r.set(defaultTemplates())
	return r
}

// Load reads the YAML file at path and returns a Registry.
// A missing file or an empty template list yields the default registry.
func Load(path string) (*Registry, error) {
	list, err := read(path)
	if err != nil {
		return nil, err
	}
	r := &Registry{path: path}
	r.set(list)
	return r, nil
}

// Reload re-reads the file the registry was loaded from. On error the
// current templates are kept.
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}
	list, err := read(r.path)
	if err != nil {
		return err
	}
	r.set(list)
	return nil
}

// Path returns the YAML file backing the registry, or "" for Default().
func (r *Registry) Path() string {
	return r.path
}

// Has reports whether name is a configured template.
func (r *Registry) Has(name models.Template) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// Get returns a template by name. Returns (nil, false) if not found.
func (r *Registry) Get(name models.Template) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Names returns template names in definition order.
func (r *Registry) Names() []models.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]models.Template, len(r.order))
	copy(names, r.order)
	return names
}

// First returns the initial selection, the first configured template.
func (r *Registry) First() models.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.order[0]
}

func (r *Registry) set(list []Template) {
	byName := make(map[models.Template]*Template, len(list))
	order := make([]models.Template, 0, len(list))
	for i := range list {
		t := &list[i]
		name := models.Template(t.Name)
		if _, dup := byName[name]; dup {
			continue
		}
		byName[name] = t
		order = append(order, name)
	}

	r.mu.Lock()
	r.byName = byName
	r.order = order
	r.mu.Unlock()
}

func read(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultTemplates(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}

	var list []Template
	for _, t := range cfg.Templates {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			continue
		}
		list = append(list, t)
	}
	if len(list) == 0 {
		return defaultTemplates(), nil
	}
	return list, nil
}

func defaultTemplates() []Template {
	list := make([]Template, len(DefaultNames))
	for i, n := range DefaultNames {
		list[i] = Template{Name: string(n)}
	}
	return list
}
