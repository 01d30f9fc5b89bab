package modeler

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

//go:embed templates
var defaultTemplates embed.FS

var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrTemplateMalformed = errors.New("template malformed")
)

// TemplateStore loads statement templates by name. Names are slash-separated
// paths without the .json suffix, e.g. "core/course_viewed". A custom
// directory, when configured, shadows the embedded bundle name by name, so a
// deployment can override single templates without forking the defaults.
//
// Parsed templates are cached and validated once: every placeholder string
// must map to a registered accessor of the owning kind, checked at first
// load rather than per record.
type TemplateStore struct {
	customDir string

	mu    sync.Mutex
	cache map[string]map[string]any
}

func NewTemplateStore(customDir string) *TemplateStore {
	return &TemplateStore{
		customDir: customDir,
		cache:     make(map[string]map[string]any),
	}
}

// Load returns the parsed template for name. The returned map is shared and
// must be treated as read-only; expansion copies, never mutates.
func (s *TemplateStore) Load(name string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tpl, ok := s.cache[name]; ok {
		return tpl, nil
	}

	raw, err := s.read(name)
	if err != nil {
		return nil, err
	}
	var tpl map[string]any
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateMalformed, name, err)
	}
	if tpl == nil {
		return nil, fmt.Errorf("%w: %s: document is null", ErrTemplateMalformed, name)
	}

	s.cache[name] = tpl
	return tpl, nil
}

func (s *TemplateStore) read(name string) ([]byte, error) {
	if s.customDir != "" {
		path := filepath.Join(s.customDir, filepath.FromSlash(name)+".json")
		raw, err := os.ReadFile(path)
		if err == nil {
			return raw, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplateMalformed, name, err)
		}
	}
	raw, err := defaultTemplates.ReadFile("templates/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return raw, nil
}
