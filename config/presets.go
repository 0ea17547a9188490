package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PresetFilters is the saved form of a dashboard filter. Dates are
// YYYY-MM-DD strings so the file stays hand-editable.
type PresetFilters struct {
	From       string `json:"from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	To         string `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Technician string `json:"technician,omitempty" validate:"max=120"`
	StateUF    string `json:"stateUf,omitempty" validate:"omitempty,len=2|eq=all"`
	Status     string `json:"status,omitempty" validate:"omitempty,oneof=all ok nok"`
}

// Preset is a named, saved dashboard filter.
type Preset struct {
	ID        string        `json:"id"`
	Name      string        `json:"name" validate:"required,max=80"`
	Filters   PresetFilters `json:"filters"`
	CreatedAt time.Time     `json:"created_at"`
}

// PresetManager keeps filter presets in a JSON file.
type PresetManager struct {
	path    string
	mu      sync.RWMutex
	Presets map[string]Preset `json:"presets"` // ID -> Preset
}

// NewPresetManager creates a new manager
func NewPresetManager(path string) *PresetManager {
	return &PresetManager{
		path:    path,
		Presets: make(map[string]Preset),
	}
}

// Load reads the presets from disk, creating an empty file if missing.
func (m *PresetManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.Presets = make(map[string]Preset)
			return m.saveInternal()
		}
		return err
	}

	m.Presets = make(map[string]Preset)
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &m.Presets)
}

// saveInternal writes to disk (must hold lock)
func (m *PresetManager) saveInternal() error {
	data, err := json.MarshalIndent(m.Presets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

// Save stores p, assigning an id when it has none, and returns the stored
// preset.
func (m *PresetManager) Save(p Preset) (Preset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.Presets[p.ID] = p
	if err := m.saveInternal(); err != nil {
		delete(m.Presets, p.ID)
		return Preset{}, fmt.Errorf("failed to save presets: %w", err)
	}
	return p, nil
}

// Delete removes a preset. It reports false when id is unknown.
func (m *PresetManager) Delete(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.Presets[id]
	if !ok {
		return false, nil
	}
	delete(m.Presets, id)
	if err := m.saveInternal(); err != nil {
		m.Presets[id] = p
		return false, err
	}
	return true, nil
}

// Get returns one preset.
func (m *PresetManager) Get(id string) (Preset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.Presets[id]
	return p, ok
}

// List returns all presets sorted by name.
func (m *PresetManager) List() []Preset {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Preset, 0, len(m.Presets))
	for _, p := range m.Presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
