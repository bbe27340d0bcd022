package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process TemplateStore and ContactStore.
type Memory struct {
	mu        sync.RWMutex
	templates map[string]Template
	contacts  map[string]Contact
}

func NewMemory() *Memory {
	return &Memory{
		templates: make(map[string]Template),
		contacts:  make(map[string]Contact),
	}
}

func (m *Memory) Template(_ context.Context, id string) (Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return Template{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) Templates(_ context.Context) ([]Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveTemplate(_ context.Context, t Template) error {
	if t.ID == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	m.templates[t.ID] = t
	m.mu.Unlock()
	return nil
}

func (m *Memory) Contact(_ context.Context, id string) (Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) Contacts(_ context.Context, group string) ([]Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		if group == "" || c.Group == group {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveContact(_ context.Context, c Contact) error {
	if c.ID == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	m.contacts[c.ID] = c
	m.mu.Unlock()
	return nil
}
