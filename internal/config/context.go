package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context is the CLI's sticky selection: the conversation partner and task
// filter commands fall back to when none is given.
type Context struct {
	PartnerID   int64     `yaml:"partner,omitempty"`
	PartnerName string    `yaml:"partner_name,omitempty"`
	TaskID      int64     `yaml:"task,omitempty"`
	UpdatedAt   time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no context is set.
func (c *Context) IsEmpty() bool {
	return c.PartnerID == 0 && c.TaskID == 0
}

// HasPartner returns true if a partner is selected.
func (c *Context) HasPartner() bool {
	return c.PartnerID > 0
}

// HasTask returns true if a task filter is set.
func (c *Context) HasTask() bool {
	return c.TaskID > 0
}

// Clear removes all context.
func (c *Context) Clear() {
	c.PartnerID = 0
	c.PartnerName = ""
	c.TaskID = 0
	c.UpdatedAt = time.Now()
}

// SetPartner records the selected conversation partner.
func (c *Context) SetPartner(id int64, name string) {
	c.PartnerID = id
	c.PartnerName = name
	c.UpdatedAt = time.Now()
}

// SetTask records the task filter. Zero clears it.
func (c *Context) SetTask(id int64) {
	c.TaskID = id
	c.UpdatedAt = time.Now()
}

// String returns a human-readable representation of the context.
func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no context set)"
	}
	out := ""
	if c.HasPartner() {
		name := c.PartnerName
		if name == "" {
			name = fmt.Sprintf("#%d", c.PartnerID)
		}
		out = "partner:" + name
	}
	if c.HasTask() {
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("task:%d", c.TaskID)
	}
	return out
}

// ContextStore manages loading and saving context.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a new context store.
// If path is empty, uses the default path (~/.config/tasker/context.yaml).
func NewContextStore(path string) *ContextStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "tasker", "context.yaml")
	}
	return &ContextStore{path: path}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context from disk.
// Returns an empty context if the file doesn't exist.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := &Context{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctx, nil
		}
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}
	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}
	return ctx, nil
}

// Save writes the context to disk.
func (s *ContextStore) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}
	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}
	return nil
}

// Clear removes the context file.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
