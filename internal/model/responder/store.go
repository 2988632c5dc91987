package responder

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Directory looks up responders.
type Directory interface {
	// FindAvailableResponder returns the first available responder with the given role.
	// The boolean is false when nobody matches.
	FindAvailableResponder(ctx context.Context, role string) (Responder, bool, error)
	List(ctx context.Context) ([]Responder, error)
}

// MemoryDirectory implements Directory over an in-memory slice.
type MemoryDirectory struct {
	items []Responder
}

// NewMemoryDirectory returns a MemoryDirectory preloaded with the supplied responders.
func NewMemoryDirectory(items []Responder) *MemoryDirectory {
	return &MemoryDirectory{items: append([]Responder(nil), items...)}
}

// FindAvailableResponder returns the first available match in directory order.
func (d *MemoryDirectory) FindAvailableResponder(_ context.Context, role string) (Responder, bool, error) {
	for _, item := range d.items {
		if item.Available && strings.EqualFold(item.Role, role) {
			return item, true, nil
		}
	}
	return Responder{}, false, nil
}

// List returns every responder regardless of availability.
func (d *MemoryDirectory) List(_ context.Context) ([]Responder, error) {
	return append([]Responder(nil), d.items...), nil
}

type directoryFile struct {
	Responders []Responder `yaml:"responders"`
}

// LoadFile reads a YAML directory file of the form:
//
//	responders:
//	  - id: "1"
//	    displayName: Dr. A
//	    role: psychiatrist
//	    contactInfo: "555"
//	    available: true
func LoadFile(path string) ([]Responder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read responders file: %w", err)
	}

	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse responders file %s: %w", path, err)
	}

	for i, r := range file.Responders {
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("responders file %s: entry %d has no id", path, i)
		}
		if r.ContactInfo != nil && strings.TrimSpace(*r.ContactInfo) == "" {
			file.Responders[i].ContactInfo = nil
		}
	}
	return file.Responders, nil
}
