package agents

import (
	"context"
	"slices"
	"sync"
)

// InMemoryDirectory keeps discharge reports in process memory.
type InMemoryDirectory struct {
	mu       sync.RWMutex
	patients map[string]Patient
}

func NewInMemoryDirectory(patients ...Patient) *InMemoryDirectory {
	d := &InMemoryDirectory{patients: make(map[string]Patient, len(patients))}
	for _, p := range patients {
		d.Put(p)
	}
	return d
}

func (d *InMemoryDirectory) Put(p Patient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p.Medications = slices.Clone(p.Medications)
	d.patients[normalizeName(p.Name)] = p
}

func (d *InMemoryDirectory) Lookup(ctx context.Context, name string) (Patient, error) {
	if err := ctx.Err(); err != nil {
		return Patient{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patients[normalizeName(name)]
	if !ok {
		return Patient{}, ErrPatientNotFound
	}
	p.Medications = slices.Clone(p.Medications)
	return p, nil
}

func (d *InMemoryDirectory) Close() error { return nil }
