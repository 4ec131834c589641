package multitenant

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/repository"
)

type stubDirectory struct {
	mu      sync.Mutex
	entries map[string]domain.Domain
	lookups []string
	delay   time.Duration
}

func newStubDirectory(entries ...domain.Domain) *stubDirectory {
	d := &stubDirectory{entries: make(map[string]domain.Domain)}
	for _, e := range entries {
		d.entries[e.Hostname] = e
	}
	return d
}

func (d *stubDirectory) GetDomain(_ context.Context, hostname string) (*domain.Domain, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups = append(d.lookups, hostname)
	entry, ok := d.entries[hostname]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &entry, nil
}

func (d *stubDirectory) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lookups)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func standardDirectory() *stubDirectory {
	return newStubDirectory(
		domain.Domain{Hostname: "acme.com", Database: "acme_db", Active: true},
		domain.Domain{Hostname: "beta.com", Database: "beta_db", Active: true},
	)
}
