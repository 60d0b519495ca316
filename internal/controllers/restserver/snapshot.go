package restserver

import (
	"sync/atomic"

	"github.com/chrissnell/resilience/internal/resilience"
)

// Snapshot is one analyzed batch together with what is needed to explain
// it: the observation tables of its runs and the configuration it was
// analyzed with. A Snapshot is never modified after it is published.
type Snapshot struct {
	Batch  *resilience.Batch
	Tables map[string]resilience.Table
	Config resilience.Config
}

// NewSnapshot indexes tables by run ID.
func NewSnapshot(b *resilience.Batch, tables []resilience.Table, cfg resilience.Config) *Snapshot {
	s := &Snapshot{Batch: b, Config: cfg, Tables: make(map[string]resilience.Table, len(tables))}
	for _, t := range tables {
		s.Tables[t.ID()] = t
	}
	return s
}

// Source supplies the snapshot currently being served.
type Source interface {
	Current() *Snapshot
}

// Latest holds the most recently published snapshot. Readers never block
// a reload and always see a complete batch.
type Latest struct {
	p atomic.Pointer[Snapshot]
}

// Publish replaces the served snapshot.
func (l *Latest) Publish(s *Snapshot) {
	l.p.Store(s)
}

// Current returns the served snapshot, or nil before the first Publish.
func (l *Latest) Current() *Snapshot {
	return l.p.Load()
}
