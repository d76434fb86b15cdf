package store

import (
	"basegraph.app/synapse/core/db"
)

type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) IngestRuns() IngestRunStore {
	return NewIngestRunStore(s.q)
}
