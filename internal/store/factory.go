package store

import "basegraph.app/harmony/core/db"

type Stores struct {
	conn db.DBTX
}

// NewStores binds every store to conn, which may be the pool or a transaction.
func NewStores(conn db.DBTX) *Stores {
	return &Stores{conn: conn}
}

func (s *Stores) Runs() RunStore {
	return newRunStore(s.conn)
}

func (s *Stores) RunEvents() RunEventStore {
	return newRunEventStore(s.conn)
}
