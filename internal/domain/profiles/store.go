package profiles

import "leaveflow/internal/platform/db"

type Store struct {
	DB db.Querier
}

func NewStore(q db.Querier) *Store {
	return &Store{DB: q}
}
