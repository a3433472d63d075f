package api

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

func (s *Server) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS solutions (
  id TEXT PRIMARY KEY,
  numeraire INTEGER NOT NULL,
  hash TEXT NOT NULL,
  data BLOB NOT NULL,
  iterations INTEGER NOT NULL,
  trades INTEGER NOT NULL,
  pruned INTEGER NOT NULL,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_solutions_created_at ON solutions(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}
