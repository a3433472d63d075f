package api

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// solutionRow solutions 表的一行；data 是解的规范字节
type solutionRow struct {
	ID         string
	Numeraire  uint16
	Hash       string
	Data       []byte
	Iterations int
	Trades     int
	Pruned     int
	CreatedAt  time.Time
}

var errDuplicateBatch = errors.New("batch id already exists")

func (s *Server) insertSolution(ctx context.Context, row solutionRow) error {
	existing, err := s.getSolution(ctx, row.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.Wrap(errDuplicateBatch, row.ID)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO solutions (id,numeraire,hash,data,iterations,trades,pruned,created_at)
VALUES (?,?,?,?,?,?,?,?)
`, row.ID, int(row.Numeraire), row.Hash, row.Data, row.Iterations, row.Trades, row.Pruned, row.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(err, "insert solution")
	}
	return nil
}

func (s *Server) getSolution(ctx context.Context, id string) (*solutionRow, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id,numeraire,hash,data,iterations,trades,pruned,created_at
FROM solutions WHERE id=?
`, id)
	var (
		r         solutionRow
		numeraire int
		createdAt string
	)
	if err := row.Scan(&r.ID, &numeraire, &r.Hash, &r.Data, &r.Iterations, &r.Trades, &r.Pruned, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.Numeraire = uint16(numeraire)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &r, nil
}

// listSolutions 最近的解（不含规范字节）
func (s *Server) listSolutions(ctx context.Context, limit int) ([]solutionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id,numeraire,hash,iterations,trades,pruned,created_at
FROM solutions ORDER BY created_at DESC, id ASC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []solutionRow
	for rows.Next() {
		var (
			r         solutionRow
			numeraire int
			createdAt string
		)
		if err := rows.Scan(&r.ID, &numeraire, &r.Hash, &r.Iterations, &r.Trades, &r.Pruned, &createdAt); err != nil {
			return nil, err
		}
		r.Numeraire = uint16(numeraire)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
