package store

import (
	"context"
	"fmt"

	"github.com/hyperengineering/ridelake/internal/types"
)

// QueryDynamic executes a chat-generated read-only query and returns its
// rows as ordered column/value pairs. The query has already passed the
// chat package's guard; the read-only enforcement here is structural only
// (result scanning), not a second validation pass.
func (s *PostgresStore) QueryDynamic(ctx context.Context, sql string) ([]types.Row, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("dynamic query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var out []types.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read dynamic row: %w", err)
		}
		scalars := make([]types.Scalar, len(values))
		for i, v := range values {
			scalars[i] = types.ScalarOf(v)
		}
		out = append(out, types.Row{Columns: columns, Values: scalars})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dynamic query: %w", err)
	}
	return out, nil
}
