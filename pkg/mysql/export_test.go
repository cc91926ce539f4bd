package mysql

import (
	"context"
)

// Exec executes a statement on the session, substituting the table name
func (b *Backend) Exec(ctx context.Context, query string, args ...any) error {
	b.Lock()
	defer b.Unlock()
	_, err := b.conn.ExecContext(ctx, b.bind.Replace(query), args...)
	return err
}

// FormatDSN returns the data source name for the session
func (b *Backend) FormatDSN() string {
	return b.config.FormatDSN()
}
