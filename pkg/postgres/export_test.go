package postgres

import (
	"context"
)

// Exec executes a statement on the session, substituting the table name
func (b *Backend) Exec(ctx context.Context, query string, args ...any) error {
	b.Lock()
	defer b.Unlock()
	_, err := b.conn.Exec(ctx, b.bind.Replace(query), args...)
	return err
}

// ConnString returns the connection string for the session
func (b *Backend) ConnString() string {
	return b.Encode()
}
