package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS chat_routes (
	user_id    BIGINT PRIMARY KEY,
	chat_id    BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres is a Directory backed by a PostgreSQL table, so routes survive restarts.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects to dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the routes table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create chat_routes: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Register upserts the chat for userID.
func (p *Postgres) Register(ctx context.Context, userID, chatID int64) error {
	query := `INSERT INTO chat_routes (user_id, chat_id, updated_at)
              VALUES ($1, $2, NOW())
              ON CONFLICT (user_id) DO UPDATE SET chat_id = EXCLUDED.chat_id, updated_at = NOW()`
	if _, err := p.db.ExecContext(ctx, query, userID, chatID); err != nil {
		return fmt.Errorf("failed to register route for user %d: %w", userID, err)
	}
	return nil
}

// Lookup returns the chat registered for userID.
func (p *Postgres) Lookup(ctx context.Context, userID int64) (int64, bool, error) {
	query := `SELECT chat_id FROM chat_routes WHERE user_id = $1`
	var chatID int64
	err := p.db.QueryRowContext(ctx, query, userID).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up route for user %d: %w", userID, err)
	}
	return chatID, true, nil
}

// Routes returns every route ordered by user id.
func (p *Postgres) Routes(ctx context.Context) ([]Route, error) {
	query := `SELECT user_id, chat_id, updated_at FROM chat_routes ORDER BY user_id`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.UserID, &r.ChatID, &r.UpdatedAt); err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}
