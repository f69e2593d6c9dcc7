package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/FractionEstate/decentralized-did/pkg/config"
)

// helperBlob is the bun model for one stored helper-data blob.
type helperBlob struct {
	bun.BaseModel `bun:"table:helper_blobs"`

	ID        string    `bun:"id,pk"`
	Payload   []byte    `bun:"payload,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Postgres stores blobs in a helper_blobs table. Suited to custodial
// deployments where helper data must survive device loss.
type Postgres struct {
	db *bun.DB
}

// ConnectPostgres creates a bun connection from database configuration.
func ConnectPostgres(cfg *config.DatabaseConfig) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithNetwork("tcp"),
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		pgdriver.WithUser(cfg.User),
		pgdriver.WithPassword(cfg.Password),
		pgdriver.WithDatabase(cfg.Database),
		pgdriver.WithInsecure(cfg.SSLMode == "disable"),
	)

	sqldb := sql.OpenDB(connector)
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", cfg.Database, err)
	}
	return db, nil
}

// NewPostgres creates the Postgres backend on an existing connection.
func NewPostgres(db *bun.DB) *Postgres {
	return &Postgres{db: db}
}

// Name implements Backend.
func (*Postgres) Name() string { return "postgres" }

// CreateSchema creates the helper_blobs table if it does not exist.
func (s *Postgres) CreateSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*helperBlob)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create helper_blobs table: %w", err)
	}
	return nil
}

// Put implements Backend.
func (s *Postgres) Put(ctx context.Context, blob []byte) (Reference, error) {
	row := &helperBlob{
		ID:      uuid.NewString(),
		Payload: blob,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return Reference{}, fmt.Errorf("%w: insert helper blob: %v", ErrUnavailable, err)
	}
	return Reference{Backend: "postgres", ID: row.ID}, nil
}

// Get implements Backend.
func (s *Postgres) Get(ctx context.Context, ref Reference) ([]byte, error) {
	if ref.ID == "" {
		return nil, ErrNotFound
	}

	row := new(helperBlob)
	err := s.db.NewSelect().
		Model(row).
		Where("id = ?", ref.ID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: select helper blob: %v", ErrUnavailable, err)
	}
	return row.Payload, nil
}
