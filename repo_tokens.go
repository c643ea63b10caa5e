package clubauth

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// StoredToken is the single-row model backing the durable token store.
type StoredToken struct {
	bun.BaseModel `bun:"table:access_tokens,alias:tok"`
	Key           string    `bun:"key,pk" json:"key"`
	Token         string    `bun:"token,notnull" json:"token,omitempty"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

// BunTokenStore persists the access token under a fixed key. It is the
// durable counterpart of MemoryTokenStore: the token survives restarts until
// a sign-out clears it or a new exchange overwrites it.
type BunTokenStore struct {
	db     *bun.DB
	key    string
	logger Logger
}

// BunTokenStoreOption customizes store construction.
type BunTokenStoreOption func(*BunTokenStore)

// WithTokenStoreLogger overrides the default logger.
func WithTokenStoreLogger(logger Logger) BunTokenStoreOption {
	return func(s *BunTokenStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewBunTokenStore returns a store writing under the given fixed key.
func NewBunTokenStore(db *bun.DB, key string, opts ...BunTokenStoreOption) *BunTokenStore {
	store := &BunTokenStore{
		db:     db,
		key:    key,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store
}

// CreateTokenTables creates the access token table if missing.
func CreateTokenTables(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*StoredToken)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create token table")
	}
	return nil
}

// OpenTokenDB opens (or creates) the sqlite database backing the store.
func OpenTokenDB(path string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open token database")
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func (s *BunTokenStore) Get(ctx context.Context) (string, bool, error) {
	record := new(StoredToken)
	err := s.db.NewSelect().
		Model(record).
		Where("tok.key = ?", s.key).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read stored token")
	}

	return record.Token, true, nil
}

func (s *BunTokenStore) Set(ctx context.Context, token string) error {
	record := &StoredToken{
		Key:       s.key,
		Token:     token,
		UpdatedAt: time.Now(),
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (key) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist token")
	}

	return nil
}

func (s *BunTokenStore) Clear(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*StoredToken)(nil)).
		Where("key = ?", s.key).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear token")
	}

	return nil
}

var _ TokenStore = (*BunTokenStore)(nil)
