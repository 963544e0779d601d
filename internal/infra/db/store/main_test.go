//go:build !integration

package store

import (
	"context"
	"testing"
	"time"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/infra/db"
	"telegram-license-server/internal/infra/logging"
)

// newTestDB opens a private in-memory SQLite database with the schema applied.
func newTestDB(t *testing.T) (db.DB, *db.TxManager, *Stores) {
	t.Helper()
	ctx := context.Background()
	pool, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(pool.Close)

	tm := db.NewTxManager(pool, 3, 10*time.Millisecond, logging.Nop())
	opts := SchemaOptions{Settings: []model.Setting{{Key: "price_30", Value: "15"}}}
	if err := InitSchema(ctx, tm, pool.Dialect(), opts, logging.Nop()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return pool, tm, New(pool, nil, time.Minute, logging.Nop())
}

func mustCode(t *testing.T, s *Stores, value string, days int, dev bool) *model.Code {
	t.Helper()
	c, err := model.NewCode(value, days, dev)
	if err != nil {
		t.Fatalf("new code: %v", err)
	}
	if err := s.Codes.Create(context.Background(), nil, c); err != nil {
		t.Fatalf("create code: %v", err)
	}
	return c
}

func mustUser(t *testing.T, s *Stores, id int64, username string) *model.User {
	t.Helper()
	u, err := model.NewUser(id, username)
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	if _, err := s.Users.Create(context.Background(), nil, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}
