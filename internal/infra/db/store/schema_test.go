//go:build !integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
	"telegram-license-server/internal/infra/logging"
)

func TestInitSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("should be a no-op when run again", func(t *testing.T) {
		// Arrange
		pool, tm, s := newTestDB(t)
		mustCode(t, s, "AAAA000000000001", 30, false)

		// Act
		err := InitSchema(ctx, tm, pool.Dialect(), SchemaOptions{}, logging.Nop())

		// Assert
		if err != nil {
			t.Fatalf("second InitSchema failed: %v", err)
		}
		if _, err := s.Codes.FindByCode(ctx, nil, "AAAA000000000001"); err != nil {
			t.Errorf("existing data should survive re-init: %v", err)
		}
		for _, c := range columns {
			ok, err := pool.Dialect().ColumnExists(ctx, pool, c.table, c.column)
			if err != nil || !ok {
				t.Errorf("expected column %s.%s to exist (err=%v)", c.table, c.column, err)
			}
		}
	})

	t.Run("should never overwrite a seeded setting", func(t *testing.T) {
		pool, tm, s := newTestDB(t)
		if err := s.Settings.Set(ctx, nil, "price_30", "99"); err != nil {
			t.Fatalf("set: %v", err)
		}

		opts := SchemaOptions{Settings: []model.Setting{{Key: "price_30", Value: "15"}, {Key: "price_60", Value: "25"}}}
		if err := InitSchema(ctx, tm, pool.Dialect(), opts, logging.Nop()); err != nil {
			t.Fatalf("InitSchema failed: %v", err)
		}

		got, _ := s.Settings.Get(ctx, nil, "price_30")
		if got == nil || got.Value != "99" {
			t.Errorf("operator edit was overwritten: %+v", got)
		}
		got, _ = s.Settings.Get(ctx, nil, "price_60")
		if got == nil || got.Value != "25" {
			t.Errorf("missing seed was not written: %+v", got)
		}
	})

	t.Run("should seed partner admins except the owner", func(t *testing.T) {
		pool, tm, s := newTestDB(t)
		opts := SchemaOptions{PartnerAdmins: []int64{1, 2, 3}, Owner: 1}
		if err := InitSchema(ctx, tm, pool.Dialect(), opts, logging.Nop()); err != nil {
			t.Fatalf("InitSchema failed: %v", err)
		}
		admins, err := s.Admins.List(ctx, nil)
		if err != nil {
			t.Fatalf("list admins: %v", err)
		}
		if len(admins) != 2 {
			t.Fatalf("expected 2 partner admins, got %d", len(admins))
		}
		for _, a := range admins {
			if a.AddedBy != 1 {
				t.Errorf("expected added_by owner, got %d", a.AddedBy)
			}
		}
	})

	t.Run("should mark codes with revoked bindings as revoked", func(t *testing.T) {
		// Arrange
		pool, tm, s := newTestDB(t)
		c := mustCode(t, s, "OLDR000000000001", 30, false)
		if err := s.Activations.Create(ctx, nil, &model.Activation{CodeID: c.ID, HWID: "hw", ActivatedAt: time.Now().UTC(), Revoked: true}); err != nil {
			t.Fatalf("activate: %v", err)
		}

		// Act
		err := InitSchema(ctx, tm, pool.Dialect(), SchemaOptions{}, logging.Nop())

		// Assert
		if err != nil {
			t.Fatalf("InitSchema failed: %v", err)
		}
		got, err := s.Codes.FindByCode(ctx, nil, c.Code)
		if err != nil || !got.IsRevoked() {
			t.Errorf("expected backfilled revocation, got %+v (%v)", got, err)
		}
	})
}

func TestAddColumn(t *testing.T) {
	ctx := context.Background()
	pool, tm, _ := newTestDB(t)
	d := pool.Dialect()

	run := func(fn func(tx db.Tx) error) error {
		return tm.WithTx(ctx, func(ctx context.Context, rtx repository.Tx) error {
			return fn(rtx.(db.Tx))
		})
	}

	t.Run("should tolerate an existing column", func(t *testing.T) {
		err := run(func(tx db.Tx) error {
			added, err := addColumn(ctx, tx, d, "codes", "assigned_username", "TEXT")
			if added {
				t.Error("existing column reported as added")
			}
			return err
		})
		if err != nil {
			t.Fatalf("expected duplicate column to be tolerated, got %v", err)
		}
	})

	t.Run("should add a new column", func(t *testing.T) {
		err := run(func(tx db.Tx) error {
			added, err := addColumn(ctx, tx, d, "codes", "note", "TEXT")
			if !added {
				t.Error("expected column to be added")
			}
			return err
		})
		if err != nil {
			t.Fatalf("addColumn failed: %v", err)
		}
		if ok, _ := d.ColumnExists(ctx, pool, "codes", "note"); !ok {
			t.Error("column not visible after commit")
		}
	})

	t.Run("should surface failures other than duplicate column", func(t *testing.T) {
		var addErr error
		err := run(func(tx db.Tx) error {
			_, addErr = addColumn(ctx, tx, d, "no_such_table", "x", "TEXT")
			// The transaction stays usable after the savepoint rollback.
			_, err := tx.Exec(ctx, "SELECT 1")
			return err
		})
		if err != nil {
			t.Fatalf("transaction should survive a rolled back savepoint: %v", err)
		}
		if addErr == nil {
			t.Fatal("expected an error for a missing table")
		}
	})
}

func TestGetExecutor(t *testing.T) {
	pool, _, _ := newTestDB(t)

	if q, err := getExecutor(pool, nil); err != nil || q == nil {
		t.Errorf("nil tx should use the pool, got %v", err)
	}
	if _, err := getExecutor(nil, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := getExecutor(pool, "bogus"); !errors.Is(err, domain.ErrInvalidExecContext) {
		t.Errorf("expected ErrInvalidExecContext, got %v", err)
	}
}
