package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinTx_CommitAndRollback(t *testing.T) {
	db := NewTestDB(t, testMigrations, "m")
	tx := NewTxRunner(db)
	ctx := context.Background()

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := tx.GetQuerier(ctx).ExecContext(ctx, "INSERT INTO items (name) VALUES ('kept')")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := tx.GetQuerier(ctx).ExecContext(ctx, "INSERT INTO items (name) VALUES ('dropped')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1, CountRows(t, db, "items"))
}

func TestWithinTx_NestedJoinsOuter(t *testing.T) {
	db := NewTestDB(t, testMigrations, "m")
	tx := NewTxRunner(db)

	boom := errors.New("outer failed")
	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		outer, ok := SqlTx(ctx)
		require.True(t, ok)

		err := tx.WithinTx(ctx, func(ctx context.Context) error {
			inner, _ := SqlTx(ctx)
			assert.Same(t, outer, inner)
			_, err := tx.GetQuerier(ctx).ExecContext(ctx, "INSERT INTO items (name) VALUES ('inner')")
			return err
		})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, CountRows(t, db, "items"), "inner write must roll back with the outer tx")
}

func TestGetQuerier_OutsideTx(t *testing.T) {
	db := NewTestDB(t, nil, "")
	tx := NewTxRunner(db)

	_, ok := SqlTx(context.Background())
	assert.False(t, ok)
	assert.Same(t, db, tx.GetQuerier(context.Background()))
}

func TestWithinTx_NonBusyErrorNotRetried(t *testing.T) {
	db := NewTestDB(t, nil, "")
	tx := NewTxRunner(db)

	calls := 0
	err := tx.WithinTx(context.Background(), func(context.Context) error {
		calls++
		return errors.New("constraint")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithinTx_BusyRetried(t *testing.T) {
	db := NewTestDB(t, nil, "")
	tx := NewTxRunner(db)

	calls := 0
	err := tx.WithinTx(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}
