package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresLogStoreAppend(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPostgresLogStore(mock)

	mock.ExpectQuery("INSERT INTO webhook_logs").
		WithArgs("whatsapp", `{"object":"whatsapp_business_account"}`, "received").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("log-1"))
	id, err := store.Append(context.Background(), "whatsapp", []byte(`{"object":"whatsapp_business_account"}`))
	require.NoError(t, err)
	assert.Equal(t, "log-1", id)

	mock.ExpectQuery("INSERT INTO webhook_logs").
		WithArgs("leadads", `"garbage"`, "received").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("log-2"))
	_, err = store.Append(context.Background(), "leadads", []byte("garbage"))
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLogStoreStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPostgresLogStore(mock)
	ctx := context.Background()

	mock.ExpectExec("UPDATE webhook_logs").
		WithArgs("log-1", "processed", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkProcessed(ctx, "log-1"))

	mock.ExpectExec("UPDATE webhook_logs").
		WithArgs("log-1", "error", "1 of 3 items failed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkError(ctx, "log-1", "1 of 3 items failed"))

	mock.ExpectExec("UPDATE webhook_logs").
		WithArgs("missing", "processed", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.MarkProcessed(ctx, "missing"), ErrLogNotFound)

	mock.ExpectExec("UPDATE webhook_logs").
		WithArgs("log-2", "error", "boom").
		WillReturnError(errors.New("conn reset"))
	assert.Error(t, store.MarkError(ctx, "log-2", "boom"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLogStoreGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPostgresLogStore(mock)
	ctx := context.Background()

	received := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	processed := received.Add(time.Second)
	errMsg := "1 of 2 items failed"
	mock.ExpectQuery("FROM webhook_logs WHERE id").
		WithArgs("log-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "event_type", "payload", "status", "error_message", "received_at", "processed_at"}).
			AddRow("log-1", "whatsapp", []byte(`{"entry":[]}`), "error", &errMsg, received, &processed))

	entry, err := store.Get(ctx, "log-1")
	require.NoError(t, err)
	assert.Equal(t, LogError, entry.Status)
	assert.Equal(t, errMsg, entry.ErrorMessage)
	assert.JSONEq(t, `{"entry":[]}`, string(entry.Payload))
	require.NotNil(t, entry.ProcessedAt)

	mock.ExpectQuery("FROM webhook_logs WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrLogNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryLogStore(t *testing.T) {
	store := NewMemoryLogStore()
	ctx := context.Background()

	id, err := store.Append(ctx, "whatsapp", []byte(`{"a":1}`))
	require.NoError(t, err)

	entry, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, LogReceived, entry.Status)
	assert.Nil(t, entry.ProcessedAt)

	require.NoError(t, store.MarkError(ctx, id, "boom"))
	entry, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, LogError, entry.Status)
	assert.Equal(t, "boom", entry.ErrorMessage)

	assert.ErrorIs(t, store.MarkProcessed(ctx, "nope"), ErrLogNotFound)
	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrLogNotFound)
}
