package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nonprofit-site/backend/internal/models"
)

func newMockRepo(t *testing.T) (*GormTurnRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormTurnRepository(db), mock
}

func TestCreateTurn(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "chat_turns"`)).
		WithArgs("S", "hello", "Hi!", "Default Welcome Intent", "answered", int64(42), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	turn := &models.ChatTurn{
		SessionID: "S",
		UserText:  "hello",
		ReplyText: "Hi!",
		Intent:    "Default Welcome Intent",
		Outcome:   "answered",
		LatencyMS: 42,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), turn))

	assert.Equal(t, uint(7), turn.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBySession(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "session_id", "user_text", "reply_text", "intent", "outcome", "latency_ms", "created_at"}).
		AddRow(1, "S", "hello", "Hi!", "Welcome", "answered", 10, now).
		AddRow(2, "S", "asdf", "", "", "no_answer", 12, now.Add(time.Second))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "chat_turns" WHERE session_id = $1 ORDER BY created_at ASC`)).
		WillReturnRows(rows)

	turns, err := repo.ListBySession(context.Background(), "S", 50)

	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hello", turns[0].UserText)
	assert.Equal(t, "no_answer", turns[1].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBySession(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "chat_turns" WHERE session_id = $1`)).
		WithArgs("S").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteBySession(context.Background(), "S")

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
