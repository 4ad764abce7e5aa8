package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"linkhealth/domain/model"
	"linkhealth/domain/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestPostgresStore_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents (collection, id, data, updated_at) VALUES ($1, $2, $3, $4)`)).
		WithArgs("docs", "a", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	require.NoError(t, store.Put(context.Background(), "docs", "a", testDoc{ID: "a"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2`)
	mock.ExpectQuery(q).WithArgs("docs", "a").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"id":"a","userId":"u1","count":4}`)))
	mock.ExpectQuery(q).WithArgs("docs", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	store := NewPostgresStore(db)
	var got testDoc
	require.NoError(t, store.Get(context.Background(), "docs", "a", &got))
	assert.Equal(t, testDoc{ID: "a", UserID: "u1", Count: 4}, got)

	err = store.Get(context.Background(), "docs", "missing", &got)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND data->>$2 = $3 AND data->>$4 = $5 ORDER BY updated_at`)).
		WithArgs("docs", "sessionId", "s1", "userId", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"id":"a","userId":"u1"}`)).
			AddRow([]byte(`{"id":"b","userId":"u1"}`)))

	store := NewPostgresStore(db)
	var got []testDoc
	err = store.Query(context.Background(), "docs", repository.Filter{"userId": "u1", "sessionId": "s1"}, &got)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT data FROM documents`).WillReturnError(errors.New("connection reset"))

	var got []testDoc
	err = NewPostgresStore(db).Query(context.Background(), "docs", nil, &got)
	assert.ErrorContains(t, err, "connection reset")
}

func TestMSSQLStore_PutAndQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`MERGE dbo.documents AS target`)).
		WithArgs("docs", "a", `{"id":"a","userId":"u1","count":0}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM dbo.documents WHERE collection = @p1 AND JSON_VALUE(data, '$.userId') = @p2 ORDER BY updated_at`)).
		WithArgs("docs", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(`{"id":"a","userId":"u1"}`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM dbo.documents WHERE collection = @p1 AND id = @p2`)).
		WithArgs("docs", "gone").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	store := NewMSSQLStore(db)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "docs", "a", testDoc{ID: "a", UserID: "u1"}))

	var got []testDoc
	require.NoError(t, store.Query(ctx, "docs", repository.Filter{"userId": "u1"}, &got))
	require.Len(t, got, 1)

	var one testDoc
	assert.ErrorIs(t, store.Get(ctx, "docs", "gone", &one), repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func newGormMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestMySQLStore_Put(t *testing.T) {
	db, mock := newGormMock(t)
	mock.ExpectExec("INSERT INTO `documents`.*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewMySQLStore(db).Put(context.Background(), "docs", "a", testDoc{ID: "a"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_Get(t *testing.T) {
	db, mock := newGormMock(t)
	mock.ExpectQuery("SELECT \\* FROM `documents` WHERE collection = \\? AND id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"collection", "id", "data", "updated_at"}).
			AddRow("docs", "a", `{"id":"a","count":7}`, now()))
	mock.ExpectQuery("SELECT \\* FROM `documents` WHERE collection = \\? AND id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"collection", "id", "data", "updated_at"}))

	store := NewMySQLStore(db)
	var got testDoc
	require.NoError(t, store.Get(context.Background(), "docs", "a", &got))
	assert.Equal(t, 7, got.Count)
	assert.ErrorIs(t, store.Get(context.Background(), "docs", "b", &got), repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStore_Query(t *testing.T) {
	db, mock := newGormMock(t)
	mock.ExpectQuery("SELECT \\* FROM `documents` WHERE collection = \\? AND JSON_UNQUOTE\\(JSON_EXTRACT\\(data, \\?\\)\\) = \\? ORDER BY updated_at").
		WithArgs("docs", "$.userId", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"collection", "id", "data", "updated_at"}).
			AddRow("docs", "a", `{"id":"a","userId":"u1"}`, now()).
			AddRow("docs", "c", `{"id":"c","userId":"u1"}`, now()))

	var got []testDoc
	require.NoError(t, NewMySQLStore(db).Query(context.Background(), "docs", repository.Filter{"userId": "u1"}, &got))
	assert.Len(t, got, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoCacheRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	q := regexp.QuoteMeta(`SELECT data, expires_at FROM youtube_video_cache WHERE video_id=$1`)
	mock.ExpectQuery(q).WithArgs("fresh").
		WillReturnRows(sqlmock.NewRows([]string{"data", "expires_at"}).
			AddRow([]byte(`{"id":"fresh","title":"Fresh"}`), now().Add(time.Hour)))
	mock.ExpectQuery(q).WithArgs("stale").
		WillReturnRows(sqlmock.NewRows([]string{"data", "expires_at"}).
			AddRow([]byte(`{"id":"stale"}`), now().Add(-time.Hour)))
	mock.ExpectQuery(q).WithArgs("absent").
		WillReturnRows(sqlmock.NewRows([]string{"data", "expires_at"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO youtube_video_cache(video_id, data, expires_at, updated_at)`)).
		WithArgs("fresh", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewVideoCacheRepository(db)
	ctx := context.Background()

	v, err := repo.GetVideo(ctx, "fresh")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "Fresh", v.Title)

	v, err = repo.GetVideo(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = repo.GetVideo(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, repo.SetVideo(ctx, &model.YouTubeVideo{ID: "fresh"}, time.Minute))
	require.NoError(t, mock.ExpectationsWereMet())
}

func now() time.Time { return time.Now().UTC() }
