package postgres

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}

	s, err := New("app", "checkpoints", "", WithDB(db), WithMaxInterval(time.Hour))
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	return s, mock
}

func TestNew_RequiresNames(t *testing.T) {
	if _, err := New("", "checkpoints", ""); err == nil {
		t.Errorf("expected error for empty app name")
	}
	if _, err := New("app", "", ""); err == nil {
		t.Errorf("expected error for empty table name")
	}
}

func TestStore_GetCheckpoint(t *testing.T) {
	s, mock := newTestStore(t)

	query := regexp.QuoteMeta(`SELECT sequence_number FROM "checkpoints" WHERE namespace = $1 AND shard_id = $2`)
	mock.ExpectQuery(query).
		WithArgs("app-streamName", "shardID").
		WillReturnRows(sqlmock.NewRows([]string{"sequence_number"}).AddRow("testSeqNum"))
	mock.ExpectQuery(query).
		WithArgs("app-streamName", "otherShard").
		WillReturnError(sql.ErrNoRows)

	val, err := s.GetCheckpoint("streamName", "shardID")
	if err != nil {
		t.Fatalf("get checkpoint error: %v", err)
	}
	if val != "testSeqNum" {
		t.Fatalf("checkpoint expected %s, got %s", "testSeqNum", val)
	}

	val, err = s.GetCheckpoint("streamName", "otherShard")
	if err != nil {
		t.Fatalf("get checkpoint error: %v", err)
	}
	if val != "" {
		t.Fatalf("missing checkpoint expected empty, got %s", val)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_GetCheckpointError(t *testing.T) {
	s, mock := newTestStore(t)
	cause := errors.New("connection refused")

	mock.ExpectQuery("SELECT sequence_number").WillReturnError(cause)

	if _, err := s.GetCheckpoint("streamName", "shardID"); !errors.Is(err, cause) {
		t.Fatalf("get checkpoint expected %v, got %v", cause, err)
	}
}

func TestStore_ShutdownFlushesLatest(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "checkpoints" (namespace, shard_id, sequence_number) VALUES ($1, $2, $3)`)).
		WithArgs("app-streamName", "shardID", "testSeqNum").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	if err := s.SetCheckpoint("streamName", "shardID", "firstSeqNum"); err != nil {
		t.Fatalf("set checkpoint error: %v", err)
	}
	if err := s.SetCheckpoint("streamName", "shardID", "testSeqNum"); err != nil {
		t.Fatalf("set checkpoint error: %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_SaveError(t *testing.T) {
	s, mock := newTestStore(t)
	cause := errors.New("deadlock detected")

	mock.ExpectExec("INSERT INTO").WillReturnError(cause)
	mock.ExpectClose()

	s.SetCheckpoint("streamName", "shardID", "testSeqNum")
	if err := s.Shutdown(); !errors.Is(err, cause) {
		t.Fatalf("shutdown expected %v, got %v", cause, err)
	}
	if len(s.checkpoints) != 1 {
		t.Fatalf("failed checkpoint expected to stay buffered")
	}
}

func TestStore_SetEmptySeqNum(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectClose()
	defer s.Shutdown()

	if err := s.SetCheckpoint("streamName", "shardID", ""); err == nil {
		t.Fatalf("should not allow empty sequence number")
	}
}
