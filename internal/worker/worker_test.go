package worker

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fixly/internal/database"
	"fixly/internal/models"
)

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	ledger := &fakeLedger{}
	worker := NewExportWorker(db, ledger, nil, RetryPolicy{}, 0, 0, nil)

	booking := &models.Booking{
		ID:        "bk-1",
		ClientID:  "usr-1",
		VendorID:  "ven-1",
		ServiceID: "svc-1",
		Status:    "PENDING",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, TaskUpsert, booking); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != "completed" {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if ledger.upsertCalls != 1 {
		t.Fatalf("expected upsert call, got %d", ledger.upsertCalls)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	ledger := &fakeLedger{err: errors.New("boom")}
	worker := NewExportWorker(db, ledger, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, 0, 0, nil)

	booking := &models.Booking{ID: "bk-2", ClientID: "usr-1", VendorID: "ven-1", ServiceID: "svc-1", Status: "PENDING", CreatedAt: time.Now(), UpdatedAt: time.Now()}

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, TaskUpsert, booking); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != "retry" {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	ledger := &fakeLedger{err: errors.New("fatal")}
	worker := NewExportWorker(db, ledger, nil, RetryPolicy{MaxRetries: 1}, 0, 0, nil)

	booking := &models.Booking{ID: "bk-3", ClientID: "usr-1", VendorID: "ven-1", ServiceID: "svc-1", Status: "PENDING", CreatedAt: time.Now(), UpdatedAt: time.Now()}

	ctx := context.Background()
	worker.EnqueueTask(ctx, TaskUpsert, booking)
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != "failed" {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestExportWorker_HandleExportTask(t *testing.T) {
	db := newTestDB(t)
	ledger := &fakeLedger{}
	worker := NewExportWorker(db, ledger, nil, RetryPolicy{MaxRetries: 3}, 0, 0, nil)

	t.Run("Upsert", func(t *testing.T) {
		booking := &models.Booking{ID: "bk-10", Status: "PENDING"}
		err := worker.handleExportTask(TaskUpsert, exportTaskPayload{Booking: booking})
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if ledger.upsertCalls != 1 {
			t.Fatalf("expected 1 upsert call, got %d", ledger.upsertCalls)
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		err := worker.handleExportTask(TaskUpdateStatus, exportTaskPayload{BookingID: "bk-10", Status: "ACCEPTED"})
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if ledger.statusCalls != 1 {
			t.Fatalf("expected 1 status call, got %d", ledger.statusCalls)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		err := worker.handleExportTask("bogus", exportTaskPayload{})
		if err == nil {
			t.Fatalf("expected error for unknown task type")
		}
	})
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

func TestExportWorker_EnqueueTask(t *testing.T) {
	db := newTestDB(t)
	ledger := &fakeLedger{}
	worker := NewExportWorker(db, ledger, nil, RetryPolicy{}, 0, 0, nil)

	ctx := context.Background()
	booking := &models.Booking{ID: "bk-20", Status: "PENDING"}

	t.Run("ValidTask", func(t *testing.T) {
		err := worker.EnqueueTask(ctx, TaskUpsert, booking)
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	})

	t.Run("InvalidTaskType", func(t *testing.T) {
		err := worker.EnqueueTask(ctx, "", booking)
		if err == nil {
			t.Fatalf("expected error for empty task type")
		}
	})

	t.Run("MissingBooking", func(t *testing.T) {
		err := worker.EnqueueTask(ctx, TaskUpsert, nil)
		if err == nil {
			t.Fatalf("expected error for missing booking")
		}
	})
}

func TestExportWorker_DecodePayload(t *testing.T) {
	worker := NewExportWorker(nil, nil, nil, RetryPolicy{}, 0, 0, nil)

	t.Run("ValidPayload", func(t *testing.T) {
		payload := `{"booking_id":"bk-30","status":"ACCEPTED"}`
		decoded, err := worker.decodePayload(payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.BookingID != "bk-30" || decoded.Status != "ACCEPTED" {
			t.Fatalf("unexpected decoded payload: %+v", decoded)
		}
	})

	t.Run("InvalidPayload", func(t *testing.T) {
		payload := `invalid json`
		_, err := worker.decodePayload(payload)
		if err == nil {
			t.Fatalf("expected error for invalid json")
		}
	})
}

// Helpers

type fakeLedger struct {
	err         error
	upsertCalls int
	statusCalls int
}

func (f *fakeLedger) UpsertBooking(b *models.Booking) error {
	f.upsertCalls++
	return f.err
}

func (f *fakeLedger) UpdateBookingStatus(id, status string) error {
	f.statusCalls++
	return f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	db, err := database.NewDB(path)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM export_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}
