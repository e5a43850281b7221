package pos

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"salepoint/internal/domain/receipt"
	"salepoint/internal/domain/sale"
	"salepoint/internal/domain/sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

// createQueuedSale проводит продажу локально: запись, чек и элемент
// очереди в одной транзакции, как это делает касса.
func createQueuedSale(t *testing.T, s *Storage, tempID string) (*sale.Sale, *QueueItem) {
	t.Helper()
	now := time.Now()
	sl := &sale.Sale{
		TempID:    tempID,
		CashierID: 1,
		Total:     150000,
		Status:    sale.StatusCompleted,
		Items: []sale.SaleItem{
			{ProductID: 7, Quantity: 3, PriceAtSale: 50000},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		IsOffline: true,
	}

	var item *QueueItem
	err := s.WithTx(func(tx *sql.Tx) error {
		if err := s.CreateSale(tx, sl); err != nil {
			return err
		}
		if err := s.CreatePrintedReceipt(tx, &receipt.Printed{
			SaleID:        sl.ID,
			PrintedNumber: tempID,
			Status:        receipt.StatusPendingUpdate,
			PrintedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"temp_id": tempID, "total": sl.Total})
		item = &QueueItem{
			Operation: sync.OpCreate,
			Entity:    sync.EntitySale,
			EntityID:  tempID,
			Data:      data,
		}
		return s.Enqueue(tx, item)
	})
	require.NoError(t, err)
	return sl, item
}

func newTestUploader(t *testing.T, s *Storage, serverURL string) *Uploader {
	t.Helper()
	log := testLogger()
	client := NewHTTPClient(serverURL)
	return NewUploader(s, client, NewResolver(s, log), log, "kassa-1", 50)
}

func batchServer(t *testing.T, respond func(req *sync.BatchRequest) any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sync/batch", r.URL.Path)
		var req sync.BatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := respond(&req)
		if code, ok := resp.(int); ok {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUploader_SuccessAssignsServerID(t *testing.T) {
	s := newTestStorage(t)
	sl, item := createQueuedSale(t, s, "offline_1_aaaaa")

	srv := batchServer(t, func(req *sync.BatchRequest) any {
		require.Len(t, req.Items, 1)
		assert.Equal(t, "kassa-1", req.DeviceID)
		return sync.BatchResponse{
			Status: "ok",
			Results: []sync.BatchItemResult{{
				IdempotencyKey: req.Items[0].IdempotencyKey,
				Status:         sync.ItemStatusSuccess,
				ServerID:       42,
			}},
		}
	})

	n, err := newTestUploader(t, s, srv.URL).Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetSale(s.db, sl.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSynced)
	assert.Equal(t, int64(42), got.ServerID)
	assert.Equal(t, "offline_1_aaaaa", got.TempID, "временная ссылка сохраняется")
	require.NotNil(t, got.LastSyncedAt)

	qi, err := s.GetQueueItem(s.db, item.ID)
	require.NoError(t, err)
	assert.Equal(t, QueueStatusCompleted, qi.Status)

	// Чек получает финальный номер и переходит в updated
	rcpt, err := s.GetReceiptBySale(s.db, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusUpdated, rcpt.Status)
	assert.Equal(t, "INV-42", rcpt.FinalInvoiceNumber)
}

func TestUploader_DualKeyLookupAfterSync(t *testing.T) {
	s := newTestStorage(t)
	sl, _ := createQueuedSale(t, s, "offline_1_aaaaa")

	srv := batchServer(t, func(req *sync.BatchRequest) any {
		return sync.BatchResponse{Status: "ok", Results: []sync.BatchItemResult{{
			IdempotencyKey: req.Items[0].IdempotencyKey,
			Status:         sync.ItemStatusSuccess,
			ServerID:       42,
		}}}
	})
	_, err := newTestUploader(t, s, srv.URL).Push(context.Background())
	require.NoError(t, err)

	// Обе ссылки разрешаются в одну и ту же запись
	byTemp, err := s.GetSaleByRef(s.db, "offline_1_aaaaa")
	require.NoError(t, err)
	byServer, err := s.GetSaleByRef(s.db, "42")
	require.NoError(t, err)
	assert.Equal(t, sl.ID, byTemp.ID)
	assert.Equal(t, sl.ID, byServer.ID)
}

func TestUploader_TransientFailureReturnsWholeBatch(t *testing.T) {
	s := newTestStorage(t)
	_, a := createQueuedSale(t, s, "offline_1_aaaaa")
	_, b := createQueuedSale(t, s, "offline_2_bbbbb")

	srv := batchServer(t, func(req *sync.BatchRequest) any {
		return http.StatusInternalServerError
	})

	_, err := newTestUploader(t, s, srv.URL).Push(context.Background())
	require.Error(t, err)
	assert.True(t, sync.IsTransient(err))

	// Ни один элемент не обработан, все вернулись в очередь с учетом
	// попытки и прежними ключами
	for _, item := range []*QueueItem{a, b} {
		got, err := s.GetQueueItem(s.db, item.ID)
		require.NoError(t, err)
		assert.Equal(t, QueueStatusPending, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, item.IdempotencyKey, got.IdempotencyKey)
	}
}

func TestUploader_NoSixthAttemptWithoutRetry(t *testing.T) {
	s := newTestStorage(t)
	_, item := createQueuedSale(t, s, "offline_1_aaaaa")

	calls := 0
	srv := batchServer(t, func(req *sync.BatchRequest) any {
		calls++
		return http.StatusInternalServerError
	})
	up := newTestUploader(t, s, srv.URL)

	// Пять неудачных попыток исчерпывают лимит
	for i := 0; i < 5; i++ {
		// Сбрасываем задержку, чтобы элемент снова был доступен
		_, err := s.db.Exec(`UPDATE sync_queue SET next_retry_at = NULL WHERE id = ?`, item.ID)
		require.NoError(t, err)
		up.Push(context.Background())
	}
	assert.Equal(t, 5, calls)

	got, err := s.GetQueueItem(s.db, item.ID)
	require.NoError(t, err)
	assert.Equal(t, QueueStatusFailed, got.Status)

	// Шестой проход не трогает failed-элемент
	n, err := up.Push(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 5, calls)

	// После ручного Retry элемент уходит снова с тем же ключом
	require.NoError(t, s.RetryItem(s.db, item.ID))
	up.Push(context.Background())
	assert.Equal(t, 6, calls)
}

func TestUploader_ItemFailureIsIsolated(t *testing.T) {
	s := newTestStorage(t)
	slA, a := createQueuedSale(t, s, "offline_1_aaaaa")
	slB, b := createQueuedSale(t, s, "offline_2_bbbbb")
	slC, c := createQueuedSale(t, s, "offline_3_ccccc")

	srv := batchServer(t, func(req *sync.BatchRequest) any {
		require.Len(t, req.Items, 3)
		return sync.BatchResponse{Status: "ok", Results: []sync.BatchItemResult{
			{IdempotencyKey: req.Items[0].IdempotencyKey, Status: sync.ItemStatusSuccess, ServerID: 10},
			{IdempotencyKey: req.Items[1].IdempotencyKey, Status: sync.ItemStatusError,
				Message: "дубликат продажи", Permanent: true},
			{IdempotencyKey: req.Items[2].IdempotencyKey, Status: sync.ItemStatusSuccess, ServerID: 11},
		}}
	})

	n, err := newTestUploader(t, s, srv.URL).Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	gotA, _ := s.GetQueueItem(s.db, a.ID)
	gotB, _ := s.GetQueueItem(s.db, b.ID)
	gotC, _ := s.GetQueueItem(s.db, c.ID)
	assert.Equal(t, QueueStatusCompleted, gotA.Status)
	assert.Equal(t, QueueStatusFailed, gotB.Status)
	assert.Equal(t, QueueStatusCompleted, gotC.Status)

	// Причина видна на самой продаже
	failed, err := s.GetSale(s.db, slB.ID)
	require.NoError(t, err)
	assert.Equal(t, "дубликат продажи", failed.SyncError)
	assert.False(t, failed.IsSynced)

	okA, _ := s.GetSale(s.db, slA.ID)
	okC, _ := s.GetSale(s.db, slC.ID)
	assert.True(t, okA.IsSynced)
	assert.True(t, okC.IsSynced)
}

func TestUploader_ConflictResolvedServerWins(t *testing.T) {
	s := newTestStorage(t)
	sl, item := createQueuedSale(t, s, "offline_1_aaaaa")

	serverRecord, _ := json.Marshal(map[string]any{
		"total":   175000,
		"status":  sale.StatusCompleted,
		"version": 3,
	})
	srv := batchServer(t, func(req *sync.BatchRequest) any {
		return sync.BatchResponse{Status: "ok", Results: []sync.BatchItemResult{{
			IdempotencyKey: req.Items[0].IdempotencyKey,
			Status:         sync.ItemStatusConflict,
			ServerID:       42,
			ServerRecord:   serverRecord,
		}}}
	})

	n, err := newTestUploader(t, s, srv.URL).Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Конфликт разрешен: серверная версия замещает локальную,
	// операция завершена
	got, err := s.GetSale(s.db, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(175000), got.Total)
	assert.Equal(t, int64(3), got.Version)
	assert.True(t, got.IsSynced)
	assert.Equal(t, int64(42), got.ServerID)

	qi, err := s.GetQueueItem(s.db, item.ID)
	require.NoError(t, err)
	assert.Equal(t, QueueStatusCompleted, qi.Status)
}

func TestUploader_EmptyQueueNoRequest(t *testing.T) {
	s := newTestStorage(t)

	called := false
	srv := batchServer(t, func(req *sync.BatchRequest) any {
		called = true
		return sync.BatchResponse{Status: "ok"}
	})

	n, err := newTestUploader(t, s, srv.URL).Push(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, called)
}
