package pos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salepoint/internal/domain/sale"
	"salepoint/internal/domain/stock"
	"salepoint/internal/domain/sync"
)

// changesServer отдает заранее подготовленные страницы по ключу
// домен+отметка. Неизвестный запрос — пустая страница.
func changesServer(t *testing.T, pages map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/sync/changes", r.URL.Path)
		key := r.URL.Query().Get("domain") + "|" + r.URL.Query().Get("since")
		page, ok := pages[key]
		if !ok {
			page = sync.GetChangesResponse{Status: "ok"}
		}
		if code, isCode := page.(int); isCode {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestPuller(t *testing.T, s *Storage, serverURL string) *Puller {
	t.Helper()
	return NewPuller(s, NewHTTPClient(serverURL), testLogger(), 100)
}

func productPayload(t *testing.T, name string, price, quantity int64) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]any{"name": name, "price": price, "quantity": quantity})
	require.NoError(t, err)
	return data
}

func TestPuller_ProductsPagedMerge(t *testing.T) {
	s := newTestStorage(t)

	srv := changesServer(t, map[string]any{
		"product|": sync.GetChangesResponse{
			Status: "ok",
			Records: []sync.ChangeRecord{
				{Domain: "product", ServerID: 1, Version: 1, UpdatedAt: time.Now(),
					Payload: productPayload(t, "Хлеб", 4500, 20)},
				{Domain: "product", ServerID: 2, Version: 1, UpdatedAt: time.Now(),
					Payload: productPayload(t, "Молоко", 8900, 10)},
			},
			NextSince: "2",
			HasMore:   true,
		},
		"product|2": sync.GetChangesResponse{
			Status: "ok",
			Records: []sync.ChangeRecord{
				{Domain: "product", ServerID: 3, Version: 1, UpdatedAt: time.Now(),
					Payload: productPayload(t, "Сыр", 52000, 5)},
			},
			NextSince: "3",
		},
	})

	require.NoError(t, newTestPuller(t, s, srv.URL).Pull(context.Background()))

	products, err := s.ListProducts(s.db)
	require.NoError(t, err)
	assert.Len(t, products, 3)

	// Отметка продвинута до конца второй страницы
	wm, err := s.GetWatermark(s.db, sync.DomainProduct)
	require.NoError(t, err)
	assert.Equal(t, "3", wm)
}

func TestPuller_WatermarkNotAdvancedPastFailure(t *testing.T) {
	s := newTestStorage(t)

	srv := changesServer(t, map[string]any{
		"product|": sync.GetChangesResponse{
			Status: "ok",
			Records: []sync.ChangeRecord{
				{Domain: "product", ServerID: 1, Version: 1, UpdatedAt: time.Now(),
					Payload: productPayload(t, "Хлеб", 4500, 20)},
			},
			NextSince: "1",
			HasMore:   true,
		},
		"product|1": http.StatusInternalServerError,
	})

	err := newTestPuller(t, s, srv.URL).Pull(context.Background())
	require.Error(t, err)
	assert.True(t, sync.IsTransient(err))

	// Первая страница применена и зафиксирована, дальше отметка не ушла
	wm, err := s.GetWatermark(s.db, sync.DomainProduct)
	require.NoError(t, err)
	assert.Equal(t, "1", wm)

	products, err := s.ListProducts(s.db)
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestPuller_StaleProductDoesNotOverwrite(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.UpsertProduct(s.db, &stock.Product{
		ServerID: 1, Name: "Хлеб", Price: 5000, Quantity: 30, Version: 5, UpdatedAt: time.Now(),
	}))

	srv := changesServer(t, map[string]any{
		"product|": sync.GetChangesResponse{
			Status: "ok",
			Records: []sync.ChangeRecord{
				{Domain: "product", ServerID: 1, Version: 2, UpdatedAt: time.Now().Add(-time.Hour),
					Payload: productPayload(t, "Хлеб", 4500, 20)},
			},
			NextSince: "1",
		},
	})

	require.NoError(t, newTestPuller(t, s, srv.URL).Pull(context.Background()))

	got, err := s.GetProduct(s.db, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, int64(5000), got.Price, "устаревшая запись не затирает свежую")
}

func TestPuller_LocalWinsWhilePendingOps(t *testing.T) {
	s := newTestStorage(t)

	// Продажа уже синхронизирована и получила серверный номер,
	// но локально по ней есть незавершенная операция
	sl, item := createQueuedSale(t, s, "offline_1_aaaaa")
	require.NoError(t, s.MarkSaleSynced(s.db, sl.ID, 42, time.Now()))

	serverPayload, _ := json.Marshal(map[string]any{"total": 999999, "status": sale.StatusCancelled})
	pages := map[string]any{
		"sale|": sync.GetChangesResponse{
			Status: "ok",
			Records: []sync.ChangeRecord{
				{Domain: "sale", ServerID: 42, Version: 7, UpdatedAt: time.Now(), Payload: serverPayload},
			},
			NextSince: "42",
		},
	}
	srv := changesServer(t, pages)
	p := newTestPuller(t, s, srv.URL)

	require.NoError(t, p.Pull(context.Background()))

	// Локальная версия побеждает, отметка стоит на месте
	got, err := s.GetSale(s.db, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), got.Total)
	wm, err := s.GetWatermark(s.db, sync.DomainSale)
	require.NoError(t, err)
	assert.Empty(t, wm)

	// Очередь разрешилась — та же страница применяется
	require.NoError(t, s.MarkCompleted(s.db, item.ID))
	require.NoError(t, p.Pull(context.Background()))

	got, err = s.GetSale(s.db, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(999999), got.Total)
	assert.Equal(t, sale.StatusCancelled, got.Status)
	wm, err = s.GetWatermark(s.db, sync.DomainSale)
	require.NoError(t, err)
	assert.Equal(t, "42", wm)
}

func TestPuller_ForeignSaleInsertedSynced(t *testing.T) {
	s := newTestStorage(t)

	payload, _ := json.Marshal(map[string]any{
		"cashier_id": 2,
		"total":      30000,
		"status":     sale.StatusCompleted,
	})
	srv := changesServer(t, map[string]any{
		"sale|": sync.GetChangesResponse{
			Status: "ok",
			Records: []sync.ChangeRecord{
				{Domain: "sale", ServerID: 77, Version: 1, UpdatedAt: time.Now(), Payload: payload},
			},
			NextSince: "77",
		},
	})

	require.NoError(t, newTestPuller(t, s, srv.URL).Pull(context.Background()))

	got, err := s.GetSaleByRef(s.db, "77")
	require.NoError(t, err)
	assert.True(t, got.IsSynced)
	assert.Empty(t, got.TempID)
	assert.Equal(t, int64(30000), got.Total)
}

func TestPuller_BareArrayResponse(t *testing.T) {
	s := newTestStorage(t)

	// Старый формат сервера: голый массив записей вместо конверта
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since") != "" {
			w.Write([]byte(`[]`))
			return
		}
		records := []sync.ChangeRecord{
			{Domain: "product", ServerID: 5, Version: 1, UpdatedAt: time.Now(),
				Payload: productPayload(t, "Кефир", 7500, 12)},
		}
		json.NewEncoder(w).Encode(records)
	}))
	defer srv.Close()

	require.NoError(t, newTestPuller(t, s, srv.URL).Pull(context.Background()))

	_, err := s.GetProduct(s.db, 5)
	require.NoError(t, err)

	wm, err := s.GetWatermark(s.db, sync.DomainProduct)
	require.NoError(t, err)
	assert.Equal(t, "5", wm, "отметка выводится из последней записи массива")
}

func TestPuller_FullResyncClearsWatermarks(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.SetWatermark(s.db, sync.DomainProduct, "100"))
	require.NoError(t, s.SetWatermark(s.db, sync.DomainSale, "200"))

	p := NewPuller(s, NewHTTPClient("http://127.0.0.1:0"), testLogger(), 100)
	require.NoError(t, p.FullResync())

	for _, domain := range []string{sync.DomainProduct, sync.DomainSale} {
		wm, err := s.GetWatermark(s.db, domain)
		require.NoError(t, err)
		assert.Empty(t, wm)
	}
}

