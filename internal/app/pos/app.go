package pos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"salepoint/internal/app/pos/config"
	"salepoint/internal/domain/receipt"
	"salepoint/internal/domain/sale"
	"salepoint/internal/domain/stock"
	"salepoint/internal/domain/sync"
)

// App — приложение кассы. Все операции сначала пишутся локально и
// работают без сети; синхронизация догоняет сервер в фоне.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	storage  *Storage
	client   *HTTPClient
	uploader *Uploader
	puller   *Puller

	// notify будит фоновый цикл сразу после постановки в очередь,
	// не дожидаясь тика.
	notify chan struct{}
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DataPath), 0o700); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога данных: %w", err)
	}

	storage, err := NewStorage(cfg.DataPath)
	if err != nil {
		return nil, err
	}

	addr := cfg.ServerAddress
	if cfg.EnableTLS && !strings.Contains(addr, "://") {
		addr = "https://" + addr
	}
	client := NewHTTPClient(addr)
	if token, err := os.ReadFile(cfg.TokenPath); err == nil && len(token) > 0 {
		client.SetToken(string(token))
	}

	resolver := NewResolver(storage, log)
	uploader := NewUploader(storage, client, resolver, log, cfg.DeviceID, cfg.BatchSize)
	puller := NewPuller(storage, client, log, cfg.BatchSize)

	return &App{
		cfg:      cfg,
		log:      log,
		storage:  storage,
		client:   client,
		uploader: uploader,
		puller:   puller,
		notify:   make(chan struct{}, 1),
	}, nil
}

// Notify сигнализирует о новых элементах очереди.
func (a *App) Notify() <-chan struct{} {
	return a.notify
}

func (a *App) notifyEnqueued() {
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

func (a *App) Close() error {
	return a.storage.Close()
}

// ==================== Авторизация ====================

func (a *App) Login(ctx context.Context, login, password string) error {
	token, err := a.client.Login(ctx, login, password)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.TokenPath), 0o700); err != nil {
		return fmt.Errorf("ошибка создания каталога конфигурации: %w", err)
	}
	if err := os.WriteFile(a.cfg.TokenPath, []byte(token), 0o600); err != nil {
		return fmt.Errorf("ошибка сохранения токена: %w", err)
	}
	return nil
}

func (a *App) Register(ctx context.Context, login, password string) error {
	return a.client.Register(ctx, login, password)
}

func (a *App) Logout() error {
	if err := os.Remove(a.cfg.TokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления токена: %w", err)
	}
	a.client.SetToken("")
	return nil
}

// ==================== Продажи ====================

// CreateSale проводит продажу локально и ставит ее в очередь отправки.
// Запись продажи, чек и элемент очереди фиксируются одной транзакцией:
// либо продажа видна вместе со своей операцией синхронизации, либо
// не видна вовсе. Сразу печатается предварительный чек.
func (a *App) CreateSale(ctx context.Context, cashierID int64, items []sale.SaleItem) (*sale.Sale, error) {
	now := time.Now()
	sl := &sale.Sale{
		TempID:    sale.NewTempID(),
		CashierID: cashierID,
		Status:    sale.StatusCompleted,
		Items:     items,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		IsOffline: true,
	}
	for _, item := range items {
		sl.Total += item.Quantity * item.PriceAtSale
	}
	if err := sl.Validate(); err != nil {
		return nil, err
	}

	err := a.storage.WithTx(func(tx *sql.Tx) error {
		if err := a.storage.CreateSale(tx, sl); err != nil {
			return err
		}

		rcpt := &receipt.Printed{
			SaleID:        sl.ID,
			PrintedNumber: sl.TempID,
			Status:        receipt.StatusPendingUpdate,
			PrintedAt:     now,
			UpdatedAt:     now,
		}
		if err := a.storage.CreatePrintedReceipt(tx, rcpt); err != nil {
			return err
		}

		payload := sync.SalePayload{
			TempID:    sl.TempID,
			CashierID: sl.CashierID,
			Total:     sl.Total,
			Status:    sl.Status,
			CreatedAt: sl.CreatedAt,
		}
		for _, item := range sl.Items {
			payload.Items = append(payload.Items, sync.SaleItemPayload{
				ProductID:   item.ProductID,
				Quantity:    item.Quantity,
				PriceAtSale: item.PriceAtSale,
			})
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal sale payload: %w", err)
		}

		return a.storage.Enqueue(tx, &QueueItem{
			Operation:        sync.OpCreate,
			Entity:           sync.EntitySale,
			EntityID:         sl.TempID,
			Data:             data,
			Endpoint:         "/api/sync/batch",
			MaxAttempts:      a.cfg.MaxAttempts,
			OfflineTimestamp: now,
		})
	})
	if err != nil {
		return nil, err
	}

	a.notifyEnqueued()
	a.log.Info("продажа проведена локально",
		slog.String("tempID", sl.TempID), slog.Int64("total", sl.Total))
	return sl, nil
}

// GetSale разрешает продажу по временной или серверной ссылке.
func (a *App) GetSale(ref string) (*sale.Sale, error) {
	return a.storage.GetSaleByRef(a.storage.db, ref)
}

func (a *App) ListSales(limit int) ([]*sale.Sale, error) {
	return a.storage.ListSales(a.storage.db, limit)
}

// ==================== Остатки ====================

// AdjustStock создает корректировку остатка с ожидаемым итогом по
// локальной копии товара. Сервер сверит ожидание с фактом и сообщит
// о расхождении, если кто-то успел изменить остаток.
func (a *App) AdjustStock(ctx context.Context, productID, delta int64, reason string) (*stock.Adjustment, error) {
	now := time.Now()
	adj := &stock.Adjustment{
		TempID:    stock.NewTempID(),
		ProductID: productID,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
		IsOffline: true,
	}
	if err := adj.Validate(); err != nil {
		return nil, err
	}

	err := a.storage.WithTx(func(tx *sql.Tx) error {
		product, err := a.storage.GetProduct(tx, productID)
		if err != nil {
			return err
		}
		adj.ExpectedQuantity = product.Quantity + delta

		if err := a.storage.CreateAdjustment(tx, adj); err != nil {
			return err
		}

		// Локальная копия остатка правится сразу: касса не ждет сервер.
		product.Quantity = adj.ExpectedQuantity
		product.UpdatedAt = now
		if err := a.storage.UpsertProduct(tx, product); err != nil {
			return err
		}

		data, err := json.Marshal(sync.AdjustmentPayload{
			TempID:           adj.TempID,
			ProductID:        adj.ProductID,
			Delta:            adj.Delta,
			ExpectedQuantity: adj.ExpectedQuantity,
			Reason:           adj.Reason,
			CreatedAt:        adj.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal adjustment payload: %w", err)
		}

		return a.storage.Enqueue(tx, &QueueItem{
			Operation:        sync.OpCreate,
			Entity:           sync.EntityStockAdjustment,
			EntityID:         adj.TempID,
			Data:             data,
			Endpoint:         "/api/sync/batch",
			MaxAttempts:      a.cfg.MaxAttempts,
			OfflineTimestamp: now,
		})
	})
	if err != nil {
		return nil, err
	}

	a.notifyEnqueued()
	a.log.Info("остаток скорректирован локально",
		slog.String("tempID", adj.TempID), slog.Int64("delta", delta))
	return adj, nil
}

func (a *App) ListProducts() ([]*stock.Product, error) {
	return a.storage.ListProducts(a.storage.db)
}

func (a *App) ListAdjustments(limit int) ([]*stock.Adjustment, error) {
	return a.storage.ListAdjustments(a.storage.db, limit)
}

// ==================== Чеки ====================

func (a *App) ListReceipts(status string) ([]*receipt.Printed, error) {
	if status != "" {
		return a.storage.ListReceiptsByStatus(a.storage.db, status)
	}
	var all []*receipt.Printed
	for _, st := range []string{receipt.StatusPendingUpdate, receipt.StatusUpdated, receipt.StatusReprinted} {
		part, err := a.storage.ListReceiptsByStatus(a.storage.db, st)
		if err != nil {
			return nil, err
		}
		all = append(all, part...)
	}
	return all, nil
}

// ReprintReceipt перепечатывает чек с финальным номером счета.
// Чек без финального номера перепечатать нельзя.
func (a *App) ReprintReceipt(id int64) (*receipt.Printed, error) {
	var out *receipt.Printed
	err := a.storage.WithTx(func(tx *sql.Tx) error {
		r, err := a.storage.GetReceipt(tx, id)
		if err != nil {
			return err
		}
		if r.Status == receipt.StatusPendingUpdate {
			return fmt.Errorf("%w: чек еще не получил финальный номер", receipt.ErrInvalidTransition)
		}
		if err := a.storage.MarkReceiptReprinted(tx, id); err != nil {
			return err
		}
		out, err = a.storage.GetReceipt(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ==================== Синхронизация ====================

// SyncStatus — сводка состояния синхронизации для кассира.
type SyncStatus struct {
	Pending      int
	Processing   int
	Completed    int
	Failed       int
	LastSyncedAt *time.Time
	ServerOnline bool
}

func (a *App) Status(ctx context.Context) (*SyncStatus, error) {
	counts, err := a.storage.QueueCounts(a.storage.db)
	if err != nil {
		return nil, err
	}
	last, err := a.storage.LastCompletedAt(a.storage.db)
	if err != nil {
		return nil, err
	}

	status := &SyncStatus{
		Pending:      counts[QueueStatusPending],
		Processing:   counts[QueueStatusProcessing],
		Completed:    counts[QueueStatusCompleted],
		Failed:       counts[QueueStatusFailed],
		LastSyncedAt: last,
	}
	status.ServerOnline = a.client.Health(ctx) == nil
	return status, nil
}

func (a *App) QueueItems(status string) ([]*QueueItem, error) {
	return a.storage.ListQueue(a.storage.db, status)
}

// PushNow выполняет один проход выталкивания очереди.
func (a *App) PushNow(ctx context.Context) (int, error) {
	n, err := a.uploader.Push(ctx)
	if errors.Is(err, sync.ErrAlreadyInSync) {
		return n, nil
	}
	return n, err
}

// PullNow выполняет один проход пулла изменений.
func (a *App) PullNow(ctx context.Context) error {
	return a.puller.Pull(ctx)
}

func (a *App) RetryItem(id int64) error {
	return a.storage.RetryItem(a.storage.db, id)
}

func (a *App) RetryAllFailed() (int64, error) {
	return a.storage.RetryAllFailed(a.storage.db)
}

// FullResync сбрасывает отметки пулла и сразу тянет все заново.
func (a *App) FullResync(ctx context.Context) error {
	if err := a.puller.FullResync(); err != nil {
		return err
	}
	return a.puller.Pull(ctx)
}
