package pos

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"salepoint/internal/domain/receipt"
	"salepoint/internal/domain/sale"
	"salepoint/internal/domain/sync"
)

// Resolver применяет постатейные результаты пачки к локальному
// состоянию. Для конфликтов действует правило «сервер прав»: локальная
// запись перезаписывается серверной, а операция считается разрешенной.
type Resolver struct {
	storage *Storage
	log     *slog.Logger
}

func NewResolver(storage *Storage, log *slog.Logger) *Resolver {
	return &Resolver{storage: storage, log: log}
}

// Apply обрабатывает результат одного элемента внутри транзакции tx.
// Статус очереди и состояние сущности меняются атомарно.
func (r *Resolver) Apply(tx *sql.Tx, item *QueueItem, res *sync.BatchItemResult) error {
	switch res.Status {
	case sync.ItemStatusSuccess:
		return r.applySuccess(tx, item, res)
	case sync.ItemStatusConflict:
		return r.applyConflict(tx, item, res)
	case sync.ItemStatusError:
		return r.applyError(tx, item, res)
	default:
		return fmt.Errorf("неизвестный статус результата: %q", res.Status)
	}
}

func (r *Resolver) applySuccess(tx *sql.Tx, item *QueueItem, res *sync.BatchItemResult) error {
	now := time.Now()

	switch item.Entity {
	case sync.EntitySale:
		localID, err := r.localSaleID(tx, item)
		if err != nil {
			return err
		}
		if err := r.storage.MarkSaleSynced(tx, localID, res.ServerID, now); err != nil {
			return err
		}
		// Продажа получила серверный номер — чек ждет финального
		// номера счета и переводится в updated.
		if res.ServerID != 0 && item.Operation == sync.OpCreate {
			final := fmt.Sprintf("INV-%d", res.ServerID)
			if err := r.storage.SetReceiptFinalNumber(tx, localID, final); err != nil &&
				!errors.Is(err, receipt.ErrNotFound) {
				return err
			}
		}

	case sync.EntityStockAdjustment:
		localID, err := r.localAdjustmentID(tx, item)
		if err != nil {
			return err
		}
		if err := r.storage.MarkAdjustmentSynced(tx, localID, res.ServerID, now); err != nil {
			return err
		}
	}

	return r.storage.MarkCompleted(tx, item.ID)
}

func (r *Resolver) applyConflict(tx *sql.Tx, item *QueueItem, res *sync.BatchItemResult) error {
	now := time.Now()

	switch item.Entity {
	case sync.EntitySale:
		localID, err := r.localSaleID(tx, item)
		if err != nil {
			return err
		}
		// Серверная запись замещает локальную.
		if len(res.ServerRecord) > 0 {
			var server sale.Sale
			if err := json.Unmarshal(res.ServerRecord, &server); err != nil {
				return fmt.Errorf("failed to decode server record: %w", err)
			}
			server.ID = localID
			server.IsSynced = true
			server.UpdatedAt = now
			if err := r.storage.ApplySaleUpdate(tx, &server); err != nil {
				return err
			}
		}
		if err := r.storage.MarkSaleSynced(tx, localID, res.ServerID, now); err != nil {
			return err
		}
		r.log.Warn("конфликт продажи разрешен в пользу сервера",
			slog.String("key", item.IdempotencyKey),
			slog.Int64("serverID", res.ServerID))

	case sync.EntityStockAdjustment:
		localID, err := r.localAdjustmentID(tx, item)
		if err != nil {
			return err
		}
		// Расхождение остатка фиксируется, но корректировка считается
		// примененной: пересчет покажет кассир, а не очередь.
		if res.Discrepancy != nil {
			if err := r.storage.RecordAdjustmentDiscrepancy(tx, localID,
				res.Discrepancy.Expected, res.Discrepancy.Actual); err != nil {
				return err
			}
			r.log.Warn("сервер сообщил расхождение остатка",
				slog.String("key", item.IdempotencyKey),
				slog.Int64("expected", res.Discrepancy.Expected),
				slog.Int64("actual", res.Discrepancy.Actual))
		}
		if err := r.storage.MarkAdjustmentSynced(tx, localID, res.ServerID, now); err != nil {
			return err
		}
	}

	return r.storage.MarkCompleted(tx, item.ID)
}

func (r *Resolver) applyError(tx *sql.Tx, item *QueueItem, res *sync.BatchItemResult) error {
	msg := res.Message
	if msg == "" {
		msg = "сервер отклонил операцию"
	}

	if res.Permanent {
		if err := r.storage.MarkFailedPermanent(tx, item.ID, msg); err != nil {
			return err
		}
	} else {
		if err := r.storage.MarkFailedTransient(tx, item.ID, msg); err != nil {
			return err
		}
	}

	// Причина сбоя видна на самой сущности, не только в очереди.
	switch item.Entity {
	case sync.EntitySale:
		localID, err := r.localSaleID(tx, item)
		if err != nil {
			return err
		}
		return r.storage.SetSaleSyncError(tx, localID, msg)
	case sync.EntityStockAdjustment:
		localID, err := r.localAdjustmentID(tx, item)
		if err != nil {
			return err
		}
		return r.storage.SetAdjustmentSyncError(tx, localID, msg)
	}
	return nil
}

func (r *Resolver) localSaleID(tx *sql.Tx, item *QueueItem) (int64, error) {
	sl, err := r.storage.GetSaleByRef(tx, item.EntityID)
	if err != nil {
		return 0, fmt.Errorf("продажа из очереди не найдена локально: %w", err)
	}
	return sl.ID, nil
}

func (r *Resolver) localAdjustmentID(tx *sql.Tx, item *QueueItem) (int64, error) {
	adj, err := r.storage.GetAdjustmentByRef(tx, item.EntityID)
	if err != nil {
		return 0, fmt.Errorf("корректировка из очереди не найдена локально: %w", err)
	}
	return adj.ID, nil
}
