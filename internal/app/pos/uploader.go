package pos

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"golang.org/x/exp/slog"

	"salepoint/internal/domain/sync"
)

// Uploader выталкивает очередь на сервер пачками. Проход единственный:
// если предыдущий еще не завершился, новый запуск возвращается сразу.
type Uploader struct {
	storage   *Storage
	client    *HTTPClient
	resolver  *Resolver
	log       *slog.Logger
	deviceID  string
	batchSize int
	running   atomic.Bool
}

func NewUploader(storage *Storage, client *HTTPClient, resolver *Resolver,
	log *slog.Logger, deviceID string, batchSize int) *Uploader {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Uploader{
		storage:   storage,
		client:    client,
		resolver:  resolver,
		log:       log,
		deviceID:  deviceID,
		batchSize: batchSize,
	}
}

// Push выполняет один проход: забирает готовые элементы пачками по
// batchSize и отправляет, пока очередь не опустеет либо пачка не
// упадет целиком. Возвращает число успешно обработанных элементов.
func (u *Uploader) Push(ctx context.Context) (int, error) {
	if !u.running.CompareAndSwap(false, true) {
		u.log.Debug("проход синхронизации уже выполняется, пропуск")
		return 0, sync.ErrAlreadyInSync
	}
	defer u.running.Store(false)

	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		n, err := u.pushBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

func (u *Uploader) pushBatch(ctx context.Context) (int, error) {
	var items []*QueueItem
	err := u.storage.WithTx(func(tx *sql.Tx) error {
		var err error
		items, err = u.storage.DequeuePending(tx, u.batchSize)
		if err != nil {
			return err
		}
		ids := make([]int64, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		return u.storage.MarkProcessing(tx, ids)
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка выборки пачки: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	req := &sync.BatchRequest{
		DeviceID: u.deviceID,
		Items:    make([]sync.BatchItem, len(items)),
	}
	byKey := make(map[string]*QueueItem, len(items))
	for i, item := range items {
		req.Items[i] = sync.BatchItem{
			IdempotencyKey: item.IdempotencyKey,
			Entity:         item.Entity,
			Operation:      item.Operation,
			EntityID:       item.EntityID,
			Payload:        item.Data,
		}
		byKey[item.IdempotencyKey] = item
	}

	resp, err := u.client.SubmitBatch(ctx, req)
	if err != nil {
		// Пачка не дошла либо сервер упал целиком: ни один элемент не
		// считается обработанным, все возвращаются в очередь с учетом
		// попытки. Ключи идемпотентности сохраняются для повтора.
		if txErr := u.storage.WithTx(func(tx *sql.Tx) error {
			for _, item := range items {
				if sync.IsPermanent(err) {
					if err2 := u.storage.MarkFailedPermanent(tx, item.ID, err.Error()); err2 != nil {
						return err2
					}
				} else {
					if err2 := u.storage.MarkFailedTransient(tx, item.ID, err.Error()); err2 != nil {
						return err2
					}
				}
			}
			return nil
		}); txErr != nil {
			return 0, fmt.Errorf("ошибка возврата пачки в очередь: %w", txErr)
		}
		u.log.Warn("пачка не отправлена", slog.Int("items", len(items)),
			slog.String("error", err.Error()))
		return 0, err
	}

	// Результаты применяются постатейно: сбой одного элемента не
	// трогает остальные.
	succeeded := 0
	err = u.storage.WithTx(func(tx *sql.Tx) error {
		seen := make(map[string]bool, len(resp.Results))
		for i := range resp.Results {
			res := &resp.Results[i]
			item, ok := byKey[res.IdempotencyKey]
			if !ok {
				u.log.Warn("сервер вернул результат для неизвестного ключа",
					slog.String("key", res.IdempotencyKey))
				continue
			}
			seen[res.IdempotencyKey] = true
			if err := u.resolver.Apply(tx, item, res); err != nil {
				return err
			}
			if res.Status == sync.ItemStatusSuccess || res.Status == sync.ItemStatusConflict {
				succeeded++
			}
		}

		// Элемент без результата считается не дошедшим.
		for key, item := range byKey {
			if !seen[key] {
				if err := u.storage.MarkFailedTransient(tx, item.ID,
					"сервер не вернул результат для элемента"); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		// Транзакция откатилась целиком, элементы остались в processing.
		// Возвращаем их в очередь: повтор уйдет с теми же ключами, сервер
		// ответит сохраненными результатами.
		if txErr := u.storage.WithTx(func(tx *sql.Tx) error {
			for _, item := range items {
				if err2 := u.storage.MarkFailedTransient(tx, item.ID, err.Error()); err2 != nil {
					return err2
				}
			}
			return nil
		}); txErr != nil {
			u.log.Error("не удалось вернуть пачку в очередь",
				slog.String("error", txErr.Error()))
		}
		return 0, fmt.Errorf("ошибка применения результатов пачки: %w", err)
	}

	u.log.Info("пачка обработана",
		slog.Int("sent", len(items)), slog.Int("applied", succeeded))
	return succeeded, nil
}
