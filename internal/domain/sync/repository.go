package sync

import (
	"context"
	"time"
)

// ServerSale авторитетная запись продажи на сервере.
// JSON-теги совпадают с клиентской моделью: запись в таком виде
// уходит в ServerRecord конфликта и в дельта-выдачу.
type ServerSale struct {
	ID        int64     `json:"server_id"`
	TempID    string    `json:"temp_id,omitempty"`
	CashierID int64     `json:"cashier_id"`
	Total     int64     `json:"total"`
	Status    string    `json:"status"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository серверное хранилище синхронизации
type Repository interface {
	// Идемпотентность: результат обработанного элемента хранится по ключу
	// и при повторной доставке отдается без повторного применения.
	FindResult(ctx context.Context, idempotencyKey string) (*BatchItemResult, error)
	SaveResult(ctx context.Context, idempotencyKey string, res *BatchItemResult) error

	FindSaleByTempID(ctx context.Context, tempID string) (*ServerSale, error)
	FindSaleByID(ctx context.Context, serverID int64) (*ServerSale, error)
	CreateSale(ctx context.Context, userID int, p *SalePayload) (*ServerSale, error)
	UpdateSale(ctx context.Context, serverID int64, total int64, status string) (*ServerSale, error)

	// ApplyAdjustment атомарно применяет дельту к остатку и возвращает
	// идентификатор корректировки и фактический остаток после применения.
	ApplyAdjustment(ctx context.Context, userID int, p *AdjustmentPayload) (int64, int64, error)

	// ListChanges возвращает страницу журнала изменений домена после курсора
	ListChanges(ctx context.Context, domain string, since int64, limit int) ([]ChangeRecord, string, bool, error)
}
