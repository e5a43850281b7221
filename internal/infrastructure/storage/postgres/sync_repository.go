package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"salepoint/internal/domain/sync"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/slog"
)

// SyncRepository реализация серверного репозитория синхронизации для PostgreSQL
type SyncRepository struct {
	db  *Storage
	log *slog.Logger
}

func NewSyncRepository(db *Storage, log *slog.Logger) *SyncRepository {
	return &SyncRepository{
		db:  db,
		log: log,
	}
}

// FindResult возвращает сохраненный результат по ключу идемпотентности.
// (nil, nil) означает, что элемент с таким ключом еще не применялся.
func (r *SyncRepository) FindResult(ctx context.Context, idempotencyKey string) (*sync.BatchItemResult, error) {
	var data []byte
	err := r.db.Pool().QueryRow(ctx,
		`SELECT result FROM idempotency_keys WHERE key = $1`, idempotencyKey).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ключа идемпотентности: %w", err)
	}

	var res sync.BatchItemResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("ошибка декодирования результата: %w", err)
	}
	return &res, nil
}

func (r *SyncRepository) SaveResult(ctx context.Context, idempotencyKey string, res *sync.BatchItemResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("ошибка сериализации результата: %w", err)
	}

	_, err = r.db.Pool().Exec(ctx,
		`INSERT INTO idempotency_keys (key, result) VALUES ($1, $2)
         ON CONFLICT (key) DO NOTHING`,
		idempotencyKey, data)
	if err != nil {
		return fmt.Errorf("ошибка сохранения результата: %w", err)
	}
	return nil
}

const saleColumns = `id, COALESCE(temp_id, ''), cashier_id, total, status, version, created_at, updated_at`

func (r *SyncRepository) FindSaleByTempID(ctx context.Context, tempID string) (*sync.ServerSale, error) {
	if tempID == "" {
		return nil, nil
	}
	return r.findSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE temp_id = $1`, tempID)
}

func (r *SyncRepository) FindSaleByID(ctx context.Context, serverID int64) (*sync.ServerSale, error) {
	return r.findSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, serverID)
}

func (r *SyncRepository) findSale(ctx context.Context, query string, arg any) (*sync.ServerSale, error) {
	var s sync.ServerSale
	err := r.db.Pool().QueryRow(ctx, query, arg).
		Scan(&s.ID, &s.TempID, &s.CashierID, &s.Total, &s.Status, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения продажи: %w", err)
	}
	return &s, nil
}

// CreateSale вставляет продажу с позициями и пишет ее в журнал изменений
// одной транзакцией.
func (r *SyncRepository) CreateSale(ctx context.Context, userID int, p *sync.SalePayload) (*sync.ServerSale, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var s sync.ServerSale
	err = tx.QueryRow(ctx,
		`INSERT INTO sales (temp_id, cashier_id, created_by, total, status, created_at)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING `+saleColumns,
		p.TempID, p.CashierID, userID, p.Total, p.Status, p.CreatedAt).
		Scan(&s.ID, &s.TempID, &s.CashierID, &s.Total, &s.Status, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ошибка вставки продажи: %w", err)
	}

	for _, item := range p.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO sale_items (sale_id, product_id, quantity, price_at_sale)
             VALUES ($1, $2, $3, $4)`,
			s.ID, item.ProductID, item.Quantity, item.PriceAtSale)
		if err != nil {
			return nil, fmt.Errorf("ошибка вставки позиции продажи: %w", err)
		}
	}

	if err := r.logChange(ctx, tx, sync.DomainSale, s.ID, &s, false, s.Version); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return &s, nil
}

func (r *SyncRepository) UpdateSale(ctx context.Context, serverID int64, total int64, status string) (*sync.ServerSale, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var s sync.ServerSale
	err = tx.QueryRow(ctx,
		`UPDATE sales
         SET total = $2, status = $3, version = version + 1, updated_at = NOW()
         WHERE id = $1
         RETURNING `+saleColumns,
		serverID, total, status).
		Scan(&s.ID, &s.TempID, &s.CashierID, &s.Total, &s.Status, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sync.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления продажи: %w", err)
	}

	if err := r.logChange(ctx, tx, sync.DomainSale, s.ID, &s, false, s.Version); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return &s, nil
}

// productRecord форма товара в журнале изменений, совпадает с клиентской моделью
type productRecord struct {
	ServerID  int64     `json:"server_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Quantity  int64     `json:"quantity"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// ApplyAdjustment применяет дельту к остатку товара и возвращает
// идентификатор корректировки и фактический остаток после применения.
// Сверка с ожиданием кассы остается на сервисе: дельта применяется всегда.
func (r *SyncRepository) ApplyAdjustment(ctx context.Context, userID int, p *sync.AdjustmentPayload) (int64, int64, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка открытия транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var rec productRecord
	err = tx.QueryRow(ctx,
		`UPDATE products
         SET quantity = quantity + $2, version = version + 1, updated_at = NOW()
         WHERE id = $1 AND deleted = false
         RETURNING id, name, price, quantity, version, updated_at, deleted`,
		p.ProductID, p.Delta).
		Scan(&rec.ServerID, &rec.Name, &rec.Price, &rec.Quantity, &rec.Version, &rec.UpdatedAt, &rec.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, sync.ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка применения дельты: %w", err)
	}

	var adjID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO stock_adjustments
             (temp_id, product_id, delta, expected_quantity, actual_quantity, reason, created_by, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         RETURNING id`,
		p.TempID, p.ProductID, p.Delta, p.ExpectedQuantity, rec.Quantity, p.Reason, userID, p.CreatedAt).
		Scan(&adjID)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка вставки корректировки: %w", err)
	}

	if err := r.logChange(ctx, tx, sync.DomainProduct, rec.ServerID, &rec, false, rec.Version); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return adjID, rec.Quantity, nil
}

// logChange добавляет запись в журнал изменений домена
func (r *SyncRepository) logChange(ctx context.Context, tx pgx.Tx, domain string, serverID int64, payload any, deleted bool, version int64) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи журнала: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO change_log (domain, server_id, payload, deleted, version)
         VALUES ($1, $2, $3, $4, $5)`,
		domain, serverID, data, deleted, version)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал изменений: %w", err)
	}
	return nil
}

// ListChanges возвращает страницу журнала изменений после курсора since.
// Курсор - идентификатор строки журнала, непрозрачный для клиента.
func (r *SyncRepository) ListChanges(ctx context.Context, domain string, since int64, limit int) ([]sync.ChangeRecord, string, bool, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT id, domain, server_id, payload, deleted, version, updated_at
         FROM change_log
         WHERE domain = $1 AND id > $2
         ORDER BY id
         LIMIT $3`,
		domain, since, limit+1)
	if err != nil {
		return nil, "", false, fmt.Errorf("ошибка чтения журнала изменений: %w", err)
	}
	defer rows.Close()

	var (
		records []sync.ChangeRecord
		ids     []int64
	)
	for rows.Next() {
		var (
			id  int64
			rec sync.ChangeRecord
		)
		if err := rows.Scan(&id, &rec.Domain, &rec.ServerID, &rec.Payload, &rec.Deleted, &rec.Version, &rec.UpdatedAt); err != nil {
			return nil, "", false, fmt.Errorf("ошибка чтения строки журнала: %w", err)
		}
		records = append(records, rec)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, "", false, fmt.Errorf("ошибка обхода журнала: %w", err)
	}

	hasMore := false
	if len(records) > limit {
		hasMore = true
		records = records[:limit]
		ids = ids[:limit]
	}

	// Курсор страницы - идентификатор последней отданной записи
	next := ""
	if len(ids) > 0 {
		next = strconv.FormatInt(ids[len(ids)-1], 10)
	}
	return records, next, hasMore, nil
}
