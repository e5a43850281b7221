package pos

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"salepoint/internal/domain/receipt"
	"salepoint/internal/domain/sale"
	"salepoint/internal/domain/stock"
)

// querier объединяет *sql.DB и *sql.Tx: операции движка над сущностями
// и очередью должны уметь выполняться внутри одной локальной транзакции.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type Storage struct {
	db *sql.DB
}

func NewStorage(path string) (*Storage, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}

	storage := &Storage{db: db}

	// Создаем таблицы
	if err := storage.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка инициализации таблиц: %w", err)
	}

	// Элементы, взятые в обработку до падения, возвращаются в очередь.
	if _, err := storage.RecoverProcessing(db); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

func (s *Storage) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sales (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			temp_id TEXT UNIQUE,
			server_id INTEGER,
			cashier_id INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL,
			status TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			is_offline BOOLEAN NOT NULL DEFAULT 0,
			is_synced BOOLEAN NOT NULL DEFAULT 0,
			sync_error TEXT NOT NULL DEFAULT '',
			last_synced_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS sale_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_id INTEGER NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
			product_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			price_at_sale INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS stock_adjustments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			temp_id TEXT UNIQUE,
			server_id INTEGER,
			product_id INTEGER NOT NULL,
			delta INTEGER NOT NULL,
			expected_quantity INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			is_offline BOOLEAN NOT NULL DEFAULT 0,
			is_synced BOOLEAN NOT NULL DEFAULT 0,
			sync_error TEXT NOT NULL DEFAULT '',
			last_synced_at DATETIME,
			has_discrepancy BOOLEAN NOT NULL DEFAULT 0,
			discrepancy_expected INTEGER NOT NULL DEFAULT 0,
			discrepancy_actual INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS products (
			server_id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			price INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			updated_at DATETIME NOT NULL,
			deleted BOOLEAN NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS printed_receipts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_id INTEGER NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
			printed_number TEXT NOT NULL,
			final_invoice_number TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			printed_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			reprinted_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			idempotency_key TEXT NOT NULL UNIQUE,
			operation TEXT NOT NULL,
			entity TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			data TEXT NOT NULL,
			endpoint TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT 'POST',
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 5,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			last_attempt_at DATETIME,
			next_retry_at DATETIME,
			offline_timestamp DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sync_watermarks (
			domain TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sales_temp ON sales(temp_id);
		CREATE INDEX IF NOT EXISTS idx_sales_server ON sales(server_id);
		CREATE INDEX IF NOT EXISTS idx_adjustments_product ON stock_adjustments(product_id);
		CREATE INDEX IF NOT EXISTS idx_queue_status ON sync_queue(status, created_at);
		CREATE INDEX IF NOT EXISTS idx_queue_entity ON sync_queue(entity_id);
		CREATE INDEX IF NOT EXISTS idx_receipts_status ON printed_receipts(status);
	`)

	return err
}

// WithTx выполняет fn в одной локальной транзакции.
// Любая ошибка откатывает все изменения: частично примененных
// состояний снаружи не видно.
func (s *Storage) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("ошибка открытия транзакции: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w; ошибка отката: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// ==================== Продажи ====================

func (s *Storage) CreateSale(q querier, sl *sale.Sale) error {
	res, err := q.Exec(`
		INSERT INTO sales (temp_id, server_id, cashier_id, total, status, version,
		                   created_at, updated_at, is_offline, is_synced, sync_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullString(sl.TempID), nullInt64(sl.ServerID), sl.CashierID, sl.Total, sl.Status,
		sl.Version, sl.CreatedAt, sl.UpdatedAt, sl.IsOffline, sl.IsSynced, sl.SyncError)
	if err != nil {
		return fmt.Errorf("ошибка сохранения продажи: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("ошибка получения идентификатора продажи: %w", err)
	}
	sl.ID = id

	for i := range sl.Items {
		item := &sl.Items[i]
		item.SaleID = id
		res, err := q.Exec(`
			INSERT INTO sale_items (sale_id, product_id, quantity, price_at_sale)
			VALUES (?, ?, ?, ?)
		`, item.SaleID, item.ProductID, item.Quantity, item.PriceAtSale)
		if err != nil {
			return fmt.Errorf("ошибка сохранения позиции чека: %w", err)
		}
		item.ID, _ = res.LastInsertId()
	}

	return nil
}

const saleColumns = `id, temp_id, server_id, cashier_id, total, status, version,
	created_at, updated_at, is_offline, is_synced, sync_error, last_synced_at`

func (s *Storage) scanSale(row *sql.Row) (*sale.Sale, error) {
	var sl sale.Sale
	var tempID sql.NullString
	var serverID sql.NullInt64
	var lastSynced sql.NullTime

	err := row.Scan(&sl.ID, &tempID, &serverID, &sl.CashierID, &sl.Total, &sl.Status,
		&sl.Version, &sl.CreatedAt, &sl.UpdatedAt, &sl.IsOffline, &sl.IsSynced,
		&sl.SyncError, &lastSynced)
	if err == sql.ErrNoRows {
		return nil, sale.ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения продажи: %w", err)
	}

	sl.TempID = tempID.String
	sl.ServerID = serverID.Int64
	if lastSynced.Valid {
		t := lastSynced.Time
		sl.LastSyncedAt = &t
	}
	return &sl, nil
}

func (s *Storage) loadSaleItems(q querier, sl *sale.Sale) error {
	rows, err := q.Query(`
		SELECT id, sale_id, product_id, quantity, price_at_sale
		FROM sale_items WHERE sale_id = ? ORDER BY id
	`, sl.ID)
	if err != nil {
		return fmt.Errorf("ошибка чтения позиций чека: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item sale.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID,
			&item.Quantity, &item.PriceAtSale); err != nil {
			return fmt.Errorf("ошибка сканирования позиции чека: %w", err)
		}
		sl.Items = append(sl.Items, item)
	}
	return rows.Err()
}

func (s *Storage) GetSale(q querier, id int64) (*sale.Sale, error) {
	sl, err := s.scanSale(q.QueryRow(
		`SELECT `+saleColumns+` FROM sales WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := s.loadSaleItems(q, sl); err != nil {
		return nil, err
	}
	return sl, nil
}

// GetSaleByRef находит продажу по временной или серверной ссылке.
// До синхронизации запись адресуется по temp_id, после — по server_id;
// обе ссылки разрешаются в одну и ту же локальную запись.
func (s *Storage) GetSaleByRef(q querier, ref string) (*sale.Sale, error) {
	sl, err := s.scanSale(q.QueryRow(
		`SELECT `+saleColumns+` FROM sales WHERE temp_id = ?`, ref))
	if err == nil {
		if err := s.loadSaleItems(q, sl); err != nil {
			return nil, err
		}
		return sl, nil
	}

	if serverID, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		sl, err = s.scanSale(q.QueryRow(
			`SELECT `+saleColumns+` FROM sales WHERE server_id = ?`, serverID))
		if err == nil {
			if err := s.loadSaleItems(q, sl); err != nil {
				return nil, err
			}
			return sl, nil
		}
	}

	return nil, sale.ErrSaleNotFound
}

func (s *Storage) ListSales(q querier, limit int) ([]*sale.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer rows.Close()

	var sales []*sale.Sale
	for rows.Next() {
		var sl sale.Sale
		var tempID sql.NullString
		var serverID sql.NullInt64
		var lastSynced sql.NullTime

		if err := rows.Scan(&sl.ID, &tempID, &serverID, &sl.CashierID, &sl.Total,
			&sl.Status, &sl.Version, &sl.CreatedAt, &sl.UpdatedAt, &sl.IsOffline,
			&sl.IsSynced, &sl.SyncError, &lastSynced); err != nil {
			return nil, fmt.Errorf("ошибка сканирования продажи: %w", err)
		}
		sl.TempID = tempID.String
		sl.ServerID = serverID.Int64
		if lastSynced.Valid {
			t := lastSynced.Time
			sl.LastSyncedAt = &t
		}
		sales = append(sales, &sl)
	}
	return sales, rows.Err()
}

// MarkSaleSynced записывает результат успешной синхронизации продажи.
// Серверный идентификатор хранится отдельно от локального ключа.
func (s *Storage) MarkSaleSynced(q querier, localID, serverID int64, at time.Time) error {
	_, err := q.Exec(`
		UPDATE sales
		SET server_id = ?, is_synced = 1, sync_error = '', last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`, serverID, at, at, localID)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса продажи: %w", err)
	}
	return nil
}

func (s *Storage) SetSaleSyncError(q querier, localID int64, msg string) error {
	_, err := q.Exec(`UPDATE sales SET sync_error = ?, updated_at = ? WHERE id = ?`,
		msg, time.Now(), localID)
	if err != nil {
		return fmt.Errorf("ошибка записи ошибки синхронизации: %w", err)
	}
	return nil
}

func (s *Storage) ApplySaleUpdate(q querier, sl *sale.Sale) error {
	_, err := q.Exec(`
		UPDATE sales SET total = ?, status = ?, version = ?, updated_at = ?, is_synced = ?
		WHERE id = ?
	`, sl.Total, sl.Status, sl.Version, sl.UpdatedAt, sl.IsSynced, sl.ID)
	if err != nil {
		return fmt.Errorf("ошибка обновления продажи: %w", err)
	}
	return nil
}

// ==================== Корректировки остатков ====================

func (s *Storage) CreateAdjustment(q querier, adj *stock.Adjustment) error {
	res, err := q.Exec(`
		INSERT INTO stock_adjustments (temp_id, server_id, product_id, delta,
			expected_quantity, reason, created_at, updated_at, is_offline, is_synced, sync_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullString(adj.TempID), nullInt64(adj.ServerID), adj.ProductID, adj.Delta,
		adj.ExpectedQuantity, adj.Reason, adj.CreatedAt, adj.UpdatedAt,
		adj.IsOffline, adj.IsSynced, adj.SyncError)
	if err != nil {
		return fmt.Errorf("ошибка сохранения корректировки: %w", err)
	}

	adj.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("ошибка получения идентификатора корректировки: %w", err)
	}
	return nil
}

const adjustmentColumns = `id, temp_id, server_id, product_id, delta, expected_quantity,
	reason, created_at, updated_at, is_offline, is_synced, sync_error, last_synced_at,
	has_discrepancy, discrepancy_expected, discrepancy_actual`

func scanAdjustment(scan func(dest ...any) error) (*stock.Adjustment, error) {
	var adj stock.Adjustment
	var tempID sql.NullString
	var serverID sql.NullInt64
	var lastSynced sql.NullTime

	err := scan(&adj.ID, &tempID, &serverID, &adj.ProductID, &adj.Delta,
		&adj.ExpectedQuantity, &adj.Reason, &adj.CreatedAt, &adj.UpdatedAt,
		&adj.IsOffline, &adj.IsSynced, &adj.SyncError, &lastSynced,
		&adj.HasDiscrepancy, &adj.DiscrepancyExpect, &adj.DiscrepancyActual)
	if err != nil {
		return nil, err
	}

	adj.TempID = tempID.String
	adj.ServerID = serverID.Int64
	if lastSynced.Valid {
		t := lastSynced.Time
		adj.LastSyncedAt = &t
	}
	return &adj, nil
}

func (s *Storage) GetAdjustment(q querier, id int64) (*stock.Adjustment, error) {
	row := q.QueryRow(`SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE id = ?`, id)
	adj, err := scanAdjustment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, stock.ErrAdjustmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения корректировки: %w", err)
	}
	return adj, nil
}

// GetAdjustmentByRef находит корректировку по временной или серверной
// ссылке, по тому же правилу двойной адресации, что и продажи.
func (s *Storage) GetAdjustmentByRef(q querier, ref string) (*stock.Adjustment, error) {
	row := q.QueryRow(`SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE temp_id = ?`, ref)
	adj, err := scanAdjustment(row.Scan)
	if err == nil {
		return adj, nil
	}

	if serverID, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		row = q.QueryRow(`SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE server_id = ?`, serverID)
		if adj, err = scanAdjustment(row.Scan); err == nil {
			return adj, nil
		}
	}

	return nil, stock.ErrAdjustmentNotFound
}

func (s *Storage) ListAdjustments(q querier, limit int) ([]*stock.Adjustment, error) {
	query := `SELECT ` + adjustmentColumns + ` FROM stock_adjustments ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer rows.Close()

	var adjustments []*stock.Adjustment
	for rows.Next() {
		adj, err := scanAdjustment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования корректировки: %w", err)
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

func (s *Storage) MarkAdjustmentSynced(q querier, localID, serverID int64, at time.Time) error {
	_, err := q.Exec(`
		UPDATE stock_adjustments
		SET server_id = ?, is_synced = 1, sync_error = '', last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`, serverID, at, at, localID)
	if err != nil {
		return fmt.Errorf("ошибка обновления статуса корректировки: %w", err)
	}
	return nil
}

// RecordAdjustmentDiscrepancy фиксирует расхождение остатка, о котором
// сообщил сервер. Операция при этом считается примененной.
func (s *Storage) RecordAdjustmentDiscrepancy(q querier, localID, expected, actual int64) error {
	_, err := q.Exec(`
		UPDATE stock_adjustments
		SET has_discrepancy = 1, discrepancy_expected = ?, discrepancy_actual = ?, updated_at = ?
		WHERE id = ?
	`, expected, actual, time.Now(), localID)
	if err != nil {
		return fmt.Errorf("ошибка записи расхождения: %w", err)
	}
	return nil
}

func (s *Storage) SetAdjustmentSyncError(q querier, localID int64, msg string) error {
	_, err := q.Exec(`UPDATE stock_adjustments SET sync_error = ?, updated_at = ? WHERE id = ?`,
		msg, time.Now(), localID)
	if err != nil {
		return fmt.Errorf("ошибка записи ошибки синхронизации: %w", err)
	}
	return nil
}

// ==================== Товары ====================

func (s *Storage) UpsertProduct(q querier, p *stock.Product) error {
	_, err := q.Exec(`
		INSERT INTO products (server_id, name, price, quantity, version, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			quantity = excluded.quantity,
			version = excluded.version,
			updated_at = excluded.updated_at,
			deleted = excluded.deleted
	`, p.ServerID, p.Name, p.Price, p.Quantity, p.Version, p.UpdatedAt, p.Deleted)
	if err != nil {
		return fmt.Errorf("ошибка сохранения товара: %w", err)
	}
	return nil
}

func (s *Storage) GetProduct(q querier, serverID int64) (*stock.Product, error) {
	var p stock.Product
	err := q.QueryRow(`
		SELECT server_id, name, price, quantity, version, updated_at, deleted
		FROM products WHERE server_id = ? AND deleted = 0
	`, serverID).Scan(&p.ServerID, &p.Name, &p.Price, &p.Quantity,
		&p.Version, &p.UpdatedAt, &p.Deleted)
	if err == sql.ErrNoRows {
		return nil, stock.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения товара: %w", err)
	}
	return &p, nil
}

func (s *Storage) ListProducts(q querier) ([]*stock.Product, error) {
	rows, err := q.Query(`
		SELECT server_id, name, price, quantity, version, updated_at, deleted
		FROM products WHERE deleted = 0 ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer rows.Close()

	var products []*stock.Product
	for rows.Next() {
		var p stock.Product
		if err := rows.Scan(&p.ServerID, &p.Name, &p.Price, &p.Quantity,
			&p.Version, &p.UpdatedAt, &p.Deleted); err != nil {
			return nil, fmt.Errorf("ошибка сканирования товара: %w", err)
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

// ==================== Напечатанные чеки ====================

func (s *Storage) CreatePrintedReceipt(q querier, r *receipt.Printed) error {
	res, err := q.Exec(`
		INSERT INTO printed_receipts (sale_id, printed_number, final_invoice_number,
			status, printed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.SaleID, r.PrintedNumber, r.FinalInvoiceNumber, r.Status, r.PrintedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения чека: %w", err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("ошибка получения идентификатора чека: %w", err)
	}
	return nil
}

const receiptColumns = `id, sale_id, printed_number, final_invoice_number,
	status, printed_at, updated_at, reprinted_at`

func scanReceipt(scan func(dest ...any) error) (*receipt.Printed, error) {
	var r receipt.Printed
	var reprintedAt sql.NullTime
	err := scan(&r.ID, &r.SaleID, &r.PrintedNumber, &r.FinalInvoiceNumber,
		&r.Status, &r.PrintedAt, &r.UpdatedAt, &reprintedAt)
	if err != nil {
		return nil, err
	}
	if reprintedAt.Valid {
		t := reprintedAt.Time
		r.ReprintedAt = &t
	}
	return &r, nil
}

func (s *Storage) GetReceiptBySale(q querier, saleID int64) (*receipt.Printed, error) {
	row := q.QueryRow(`SELECT `+receiptColumns+` FROM printed_receipts WHERE sale_id = ?`, saleID)
	r, err := scanReceipt(row.Scan)
	if err == sql.ErrNoRows {
		return nil, receipt.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения чека: %w", err)
	}
	return r, nil
}

func (s *Storage) GetReceipt(q querier, id int64) (*receipt.Printed, error) {
	row := q.QueryRow(`SELECT `+receiptColumns+` FROM printed_receipts WHERE id = ?`, id)
	r, err := scanReceipt(row.Scan)
	if err == sql.ErrNoRows {
		return nil, receipt.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения чека: %w", err)
	}
	return r, nil
}

func (s *Storage) ListReceiptsByStatus(q querier, status string) ([]*receipt.Printed, error) {
	rows, err := q.Query(`SELECT `+receiptColumns+` FROM printed_receipts
		WHERE status = ? ORDER BY printed_at`, status)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer rows.Close()

	var receipts []*receipt.Printed
	for rows.Next() {
		r, err := scanReceipt(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования чека: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// SetReceiptFinalNumber переводит чек в updated с финальным номером счета.
// Переход проверяется: из updated/reprinted назад в pending_update нельзя,
// финальный номер назначается ровно один раз.
func (s *Storage) SetReceiptFinalNumber(q querier, saleID int64, finalNumber string) error {
	r, err := s.GetReceiptBySale(q, saleID)
	if err != nil {
		return err
	}
	if !receipt.CanTransition(r.Status, receipt.StatusUpdated) {
		return fmt.Errorf("%w: %s -> %s", receipt.ErrInvalidTransition, r.Status, receipt.StatusUpdated)
	}

	_, err = q.Exec(`
		UPDATE printed_receipts
		SET final_invoice_number = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, finalNumber, receipt.StatusUpdated, time.Now(), r.ID)
	if err != nil {
		return fmt.Errorf("ошибка обновления чека: %w", err)
	}
	return nil
}

func (s *Storage) MarkReceiptReprinted(q querier, id int64) error {
	r, err := s.GetReceipt(q, id)
	if err != nil {
		return err
	}
	if !receipt.CanTransition(r.Status, receipt.StatusReprinted) {
		return fmt.Errorf("%w: %s -> %s", receipt.ErrInvalidTransition, r.Status, receipt.StatusReprinted)
	}

	now := time.Now()
	_, err = q.Exec(`
		UPDATE printed_receipts SET status = ?, updated_at = ?, reprinted_at = ?
		WHERE id = ?
	`, receipt.StatusReprinted, now, now, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления чека: %w", err)
	}
	return nil
}

// ==================== Отметки синхронизации ====================

func (s *Storage) GetWatermark(q querier, domain string) (string, error) {
	var token string
	err := q.QueryRow(`SELECT token FROM sync_watermarks WHERE domain = ?`, domain).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ошибка чтения отметки синхронизации: %w", err)
	}
	return token, nil
}

func (s *Storage) SetWatermark(q querier, domain, token string) error {
	_, err := q.Exec(`
		INSERT INTO sync_watermarks (domain, token, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at
	`, domain, token, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка записи отметки синхронизации: %w", err)
	}
	return nil
}

// ClearWatermark сбрасывает отметку домена: следующий пулл
// запросит изменения с самого начала.
func (s *Storage) ClearWatermark(q querier, domain string) error {
	_, err := q.Exec(`DELETE FROM sync_watermarks WHERE domain = ?`, domain)
	if err != nil {
		return fmt.Errorf("ошибка сброса отметки синхронизации: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
