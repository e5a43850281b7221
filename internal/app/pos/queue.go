package pos

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"salepoint/internal/domain/sync"
)

// Статусы элемента очереди синхронизации.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// backoffCap — потолок задержки между повторами.
const backoffCap = 5 * time.Minute

// QueueItem — запись очереди синхронизации. Очередь долговечная:
// элемент переживает перезапуск приложения и обрабатывается в порядке
// постановки. Ключ идемпотентности назначается при постановке и больше
// никогда не меняется, сколько бы повторов ни случилось.
type QueueItem struct {
	ID              int64
	IdempotencyKey  string
	Operation       sync.Operation
	Entity          string
	EntityID        string
	Data            json.RawMessage
	Endpoint        string
	Method          string
	Status          string
	Attempts        int
	MaxAttempts     int
	Error           string
	CreatedAt       time.Time
	LastAttemptAt   *time.Time
	NextRetryAt     *time.Time
	OfflineTimestamp time.Time
}

// NewIdempotencyKey строит ключ вида <entity>_<operation>_<uuid>.
func NewIdempotencyKey(entity string, op sync.Operation) string {
	return fmt.Sprintf("%s_%s_%s", entity, op, uuid.NewString())
}

// Enqueue добавляет операцию в хвост очереди. Вызывается в той же
// транзакции, что и запись самой сущности: либо видны обе записи,
// либо ни одной.
func (s *Storage) Enqueue(q querier, item *QueueItem) error {
	if item.IdempotencyKey == "" {
		item.IdempotencyKey = NewIdempotencyKey(item.Entity, item.Operation)
	}
	if item.Method == "" {
		item.Method = "POST"
	}
	if item.MaxAttempts == 0 {
		item.MaxAttempts = 5
	}
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.OfflineTimestamp.IsZero() {
		item.OfflineTimestamp = now
	}
	item.Status = QueueStatusPending

	res, err := q.Exec(`
		INSERT INTO sync_queue (idempotency_key, operation, entity, entity_id, data,
			endpoint, method, status, attempts, max_attempts, error, created_at, offline_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, '', ?, ?)
	`, item.IdempotencyKey, item.Operation, item.Entity, item.EntityID, string(item.Data),
		item.Endpoint, item.Method, item.Status, item.MaxAttempts,
		item.CreatedAt, item.OfflineTimestamp)
	if err != nil {
		return fmt.Errorf("ошибка постановки в очередь: %w", err)
	}

	item.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("ошибка получения идентификатора элемента очереди: %w", err)
	}
	return nil
}

const queueColumns = `id, idempotency_key, operation, entity, entity_id, data,
	endpoint, method, status, attempts, max_attempts, error,
	created_at, last_attempt_at, next_retry_at, offline_timestamp`

func scanQueueItem(scan func(dest ...any) error) (*QueueItem, error) {
	var item QueueItem
	var data string
	var lastAttempt, nextRetry sql.NullTime

	err := scan(&item.ID, &item.IdempotencyKey, &item.Operation, &item.Entity,
		&item.EntityID, &data, &item.Endpoint, &item.Method, &item.Status,
		&item.Attempts, &item.MaxAttempts, &item.Error,
		&item.CreatedAt, &lastAttempt, &nextRetry, &item.OfflineTimestamp)
	if err != nil {
		return nil, err
	}

	item.Data = json.RawMessage(data)
	if lastAttempt.Valid {
		t := lastAttempt.Time
		item.LastAttemptAt = &t
	}
	if nextRetry.Valid {
		t := nextRetry.Time
		item.NextRetryAt = &t
	}
	return &item, nil
}

// DequeuePending возвращает пачку готовых к отправке элементов в порядке
// постановки. Элемент с будущим next_retry_at пропускается, и вместе с
// ним придерживаются все более поздние операции по той же сущности:
// UPDATE не должен уйти на сервер раньше своего CREATE.
func (s *Storage) DequeuePending(q querier, limit int) ([]*QueueItem, error) {
	rows, err := q.Query(`
		SELECT `+queueColumns+` FROM sync_queue
		WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
			AND NOT EXISTS (
				SELECT 1 FROM sync_queue q2
				WHERE q2.entity_id = sync_queue.entity_id
					AND q2.id < sync_queue.id
					AND q2.status IN (?, ?)
			)
		ORDER BY id
		LIMIT ?
	`, QueueStatusPending, time.Now(), QueueStatusPending, QueueStatusProcessing, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки из очереди: %w", err)
	}
	defer rows.Close()

	var items []*QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования элемента очереди: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Storage) GetQueueItem(q querier, id int64) (*QueueItem, error) {
	row := q.QueryRow(`SELECT `+queueColumns+` FROM sync_queue WHERE id = ?`, id)
	item, err := scanQueueItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, sync.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения элемента очереди: %w", err)
	}
	return item, nil
}

func (s *Storage) ListQueue(q querier, status string) ([]*QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки из очереди: %w", err)
	}
	defer rows.Close()

	var items []*QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования элемента очереди: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkProcessing помечает пачку как взятую в обработку.
func (s *Storage) MarkProcessing(q querier, ids []int64) error {
	now := time.Now()
	for _, id := range ids {
		_, err := q.Exec(`
			UPDATE sync_queue SET status = ?, last_attempt_at = ? WHERE id = ?
		`, QueueStatusProcessing, now, id)
		if err != nil {
			return fmt.Errorf("ошибка перевода элемента в обработку: %w", err)
		}
	}
	return nil
}

func (s *Storage) MarkCompleted(q querier, id int64) error {
	_, err := q.Exec(`
		UPDATE sync_queue SET status = ?, error = '' WHERE id = ?
	`, QueueStatusCompleted, id)
	if err != nil {
		return fmt.Errorf("ошибка завершения элемента очереди: %w", err)
	}
	return nil
}

// MarkFailedTransient учитывает неудачную попытку. Пока попытки не
// исчерпаны, элемент возвращается в pending с экспоненциальной
// задержкой; после max_attempts уходит в failed и ждет ручного
// вмешательства.
func (s *Storage) MarkFailedTransient(q querier, id int64, msg string) error {
	item, err := s.GetQueueItem(q, id)
	if err != nil {
		return err
	}

	attempts := item.Attempts + 1
	now := time.Now()

	if attempts >= item.MaxAttempts {
		_, err = q.Exec(`
			UPDATE sync_queue SET status = ?, attempts = ?, error = ?, last_attempt_at = ?
			WHERE id = ?
		`, QueueStatusFailed, attempts, msg, now, id)
	} else {
		nextRetry := now.Add(backoffDelay(attempts))
		_, err = q.Exec(`
			UPDATE sync_queue
			SET status = ?, attempts = ?, error = ?, last_attempt_at = ?, next_retry_at = ?
			WHERE id = ?
		`, QueueStatusPending, attempts, msg, now, nextRetry, id)
	}
	if err != nil {
		return fmt.Errorf("ошибка учета неудачной попытки: %w", err)
	}
	return nil
}

// MarkFailedPermanent переводит элемент в failed сразу, не тратя
// оставшиеся попытки: повтор неисправимой операции бессмысленен.
func (s *Storage) MarkFailedPermanent(q querier, id int64, msg string) error {
	_, err := q.Exec(`
		UPDATE sync_queue SET status = ?, attempts = attempts + 1, error = ?, last_attempt_at = ?
		WHERE id = ?
	`, QueueStatusFailed, msg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("ошибка перевода элемента в failed: %w", err)
	}
	return nil
}

// RecoverProcessing возвращает зависшие в processing элементы в pending.
// Вызывается при открытии хранилища: если касса упала между взятием
// пачки в обработку и применением результатов, элементы не должны
// остаться в processing навсегда. Счетчик попыток и ключ идемпотентности
// не трогаются — сервер дедуплицирует повторную доставку по ключу.
func (s *Storage) RecoverProcessing(q querier) (int64, error) {
	res, err := q.Exec(`
		UPDATE sync_queue SET status = ? WHERE status = ?
	`, QueueStatusPending, QueueStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("ошибка восстановления очереди: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ошибка проверки результата: %w", err)
	}
	return affected, nil
}

// RetryItem возвращает failed-элемент в очередь со сброшенным счетчиком
// попыток. Ключ идемпотентности сохраняется.
func (s *Storage) RetryItem(q querier, id int64) error {
	res, err := q.Exec(`
		UPDATE sync_queue
		SET status = ?, attempts = 0, error = '', next_retry_at = NULL
		WHERE id = ? AND status = ?
	`, QueueStatusPending, id, QueueStatusFailed)
	if err != nil {
		return fmt.Errorf("ошибка повторной постановки элемента: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка проверки результата: %w", err)
	}
	if affected == 0 {
		return sync.ErrItemNotFound
	}
	return nil
}

// RetryAllFailed возвращает все failed-элементы в очередь.
func (s *Storage) RetryAllFailed(q querier) (int64, error) {
	res, err := q.Exec(`
		UPDATE sync_queue
		SET status = ?, attempts = 0, error = '', next_retry_at = NULL
		WHERE status = ?
	`, QueueStatusPending, QueueStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("ошибка повторной постановки очереди: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ошибка проверки результата: %w", err)
	}
	return affected, nil
}

// HasPendingForEntity сообщает, есть ли в очереди незавершенные
// операции по сущности. Пока они есть, входящие изменения по этой
// сущности откладываются.
func (s *Storage) HasPendingForEntity(q querier, entityID string) (bool, error) {
	var count int
	err := q.QueryRow(`
		SELECT COUNT(*) FROM sync_queue
		WHERE entity_id = ? AND status IN (?, ?)
	`, entityID, QueueStatusPending, QueueStatusProcessing).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки очереди: %w", err)
	}
	return count > 0, nil
}

// QueueCounts — количество элементов по статусам.
func (s *Storage) QueueCounts(q querier) (map[string]int, error) {
	rows, err := q.Query(`SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчета очереди: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования счетчика: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (s *Storage) LastCompletedAt(q querier) (*time.Time, error) {
	var t sql.NullTime
	err := q.QueryRow(`
		SELECT MAX(last_attempt_at) FROM sync_queue WHERE status = ?
	`, QueueStatusCompleted).Scan(&t)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения времени синхронизации: %w", err)
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

// backoffDelay — 2^attempts секунд с потолком backoffCap.
func backoffDelay(attempts int) time.Duration {
	d := time.Duration(1<<uint(attempts)) * time.Second
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}
