package sale

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Статусы продажи
const (
	StatusCompleted = "completed"
	StatusHeld      = "held"
	StatusCancelled = "cancelled"
)

// Sale локальная продажа (чек). Локальный ID стабилен на все время жизни
// записи; ServerID заполняется после успешной синхронизации и хранится
// отдельно, чтобы первичный ключ никогда не менялся.
type Sale struct {
	ID        int64      `json:"id"`
	TempID    string     `json:"temp_id,omitempty"`
	ServerID  int64      `json:"server_id,omitempty"`
	CashierID int64      `json:"cashier_id"`
	Total     int64      `json:"total"` // в копейках
	Status    string     `json:"status"`
	Items     []SaleItem `json:"items"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Метаданные синхронизации
	IsOffline    bool       `json:"is_offline"`
	IsSynced     bool       `json:"is_synced"`
	SyncError    string     `json:"sync_error,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// SaleItem позиция чека. Цена фиксируется на момент продажи.
type SaleItem struct {
	ID          int64 `json:"id"`
	SaleID      int64 `json:"sale_id"`
	ProductID   int64 `json:"product_id"`
	Quantity    int64 `json:"quantity"`
	PriceAtSale int64 `json:"price_at_sale"`
}

// Synced сообщает, есть ли у продажи подтвержденный серверный идентификатор
func (s *Sale) Synced() bool {
	return s.IsSynced && s.ServerID > 0
}

// NewTempID генерирует клиентский временный идентификатор для продажи,
// созданной офлайн. По нему запись адресуется до появления серверного ID.
func NewTempID() string {
	return fmt.Sprintf("offline_%d_%s", time.Now().Unix(), uuid.NewString()[:5])
}

// Validate проверяет продажу перед сохранением
func (s *Sale) Validate() error {
	if len(s.Items) == 0 {
		return ErrEmptySale
	}
	var total int64
	for _, item := range s.Items {
		if item.Quantity <= 0 {
			return ErrBadQuantity
		}
		if item.PriceAtSale < 0 {
			return ErrBadPrice
		}
		total += item.Quantity * item.PriceAtSale
	}
	if s.Total != total {
		return ErrTotalMismatch
	}
	return nil
}
