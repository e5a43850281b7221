package stock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Product товар из серверного каталога. Авторитетный источник —
// сервер; локальная копия обновляется инкрементальным пуллером.
type Product struct {
	ServerID  int64     `json:"server_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"` // в копейках
	Quantity  int64     `json:"quantity"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// Adjustment локальная корректировка остатка.
// ExpectedQuantity — остаток, который клиент считал актуальным на момент
// операции; сервер сравнивает его с фактическим и может вернуть расхождение.
type Adjustment struct {
	ID               int64     `json:"id"`
	TempID           string    `json:"temp_id,omitempty"`
	ServerID         int64     `json:"server_id,omitempty"`
	ProductID        int64     `json:"product_id"`
	Delta            int64     `json:"delta"`
	ExpectedQuantity int64     `json:"expected_quantity"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Метаданные синхронизации
	IsOffline    bool       `json:"is_offline"`
	IsSynced     bool       `json:"is_synced"`
	SyncError    string     `json:"sync_error,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	// Расхождение, зафиксированное сервером. Информационное: операция
	// считается примененной, но пользователя нужно предупредить.
	HasDiscrepancy     bool  `json:"has_discrepancy,omitempty"`
	DiscrepancyActual  int64 `json:"discrepancy_actual,omitempty"`
	DiscrepancyExpect  int64 `json:"discrepancy_expected,omitempty"`
}

// NewTempID генерирует временный идентификатор корректировки
func NewTempID() string {
	return fmt.Sprintf("offline_%d_%s", time.Now().Unix(), uuid.NewString()[:5])
}

// Validate проверяет корректировку перед сохранением
func (a *Adjustment) Validate() error {
	if a.ProductID <= 0 {
		return ErrNoProduct
	}
	if a.Delta == 0 {
		return ErrZeroDelta
	}
	return nil
}
