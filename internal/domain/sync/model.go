package sync

import (
	"encoding/json"
	"time"
)

// Operation тип операции, попадающей в очередь синхронизации
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Логические типы сущностей, известные протоколу синхронизации
const (
	EntitySale            = "sale"
	EntityStockAdjustment = "stockAdjustment"
	EntityProduct         = "product"
)

// Домены инкрементального пулла. Отметка синхронизации ведется на
// каждый домен отдельно.
const (
	DomainProduct = "product"
	DomainSale    = "sale"
)

// BatchItem один элемент пакетного запроса.
// IdempotencyKey генерируется клиентом один раз и не меняется при повторах.
type BatchItem struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Entity         string          `json:"entity"`
	Operation      Operation       `json:"operation"`
	EntityID       string          `json:"entity_id"`
	Payload        json.RawMessage `json:"payload"`
}

// SalePayload - форма продажи на проводе. Касса сериализует ее в
// BatchItem.Payload, сервер разбирает при применении операции.
type SalePayload struct {
	TempID    string            `json:"temp_id"`
	CashierID int64             `json:"cashier_id"`
	Total     int64             `json:"total"`
	Status    string            `json:"status"`
	Items     []SaleItemPayload `json:"items"`
	CreatedAt time.Time         `json:"created_at"`
}

type SaleItemPayload struct {
	ProductID   int64 `json:"product_id"`
	Quantity    int64 `json:"quantity"`
	PriceAtSale int64 `json:"price_at_sale"`
}

// AdjustmentPayload - форма корректировки остатка на проводе.
type AdjustmentPayload struct {
	TempID           string    `json:"temp_id"`
	ProductID        int64     `json:"product_id"`
	Delta            int64     `json:"delta"`
	ExpectedQuantity int64     `json:"expected_quantity"`
	Reason           string    `json:"reason"`
	CreatedAt        time.Time `json:"created_at"`
}

// Статусы результата по отдельному элементу пакета
const (
	ItemStatusSuccess  = "success"
	ItemStatusConflict = "conflict"
	ItemStatusError    = "error"
)

// BatchItemResult результат сервера по одному элементу пакета
type BatchItemResult struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Status         string          `json:"status"`
	ServerID       int64           `json:"server_id,omitempty"`
	Discrepancy    *Discrepancy    `json:"discrepancy,omitempty"`
	ServerRecord   json.RawMessage `json:"server_record,omitempty"`
	Message        string          `json:"message,omitempty"`
	// Permanent=true означает, что повтор бессмыслен (валидационная ошибка)
	Permanent bool `json:"permanent,omitempty"`
}

// Discrepancy расхождение между ожидаемым клиентом состоянием
// и фактическим состоянием на сервере в момент применения операции
type Discrepancy struct {
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
	Field    string `json:"field,omitempty"`
}

// ChangeRecord одна изменившаяся запись в ответе дельта-эндпоинта
type ChangeRecord struct {
	Domain    string          `json:"domain"`
	ServerID  int64           `json:"server_id"`
	Payload   json.RawMessage `json:"payload"`
	Deleted   bool            `json:"deleted,omitempty"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Watermark отметка "изменения до этой точки уже получены".
// Token непрозрачен для клиента, сервер выдает следующий токен в ответе.
type Watermark struct {
	Domain    string    `json:"domain"`
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}
