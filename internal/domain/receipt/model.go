package receipt

import (
	"errors"
	"time"
)

// Статусы напечатанного чека.
// pending_update — чек напечатан с временным номером (продажа еще не
// синхронизирована), updated — серверный номер известен, но чек не
// перепечатан, reprinted — терминальное состояние.
const (
	StatusPendingUpdate = "pending_update"
	StatusUpdated       = "updated"
	StatusReprinted     = "reprinted"
)

var (
	ErrNotFound          = errors.New("printed receipt not found")
	ErrInvalidTransition = errors.New("invalid receipt status transition")
)

// Printed запись о чеке, напечатанном до получения финального
// серверного номера счета
type Printed struct {
	ID                 int64      `json:"id"`
	SaleID             int64      `json:"sale_id"`
	PrintedNumber      string     `json:"printed_number"` // временный номер на чеке
	FinalInvoiceNumber string     `json:"final_invoice_number,omitempty"`
	Status             string     `json:"status"`
	PrintedAt          time.Time  `json:"printed_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ReprintedAt        *time.Time `json:"reprinted_at,omitempty"`
}

// CanTransition проверяет допустимость перехода статуса.
// Возврат в pending_update запрещен: финальный номер назначается один
// раз. Перепечатка возможна только после получения финального номера,
// повторная перепечатка допустима.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPendingUpdate:
		return to == StatusUpdated
	case StatusUpdated:
		return to == StatusReprinted
	case StatusReprinted:
		return to == StatusReprinted
	default:
		return false
	}
}
