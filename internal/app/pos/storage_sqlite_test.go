package pos

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salepoint/internal/domain/receipt"
	"salepoint/internal/domain/sale"
)

func TestStorage_SaleRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	now := time.Now()
	sl := &sale.Sale{
		TempID:    "offline_1_aaaaa",
		CashierID: 1,
		Total:     100000,
		Status:    sale.StatusCompleted,
		Items: []sale.SaleItem{
			{ProductID: 1, Quantity: 2, PriceAtSale: 25000},
			{ProductID: 2, Quantity: 1, PriceAtSale: 50000},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		IsOffline: true,
	}
	require.NoError(t, s.CreateSale(s.db, sl))
	require.NotZero(t, sl.ID)

	got, err := s.GetSale(s.db, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, sl.TempID, got.TempID)
	assert.Equal(t, int64(100000), got.Total)
	require.Len(t, got.Items, 2)
	assert.Equal(t, int64(2), got.Items[0].Quantity)
	assert.False(t, got.IsSynced)
	assert.Nil(t, got.LastSyncedAt)
}

func TestStorage_GetSaleByRefUnknown(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetSaleByRef(s.db, "offline_none")
	assert.ErrorIs(t, err, sale.ErrSaleNotFound)

	_, err = s.GetSaleByRef(s.db, "12345")
	assert.ErrorIs(t, err, sale.ErrSaleNotFound)
}

func TestStorage_TxRollbackLeavesNothing(t *testing.T) {
	s := newTestStorage(t)

	now := time.Now()
	wantErr := assert.AnError
	err := s.WithTx(func(tx *sql.Tx) error {
		sl := &sale.Sale{
			TempID: "offline_1_aaaaa", Total: 1000, Status: sale.StatusCompleted,
			Items:   []sale.SaleItem{{ProductID: 1, Quantity: 1, PriceAtSale: 1000}},
			Version: 1, CreatedAt: now, UpdatedAt: now,
		}
		if err := s.CreateSale(tx, sl); err != nil {
			return err
		}
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	// Откат не оставляет следов: ни продажи, ни позиций
	sales, err := s.ListSales(s.db, 0)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestStorage_ReceiptLifecycle(t *testing.T) {
	s := newTestStorage(t)

	now := time.Now()
	sl := &sale.Sale{
		TempID: "offline_1_aaaaa", Total: 1000, Status: sale.StatusCompleted,
		Items:   []sale.SaleItem{{ProductID: 1, Quantity: 1, PriceAtSale: 1000}},
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateSale(s.db, sl))

	rcpt := &receipt.Printed{
		SaleID:        sl.ID,
		PrintedNumber: sl.TempID,
		Status:        receipt.StatusPendingUpdate,
		PrintedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, s.CreatePrintedReceipt(s.db, rcpt))

	// Перепечатка до финального номера запрещена
	err := s.MarkReceiptReprinted(s.db, rcpt.ID)
	assert.ErrorIs(t, err, receipt.ErrInvalidTransition)

	require.NoError(t, s.SetReceiptFinalNumber(s.db, sl.ID, "INV-42"))
	got, err := s.GetReceipt(s.db, rcpt.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusUpdated, got.Status)
	assert.Equal(t, "INV-42", got.FinalInvoiceNumber)

	// Финальный номер назначается ровно один раз
	err = s.SetReceiptFinalNumber(s.db, sl.ID, "INV-99")
	assert.ErrorIs(t, err, receipt.ErrInvalidTransition)

	require.NoError(t, s.MarkReceiptReprinted(s.db, rcpt.ID))
	got, err = s.GetReceipt(s.db, rcpt.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusReprinted, got.Status)
	require.NotNil(t, got.ReprintedAt)

	// Повторная перепечатка допустима
	require.NoError(t, s.MarkReceiptReprinted(s.db, rcpt.ID))

	// Назад в pending_update пути нет
	err = s.SetReceiptFinalNumber(s.db, sl.ID, "INV-100")
	assert.ErrorIs(t, err, receipt.ErrInvalidTransition)
}

func TestStorage_WatermarkRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	wm, err := s.GetWatermark(s.db, "product")
	require.NoError(t, err)
	assert.Empty(t, wm, "отсутствующая отметка читается пустой")

	require.NoError(t, s.SetWatermark(s.db, "product", "17"))
	require.NoError(t, s.SetWatermark(s.db, "product", "25"))

	wm, err = s.GetWatermark(s.db, "product")
	require.NoError(t, err)
	assert.Equal(t, "25", wm)

	require.NoError(t, s.ClearWatermark(s.db, "product"))
	wm, err = s.GetWatermark(s.db, "product")
	require.NoError(t, err)
	assert.Empty(t, wm)
}
