package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"salepoint/internal/app/server/api/http/middleware/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

// MockRepository is a mock implementation of the Repository interface for testing
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindResult(ctx context.Context, key string) (*BatchItemResult, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BatchItemResult), args.Error(1)
}

func (m *MockRepository) SaveResult(ctx context.Context, key string, res *BatchItemResult) error {
	args := m.Called(ctx, key, res)
	return args.Error(0)
}

func (m *MockRepository) FindSaleByTempID(ctx context.Context, tempID string) (*ServerSale, error) {
	args := m.Called(ctx, tempID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ServerSale), args.Error(1)
}

func (m *MockRepository) FindSaleByID(ctx context.Context, serverID int64) (*ServerSale, error) {
	args := m.Called(ctx, serverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ServerSale), args.Error(1)
}

func (m *MockRepository) CreateSale(ctx context.Context, userID int, p *SalePayload) (*ServerSale, error) {
	args := m.Called(ctx, userID, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ServerSale), args.Error(1)
}

func (m *MockRepository) UpdateSale(ctx context.Context, serverID int64, total int64, status string) (*ServerSale, error) {
	args := m.Called(ctx, serverID, total, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ServerSale), args.Error(1)
}

func (m *MockRepository) ApplyAdjustment(ctx context.Context, userID int, p *AdjustmentPayload) (int64, int64, error) {
	args := m.Called(ctx, userID, p)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) ListChanges(ctx context.Context, domain string, since int64, limit int) ([]ChangeRecord, string, bool, error) {
	args := m.Called(ctx, domain, since, limit)
	var records []ChangeRecord
	if args.Get(0) != nil {
		records = args.Get(0).([]ChangeRecord)
	}
	return records, args.String(1), args.Bool(2), args.Error(3)
}

func authCtx() context.Context {
	return auth.WithUserID(context.Background(), 1)
}

func saleItem(t *testing.T, key, tempID string) BatchItem {
	t.Helper()
	payload, err := json.Marshal(SalePayload{
		TempID:    tempID,
		CashierID: 1,
		Total:     150000,
		Status:    "completed",
		Items:     []SaleItemPayload{{ProductID: 7, Quantity: 3, PriceAtSale: 50000}},
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	return BatchItem{
		IdempotencyKey: key,
		Entity:         EntitySale,
		Operation:      OpCreate,
		EntityID:       tempID,
		Payload:        payload,
	}
}

func TestService_ProcessBatch_CreateSale(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, slog.Default(), nil)

	item := saleItem(t, "sale_CREATE_abc", "offline_1_xxxxx")

	mockRepo.On("FindResult", mock.Anything, "sale_CREATE_abc").Return(nil, nil)
	mockRepo.On("FindSaleByTempID", mock.Anything, "offline_1_xxxxx").Return(nil, nil)
	mockRepo.On("CreateSale", mock.Anything, 1, mock.MatchedBy(func(p *SalePayload) bool {
		return p.TempID == "offline_1_xxxxx" && p.Total == 150000
	})).Return(&ServerSale{ID: 42, TempID: "offline_1_xxxxx", Version: 1}, nil)
	mockRepo.On("SaveResult", mock.Anything, "sale_CREATE_abc", mock.Anything).Return(nil)

	resp, err := service.ProcessBatch(authCtx(), BatchRequest{Items: []BatchItem{item}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, ItemStatusSuccess, resp.Results[0].Status)
	assert.Equal(t, int64(42), resp.Results[0].ServerID)
	assert.Equal(t, "sale_CREATE_abc", resp.Results[0].IdempotencyKey)

	mockRepo.AssertExpectations(t)
}

func TestService_ProcessBatch_IdempotentReplay(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, slog.Default(), nil)

	item := saleItem(t, "sale_CREATE_abc", "offline_1_xxxxx")
	saved := &BatchItemResult{
		IdempotencyKey: "sale_CREATE_abc",
		Status:         ItemStatusSuccess,
		ServerID:       42,
	}

	mockRepo.On("FindResult", mock.Anything, "sale_CREATE_abc").Return(saved, nil)

	resp, err := service.ProcessBatch(authCtx(), BatchRequest{Items: []BatchItem{item}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(42), resp.Results[0].ServerID)

	// Повтор не должен трогать данные
	mockRepo.AssertNotCalled(t, "CreateSale")
	mockRepo.AssertNotCalled(t, "SaveResult")
}

func TestService_ProcessBatch_DuplicateTempIDConflict(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, slog.Default(), nil)

	item := saleItem(t, "sale_CREATE_new", "offline_1_xxxxx")
	existing := &ServerSale{ID: 42, TempID: "offline_1_xxxxx", Total: 150000, Status: "completed", Version: 2}

	mockRepo.On("FindResult", mock.Anything, "sale_CREATE_new").Return(nil, nil)
	mockRepo.On("FindSaleByTempID", mock.Anything, "offline_1_xxxxx").Return(existing, nil)
	mockRepo.On("SaveResult", mock.Anything, "sale_CREATE_new", mock.Anything).Return(nil)

	resp, err := service.ProcessBatch(authCtx(), BatchRequest{Items: []BatchItem{item}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	res := resp.Results[0]
	assert.Equal(t, ItemStatusConflict, res.Status)
	assert.Equal(t, int64(42), res.ServerID)

	var record ServerSale
	require.NoError(t, json.Unmarshal(res.ServerRecord, &record))
	assert.Equal(t, int64(42), record.ID)
	assert.Equal(t, int64(2), record.Version)

	mockRepo.AssertNotCalled(t, "CreateSale")
}

func TestService_ProcessBatch_AdjustmentDiscrepancy(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, slog.Default(), nil)

	payload, err := json.Marshal(AdjustmentPayload{
		TempID:           "offline_2_yyyyy",
		ProductID:        7,
		Delta:            -3,
		ExpectedQuantity: 17,
		Reason:           "бой при разгрузке",
	})
	require.NoError(t, err)

	item := BatchItem{
		IdempotencyKey: "stockAdjustment_CREATE_def",
		Entity:         EntityStockAdjustment,
		Operation:      OpCreate,
		EntityID:       "offline_2_yyyyy",
		Payload:        payload,
	}

	mockRepo.On("FindResult", mock.Anything, item.IdempotencyKey).Return(nil, nil)
	// Кто-то успел продать еще две штуки: фактический остаток 15, не 17
	mockRepo.On("ApplyAdjustment", mock.Anything, 1, mock.Anything).Return(int64(55), int64(15), nil)
	mockRepo.On("SaveResult", mock.Anything, item.IdempotencyKey, mock.Anything).Return(nil)

	resp, err := service.ProcessBatch(authCtx(), BatchRequest{Items: []BatchItem{item}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	res := resp.Results[0]
	assert.Equal(t, ItemStatusConflict, res.Status)
	require.NotNil(t, res.Discrepancy)
	assert.Equal(t, int64(17), res.Discrepancy.Expected)
	assert.Equal(t, int64(15), res.Discrepancy.Actual)

	mockRepo.AssertExpectations(t)
}

func TestService_ProcessBatch_UnknownOperation(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, slog.Default(), nil)

	item := BatchItem{
		IdempotencyKey: "product_DELETE_zzz",
		Entity:         EntityProduct,
		Operation:      OpDelete,
		EntityID:       "5",
	}

	mockRepo.On("FindResult", mock.Anything, item.IdempotencyKey).Return(nil, nil)
	mockRepo.On("SaveResult", mock.Anything, item.IdempotencyKey, mock.Anything).Return(nil)

	resp, err := service.ProcessBatch(authCtx(), BatchRequest{Items: []BatchItem{item}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, ItemStatusError, resp.Results[0].Status)
	assert.True(t, resp.Results[0].Permanent)
}

func TestService_ProcessBatch_Unauthenticated(t *testing.T) {
	service := NewService(new(MockRepository), slog.Default(), nil)

	_, err := service.ProcessBatch(context.Background(), BatchRequest{})
	assert.Error(t, err)
}

func TestService_GetChanges(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, slog.Default(), nil)

	records := []ChangeRecord{
		{Domain: DomainProduct, ServerID: 1, Version: 1},
		{Domain: DomainProduct, ServerID: 2, Version: 3},
	}
	mockRepo.On("ListChanges", mock.Anything, DomainProduct, int64(10), 100).
		Return(records, "12", true, nil)

	resp, err := service.GetChanges(authCtx(), GetChangesRequest{Domain: DomainProduct, Since: "10"})
	require.NoError(t, err)
	assert.Equal(t, "Ok", resp.Status)
	assert.Len(t, resp.Records, 2)
	assert.Equal(t, "12", resp.NextSince)
	assert.True(t, resp.HasMore)

	mockRepo.AssertExpectations(t)
}

func TestService_GetChanges_BadSince(t *testing.T) {
	service := NewService(new(MockRepository), slog.Default(), nil)

	_, err := service.GetChanges(authCtx(), GetChangesRequest{Domain: DomainSale, Since: "not-a-cursor"})
	assert.Error(t, err)
}

func TestService_GetChanges_UnknownDomain(t *testing.T) {
	service := NewService(new(MockRepository), slog.Default(), nil)

	_, err := service.GetChanges(authCtx(), GetChangesRequest{Domain: "receipt"})
	assert.Error(t, err)
}
