package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"salepoint/internal/domain/sync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ProcessBatch(ctx context.Context, req sync.BatchRequest) (*sync.BatchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.BatchResponse), args.Error(1)
}

func (m *MockService) GetChanges(ctx context.Context, req sync.GetChangesRequest) (*sync.GetChangesResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.GetChangesResponse), args.Error(1)
}

func TestHandler_Batch(t *testing.T) {
	svc := new(MockService)
	h := NewHandler(svc, slog.Default(), nil)

	req := sync.BatchRequest{
		DeviceID: "kassa-1",
		Items: []sync.BatchItem{
			{IdempotencyKey: "sale_CREATE_abc", Entity: sync.EntitySale, Operation: sync.OpCreate},
		},
	}
	svc.On("ProcessBatch", mock.Anything, req).Return(&sync.BatchResponse{
		Status: "Ok",
		Results: []sync.BatchItemResult{
			{IdempotencyKey: "sale_CREATE_abc", Status: sync.ItemStatusSuccess, ServerID: 42},
		},
	}, nil)

	out, err := h.batch(context.Background(), &batchInput{Body: req})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out.Status)
	require.Len(t, out.Body.Results, 1)
	assert.Equal(t, int64(42), out.Body.Results[0].ServerID)

	svc.AssertExpectations(t)
}

func TestHandler_Batch_ServiceError(t *testing.T) {
	svc := new(MockService)
	h := NewHandler(svc, slog.Default(), nil)

	svc.On("ProcessBatch", mock.Anything, mock.Anything).
		Return(nil, errors.New("database down"))

	out, err := h.batch(context.Background(), &batchInput{Body: sync.BatchRequest{}})
	require.NoError(t, err)
	// Касса различает классы ошибок по HTTP-статусу: 5xx повторяется
	assert.Equal(t, http.StatusInternalServerError, out.Status)
	assert.Equal(t, "Error", out.Body.Status)
}

func TestHandler_Changes(t *testing.T) {
	svc := new(MockService)
	h := NewHandler(svc, slog.Default(), nil)

	svc.On("GetChanges", mock.Anything, sync.GetChangesRequest{Domain: "product", Since: "10", Limit: 50}).
		Return(&sync.GetChangesResponse{
			Status:    "Ok",
			Records:   []sync.ChangeRecord{{Domain: "product", ServerID: 11}},
			NextSince: "11",
		}, nil)

	out, err := h.changes(context.Background(), &changesInput{Domain: "product", Since: "10", Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, "11", out.Body.NextSince)

	svc.AssertExpectations(t)
}

func TestHandler_Changes_BadRequest(t *testing.T) {
	svc := new(MockService)
	h := NewHandler(svc, slog.Default(), nil)

	svc.On("GetChanges", mock.Anything, mock.Anything).
		Return(nil, errors.New("неизвестный домен"))

	out, err := h.changes(context.Background(), &changesInput{Domain: "receipt"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, out.Status)
	assert.Equal(t, "Error", out.Body.Status)
}
