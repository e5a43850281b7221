package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"salepoint/internal/app/server/api/http/middleware/auth"

	"golang.org/x/exp/slog"
)

// Servicer серверный сервис синхронизации
type Servicer interface {
	// ProcessBatch применяет пакет офлайн-операций кассы.
	// Результат возвращается по каждому элементу отдельно.
	ProcessBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error)

	// GetChanges возвращает страницу изменений домена после отметки
	GetChanges(ctx context.Context, req GetChangesRequest) (*GetChangesResponse, error)
}

type ServiceConfig struct {
	MaxBatchSize int
	DefaultLimit int
	MaxLimit     int
}

type Service struct {
	repo   Repository
	log    *slog.Logger
	config *ServiceConfig
}

func NewService(repo Repository, log *slog.Logger, config *ServiceConfig) *Service {
	if config == nil {
		config = &ServiceConfig{
			MaxBatchSize: 500,
			DefaultLimit: 100,
			MaxLimit:     1000,
		}
	}

	return &Service{
		repo:   repo,
		log:    log,
		config: config,
	}
}

func (s *Service) ProcessBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	userID, ok := auth.GetUserID(ctx)
	if !ok {
		return nil, fmt.Errorf("user not authenticated")
	}

	if len(req.Items) > s.config.MaxBatchSize {
		return nil, fmt.Errorf("batch too large: %d items, max %d", len(req.Items), s.config.MaxBatchSize)
	}

	results := make([]BatchItemResult, 0, len(req.Items))
	for i := range req.Items {
		item := &req.Items[i]

		res, err := s.processItem(ctx, userID, item)
		if err != nil {
			// Внутренняя ошибка: результат не сохраняем, чтобы касса
			// повторила элемент с тем же ключом.
			s.log.Error("batch item failed", "key", item.IdempotencyKey, "error", err)
			res = &BatchItemResult{
				IdempotencyKey: item.IdempotencyKey,
				Status:         ItemStatusError,
				Message:        "внутренняя ошибка сервера",
			}
		}
		results = append(results, *res)
	}

	return &BatchResponse{Status: "Ok", Results: results}, nil
}

func (s *Service) processItem(ctx context.Context, userID int, item *BatchItem) (*BatchItemResult, error) {
	if item.IdempotencyKey == "" {
		return &BatchItemResult{
			Status:    ItemStatusError,
			Permanent: true,
			Message:   "отсутствует ключ идемпотентности",
		}, nil
	}

	// Повторная доставка: элемент уже применялся, отдаем сохраненный результат
	existing, err := s.repo.FindResult(ctx, item.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("поиск результата по ключу: %w", err)
	}
	if existing != nil {
		s.log.Debug("idempotent replay", "key", item.IdempotencyKey, "status", existing.Status)
		return existing, nil
	}

	var res *BatchItemResult
	switch {
	case item.Entity == EntitySale && item.Operation == OpCreate:
		res, err = s.createSale(ctx, userID, item)
	case item.Entity == EntitySale && item.Operation == OpUpdate:
		res, err = s.updateSale(ctx, item)
	case item.Entity == EntityStockAdjustment && item.Operation == OpCreate:
		res, err = s.applyAdjustment(ctx, userID, item)
	default:
		res = &BatchItemResult{
			IdempotencyKey: item.IdempotencyKey,
			Status:         ItemStatusError,
			Permanent:      true,
			Message:        fmt.Sprintf("неизвестная операция %s для сущности %s", item.Operation, item.Entity),
		}
	}
	if err != nil {
		return nil, err
	}

	res.IdempotencyKey = item.IdempotencyKey
	if err := s.repo.SaveResult(ctx, item.IdempotencyKey, res); err != nil {
		return nil, fmt.Errorf("сохранение результата: %w", err)
	}

	return res, nil
}

func (s *Service) createSale(ctx context.Context, userID int, item *BatchItem) (*BatchItemResult, error) {
	var p SalePayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return permanentResult("некорректный payload продажи"), nil
	}
	if p.TempID == "" {
		p.TempID = item.EntityID
	}
	if p.TempID == "" || len(p.Items) == 0 || p.Total < 0 {
		return permanentResult("продажа не прошла валидацию"), nil
	}

	// Дубликат temp_id при потерянном ключе идемпотентности (переустановка
	// кассы, восстановление из бэкапа). Операцию не применяем, отдаем
	// авторитетную запись как конфликт.
	existing, err := s.repo.FindSaleByTempID(ctx, p.TempID)
	if err != nil {
		return nil, fmt.Errorf("поиск продажи по temp_id: %w", err)
	}
	if existing != nil {
		record, err := json.Marshal(existing)
		if err != nil {
			return nil, fmt.Errorf("сериализация серверной записи: %w", err)
		}
		return &BatchItemResult{
			Status:       ItemStatusConflict,
			ServerID:     existing.ID,
			ServerRecord: record,
			Message:      "продажа с таким temp_id уже зарегистрирована",
		}, nil
	}

	created, err := s.repo.CreateSale(ctx, userID, &p)
	if err != nil {
		return nil, fmt.Errorf("создание продажи: %w", err)
	}

	return &BatchItemResult{Status: ItemStatusSuccess, ServerID: created.ID}, nil
}

func (s *Service) updateSale(ctx context.Context, item *BatchItem) (*BatchItemResult, error) {
	var p SalePayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return permanentResult("некорректный payload продажи"), nil
	}

	target, err := s.resolveSaleRef(ctx, item.EntityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return permanentResult("продажа не найдена на сервере"), nil
		}
		return nil, err
	}

	updated, err := s.repo.UpdateSale(ctx, target.ID, p.Total, p.Status)
	if err != nil {
		return nil, fmt.Errorf("обновление продажи: %w", err)
	}

	return &BatchItemResult{Status: ItemStatusSuccess, ServerID: updated.ID}, nil
}

// resolveSaleRef находит продажу по ссылке из элемента очереди:
// серверный числовой ID либо клиентский temp_id.
func (s *Service) resolveSaleRef(ctx context.Context, ref string) (*ServerSale, error) {
	sl, err := s.repo.FindSaleByTempID(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("поиск продажи по temp_id: %w", err)
	}
	if sl != nil {
		return sl, nil
	}

	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}
	sl, err = s.repo.FindSaleByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("поиск продажи по id: %w", err)
	}
	if sl == nil {
		return nil, ErrNotFound
	}
	return sl, nil
}

func (s *Service) applyAdjustment(ctx context.Context, userID int, item *BatchItem) (*BatchItemResult, error) {
	var p AdjustmentPayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return permanentResult("некорректный payload корректировки"), nil
	}
	if p.ProductID <= 0 || p.Delta == 0 {
		return permanentResult("корректировка не прошла валидацию"), nil
	}

	adjID, actual, err := s.repo.ApplyAdjustment(ctx, userID, &p)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return permanentResult("товар не найден"), nil
		}
		return nil, fmt.Errorf("применение корректировки: %w", err)
	}

	res := &BatchItemResult{Status: ItemStatusSuccess, ServerID: adjID}
	if actual != p.ExpectedQuantity {
		// Дельта применена, но фактический остаток разошелся с тем, что
		// видела касса. Расхождение информационное, операция не отменяется.
		res.Status = ItemStatusConflict
		res.Discrepancy = &Discrepancy{
			Expected: p.ExpectedQuantity,
			Actual:   actual,
			Field:    "quantity",
		}
		res.Message = "фактический остаток разошелся с ожидаемым"
	}

	return res, nil
}

func (s *Service) GetChanges(ctx context.Context, req GetChangesRequest) (*GetChangesResponse, error) {
	if _, ok := auth.GetUserID(ctx); !ok {
		return nil, fmt.Errorf("user not authenticated")
	}

	if req.Domain != DomainProduct && req.Domain != DomainSale {
		return nil, fmt.Errorf("неизвестный домен: %q", req.Domain)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}

	var since int64
	if req.Since != "" {
		parsed, err := strconv.ParseInt(req.Since, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("некорректная отметка since: %q", req.Since)
		}
		since = parsed
	}

	records, next, hasMore, err := s.repo.ListChanges(ctx, req.Domain, since, limit)
	if err != nil {
		return nil, fmt.Errorf("чтение журнала изменений: %w", err)
	}

	return &GetChangesResponse{
		Status:     "Ok",
		Records:    records,
		NextSince:  next,
		HasMore:    hasMore,
		ServerTime: time.Now(),
	}, nil
}

func permanentResult(msg string) *BatchItemResult {
	return &BatchItemResult{
		Status:    ItemStatusError,
		Permanent: true,
		Message:   msg,
	}
}
