package pos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/exp/slog"

	"salepoint/internal/domain/sale"
	"salepoint/internal/domain/stock"
	"salepoint/internal/domain/sync"
)

// pullDomains — домены, которые тянутся с сервера, в порядке обхода.
// Товары идут первыми: продажи ссылаются на них.
var pullDomains = []string{sync.DomainProduct, sync.DomainSale}

// Puller тянет входящие изменения постранично, по отметке на домен.
// Отметка продвигается только после полного применения страницы:
// оборванный посередине пулл повторит ту же страницу, а применение
// идемпотентно.
type Puller struct {
	storage  *Storage
	client   *HTTPClient
	log      *slog.Logger
	pageSize int
}

func NewPuller(storage *Storage, client *HTTPClient, log *slog.Logger, pageSize int) *Puller {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Puller{storage: storage, client: client, log: log, pageSize: pageSize}
}

// Pull выполняет один проход по всем доменам. Сбой одного домена не
// мешает остальным; возвращается первая ошибка.
func (p *Puller) Pull(ctx context.Context) error {
	var firstErr error
	for _, domain := range pullDomains {
		if err := p.pullDomain(ctx, domain); err != nil {
			p.log.Warn("пулл домена не завершен",
				slog.String("domain", domain), slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// FullResync сбрасывает отметки всех доменов: следующий пулл заберет
// изменения с самого начала. Локальные записи не трогаются, повторное
// применение идемпотентно.
func (p *Puller) FullResync() error {
	return p.storage.WithTx(func(tx *sql.Tx) error {
		for _, domain := range pullDomains {
			if err := p.storage.ClearWatermark(tx, domain); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Puller) pullDomain(ctx context.Context, domain string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		since, err := p.storage.GetWatermark(p.storage.db, domain)
		if err != nil {
			return err
		}

		page, err := p.client.FetchChanges(ctx, domain, since, p.pageSize)
		if err != nil {
			return err
		}
		if len(page.Records) == 0 {
			return nil
		}

		deferred := 0
		err = p.storage.WithTx(func(tx *sql.Tx) error {
			for i := range page.Records {
				held, err := p.mergeRecord(tx, domain, &page.Records[i])
				if err != nil {
					return err
				}
				if held {
					deferred++
				}
			}
			// Отложенные записи держат отметку на месте: страница
			// придет снова, когда локальные операции разрешатся.
			if deferred > 0 {
				return nil
			}
			return p.storage.SetWatermark(tx, domain, page.NextSince)
		})
		if err != nil {
			return fmt.Errorf("ошибка применения страницы изменений: %w", err)
		}

		if deferred > 0 {
			p.log.Debug("часть записей отложена до разрешения очереди",
				slog.String("domain", domain), slog.Int("deferred", deferred))
			return nil
		}
		if !page.HasMore {
			return nil
		}
	}
}

// mergeRecord применяет одну входящую запись. Возвращает true, если
// запись отложена: по сущности есть незавершенные локальные операции,
// и локальная версия пока побеждает.
func (p *Puller) mergeRecord(tx *sql.Tx, domain string, rec *sync.ChangeRecord) (bool, error) {
	switch domain {
	case sync.DomainProduct:
		return false, p.mergeProduct(tx, rec)
	case sync.DomainSale:
		return p.mergeSale(tx, rec)
	default:
		return false, fmt.Errorf("неизвестный домен изменений: %q", domain)
	}
}

func (p *Puller) mergeProduct(tx *sql.Tx, rec *sync.ChangeRecord) error {
	var product stock.Product
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, &product); err != nil {
			return fmt.Errorf("failed to decode product record: %w", err)
		}
	}
	product.ServerID = rec.ServerID
	product.Deleted = rec.Deleted
	if product.Version < rec.Version {
		product.Version = rec.Version
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = rec.UpdatedAt
	}

	// Устаревшая запись не затирает более свежую локальную копию.
	existing, err := p.storage.GetProduct(tx, rec.ServerID)
	if err == nil && existing.Version > product.Version {
		return nil
	}
	if err != nil && !errors.Is(err, stock.ErrProductNotFound) {
		return err
	}

	return p.storage.UpsertProduct(tx, &product)
}

func (p *Puller) mergeSale(tx *sql.Tx, rec *sync.ChangeRecord) (bool, error) {
	ref := strconv.FormatInt(rec.ServerID, 10)
	local, err := p.storage.GetSaleByRef(tx, ref)
	if err != nil && !errors.Is(err, sale.ErrSaleNotFound) {
		return false, err
	}

	if local != nil {
		// Незавершенные локальные операции держат запись: пока очередь
		// не разрешится, локальная версия побеждает.
		for _, entityRef := range []string{local.TempID, ref} {
			if entityRef == "" {
				continue
			}
			pending, err := p.storage.HasPendingForEntity(tx, entityRef)
			if err != nil {
				return false, err
			}
			if pending {
				return true, nil
			}
		}

		if local.Version >= rec.Version {
			return false, nil
		}

		var server sale.Sale
		if err := json.Unmarshal(rec.Payload, &server); err != nil {
			return false, fmt.Errorf("failed to decode sale record: %w", err)
		}
		server.ID = local.ID
		server.Version = rec.Version
		server.IsSynced = true
		if server.UpdatedAt.IsZero() {
			server.UpdatedAt = rec.UpdatedAt
		}
		return false, p.storage.ApplySaleUpdate(tx, &server)
	}

	if rec.Deleted {
		return false, nil
	}

	// Продажа с другого устройства: создается сразу синхронизированной.
	var server sale.Sale
	if err := json.Unmarshal(rec.Payload, &server); err != nil {
		return false, fmt.Errorf("failed to decode sale record: %w", err)
	}
	server.ID = 0
	server.TempID = ""
	server.ServerID = rec.ServerID
	server.Version = rec.Version
	server.IsSynced = true
	server.IsOffline = false
	if server.CreatedAt.IsZero() {
		server.CreatedAt = rec.UpdatedAt
	}
	if server.UpdatedAt.IsZero() {
		server.UpdatedAt = rec.UpdatedAt
	}
	now := time.Now()
	server.LastSyncedAt = &now
	return false, p.storage.CreateSale(tx, &server)
}
