package sync

import (
	"salepoint/internal/domain/sync"
)

type batchInput struct {
	Body sync.BatchRequest
}

type batchOutput struct {
	Status int
	Body   sync.BatchResponse
}

// Параметры дельта-эндпоинта приходят в query: касса ходит сюда
// простым GET с отметкой из своей таблицы sync_watermarks.
type changesInput struct {
	Domain string `query:"domain" enum:"product,sale" doc:"Домен изменений"`
	Since  string `query:"since" required:"false" doc:"Отметка, после которой нужны изменения"`
	Limit  int    `query:"limit" required:"false" minimum:"1" maximum:"1000" doc:"Размер страницы"`
}

type changesOutput struct {
	Status int
	Body   sync.GetChangesResponse
}
