package sync

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) batchOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-batch",
		Method:      http.MethodPost,
		Path:        "/api/sync/batch",
		Summary:     "Пакетная загрузка офлайн-операций кассы",
		Description: "Применяет операции пакета и возвращает результат по каждому элементу. Повторная доставка с тем же ключом идемпотентности не применяет операцию второй раз.",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) changesOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-changes",
		Method:      http.MethodGet,
		Path:        "/api/sync/changes",
		Summary:     "Изменения домена после отметки",
		Description: "Возвращает страницу журнала изменений указанного домена после отметки since",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}
