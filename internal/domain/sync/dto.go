package sync

import (
	"encoding/json"
	"fmt"
	"time"
)

// DTO (Data Transfer Objects) для API синхронизации

// BatchRequest запрос на пакетную загрузку локальных операций
type BatchRequest struct {
	DeviceID string      `json:"device_id,omitempty"`
	Items    []BatchItem `json:"items"`
}

// BatchResponse ответ на пакетную загрузку.
// Результаты возвращаются по каждому элементу отдельно, а не по пакету целиком.
type BatchResponse struct {
	Status  string            `json:"status"`
	Error   string            `json:"error,omitempty"`
	Results []BatchItemResult `json:"results,omitempty"`
}

// GetChangesRequest запрос на получение изменений домена после отметки
type GetChangesRequest struct {
	Domain string `json:"domain" example:"product"`
	Since  string `json:"since,omitempty"`
	Limit  int    `json:"limit" minimum:"1" maximum:"1000" default:"100"`
}

// GetChangesResponse ответ с изменениями
type GetChangesResponse struct {
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Records    []ChangeRecord `json:"records,omitempty"`
	NextSince  string         `json:"next_since,omitempty"`
	HasMore    bool           `json:"has_more,omitempty"`
	ServerTime time.Time      `json:"server_time,omitempty"`
}

// ParseChangesResponse разбирает ответ дельта-эндпоинта.
// Бэкенд исторически отдавал три формы: голый массив записей,
// конверт {"records": ...} и устаревший конверт {"data": ...} с пагинацией.
// Все формы сводятся к GetChangesResponse здесь, а не по месту вызова.
func ParseChangesResponse(body []byte) (*GetChangesResponse, error) {
	trimmed := firstNonSpace(body)
	if trimmed == '[' {
		var records []ChangeRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("failed to decode changes array: %w", err)
		}
		resp := &GetChangesResponse{Status: "Ok", Records: records}
		if len(records) > 0 {
			resp.NextSince = fmt.Sprintf("%d", records[len(records)-1].ServerID)
		}
		return resp, nil
	}

	var envelope struct {
		Status     string          `json:"status"`
		Error      string          `json:"error"`
		Records    []ChangeRecord  `json:"records"`
		Data       json.RawMessage `json:"data"`
		NextSince  string          `json:"next_since"`
		HasMore    bool            `json:"has_more"`
		ServerTime time.Time       `json:"server_time"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode changes envelope: %w", err)
	}

	resp := &GetChangesResponse{
		Status:     envelope.Status,
		Error:      envelope.Error,
		Records:    envelope.Records,
		NextSince:  envelope.NextSince,
		HasMore:    envelope.HasMore,
		ServerTime: envelope.ServerTime,
	}
	if resp.Status == "" {
		resp.Status = "Ok"
	}

	// Устаревший конверт: data может быть и массивом, и вложенной страницей
	if resp.Records == nil && len(envelope.Data) > 0 {
		if firstNonSpace(envelope.Data) == '[' {
			if err := json.Unmarshal(envelope.Data, &resp.Records); err != nil {
				return nil, fmt.Errorf("failed to decode legacy data array: %w", err)
			}
		} else {
			var page struct {
				Items     []ChangeRecord `json:"items"`
				NextSince string         `json:"next_since"`
				HasMore   bool           `json:"has_more"`
			}
			if err := json.Unmarshal(envelope.Data, &page); err != nil {
				return nil, fmt.Errorf("failed to decode legacy data page: %w", err)
			}
			resp.Records = page.Items
			if resp.NextSince == "" {
				resp.NextSince = page.NextSince
			}
			resp.HasMore = resp.HasMore || page.HasMore
		}
	}

	return resp, nil
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c
	}
	return 0
}
