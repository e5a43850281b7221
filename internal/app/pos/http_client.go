package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"salepoint/internal/domain/sync"
)

// HTTPClient — клиент API сервера синхронизации.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPClient) SetToken(token string) {
	c.token = token
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type authResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Login выполняет вход и возвращает токен сессии.
func (c *HTTPClient) Login(ctx context.Context, login, password string) (string, error) {
	body, err := json.Marshal(credentialsRequest{Login: login, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var auth authResponse
	if err := json.Unmarshal(data, &auth); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if auth.Error != "" {
			return "", fmt.Errorf("авторизация отклонена: %s", auth.Error)
		}
		return "", fmt.Errorf("авторизация отклонена: статус %d", resp.StatusCode)
	}
	if auth.Token == "" {
		return "", fmt.Errorf("сервер не вернул токен")
	}

	c.token = auth.Token
	return auth.Token, nil
}

// Register регистрирует кассира на сервере.
func (c *HTTPClient) Register(ctx context.Context, login, password string) error {
	body, err := json.Marshal(credentialsRequest{Login: login, Password: password})
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		var auth authResponse
		if json.Unmarshal(data, &auth) == nil && auth.Error != "" {
			return fmt.Errorf("регистрация отклонена: %s", auth.Error)
		}
		return fmt.Errorf("регистрация отклонена: статус %d", resp.StatusCode)
	}
	return nil
}

// Health проверяет доступность сервера.
func (c *HTTPClient) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return sync.Transient(fmt.Errorf("сервер недоступен: статус %d", resp.StatusCode))
	}
	return nil
}

// SubmitBatch отправляет пачку операций. Сетевая ошибка или 5xx —
// временный сбой всей пачки: ни один элемент не считается обработанным.
// Успешный ответ несет постатейные результаты.
func (c *HTTPClient) SubmitBatch(ctx context.Context, req *sync.BatchRequest) (*sync.BatchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, sync.Permanent(fmt.Errorf("failed to marshal batch: %w", err))
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/sync/batch", body)
	if err != nil {
		return nil, sync.Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sync.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, sync.Transient(fmt.Errorf("сбой сервера: статус %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, sync.Transient(fmt.Errorf("токен отклонен сервером"))
	case resp.StatusCode != http.StatusOK:
		return nil, sync.Permanent(fmt.Errorf("пакет отклонен: статус %d", resp.StatusCode))
	}

	var batch sync.BatchResponse
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, sync.Transient(fmt.Errorf("failed to decode batch response: %w", err))
	}
	return &batch, nil
}

// FetchChanges запрашивает страницу изменений домена начиная с отметки.
// Формат ответа нормализуется: сервер исторически отвечал и голым
// массивом, и конвертом с записями.
func (c *HTTPClient) FetchChanges(ctx context.Context, domain, since string, limit int) (*sync.GetChangesResponse, error) {
	path := "/api/sync/changes?domain=" + domain + "&limit=" + strconv.Itoa(limit)
	if since != "" {
		path += "&since=" + since
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, sync.Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sync.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, sync.Transient(fmt.Errorf("сбой запроса изменений: статус %d", resp.StatusCode))
	}

	changes, err := sync.ParseChangesResponse(data)
	if err != nil {
		return nil, sync.Transient(err)
	}
	return changes, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	return resp, nil
}
