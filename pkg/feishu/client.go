// Package feishu provides a client for the Feishu Bitable open API.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Field type codes used by Bitable.
const (
	FieldTypeText        = 1
	FieldTypeNumber      = 2
	FieldTypeSelect      = 3
	FieldTypeMultiSelect = 4
	FieldTypeDate        = 5
	FieldTypeCheckbox    = 7
	FieldTypePhone       = 13
	FieldTypeURL         = 15
	FieldTypeAttachment  = 17
)

// Client defines the Bitable operations used by this application.
type Client interface {
	// ListFields returns the field definitions of the configured table.
	ListFields(ctx context.Context) ([]Field, error)
	// SearchRecords finds records whose named field equals value.
	SearchRecords(ctx context.Context, fieldName, value string) ([]Record, error)
	// CreateRecord inserts a record and returns its record id.
	CreateRecord(ctx context.Context, fields map[string]any) (string, error)
	// UpdateRecord overwrites the given fields of an existing record.
	UpdateRecord(ctx context.Context, recordID string, fields map[string]any) (string, error)
}

// Field describes one Bitable column.
type Field struct {
	ID        string
	Name      string
	Type      int
	Options   []string
	IsPrimary bool
}

// Record is one Bitable row.
type Record struct {
	RecordID string
	Fields   map[string]any
}

// Option configures the Feishu client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	appID     string
	appSecret string
	appToken  string
	tableID   string
	baseURL   string
	http      *http.Client

	mu          sync.Mutex
	tenantToken string
	tokenExpiry time.Time
}

// NewClient creates a Bitable client bound to one app token and table.
func NewClient(appID, appSecret, appToken, tableID string, opts ...Option) Client {
	c := &httpClient{
		appID:     appID,
		appSecret: appSecret,
		appToken:  appToken,
		tableID:   tableID,
		baseURL:   "https://open.feishu.cn",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures. The request body, when present, is re-created from
// payload on each attempt.
func (c *httpClient) retryDo(ctx context.Context, method, reqURL string, payload []byte, auth bool) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return nil, 0, eris.Wrap(err, "feishu: create request")
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		if auth {
			token, err := c.token(ctx)
			if err != nil {
				return nil, 0, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "feishu: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("feishu: status %d: %s", resp.StatusCode, string(respBody))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// token returns a cached tenant access token, refreshing it when it is
// within a minute of expiry. Callers may race; the mutex makes sure only
// one of them fetches.
func (c *httpClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tenantToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.tenantToken, nil
	}

	payload, err := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	if err != nil {
		return "", eris.Wrap(err, "feishu: marshal token request")
	}

	body, status, err := c.retryDo(ctx, http.MethodPost,
		c.baseURL+"/open-apis/auth/v3/tenant_access_token/internal", payload, false)
	if err != nil {
		return "", eris.Wrap(err, "feishu: token request failed")
	}
	if status != http.StatusOK {
		return "", eris.Errorf("feishu: token unexpected status %d: %s", status, string(body))
	}

	var result tokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", eris.Wrap(err, "feishu: unmarshal token response")
	}
	if result.Code != 0 {
		return "", eris.Errorf("feishu: token error %d: %s", result.Code, result.Msg)
	}

	c.tenantToken = result.TenantAccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(result.Expire) * time.Second)
	return c.tenantToken, nil
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// call performs an authenticated API request and unwraps the response
// envelope into out.
func (c *httpClient) call(ctx context.Context, method, path string, payload any, out any) error {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return eris.Wrap(err, "feishu: marshal request")
		}
	}

	body, status, err := c.retryDo(ctx, method, c.baseURL+path, encoded, true)
	if err != nil {
		return eris.Wrap(err, "feishu: request failed")
	}
	if status != http.StatusOK {
		return eris.Errorf("feishu: unexpected status %d: %s", status, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return eris.Wrap(err, "feishu: unmarshal response")
	}
	if env.Code != 0 {
		return eris.Errorf("feishu: api error %d: %s", env.Code, env.Msg)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return eris.Wrap(err, "feishu: unmarshal data")
		}
	}
	return nil
}

func (c *httpClient) tablePath(suffix string) string {
	return fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s%s", c.appToken, c.tableID, suffix)
}

type fieldItem struct {
	FieldID   string `json:"field_id"`
	FieldName string `json:"field_name"`
	Type      int    `json:"type"`
	IsPrimary bool   `json:"is_primary"`
	Property  struct {
		Options []struct {
			Name string `json:"name"`
		} `json:"options"`
	} `json:"property"`
}

func (c *httpClient) ListFields(ctx context.Context) ([]Field, error) {
	var fields []Field
	pageToken := ""
	for {
		path := c.tablePath("/fields?page_size=100")
		if pageToken != "" {
			path += "&page_token=" + pageToken
		}

		var data struct {
			Items     []fieldItem `json:"items"`
			HasMore   bool        `json:"has_more"`
			PageToken string      `json:"page_token"`
		}
		if err := c.call(ctx, http.MethodGet, path, nil, &data); err != nil {
			return nil, err
		}

		for _, item := range data.Items {
			f := Field{
				ID:        item.FieldID,
				Name:      item.FieldName,
				Type:      item.Type,
				IsPrimary: item.IsPrimary,
			}
			for _, opt := range item.Property.Options {
				f.Options = append(f.Options, opt.Name)
			}
			fields = append(fields, f)
		}

		if !data.HasMore || data.PageToken == "" {
			break
		}
		pageToken = data.PageToken
	}
	return fields, nil
}

type recordItem struct {
	RecordID string         `json:"record_id"`
	Fields   map[string]any `json:"fields"`
}

func (c *httpClient) SearchRecords(ctx context.Context, fieldName, value string) ([]Record, error) {
	payload := map[string]any{
		"filter": map[string]any{
			"conjunction": "and",
			"conditions": []map[string]any{
				{"field_name": fieldName, "operator": "is", "value": []string{value}},
			},
		},
		"page_size": 10,
	}

	var data struct {
		Items []recordItem `json:"items"`
	}
	if err := c.call(ctx, http.MethodPost, c.tablePath("/records/search"), payload, &data); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(data.Items))
	for _, item := range data.Items {
		records = append(records, Record{RecordID: item.RecordID, Fields: item.Fields})
	}
	return records, nil
}

func (c *httpClient) CreateRecord(ctx context.Context, fields map[string]any) (string, error) {
	var data struct {
		Record recordItem `json:"record"`
	}
	if err := c.call(ctx, http.MethodPost, c.tablePath("/records"), map[string]any{"fields": fields}, &data); err != nil {
		return "", err
	}
	return data.Record.RecordID, nil
}

func (c *httpClient) UpdateRecord(ctx context.Context, recordID string, fields map[string]any) (string, error) {
	var data struct {
		Record recordItem `json:"record"`
	}
	path := c.tablePath("/records/" + recordID)
	if err := c.call(ctx, http.MethodPut, path, map[string]any{"fields": fields}, &data); err != nil {
		return "", err
	}
	if data.Record.RecordID == "" {
		return recordID, nil
	}
	return data.Record.RecordID, nil
}
