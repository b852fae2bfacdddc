// Package client implements backend.Service over the generation backend's
// JSON HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"contractgen/internal/backend"
	"contractgen/internal/metrics"
	"contractgen/internal/platform/logger"
	"contractgen/internal/session"
	"contractgen/pkg/contractapi"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:3000/api"

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Client talks to the backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	session session.Provider
	log     *logger.Logger
	metrics metrics.Recorder
	reads   singleflight.Group
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithSession injects the authentication context.
func WithSession(p session.Provider) Option {
	return func(c *Client) { c.session = p }
}

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = logger.OrNop(l) }
}

// WithMetrics sets the request recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New builds a client for baseURL, e.g. "http://localhost:3000/api".
func New(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		session: session.NewStore(session.Session{}),
		log:     logger.Nop(),
		metrics: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ backend.Service = (*Client)(nil)

// ListTemplates implements backend.Service.
func (c *Client) ListTemplates(ctx context.Context) ([]contractapi.Template, error) {
	v, err := c.shared(ctx, "list", func(ctx context.Context) (any, error) {
		var out []contractapi.Template
		err := c.doJSON(ctx, "list_templates", http.MethodGet, "/modelos", nil, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return cloneTemplates(v.([]contractapi.Template)), nil
}

// GetTemplate implements backend.Service. Concurrent lookups of the same id
// share one request.
func (c *Client) GetTemplate(ctx context.Context, id string) (contractapi.Template, error) {
	v, err := c.shared(ctx, "get/"+id, func(ctx context.Context) (any, error) {
		var out contractapi.Template
		err := c.doJSON(ctx, "get_template", http.MethodGet, "/modelos/"+url.PathEscape(id), nil, &out)
		return out, err
	})
	if err != nil {
		return contractapi.Template{}, err
	}
	return v.(contractapi.Template).Clone(), nil
}

// shared runs fn once per key for all concurrent callers. The request is
// detached from any single caller's cancellation and bounded by the HTTP
// client timeout; each caller stops waiting when its own ctx ends.
func (c *Client) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := c.reads.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}

// CreateTemplate implements backend.Service.
func (c *Client) CreateTemplate(ctx context.Context, t contractapi.Template) (contractapi.Template, error) {
	var out contractapi.Template
	err := c.doJSON(ctx, "create_template", http.MethodPost, "/modelos", t, &out)
	return out, err
}

// UpdateTemplate implements backend.Service.
func (c *Client) UpdateTemplate(ctx context.Context, id string, t contractapi.Template) (contractapi.Template, error) {
	var out contractapi.Template
	err := c.doJSON(ctx, "update_template", http.MethodPut, "/modelos/"+url.PathEscape(id), t, &out)
	return out, err
}

// DeleteTemplate implements backend.Service.
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete_template", http.MethodDelete, "/modelos/"+url.PathEscape(id), nil, nil)
}

// UploadTemplateAsset implements backend.Service using a multipart "file"
// field.
func (c *Client) UploadTemplateAsset(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("read asset: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	var out struct {
		AssetPath string `json:"caminhoTemplate"`
	}
	err = c.do(ctx, "upload_template_asset", http.MethodPost, "/modelos/upload", &buf, mw.FormDataContentType(), "application/json", func(resp *http.Response) error {
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	return out.AssetPath, err
}

// FetchResolvedData implements backend.Service.
func (c *Client) FetchResolvedData(ctx context.Context, templateID string, params map[string]string) (contractapi.ResolvedData, error) {
	var out struct {
		Data contractapi.ResolvedData `json:"dados"`
	}
	err := c.doJSON(ctx, "fetch_resolved_data", http.MethodPost, "/contratos/dados/"+url.PathEscape(templateID), params, &out)
	return out.Data, err
}

// GenerateRequest is the generation request body.
type GenerateRequest struct {
	Parameters map[string]string `json:"parametros"`
	Force      bool              `json:"forcarRegeneracao"`
}

// GenerateContract implements backend.Service.
func (c *Client) GenerateContract(ctx context.Context, templateID string, params map[string]string, force bool) (contractapi.GenerateResult, error) {
	var out contractapi.GenerateResult
	err := c.doJSON(ctx, "generate_contract", http.MethodPost, "/contratos/gerar/"+url.PathEscape(templateID), GenerateRequest{Parameters: params, Force: force}, &out)
	return out, err
}

// HistoryRequest is the history request body.
type HistoryRequest struct {
	Parameters map[string]string `json:"parametros"`
}

// FetchGenerationHistory implements backend.Service.
func (c *Client) FetchGenerationHistory(ctx context.Context, templateID string, params map[string]string) ([]contractapi.Instance, error) {
	var out struct {
		History []contractapi.Instance `json:"historico"`
	}
	err := c.doJSON(ctx, "fetch_generation_history", http.MethodPost, "/contratos/historico/"+url.PathEscape(templateID), HistoryRequest{Parameters: params}, &out)
	return out.History, err
}

// ListActiveContracts implements backend.Service.
func (c *Client) ListActiveContracts(ctx context.Context, templateID string) ([]contractapi.Instance, error) {
	path := "/contratos/vigentes"
	if templateID != "" {
		path += "?modeloId=" + url.QueryEscape(templateID)
	}
	var out struct {
		Contracts []contractapi.Instance `json:"contratos"`
	}
	err := c.doJSON(ctx, "list_active_contracts", http.MethodGet, path, nil, &out)
	return out.Contracts, err
}

// DownloadTemplateAsset implements backend.Service.
func (c *Client) DownloadTemplateAsset(ctx context.Context, templateID string) (backend.Download, error) {
	return c.download(ctx, "download_template_asset", "/contratos/modelo/"+url.PathEscape(templateID)+"/download")
}

// DownloadGeneratedContract implements backend.Service.
func (c *Client) DownloadGeneratedContract(ctx context.Context, templateID, hash string, version int) (backend.Download, error) {
	path := "/contratos/" + url.PathEscape(templateID) + "/" + url.PathEscape(hash) + "/download"
	if version > 0 {
		path += "?versao=" + strconv.Itoa(version)
	}
	return c.download(ctx, "download_generated_contract", path)
}

func (c *Client) download(ctx context.Context, op, path string) (backend.Download, error) {
	var out backend.Download
	err := c.do(ctx, op, http.MethodGet, path, nil, "", docxMIME, func(resp *http.Response) error {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		out = backend.Download{
			Name:        attachmentName(resp.Header.Get("Content-Disposition")),
			ContentType: resp.Header.Get("Content-Type"),
			Data:        data,
		}
		return nil
	})
	return out, err
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, body, contentType, "application/json", func(resp *http.Response) error {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType, accept string, decode func(*http.Response) error) (err error) {
	defer metrics.Since(ctx, c.metrics, op, time.Now(), &err)
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &backend.Error{Op: op, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", accept)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.session != nil {
		c.session.Current().Authorize(req)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", "operation", op, "error", err)
		return &backend.Error{Op: op, Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		be := &backend.Error{Op: op, Status: resp.StatusCode, Message: errorMessage(resp)}
		c.log.Warn("backend returned error", "operation", op, "status", resp.StatusCode, "message", be.Message)
		return be
	}
	if err := decode(resp); err != nil {
		return &backend.Error{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("decode %s response: %v", op, err), Err: err}
	}
	return nil
}

// errorMessage extracts a user facing message from an error response. The
// backend reports {"message"} on JSON routes and {"mensagem"} on downloads.
func errorMessage(resp *http.Response) string {
	fallback := fmt.Sprintf("error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fallback
	}
	var payload struct {
		Message  string `json:"message"`
		Mensagem string `json:"mensagem"`
		Error    *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "unknown error communicating with the server"
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case payload.Mensagem != "":
		return payload.Mensagem
	case payload.Error != nil && payload.Error.Message != "":
		return payload.Error.Message
	}
	return fallback
}

func attachmentName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func cloneTemplates(in []contractapi.Template) []contractapi.Template {
	out := make([]contractapi.Template, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
