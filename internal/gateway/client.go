package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dca-console/internal/strategy"
)

const (
	apiKeyHeader      = "X-API-Key"
	codeNoOrderTable  = "no_order_table"
	maxErrorBodyBytes = 2048
)

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d: %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Client talks JSON over HTTP to the protocol SDK bridge. It implements
// both Gateway and Transactor.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	return newClient(baseURL, apiKey, &http.Client{Timeout: timeout}, log)
}

func newClient(baseURL, apiKey string, httpClient *http.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		log:     log,
	}
}

type whitelistRequest struct {
	Retry int `json:"retry"`
}

type ordersRequest struct {
	Account string `json:"account"`
}

type ordersResponse struct {
	Data []Order `json:"data"`
}

type closeRequest struct {
	Orders []OrderRef `json:"orders"`
}

type executeRequest struct {
	Account string    `json:"account"`
	Tx      TxPayload `json:"tx"`
}

type executeResponse struct {
	Digest string `json:"digest"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *Client) CoinWhitelist(ctx context.Context, retryCount int) (CoinWhitelist, error) {
	var out CoinWhitelist
	if err := c.post(ctx, "/v1/dca/whitelist", whitelistRequest{Retry: retryCount}, &out); err != nil {
		return CoinWhitelist{}, fmt.Errorf("coin whitelist: %w", err)
	}
	return out, nil
}

func (c *Client) Orders(ctx context.Context, account string) ([]Order, error) {
	var out ordersResponse
	if err := c.post(ctx, "/v1/dca/orders", ordersRequest{Account: account}, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound && apiErr.Code == codeNoOrderTable {
			return nil, ErrNoOrders
		}
		return nil, ClassifyOrdersError(fmt.Errorf("orders: %w", err))
	}
	if out.Data == nil {
		return []Order{}, nil
	}
	return out.Data, nil
}

func (c *Client) BuildOpenOrder(ctx context.Context, req strategy.OpenOrderRequest) (TxPayload, error) {
	return c.build(ctx, "/v1/dca/open", req, TxOpen)
}

func (c *Client) BuildWithdraw(ctx context.Context, ref OrderRef) (TxPayload, error) {
	return c.build(ctx, "/v1/dca/withdraw", ref, TxWithdraw)
}

func (c *Client) BuildCloseOrders(ctx context.Context, refs []OrderRef) (TxPayload, error) {
	if len(refs) == 0 {
		return TxPayload{}, errors.New("close orders: no orders given")
	}
	return c.build(ctx, "/v1/dca/close", closeRequest{Orders: refs}, TxClose)
}

func (c *Client) Execute(ctx context.Context, account string, tx TxPayload) (string, error) {
	var out executeResponse
	if err := c.post(ctx, "/v1/tx/execute", executeRequest{Account: account, Tx: tx}, &out); err != nil {
		return "", fmt.Errorf("execute %s: %w", tx.Kind, err)
	}
	if out.Digest == "" {
		return "", fmt.Errorf("execute %s: empty digest", tx.Kind)
	}
	return out.Digest, nil
}

func (c *Client) build(ctx context.Context, path string, req any, kind TxKind) (TxPayload, error) {
	var out TxPayload
	if err := c.post(ctx, path, req, &out); err != nil {
		return TxPayload{}, fmt.Errorf("build %s: %w", kind, err)
	}
	if out.Kind == "" {
		out.Kind = kind
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, req any, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, c.apiKey)
	}
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("gateway call", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return decodeAPIError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		apiErr.Message = parsed.Error
		apiErr.Code = parsed.Code
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
