package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cafe/internal/auth"
	"cafe/internal/game"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsOffline reports whether err means the server never answered, as opposed
// to answering with an error.
func IsOffline(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status != http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, username, password string) (auth.Token, error) {
	var out auth.Token
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"username": username,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, email, username, password string) (auth.Token, error) {
	var out auth.Token
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"username": username,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Me(ctx context.Context, accessToken string) (game.PlayerView, error) {
	var out game.PlayerView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/me", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Menu(ctx context.Context, accessToken string) ([]game.MenuItemView, error) {
	var out struct {
		Items []game.MenuItemView `json:"items"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/menu", accessToken, nil, &out, "")
	return out.Items, err
}

func (c *Client) Inventory(ctx context.Context, accessToken string) ([]game.InventoryView, error) {
	var out struct {
		Inventory []game.InventoryView `json:"inventory"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/inventory", accessToken, nil, &out, "")
	return out.Inventory, err
}

func (c *Client) Restock(ctx context.Context, accessToken string, itemID, qty int64, idem string) (game.RestockResult, error) {
	var out game.RestockResult
	err := c.jsonRequest(ctx, http.MethodPost, RestockPath, accessToken, RestockBody(itemID, qty), &out, idem)
	return out, err
}

func (c *Client) CreateOrder(ctx context.Context, accessToken string, lines []game.LineInput, idem string) (game.OrderView, error) {
	var out game.OrderView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/orders", accessToken, map[string]any{"items": lines}, &out, idem)
	return out, err
}

func (c *Client) ListOrders(ctx context.Context, accessToken, status string, page int) (game.OrderPage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	path := "/v1/orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out game.OrderPage
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out, err
}

func (c *Client) GetOrder(ctx context.Context, accessToken string, orderID int64) (game.OrderView, error) {
	var out game.OrderView
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/orders/%d", orderID), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) CompleteOrder(ctx context.Context, accessToken string, orderID int64, idem string) (game.CompleteResult, error) {
	var out game.CompleteResult
	err := c.jsonRequest(ctx, http.MethodPatch, CompletePath(orderID), accessToken, nil, &out, idem)
	return out, err
}

func (c *Client) CancelOrder(ctx context.Context, accessToken string, orderID int64, idem string) (game.CancelResult, error) {
	var out game.CancelResult
	err := c.jsonRequest(ctx, http.MethodPatch, CancelPath(orderID), accessToken, nil, &out, idem)
	return out, err
}

func (c *Client) History(ctx context.Context, accessToken string, limit int) ([]game.HistoryEntry, error) {
	var out struct {
		History []game.HistoryEntry `json:"history"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/game/history?limit="+strconv.Itoa(limit), accessToken, nil, &out, "")
	return out.History, err
}

func (c *Client) Stats(ctx context.Context, accessToken string) (game.PlayerStats, error) {
	var out game.PlayerStats
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/game/stats", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) AdminStats(ctx context.Context, accessToken string) (game.GlobalStatsView, error) {
	var out game.GlobalStatsView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/stats", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) AdminPlayers(ctx context.Context, accessToken string) ([]game.PlayerView, error) {
	var out struct {
		Players []game.PlayerView `json:"players"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/players", accessToken, nil, &out, "")
	return out.Players, err
}

func (c *Client) AdminAddItem(ctx context.Context, accessToken, name, purchase, selling string) (game.MenuItemView, error) {
	var out game.MenuItemView
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/menu", accessToken, map[string]any{
		"name":           name,
		"purchase_price": purchase,
		"selling_price":  selling,
	}, &out, "")
	return out, err
}

// Do replays a raw command, as stored by the offline queue.
func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, accessToken, in, &out, idem)
	return out, err
}

const RestockPath = "/v1/inventory/restock"

func RestockBody(itemID, qty int64) map[string]any {
	return map[string]any{"item_id": itemID, "quantity": qty}
}

func CompletePath(orderID int64) string { return fmt.Sprintf("/v1/orders/%d/complete", orderID) }
func CancelPath(orderID int64) string   { return fmt.Sprintf("/v1/orders/%d/cancel", orderID) }

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
