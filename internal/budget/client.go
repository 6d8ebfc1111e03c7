package budget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client talks to the budgeting service REST API for one budget.
type Client struct {
	baseURL  string
	budgetID string
	token    string
	http     *retryablehttp.Client
}

// NewClient builds a client with retry-capable transport. Transient
// 5xx/429 responses are retried with backoff before surfacing.
func NewClient(baseURL, budgetID, token string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 30 * time.Second
	rc.Logger = nil
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		budgetID: budgetID,
		token:    token,
		http:     rc,
	}
}

type wireTransaction struct {
	ID         string  `json:"id"`
	Date       string  `json:"date"`
	Amount     int64   `json:"amount"`
	AccountID  string  `json:"account_id"`
	PayeeID    *string `json:"payee_id"`
	PayeeName  string  `json:"payee_name"`
	CategoryID *string `json:"category_id"`
	Memo       string  `json:"memo"`
	Deleted    bool    `json:"deleted"`
}

type wireNamed struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}

// Transactions fetches all transactions for the budget. Records with a
// malformed date are dropped instead of aborting the fetch.
func (c *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	var env struct {
		Data struct {
			Transactions []wireTransaction `json:"transactions"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/transactions", &env); err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(env.Data.Transactions))
	for _, w := range env.Data.Transactions {
		d := ParseDate(w.Date)
		if d.IsZero() {
			continue
		}
		out = append(out, Transaction{
			ID:         w.ID,
			Date:       d,
			Amount:     w.Amount,
			AccountID:  w.AccountID,
			PayeeID:    w.PayeeID,
			PayeeName:  w.PayeeName,
			CategoryID: w.CategoryID,
			Memo:       w.Memo,
			Deleted:    w.Deleted,
		})
	}
	return out, nil
}

// Accounts fetches open accounts.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	var env struct {
		Data struct {
			Accounts []wireNamed `json:"accounts"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/accounts", &env); err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(env.Data.Accounts))
	for _, w := range env.Data.Accounts {
		if w.Deleted {
			continue
		}
		out = append(out, Account{ID: w.ID, Name: w.Name})
	}
	return out, nil
}

// Payees fetches payees.
func (c *Client) Payees(ctx context.Context) ([]Payee, error) {
	var env struct {
		Data struct {
			Payees []wireNamed `json:"payees"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/payees", &env); err != nil {
		return nil, err
	}
	out := make([]Payee, 0, len(env.Data.Payees))
	for _, w := range env.Data.Payees {
		if w.Deleted || w.Name == "" {
			continue
		}
		out = append(out, Payee{ID: w.ID, Name: w.Name})
	}
	return out, nil
}

// Categories fetches categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var env struct {
		Data struct {
			Categories []wireNamed `json:"categories"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/categories", &env); err != nil {
		return nil, err
	}
	out := make([]Category, 0, len(env.Data.Categories))
	for _, w := range env.Data.Categories {
		if w.Deleted {
			continue
		}
		out = append(out, Category{ID: w.ID, Name: w.Name})
	}
	return out, nil
}

// SetCategory assigns a category to a transaction.
func (c *Client) SetCategory(ctx context.Context, transactionID, categoryID string) error {
	body := map[string]any{
		"transaction": map[string]any{"category_id": categoryID},
	}
	return c.patch(ctx, "/transactions/"+transactionID, body)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("budget: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) patch(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("budget: marshal body: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPatch, c.url(path), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("budget: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) url(path string) string {
	return c.baseURL + "/budgets/" + c.budgetID + path
}

func (c *Client) do(req *retryablehttp.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("budget: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("budget: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("budget: decode %s: %w", req.URL.Path, err)
	}
	return nil
}
