package walletproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
)

const (
	// DefaultBaseURL is the public mainnet wallet proxy.
	DefaultBaseURL = "https://wallet-proxy.mainnet.concordium.software"

	// DefaultPageSize is used when a caller passes a non-positive limit.
	DefaultPageSize = 100

	// maxErrorBody caps how much of a failed response body ends up in an error.
	maxErrorBody = 512
)

// Page is one response of the account transactions endpoint.
type Page struct {
	Transactions []domain.Transaction
	Count        int
	Limit        int
	// HasMore is true when the page was full, so older transactions may exist.
	HasMore bool
}

// Client talks to the wallet proxy account transactions endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for baseURL. A zero timeout leaves requests
// bounded only by the caller's context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchPage requests at most limit transactions of account, newest first,
// strictly older than cursor when cursor is set.
func (c *Client) FetchPage(ctx context.Context, account string, limit int, cursor *uint64) (Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", "descending")
	if cursor != nil {
		q.Set("from", strconv.FormatUint(*cursor, 10))
	}
	endpoint := fmt.Sprintf("%s/v1/accountTransactions/%s?%s", c.baseURL, url.PathEscape(account), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Page{}, fmt.Errorf("FetchPage: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("FetchPage: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Page{}, fmt.Errorf("FetchPage: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload accountTransactionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Page{}, fmt.Errorf("FetchPage: decoding response: %w", err)
	}

	page, err := payload.toPage()
	if err != nil {
		return Page{}, fmt.Errorf("FetchPage: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("account", account).
		Int("count", page.Count).
		Int("limit", page.Limit).
		Bool("has_more", page.HasMore).
		Msg("Fetched transactions page")

	return page, nil
}
