package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polystrat/internal/crypto"
	"github.com/alanyoungcy/polystrat/internal/domain"
)

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API. Book reads are public; order endpoints need a signer and
// L2 credentials.
type ClobClient struct {
	rest
	books  *rate.Limiter
	signer *crypto.Signer

	mu    sync.RWMutex
	creds crypto.Credentials
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// signer may be nil for a read-only client. creds may be empty and
// obtained later with DeriveAPIKey.
func NewClobClient(baseURL string, signer *crypto.Signer, creds crypto.Credentials, opts ...Option) *ClobClient {
	if baseURL == "" {
		baseURL = DefaultClobURL
	}
	return &ClobClient{
		rest:   newRest(baseURL, clobRatePerSec, clobBurst, opts),
		books:  rate.NewLimiter(booksRatePerSec, booksBurst),
		signer: signer,
		creds:  creds,
	}
}

// OrderBook fetches and validates the book for one outcome token.
func (c *ClobClient) OrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.do(ctx, c.books, http.MethodGet, "/book?"+params.Encode(), nil, nil)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}
	var raw APIBook
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: decode book: %w: %v", domain.ErrMalformedData, err)
	}
	return raw.ToOrderBook(tokenID, time.Now())
}

// PostOrder submits a signed GTC order. A rejection reported by the venue
// comes back in the result with Success=false, not as an error.
func (c *ClobClient) PostOrder(ctx context.Context, order APIOrderBody) (APIOrderResult, error) {
	creds := c.Credentials()
	payload := APIPostOrder{Order: order, Owner: creds.Key, OrderType: "GTC"}
	body, err := json.Marshal(payload)
	if err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: marshal order: %w", err)
	}

	respBody, err := c.authenticated(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}
	var res APIOrderResult
	if err := json.Unmarshal(respBody, &res); err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w: %v", domain.ErrMalformedData, err)
	}
	return res, nil
}

// GetOrder retrieves a single order by ID.
func (c *ClobClient) GetOrder(ctx context.Context, orderID string) (APIOrder, error) {
	respBody, err := c.authenticated(ctx, http.MethodGet, "/data/order/"+url.PathEscape(orderID), nil)
	if err != nil {
		return APIOrder{}, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}
	var o APIOrder
	if err := json.Unmarshal(respBody, &o); err != nil {
		return APIOrder{}, fmt.Errorf("polymarket/clob: decode order: %w: %v", domain.ErrMalformedData, err)
	}
	if o.ID == "" {
		return APIOrder{}, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, domain.ErrNotFound)
	}
	return o, nil
}

type cancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// CancelOrder cancels a single order by its ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	body, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return fmt.Errorf("polymarket/clob: marshal cancel: %w", err)
	}
	respBody, err := c.authenticated(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}
	var res cancelResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w: %v", domain.ErrMalformedData, err)
	}
	if reason, ok := res.NotCanceled[orderID]; ok {
		return fmt.Errorf("polymarket/clob: cancel %s refused: %s", orderID, reason)
	}
	return nil
}

// CancelAll cancels every open order of the authenticated wallet.
func (c *ClobClient) CancelAll(ctx context.Context) error {
	if _, err := c.authenticated(ctx, http.MethodDelete, "/cancel-all", nil); err != nil {
		return fmt.Errorf("polymarket/clob: cancel all: %w", err)
	}
	return nil
}

// DeriveAPIKey performs the L1 auth flow: it signs a ClobAuth message and
// exchanges it for L2 credentials, which the client keeps for later calls.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (crypto.Credentials, error) {
	if c.signer == nil {
		return crypto.Credentials{}, errors.New("polymarket/clob: derive api key: no signer")
	}
	headers, err := c.signer.L1Headers(time.Now().Unix(), 0)
	if err != nil {
		return crypto.Credentials{}, fmt.Errorf("polymarket/clob: %w: %v", domain.ErrSigningFailed, err)
	}
	respBody, err := c.do(ctx, nil, http.MethodGet, "/auth/derive-api-key", nil, headers)
	if err != nil {
		return crypto.Credentials{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	var auth APIAuthResponse
	if err := json.Unmarshal(respBody, &auth); err != nil {
		return crypto.Credentials{}, fmt.Errorf("polymarket/clob: decode auth response: %w: %v", domain.ErrMalformedData, err)
	}
	creds := crypto.Credentials{Key: auth.APIKey, Secret: auth.Secret, Passphrase: auth.Passphrase}
	if !creds.Valid() {
		return crypto.Credentials{}, fmt.Errorf("polymarket/clob: derive api key: %w: incomplete credentials", domain.ErrUnauthorized)
	}

	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	return creds, nil
}

// Credentials returns the L2 credentials in use.
func (c *ClobClient) Credentials() crypto.Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// authenticated sends a request carrying L2 HMAC headers.
func (c *ClobClient) authenticated(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("%w: no signer configured", domain.ErrUnauthorized)
	}
	creds := c.Credentials()
	if !creds.Valid() {
		return nil, fmt.Errorf("%w: no api credentials", domain.ErrUnauthorized)
	}
	headers, err := creds.L2Headers(c.signer.Address().Hex(), method, path, string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	return c.do(ctx, nil, method, path, body, headers)
}
