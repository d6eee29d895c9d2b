package polymarket

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polystrat/internal/crypto"
	"github.com/alanyoungcy/polystrat/internal/domain"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testCreds() crypto.Credentials {
	return crypto.Credentials{
		Key:        "api-key",
		Secret:     base64.URLEncoding.EncodeToString([]byte("secret")),
		Passphrase: "phrase",
	}
}

func newClobTest(t *testing.T, h http.HandlerFunc, creds crypto.Credentials) *ClobClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	signer, err := crypto.NewSigner(testKey, crypto.ChainPolygon)
	require.NoError(t, err)
	return NewClobClient(srv.URL, signer, creds, WithRateLimit(1000, 100))
}

func TestOrderBookSortsAndValidates(t *testing.T) {
	c := newClobTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("token_id"))
		w.Write([]byte(`{
			"asset_id": "tok",
			"bids": [{"price":"0.40","size":"10"},{"price":"0.44","size":"5"},{"price":"0.30","size":"0"}],
			"asks": [{"price":"0.55","size":"7"},{"price":"0.47","size":"100"}],
			"timestamp": "1760875200000"
		}`))
	}, crypto.Credentials{})

	book, err := c.OrderBook(t.Context(), "tok")
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{{Price: 0.44, Size: 5}, {Price: 0.40, Size: 10}}, book.Bids)
	assert.Equal(t, domain.PriceLevel{Price: 0.47, Size: 100}, book.BestAsk())
	assert.Equal(t, time.UnixMilli(1760875200000), book.Timestamp)
}

func TestOrderBookMalformed(t *testing.T) {
	c := newClobTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids":[{"price":"abc","size":"1"}],"asks":[]}`))
	}, crypto.Credentials{})

	_, err := c.OrderBook(t.Context(), "tok")
	assert.ErrorIs(t, err, domain.ErrMalformedData)
}

func TestPostOrderSendsL2Headers(t *testing.T) {
	c := newClobTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "api-key", r.Header.Get("POLY_API_KEY"))
		assert.Equal(t, "phrase", r.Header.Get("POLY_PASSPHRASE"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))

		body, _ := io.ReadAll(r.Body)
		var req APIPostOrder
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "GTC", req.OrderType)
		assert.Equal(t, "api-key", req.Owner)
		assert.Equal(t, "tok", req.Order.TokenID)
		assert.Equal(t, "BUY", req.Order.Side)

		w.Write([]byte(`{"success":true,"orderID":"0xabc","status":"live"}`))
	}, testCreds())

	res, err := c.PostOrder(t.Context(), APIOrderBody{TokenID: "tok", Side: "BUY", Salt: "1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "0xabc", res.OrderID)
}

func TestAuthenticatedNeedsCredentials(t *testing.T) {
	c := newClobTest(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent")
	}, crypto.Credentials{})

	_, err := c.GetOrder(t.Context(), "1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDeriveAPIKey(t *testing.T) {
	c := newClobTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/derive-api-key", r.URL.Path)
		assert.Equal(t, "0", r.Header.Get("POLY_NONCE"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		w.Write([]byte(`{"apiKey":"k","secret":"c2VjcmV0","passphrase":"p"}`))
	}, crypto.Credentials{})

	creds, err := c.DeriveAPIKey(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "k", creds.Key)
	assert.Equal(t, creds, c.Credentials())
}

func TestGetOrderFillStatus(t *testing.T) {
	c := newClobTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/order/0xabc", r.URL.Path)
		w.Write([]byte(`{"id":"0xabc","status":"MATCHED","size_matched":"104.16","price":"0.96"}`))
	}, testCreds())

	o, err := c.GetOrder(t.Context(), "0xabc")
	require.NoError(t, err)
	st, err := o.ToFillStatus()
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusMatched, st.Status)
	assert.InDelta(t, 104.16, st.FilledAmount, 1e-9)
	assert.InDelta(t, 0.96, st.AvgPrice, 1e-9)
}

func TestCancelOrderRefused(t *testing.T) {
	c := newClobTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Write([]byte(`{"canceled":[],"not_canceled":{"0xabc":"already matched"}}`))
	}, testCreds())

	err := c.CancelOrder(t.Context(), "0xabc")
	assert.ErrorContains(t, err, "already matched")
}

func TestOrderStatusMapping(t *testing.T) {
	assert.Equal(t, domain.OrderStatusOpen, ParseOrderStatus("LIVE"))
	assert.Equal(t, domain.OrderStatusMatched, ParseOrderStatus("matched"))
	assert.Equal(t, domain.OrderStatusCancelled, ParseOrderStatus("CANCELED"))
	assert.Equal(t, domain.OrderStatusPending, ParseOrderStatus(""))
	assert.Equal(t, domain.OrderStatusFailed, ParseOrderStatus("weird"))
}
