package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/alanyoungcy/polystrat/internal/crypto"
	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/platform/polymarket"
)

// ClobAPI is the part of the CLOB client the live gateway needs.
type ClobAPI interface {
	PostOrder(ctx context.Context, order polymarket.APIOrderBody) (polymarket.APIOrderResult, error)
	GetOrder(ctx context.Context, orderID string) (polymarket.APIOrder, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// OrderSigner signs order payloads.
type OrderSigner interface {
	SignOrder(order crypto.OrderPayload, exchange string) (string, error)
}

// ClobGateway places real GTC limit orders on the CLOB.
type ClobGateway struct {
	api      ClobAPI
	signer   OrderSigner
	address  string
	exchange string
	now      func() time.Time
	logger   *slog.Logger
}

var _ domain.ExecutionGateway = (*ClobGateway)(nil)

// NewClobGateway signs orders for address against exchange (defaults to
// the standard CTF exchange).
func NewClobGateway(api ClobAPI, signer OrderSigner, address, exchange string, logger *slog.Logger) *ClobGateway {
	if exchange == "" {
		exchange = crypto.CTFExchange
	}
	return &ClobGateway{
		api:      api,
		signer:   signer,
		address:  address,
		exchange: exchange,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "clob_gateway")),
	}
}

// PlaceLimitOrder signs and posts req. Every failure, local or remote, is
// reported in the result.
func (g *ClobGateway) PlaceLimitOrder(ctx context.Context, req domain.OrderRequest) domain.OrderResult {
	now := g.now()
	fail := func(err error) domain.OrderResult {
		g.logger.Warn("order placement failed",
			slog.String("outcome", req.OutcomeID),
			slog.String("side", string(req.Side)),
			slog.Float64("price", req.Price),
			slog.Float64("size", req.Size),
			slog.String("error", err.Error()),
		)
		return domain.OrderResult{Status: domain.OrderStatusFailed, Error: err.Error(), PlacedAt: now}
	}

	if err := validateRequest(req); err != nil {
		return fail(err)
	}
	body, err := g.buildOrder(req)
	if err != nil {
		return fail(err)
	}

	res, err := g.api.PostOrder(ctx, body)
	if err != nil {
		return fail(err)
	}
	if !res.Success {
		msg := res.ErrorMsg
		if msg == "" {
			msg = "order rejected"
		}
		return fail(errors.New(msg))
	}

	out := domain.OrderResult{
		Success:  true,
		OrderID:  res.OrderID,
		Status:   polymarket.ParseOrderStatus(res.Status),
		PlacedAt: now,
	}
	if out.Status == domain.OrderStatusMatched {
		out.Filled = matchedShares(req, res)
		out.AvgPrice = req.Price
	}
	g.logger.Info("order placed",
		slog.String("order", out.OrderID),
		slog.String("outcome", req.OutcomeID),
		slog.String("side", string(req.Side)),
		slog.Float64("price", req.Price),
		slog.Float64("size", req.Size),
		slog.String("status", string(out.Status)),
	)
	return out
}

// OrderStatus polls the venue.
func (g *ClobGateway) OrderStatus(ctx context.Context, orderID string) (domain.FillStatus, error) {
	o, err := g.api.GetOrder(ctx, orderID)
	if err != nil {
		return domain.FillStatus{}, fmt.Errorf("executor: order status %s: %w", orderID, err)
	}
	return o.ToFillStatus()
}

// Cancel requests cancellation and reports whether the venue accepted it.
func (g *ClobGateway) Cancel(ctx context.Context, orderID string) bool {
	if err := g.api.CancelOrder(ctx, orderID); err != nil {
		g.logger.Warn("cancel failed", slog.String("order", orderID), slog.String("error", err.Error()))
		return false
	}
	return true
}

// buildOrder converts req into a signed order body. Amounts use integer
// math so that makerAmount is exactly price * takerAmount at the tick size
// of the price; the venue rejects anything else.
func (g *ClobGateway) buildOrder(req domain.OrderRequest) (polymarket.APIOrderBody, error) {
	prec := detectPricePrecision(req.Price)
	priceInt := int64(math.Round(req.Price * float64(prec)))
	sharesCents := int64(math.Floor(req.Size*100 + 1e-9))

	amountFactor := int64(1_000_000) / (100 * prec)
	usdc := sharesCents * priceInt * amountFactor
	shares := sharesCents * 10_000
	if usdc <= 0 || shares <= 0 {
		return polymarket.APIOrderBody{}, fmt.Errorf("invalid amounts: usdc=%d shares=%d (price=%.4f size=%.4f)", usdc, shares, req.Price, req.Size)
	}

	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(rand.Int64N(1<<53), 10),
		Maker:         g.address,
		Signer:        g.address,
		Taker:         crypto.ZeroAddress,
		TokenID:       req.OutcomeID,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		SignatureType: 0,
	}
	if req.Side == domain.OrderSideBuy {
		payload.Side = crypto.SideBuy
		payload.MakerAmount = strconv.FormatInt(usdc, 10)
		payload.TakerAmount = strconv.FormatInt(shares, 10)
	} else {
		payload.Side = crypto.SideSell
		payload.MakerAmount = strconv.FormatInt(shares, 10)
		payload.TakerAmount = strconv.FormatInt(usdc, 10)
	}

	sig, err := g.signer.SignOrder(payload, g.exchange)
	if err != nil {
		return polymarket.APIOrderBody{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	return polymarket.APIOrderBody{
		Salt:          json.Number(payload.Salt),
		Maker:         payload.Maker,
		Signer:        payload.Signer,
		Taker:         payload.Taker,
		TokenID:       payload.TokenID,
		MakerAmount:   payload.MakerAmount,
		TakerAmount:   payload.TakerAmount,
		Expiration:    payload.Expiration,
		Nonce:         payload.Nonce,
		FeeRateBps:    payload.FeeRateBps,
		Side:          string(req.Side),
		SignatureType: payload.SignatureType,
		Signature:     sig,
	}, nil
}

// matchedShares reads the shares filled on placement: takingAmount for a
// buy, makingAmount for a sell, falling back to the requested size.
func matchedShares(req domain.OrderRequest, res polymarket.APIOrderResult) float64 {
	raw := res.TakingAmount
	if req.Side == domain.OrderSideSell {
		raw = res.MakingAmount
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
		return min(v, req.Size)
	}
	return req.Size
}

// detectPricePrecision returns the multiplier matching the price's tick
// size, e.g. 0.60 -> 100, 0.673 -> 1000.
func detectPricePrecision(price float64) int64 {
	for _, prec := range []int64{100, 1000, 10000} {
		rounded := math.Round(price * float64(prec))
		if math.Abs(rounded/float64(prec)-price) < 1e-10 {
			return prec
		}
	}
	return 100
}
