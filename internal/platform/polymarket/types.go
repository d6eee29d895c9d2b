package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// flexBool unmarshals from a JSON bool or a "true"/"false" string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string. Empty strings
// and null decode to zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is a market as returned by the Gamma API. Outcomes, prices and
// token IDs arrive as JSON-encoded strings.
type APIMarket struct {
	ID              string    `json:"id"`
	Question        string    `json:"question"`
	ConditionID     string    `json:"conditionId"`
	Slug            string    `json:"slug"`
	Active          flexBool  `json:"active"`
	Closed          flexBool  `json:"closed"`
	AcceptingOrders flexBool  `json:"acceptingOrders"`
	Outcomes        string    `json:"outcomes"`
	OutcomePrices   string    `json:"outcomePrices"`
	ClobTokenIDs    string    `json:"clobTokenIds"`
	Volume          flexFloat `json:"volume"`
	Liquidity       flexFloat `json:"liquidity"`
	EndDate         string    `json:"endDate"`
	NegRisk         flexBool  `json:"negRisk"`
}

// APIEvent groups markets. Short-dated up/down markets are looked up by
// event slug.
type APIEvent struct {
	ID        string      `json:"id"`
	Slug      string      `json:"slug"`
	Title     string      `json:"title"`
	Active    flexBool    `json:"active"`
	Closed    flexBool    `json:"closed"`
	StartTime string      `json:"startTime"`
	EndDate   string      `json:"endDate"`
	Markets   []APIMarket `json:"markets"`
}

// decodeStringList parses a JSON-encoded list of strings.
func decodeStringList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToInstrument validates a binary market. Anything other than exactly two
// outcomes with two token IDs is rejected with domain.ErrMalformedData.
func (m *APIMarket) ToInstrument() (domain.Instrument, error) {
	outcomes, err := decodeStringList(m.Outcomes)
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("%w: market %s outcomes: %v", domain.ErrMalformedData, m.Slug, err)
	}
	tokens, err := decodeStringList(m.ClobTokenIDs)
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("%w: market %s token ids: %v", domain.ErrMalformedData, m.Slug, err)
	}
	if len(outcomes) != 2 || len(tokens) != 2 {
		return domain.Instrument{}, fmt.Errorf("%w: market %s has %d outcomes and %d tokens", domain.ErrMalformedData, m.Slug, len(outcomes), len(tokens))
	}

	id := m.ConditionID
	if id == "" {
		id = m.ID
	}
	if id == "" {
		return domain.Instrument{}, fmt.Errorf("%w: market %s has no id", domain.ErrMalformedData, m.Slug)
	}

	inst := domain.Instrument{
		ID:        id,
		Slug:      m.Slug,
		Question:  m.Question,
		Active:    bool(m.Active) && bool(m.AcceptingOrders),
		Closed:    bool(m.Closed),
		Liquidity: float64(m.Liquidity),
		Volume:    float64(m.Volume),
	}
	for i := range 2 {
		inst.Outcomes[i] = domain.Outcome{ID: tokens[i], Name: outcomes[i]}
	}

	if prices, err := decodeStringList(m.OutcomePrices); err == nil && len(prices) == 2 {
		for i, p := range prices {
			if v, err := strconv.ParseFloat(p, 64); err == nil {
				inst.Prices[i] = v
			}
		}
	}
	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		inst.EndTime = t
	}
	return inst, nil
}

// eventInstruments converts an event's markets. Up/down events end one
// market window after their start time, which is more precise than the
// market's own end date.
func eventInstruments(ev APIEvent, window time.Duration) ([]domain.Instrument, []error) {
	var (
		out  []domain.Instrument
		errs []error
	)
	for i := range ev.Markets {
		inst, err := ev.Markets[i].ToInstrument()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if bool(ev.Closed) {
			inst.Closed = true
			inst.Active = false
		}
		if inst.Slug == "" {
			inst.Slug = ev.Slug
		}
		if window > 0 {
			if start, err := time.Parse(time.RFC3339, ev.StartTime); err == nil {
				inst.EndTime = start.Add(window)
			}
		}
		out = append(out, inst)
	}
	return out, errs
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIPriceLevel is a book level with decimal strings.
type APIPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the response of GET /book.
type APIBook struct {
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Bids      []APIPriceLevel `json:"bids"`
	Asks      []APIPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// ToOrderBook validates and sorts the book: bids best (highest) first, asks
// best (lowest) first. A level with an unparseable or out-of-range price is
// a domain.ErrMalformedData error; zero-size levels are dropped.
func (b *APIBook) ToOrderBook(outcomeID string, now time.Time) (domain.OrderBook, error) {
	book := domain.OrderBook{OutcomeID: outcomeID, Timestamp: now}
	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil && ms > 0 {
		book.Timestamp = time.UnixMilli(ms)
	}

	var err error
	if book.Bids, err = parseLevels(b.Bids); err != nil {
		return domain.OrderBook{}, fmt.Errorf("%w: book %s bids: %v", domain.ErrMalformedData, outcomeID, err)
	}
	if book.Asks, err = parseLevels(b.Asks); err != nil {
		return domain.OrderBook{}, fmt.Errorf("%w: book %s asks: %v", domain.ErrMalformedData, outcomeID, err)
	}
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	return book, nil
}

func parseLevels(in []APIPriceLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, lvl := range in {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", lvl.Price, err)
		}
		if p <= 0 || p > 1 {
			return nil, fmt.Errorf("price %q out of range", lvl.Price)
		}
		s, err := strconv.ParseFloat(lvl.Size, 64)
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", lvl.Size, err)
		}
		if s <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out, nil
}

// APIOrderBody is the order object inside POST /order.
type APIOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

// APIPostOrder is the body of POST /order.
type APIPostOrder struct {
	Order     APIOrderBody `json:"order"`
	Owner     string       `json:"owner"`
	OrderType string       `json:"orderType"`
}

// APIOrderResult is the response from POST /order.
type APIOrderResult struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg,omitempty"`
	OrderID      string `json:"orderID,omitempty"`
	Status       string `json:"status,omitempty"`
	MakingAmount string `json:"makingAmount,omitempty"`
	TakingAmount string `json:"takingAmount,omitempty"`
}

// APIOrder is an order as returned by GET /data/order/{id}.
type APIOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Market       string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	CreatedAt    int64  `json:"created_at"`
}

// ParseOrderStatus maps CLOB status strings.
func ParseOrderStatus(s string) domain.OrderStatus {
	switch strings.ToLower(s) {
	case "live", "open", "unmatched":
		return domain.OrderStatusOpen
	case "matched", "filled":
		return domain.OrderStatusMatched
	case "cancelled", "canceled":
		return domain.OrderStatusCancelled
	case "delayed", "":
		return domain.OrderStatusPending
	default:
		return domain.OrderStatusFailed
	}
}

// ToFillStatus converts the order's match progress.
func (o *APIOrder) ToFillStatus() (domain.FillStatus, error) {
	matched, err := strconv.ParseFloat(o.SizeMatched, 64)
	if err != nil && o.SizeMatched != "" {
		return domain.FillStatus{}, fmt.Errorf("%w: order %s size_matched %q", domain.ErrMalformedData, o.ID, o.SizeMatched)
	}
	st := domain.FillStatus{
		OrderID:      o.ID,
		FilledAmount: matched,
		Status:       ParseOrderStatus(o.Status),
	}
	if matched > 0 {
		if p, err := strconv.ParseFloat(o.Price, 64); err == nil {
			st.AvgPrice = p
		}
	}
	return st, nil
}

// APIAuthResponse is returned by the API key endpoints.
type APIAuthResponse struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}
