package broker

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"tradeflow/internal/domain"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// AlpacaGateway implements Gateway against the Alpaca trading and market data
// APIs.
type AlpacaGateway struct {
	tradeClient *alpaca.Client
	mdClient    *marketdata.Client
}

var _ Gateway = (*AlpacaGateway)(nil)

// AlpacaOpts carries the credentials and endpoint for NewAlpacaGateway.
type AlpacaOpts struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// NewAlpacaGateway builds a gateway from explicit credentials. Empty fields
// fall back to the SDK's environment variables.
func NewAlpacaGateway(opts AlpacaOpts) *AlpacaGateway {
	return &AlpacaGateway{
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		mdClient: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
		}),
	}
}

func (g *AlpacaGateway) SubmitLimitOrder(_ context.Context, req LimitOrderRequest) (*Order, error) {
	qty := req.Qty
	limit := req.LimitPrice
	order, err := g.tradeClient.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(req.Side),
		Type:          alpaca.Limit,
		TimeInForce:   mapTimeInForce(req.TimeInForce),
		LimitPrice:    &limit,
		ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		return nil, err
	}
	return fromAlpacaOrder(order), nil
}

func (g *AlpacaGateway) SubmitStopOrder(_ context.Context, req StopOrderRequest) (*Order, error) {
	qty := req.Qty
	stop := req.StopPrice
	order, err := g.tradeClient.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(req.Side),
		Type:          alpaca.Stop,
		TimeInForce:   mapTimeInForce(req.TimeInForce),
		StopPrice:     &stop,
		ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		return nil, err
	}
	return fromAlpacaOrder(order), nil
}

func (g *AlpacaGateway) GetOrderByID(_ context.Context, orderID string) (*Order, error) {
	order, err := g.tradeClient.GetOrder(orderID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return fromAlpacaOrder(order), nil
}

func (g *AlpacaGateway) CancelOrderByID(_ context.Context, orderID string) error {
	return g.tradeClient.CancelOrder(orderID)
}

func (g *AlpacaGateway) ListOpenPositions(_ context.Context) ([]Position, error) {
	positions, err := g.tradeClient.GetPositions()
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, Position{
			Symbol:        p.Symbol,
			Qty:           p.Qty,
			AvgEntryPrice: p.AvgEntryPrice,
		})
	}
	return out, nil
}

func (g *AlpacaGateway) GetLatestQuote(_ context.Context, symbol string) (*Quote, error) {
	q, err := g.mdClient.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return nil, err
	}
	return &Quote{
		Symbol:    symbol,
		BidPrice:  decimal.NewFromFloat(q.BidPrice),
		AskPrice:  decimal.NewFromFloat(q.AskPrice),
		Timestamp: q.Timestamp,
	}, nil
}

// SearchAssets filters active US equities whose symbol or name matches the
// query. Feeds the ticker search cache; not part of Gateway.
func (g *AlpacaGateway) SearchAssets(_ context.Context, query string) ([]Asset, error) {
	assets, err := g.tradeClient.GetAssets(alpaca.GetAssetsRequest{
		Status:     "active",
		AssetClass: "us_equity",
	})
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	var out []Asset
	for _, a := range assets {
		if needle != "" &&
			!strings.Contains(strings.ToLower(a.Symbol), needle) &&
			!strings.Contains(strings.ToLower(a.Name), needle) {
			continue
		}
		out = append(out, Asset{
			Symbol:   a.Symbol,
			Name:     a.Name,
			Exchange: a.Exchange,
			Class:    string(a.Class),
			Tradable: a.Tradable,
		})
		if len(out) >= maxAssetResults {
			break
		}
	}
	return out, nil
}

const maxAssetResults = 20

// Asset is a tradable instrument surfaced by ticker search.
type Asset struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Class    string `json:"asset_class"`
	Tradable bool   `json:"tradable"`
}

func fromAlpacaOrder(o *alpaca.Order) *Order {
	if o == nil {
		return nil
	}
	out := &Order{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          domain.Side(o.Side),
		Status:        o.Status,
		FilledQty:     o.FilledQty,
		FilledAt:      o.FilledAt,
		CreatedAt:     o.CreatedAt,
	}
	if o.Qty != nil {
		out.Qty = *o.Qty
	}
	if o.FilledAvgPrice != nil {
		out.FilledAvgPrice = *o.FilledAvgPrice
	}
	if o.LimitPrice != nil {
		out.LimitPrice = *o.LimitPrice
	}
	if o.StopPrice != nil {
		out.StopPrice = *o.StopPrice
	}
	return out
}

func mapTimeInForce(tif string) alpaca.TimeInForce {
	switch strings.ToLower(strings.TrimSpace(tif)) {
	case "day":
		return alpaca.Day
	case "ioc":
		return alpaca.IOC
	case "fok":
		return alpaca.FOK
	case "opg":
		return alpaca.OPG
	case "cls":
		return alpaca.CLS
	default:
		return alpaca.GTC
	}
}

func isNotFound(err error) bool {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}
