// Package oanda implements broker.Gateway against the OANDA v20 REST API.
package oanda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pipguard/pipguard/broker"
	"github.com/pipguard/pipguard/market"
)

type Client struct {
	cfg  Config
	http *http.Client
}

var _ broker.Gateway = (*Client)(nil)

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return err
	}
	u.Path = path
	q := u.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return broker.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return broker.Transient(fmt.Errorf("oanda http %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
	if resp.StatusCode == http.StatusNotFound {
		return broker.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: http %d: %s", broker.ErrRejected, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) accountPath(suffix string) string {
	return "/v3/accounts/" + c.cfg.AccountID + suffix
}

func (c *Client) GetTick(ctx context.Context, instrument string) (market.Tick, error) {
	var out struct {
		Prices []struct {
			Instrument string `json:"instrument"`
			Time       string `json:"time"`
			Bids       []struct {
				Price string `json:"price"`
			} `json:"bids"`
			Asks []struct {
				Price string `json:"price"`
			} `json:"asks"`
		} `json:"prices"`
	}
	err := c.do(ctx, http.MethodGet, c.accountPath("/pricing"),
		map[string]string{"instruments": instrument}, nil, &out)
	if err != nil {
		return market.Tick{}, err
	}
	if len(out.Prices) == 0 || len(out.Prices[0].Bids) == 0 || len(out.Prices[0].Asks) == 0 {
		return market.Tick{}, fmt.Errorf("oanda: empty pricing for %s", instrument)
	}
	p := out.Prices[0]
	bid, _ := strconv.ParseFloat(p.Bids[0].Price, 64)
	ask, _ := strconv.ParseFloat(p.Asks[0].Price, 64)
	ts, _ := time.Parse(time.RFC3339Nano, p.Time)
	return market.Tick{Instrument: instrument, Time: ts, Bid: bid, Ask: ask}, nil
}

func (c *Client) GetCandles(ctx context.Context, instrument, timeframe string, count int) ([]market.Candle, error) {
	gran, err := granularity(timeframe)
	if err != nil {
		return nil, err
	}
	var out struct {
		Candles []struct {
			Time     string `json:"time"`
			Volume   float64 `json:"volume"`
			Complete bool   `json:"complete"`
			Mid      struct {
				O, H, L, C string
			} `json:"mid"`
		} `json:"candles"`
	}
	err = c.do(ctx, http.MethodGet, "/v3/instruments/"+instrument+"/candles",
		map[string]string{
			"granularity": gran,
			"count":       strconv.Itoa(count),
			"price":       "M",
		}, nil, &out)
	if err != nil {
		return nil, err
	}
	candles := make([]market.Candle, 0, len(out.Candles))
	for _, raw := range out.Candles {
		if !raw.Complete {
			continue
		}
		ts, _ := time.Parse(time.RFC3339Nano, raw.Time)
		o, _ := strconv.ParseFloat(raw.Mid.O, 64)
		h, _ := strconv.ParseFloat(raw.Mid.H, 64)
		l, _ := strconv.ParseFloat(raw.Mid.L, 64)
		cl, _ := strconv.ParseFloat(raw.Mid.C, 64)
		candles = append(candles, market.Candle{
			Time: ts, Open: o, High: h, Low: l, Close: cl, Volume: raw.Volume,
		})
	}
	return candles, nil
}

func granularity(timeframe string) (string, error) {
	switch timeframe {
	case market.TFM15:
		return "M15", nil
	case market.TFH1:
		return "H1", nil
	case market.TFH4:
		return "H4", nil
	case market.TFD1:
		return "D", nil
	case market.TFW1:
		return "W", nil
	case market.TFMN:
		return "M", nil
	}
	return "", fmt.Errorf("oanda: unsupported timeframe %q", timeframe)
}

type orderBody struct {
	Order struct {
		Type             string `json:"type"`
		Instrument       string `json:"instrument"`
		Units            string `json:"units"`
		Price            string `json:"price,omitempty"`
		TimeInForce      string `json:"timeInForce"`
		PositionFill     string `json:"positionFill"`
		StopLossOnFill   *fill  `json:"stopLossOnFill,omitempty"`
		TakeProfitOnFill *fill  `json:"takeProfitOnFill,omitempty"`
	} `json:"order"`
}

type fill struct {
	Price string `json:"price"`
}

// units converts lots into signed OANDA units (100k units per lot).
func units(side market.Side, lots float64) string {
	u := lots * 100000
	if side == market.Short {
		u = -u
	}
	return strconv.FormatFloat(u, 'f', 0, 64)
}

func price5(p float64) string {
	return strconv.FormatFloat(p, 'f', 5, 64)
}

func (c *Client) buildOrder(typ string, req broker.OrderRequest) orderBody {
	var body orderBody
	body.Order.Type = typ
	body.Order.Instrument = req.Instrument
	body.Order.Units = units(req.Side, req.Lots)
	body.Order.PositionFill = "DEFAULT"
	if typ == "LIMIT" {
		body.Order.Price = price5(req.Price)
		body.Order.TimeInForce = "GTC"
	} else {
		body.Order.TimeInForce = "FOK"
	}
	if req.Stop > 0 {
		body.Order.StopLossOnFill = &fill{Price: price5(req.Stop)}
	}
	if req.TakeProfit > 0 {
		body.Order.TakeProfitOnFill = &fill{Price: price5(req.TakeProfit)}
	}
	return body
}

func (c *Client) PlaceMarketOrder(ctx context.Context, req broker.OrderRequest) (broker.Fill, error) {
	var out struct {
		OrderFillTransaction struct {
			TradeOpened struct {
				TradeID string `json:"tradeID"`
			} `json:"tradeOpened"`
			Price string `json:"price"`
			Time  string `json:"time"`
		} `json:"orderFillTransaction"`
	}
	err := c.do(ctx, http.MethodPost, c.accountPath("/orders"), nil, c.buildOrder("MARKET", req), &out)
	if err != nil {
		return broker.Fill{}, err
	}
	tx := out.OrderFillTransaction
	if tx.TradeOpened.TradeID == "" {
		return broker.Fill{}, fmt.Errorf("%w: market order not filled", broker.ErrRejected)
	}
	px, _ := strconv.ParseFloat(tx.Price, 64)
	ts, _ := time.Parse(time.RFC3339Nano, tx.Time)
	return broker.Fill{
		Ticket:     tx.TradeOpened.TradeID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Lots:       req.Lots,
		Price:      px,
		Time:       ts,
	}, nil
}

func (c *Client) PlaceLimitOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	var out struct {
		OrderCreateTransaction struct {
			ID string `json:"id"`
		} `json:"orderCreateTransaction"`
	}
	err := c.do(ctx, http.MethodPost, c.accountPath("/orders"), nil, c.buildOrder("LIMIT", req), &out)
	if err != nil {
		return "", err
	}
	if out.OrderCreateTransaction.ID == "" {
		return "", fmt.Errorf("%w: limit order not created", broker.ErrRejected)
	}
	return out.OrderCreateTransaction.ID, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodPut, c.accountPath("/orders/"+orderID+"/cancel"), nil, nil, nil)
}

func (c *Client) ClosePosition(ctx context.Context, ticket string, volume float64) (float64, error) {
	body := map[string]string{"units": "ALL"}
	if volume > 0 {
		body["units"] = strconv.FormatFloat(volume*100000, 'f', 0, 64)
	}
	var out struct {
		OrderFillTransaction struct {
			Price string `json:"price"`
		} `json:"orderFillTransaction"`
	}
	err := c.do(ctx, http.MethodPut, c.accountPath("/trades/"+ticket+"/close"), nil, body, &out)
	if err != nil {
		return 0, err
	}
	px, _ := strconv.ParseFloat(out.OrderFillTransaction.Price, 64)
	return px, nil
}

func (c *Client) ModifyStop(ctx context.Context, ticket string, newStop float64) error {
	body := map[string]any{
		"stopLoss": map[string]string{"price": price5(newStop), "timeInForce": "GTC"},
	}
	return c.do(ctx, http.MethodPut, c.accountPath("/trades/"+ticket+"/orders"), nil, body, nil)
}

func (c *Client) GetOpenPositions(ctx context.Context) ([]broker.PositionInfo, error) {
	var out struct {
		Trades []struct {
			ID           string `json:"id"`
			Instrument   string `json:"instrument"`
			CurrentUnits string `json:"currentUnits"`
			Price        string `json:"price"`
			OpenTime     string `json:"openTime"`
			StopLossOrder *struct {
				Price string `json:"price"`
			} `json:"stopLossOrder"`
		} `json:"trades"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("/openTrades"), nil, nil, &out); err != nil {
		return nil, err
	}
	infos := make([]broker.PositionInfo, 0, len(out.Trades))
	for _, t := range out.Trades {
		u, _ := strconv.ParseFloat(t.CurrentUnits, 64)
		px, _ := strconv.ParseFloat(t.Price, 64)
		ts, _ := time.Parse(time.RFC3339Nano, t.OpenTime)
		side := market.Long
		if u < 0 {
			side = market.Short
			u = -u
		}
		info := broker.PositionInfo{
			Ticket:     t.ID,
			Instrument: t.Instrument,
			Side:       side,
			Lots:       u / 100000,
			OpenPrice:  px,
			OpenTime:   ts,
		}
		if t.StopLossOrder != nil {
			info.Stop, _ = strconv.ParseFloat(t.StopLossOrder.Price, 64)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *Client) GetPendingOrders(ctx context.Context) ([]broker.OrderInfo, error) {
	var out struct {
		Orders []struct {
			ID         string `json:"id"`
			Type       string `json:"type"`
			Instrument string `json:"instrument"`
			Units      string `json:"units"`
			Price      string `json:"price"`
			CreateTime string `json:"createTime"`
		} `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("/pendingOrders"), nil, nil, &out); err != nil {
		return nil, err
	}
	infos := make([]broker.OrderInfo, 0, len(out.Orders))
	for _, o := range out.Orders {
		if o.Type != "LIMIT" {
			continue
		}
		u, _ := strconv.ParseFloat(o.Units, 64)
		px, _ := strconv.ParseFloat(o.Price, 64)
		ts, _ := time.Parse(time.RFC3339Nano, o.CreateTime)
		side := market.Long
		if u < 0 {
			side = market.Short
			u = -u
		}
		infos = append(infos, broker.OrderInfo{
			OrderID:    o.ID,
			Instrument: o.Instrument,
			Side:       side,
			Lots:       u / 100000,
			Price:      px,
			CreatedAt:  ts,
		})
	}
	return infos, nil
}

func (c *Client) GetAccount(ctx context.Context) (broker.Account, error) {
	var out struct {
		Account struct {
			ID       string `json:"id"`
			Currency string `json:"currency"`
			Balance  string `json:"balance"`
			NAV      string `json:"NAV"`
		} `json:"account"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("/summary"), nil, nil, &out); err != nil {
		return broker.Account{}, err
	}
	bal, _ := strconv.ParseFloat(out.Account.Balance, 64)
	nav, _ := strconv.ParseFloat(out.Account.NAV, 64)
	return broker.Account{
		ID:       out.Account.ID,
		Currency: out.Account.Currency,
		Balance:  bal,
		Equity:   nav,
	}, nil
}
