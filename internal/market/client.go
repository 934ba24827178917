package market

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RESTClient talks to the exchange's spot REST API. Market data endpoints
// are public; order placement is signed with the account's secret key.
type RESTClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewRESTClient(apiKey, secretKey, baseURL string, logger zerolog.Logger) *RESTClient {
	return &RESTClient{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "exchange_client").Logger(),
	}
}

// GetKlines fetches candlestick data. The exchange returns klines as
// positional arrays, not objects.
func (c *RESTClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, fmt.Errorf("fetching klines: %w", err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("parsing klines: %w", err)
	}

	candles := make([]Candle, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 7 {
			return nil, fmt.Errorf("malformed kline at index %d", i)
		}
		openTime, okOpen := raw[0].(float64)
		closeTime, okClose := raw[6].(float64)
		if !okOpen || !okClose {
			return nil, fmt.Errorf("malformed kline at index %d", i)
		}
		candles[i] = Candle{
			OpenTime:  int64(openTime),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: int64(closeTime),
		}
	}

	return candles, nil
}

// GetCurrentPrice fetches the current price for a symbol
func (c *RESTClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return 0, fmt.Errorf("fetching price: %w", err)
	}

	var priceResp struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price,string"`
	}
	if err := json.Unmarshal(body, &priceResp); err != nil {
		return 0, fmt.Errorf("parsing price: %w", err)
	}

	return priceResp.Price, nil
}

// GetTicker24h fetches 24hr rolling statistics for a symbol
func (c *RESTClient) GetTicker24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/api/v3/ticker/24hr", params)
	if err != nil {
		return nil, fmt.Errorf("fetching ticker: %w", err)
	}

	var ticker Ticker24h
	if err := json.Unmarshal(body, &ticker); err != nil {
		return nil, fmt.Errorf("parsing ticker: %w", err)
	}

	return &ticker, nil
}

// PlaceOrder submits a signed market order. The client order id is a fresh
// UUID so retries are distinguishable on the exchange side.
func (c *RESTClient) PlaceOrder(ctx context.Context, symbol string, side OrderSide, quantity float64) (*OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', 8, 64))
	params.Set("newClientOrderId", uuid.NewString())
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("signature", c.sign(params))

	endpoint := c.baseURL + "/api/v3/order"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("placing order: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange error: %s", string(body))
	}

	var result OrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing order response: %w", err)
	}

	c.logger.Info().
		Str("symbol", result.Symbol).
		Str("side", string(result.Side)).
		Float64("executed_qty", result.ExecutedQty).
		Str("status", result.Status).
		Msg("Order placed")
	return &result, nil
}

func (c *RESTClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange error: %s", string(body))
	}

	return body, nil
}

// sign creates the HMAC-SHA256 signature for authenticated requests. The
// signature parameter itself is excluded from the signed payload.
func (c *RESTClient) sign(params url.Values) string {
	signable := url.Values{}
	for k, vs := range params {
		if k == "signature" {
			continue
		}
		for _, v := range vs {
			signable.Add(k, v)
		}
	}

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(signable.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseFloat(val interface{}) float64 {
	switch v := val.(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	default:
		return 0
	}
}
