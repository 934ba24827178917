package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"adaptive-trading-bot/internal/market"
)

const (
	fearGreedURL = "https://api.alternative.me/fng/"
	newsURL      = "https://min-api.cryptocompare.com/data/v2/news/"
)

var (
	positiveKeywords = []string{"bullish", "surge", "rally", "gain", "up", "high", "growth", "profit"}
	negativeKeywords = []string{"bearish", "crash", "drop", "fall", "down", "low", "loss", "risk"}
)

// Analyzer compiles a sentiment view from the Fear & Greed index, recent
// news headlines and 24h price momentum. Every upstream failure degrades to
// a neutral component; the view itself never fabricates conviction.
type Analyzer struct {
	httpClient *http.Client
	market     market.Client
	apiKey     string // CryptoPanic/CryptoCompare news key, optional
	logger     zerolog.Logger
}

func NewAnalyzer(marketClient market.Client, apiKey string, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		market:     marketClient,
		apiKey:     apiKey,
		logger:     logger.With().Str("component", "sentiment").Logger(),
	}
}

// AnalyzeMarket compiles the sentiment view for a symbol.
func (a *Analyzer) AnalyzeMarket(ctx context.Context, symbol string) (*MarketView, error) {
	var scores []float64
	var reasons []string
	add := func(score float64, reason string) {
		scores = append(scores, score)
		reasons = append(reasons, reason)
	}

	fearGreed, fgErr := a.fetchFearGreed(ctx)
	if fgErr != nil {
		a.logger.Warn().Err(fgErr).Msg("Fear & Greed fetch failed, treating as neutral")
		fearGreed = 50
	} else {
		switch {
		case fearGreed <= 25:
			add(0.7, fmt.Sprintf("Extreme Fear (FG: %d), contrarian buy signal", fearGreed))
		case fearGreed <= 45:
			add(0.3, fmt.Sprintf("Fear in market (FG: %d)", fearGreed))
		case fearGreed >= 75:
			add(-0.7, fmt.Sprintf("Extreme Greed (FG: %d), potential top", fearGreed))
		case fearGreed >= 55:
			add(-0.3, fmt.Sprintf("Greed in market (FG: %d)", fearGreed))
		}
	}

	var priceChange24h float64
	ticker, err := a.market.GetTicker24h(ctx, symbol)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Ticker fetch failed, skipping momentum signal")
	} else {
		priceChange24h = ticker.PriceChangePercent
		switch {
		case priceChange24h > 3:
			add(1.0, "Strong 24h price increase")
		case priceChange24h > 1:
			add(0.5, "Positive 24h momentum")
		case priceChange24h < -3:
			add(-1.0, "Strong 24h price decrease")
		case priceChange24h < -1:
			add(-0.5, "Negative 24h momentum")
		}
	}

	newsSentiment := a.fetchNewsSentiment(ctx, symbol)
	switch newsSentiment {
	case "positive":
		add(0.4, "Positive news sentiment")
	case "negative":
		add(-0.4, "Negative news sentiment")
	}

	avg := 0.0
	if len(scores) > 0 {
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		avg = sum / float64(len(scores))
	}

	view := &MarketView{
		Symbol:        symbol,
		Reasoning:     reasons,
		CompiledScore: compiledScore(priceChange24h, fearGreed),
		RiskLevel:     riskLevel(priceChange24h, fearGreed),
	}

	switch {
	case avg > 0.3:
		view.Action = ActionBuy
		view.Confidence = minInt(95, int(50+avg*50))
	case avg < -0.3:
		view.Action = ActionSell
		view.Confidence = minInt(95, int(50+math.Abs(avg)*50))
	default:
		view.Action = ActionHold
		view.Confidence = int(50 + math.Abs(avg)*30)
	}

	return view, nil
}

type fearGreedResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

func (a *Analyzer) fetchFearGreed(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fearGreedURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fear & greed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fear & greed API status %d", resp.StatusCode)
	}

	var parsed fearGreedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("fear & greed decode: %w", err)
	}
	if len(parsed.Data) == 0 {
		return 0, fmt.Errorf("fear & greed API returned no data")
	}
	value, err := strconv.Atoi(parsed.Data[0].Value)
	if err != nil {
		return 0, fmt.Errorf("fear & greed value parse: %w", err)
	}
	return value, nil
}

type newsResponse struct {
	Data []struct {
		Title string `json:"title"`
	} `json:"Data"`
}

// fetchNewsSentiment scores recent headlines by keyword balance. Any failure
// reports neutral.
func (a *Analyzer) fetchNewsSentiment(ctx context.Context, symbol string) string {
	base := strings.TrimSuffix(strings.ToUpper(symbol), "USDT")

	params := url.Values{}
	params.Set("categories", base+",Trading")
	if a.apiKey != "" {
		params.Set("api_key", a.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, newsURL+"?"+params.Encode(), nil)
	if err != nil {
		return "neutral"
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Debug().Err(err).Msg("News fetch failed")
		return "neutral"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "neutral"
	}

	var parsed newsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "neutral"
	}

	headlines := make([]string, 0, 5)
	for i, article := range parsed.Data {
		if i == 5 {
			break
		}
		headlines = append(headlines, article.Title)
	}
	return scoreHeadlines(headlines)
}

func scoreHeadlines(headlines []string) string {
	if len(headlines) == 0 {
		return "neutral"
	}
	positive, negative := 0, 0
	for _, headline := range headlines {
		lower := strings.ToLower(headline)
		for _, kw := range positiveKeywords {
			if strings.Contains(lower, kw) {
				positive++
			}
		}
		for _, kw := range negativeKeywords {
			if strings.Contains(lower, kw) {
				negative++
			}
		}
	}
	if float64(positive) > float64(negative)*1.5 {
		return "positive"
	}
	if float64(negative) > float64(positive)*1.5 {
		return "negative"
	}
	return "neutral"
}

// compiledScore blends coin momentum with the Fear & Greed reading into a
// single -1..1 market score.
func compiledScore(priceChange24h float64, fearGreed int) float64 {
	coinScore := math.Max(-1, math.Min(1, priceChange24h/10))
	fgScore := math.Max(-1, math.Min(1, float64(fearGreed-50)/50))

	score := coinScore*0.4 + fgScore*0.3
	return math.Max(-1, math.Min(1, score))
}

// riskLevel tiers the view: violent moves and sentiment extremes both raise
// the risk.
func riskLevel(priceChange24h float64, fearGreed int) RiskLevel {
	score := 0
	if math.Abs(priceChange24h) > 10 {
		score += 2
	} else if math.Abs(priceChange24h) > 5 {
		score++
	}
	if fearGreed <= 20 || fearGreed >= 80 {
		score += 2
	}

	switch {
	case score >= 4:
		return RiskHigh
	case score >= 2:
		return RiskMedium
	default:
		return RiskLow
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
