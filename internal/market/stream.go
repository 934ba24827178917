package market

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// klineEvent is the exchange's kline stream payload
type klineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64   `json:"t"`
		CloseTime int64   `json:"T"`
		Interval  string  `json:"i"`
		Open      float64 `json:"o,string"`
		Close     float64 `json:"c,string"`
		High      float64 `json:"h,string"`
		Low       float64 `json:"l,string"`
		Volume    float64 `json:"v,string"`
		IsClosed  bool    `json:"x"`
	} `json:"k"`
}

// KlineStream maintains a websocket subscription to a symbol's kline
// stream. It caches the latest traded price and invokes the callback once
// per closed candle. The connection reconnects until Stop is called.
type KlineStream struct {
	mu          sync.RWMutex
	baseURL     string
	symbol      string
	interval    string
	conn        *websocket.Conn
	running     bool
	stopChan    chan struct{}
	latestPrice float64
	lastEvent   time.Time
	reconnects  int
	onCandle    func(Candle)
	logger      zerolog.Logger
}

func NewKlineStream(baseURL, symbol, interval string, logger zerolog.Logger) *KlineStream {
	return &KlineStream{
		baseURL:  baseURL,
		symbol:   symbol,
		interval: interval,
		stopChan: make(chan struct{}),
		logger:   logger.With().Str("component", "kline_stream").Str("symbol", symbol).Logger(),
	}
}

// OnCandle registers a callback invoked for every closed candle. Must be
// called before Start.
func (s *KlineStream) OnCandle(cb func(Candle)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCandle = cb
}

// Start launches the connection loop in the background.
func (s *KlineStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.connect()
}

// Stop closes the stream and stops reconnecting.
func (s *KlineStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
	s.logger.Info().Msg("Kline stream stopped")
}

// LatestPrice returns the most recent streamed price, zero before the
// first event.
func (s *KlineStream) LatestPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestPrice
}

// Stats reports stream health for the status API.
func (s *KlineStream) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"running":      s.running,
		"reconnects":   s.reconnects,
		"latest_price": s.latestPrice,
		"last_event":   s.lastEvent.Format(time.RFC3339),
	}
}

func (s *KlineStream) connect() {
	wsURL := fmt.Sprintf("%s/ws/%s@kline_%s", s.baseURL, strings.ToLower(s.symbol), s.interval)

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		s.logger.Info().Str("url", wsURL).Msg("Connecting kline stream")
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			s.logger.Error().Err(err).Msg("Stream connection failed, retrying in 5s")
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
			select {
			case <-s.stopChan:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.logger.Info().Msg("Kline stream connected")

		s.readLoop(conn)

		s.mu.RLock()
		running := s.running
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Warn().Msg("Stream connection lost, reconnecting in 3s")
		select {
		case <-s.stopChan:
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func (s *KlineStream) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info().Msg("Stream closed normally")
			} else {
				s.logger.Error().Err(err).Msg("Stream read error")
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *KlineStream) handleMessage(message []byte) {
	var event klineEvent
	if err := json.Unmarshal(message, &event); err != nil {
		s.logger.Debug().Err(err).Msg("Unparseable stream message")
		return
	}
	if event.EventType != "kline" {
		return
	}

	s.mu.Lock()
	s.latestPrice = event.Kline.Close
	s.lastEvent = time.Now()
	cb := s.onCandle
	s.mu.Unlock()

	if event.Kline.IsClosed && cb != nil {
		cb(Candle{
			OpenTime:  event.Kline.OpenTime,
			Open:      event.Kline.Open,
			High:      event.Kline.High,
			Low:       event.Kline.Low,
			Close:     event.Kline.Close,
			Volume:    event.Kline.Volume,
			CloseTime: event.Kline.CloseTime,
		})
	}
}
