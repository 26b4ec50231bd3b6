package stream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Wave3Snipers/tradingbot-execute-client/internal/metrics"
	"github.com/Wave3Snipers/tradingbot-execute-client/internal/models"
)

const (
	DefaultReadTimeout = 30 * time.Second
	writeWait          = 10 * time.Second
)

var (
	ErrMalformed   = errors.New("malformed signal")
	ErrNoSide      = errors.New("signal has no side")
	ErrUnknownSide = errors.New("unknown signal side")
	ErrNoSymbol    = errors.New("signal has no symbol")
)

// Executor runs one intent to completion and persists state afterwards.
type Executor interface {
	Execute(ctx context.Context, intent models.Intent) models.Outcome
	Flush(ctx context.Context) error
}

type Config struct {
	URL                string
	Token              string // Authorization 头, 原样发送
	InsecureSkipVerify bool   // 自建中继常用自签证书
	Symbols            []string
	ReadTimeout        time.Duration
}

// StatusError is returned when the handshake is answered with a non-101 status.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("handshake failed with status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) StatusCode() int { return e.Code }

// Client is one streaming session against the signal source.
type Client struct {
	cfg     Config
	exec    Executor
	logger  *zap.Logger
	dialer  *websocket.Dialer
	symbols map[string]struct{}
}

func New(cfg Config, exec Executor, logger *zap.Logger) *Client {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	symbols := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[s] = struct{}{}
	}

	return &Client{
		cfg:    cfg,
		exec:   exec,
		logger: logger.With(zap.String("component", "stream")),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		},
		symbols: symbols,
	}
}

// ParseSignal decodes one frame into a direction and symbol.
func ParseSignal(data []byte) (models.Direction, string, error) {
	var msg models.SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Side == nil {
		return "", "", ErrNoSide
	}

	var dir models.Direction
	switch *msg.Side {
	case "B":
		dir = models.Buy
	case "S":
		dir = models.Sell
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownSide, *msg.Side)
	}

	if msg.Symbol == nil || strings.TrimSpace(*msg.Symbol) == "" {
		return "", "", ErrNoSymbol
	}
	return dir, strings.TrimSpace(*msg.Symbol), nil
}

// Run holds one session until the connection fails or ctx is done. It never
// returns nil.
func (c *Client) Run(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", c.cfg.Token)

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return &StatusError{Code: resp.StatusCode, Err: err}
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	c.logger.Info("Connected", zap.String("url", c.cfg.URL))

	// 读协程只负责收帧, 处理全部在当前协程顺序进行
	frames := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-done:
				return
			}
		}
	}()

	timer := time.NewTimer(c.cfg.ReadTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return ctx.Err()

		case err := <-readErr:
			return fmt.Errorf("connection lost: %w", err)

		case data := <-frames:
			c.handle(ctx, data)
			timer.Reset(c.cfg.ReadTimeout)

		case <-timer.C:
			c.logger.Debug("No message received, sending ping")
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("failed to send ping: %w", err)
			}
			timer.Reset(c.cfg.ReadTimeout)
		}
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	dir, symbol, err := ParseSignal(data)
	if err != nil {
		metrics.DroppedMessages.Inc()
		c.logger.Warn("Dropped message", zap.ByteString("payload", data), zap.Error(err))
		return
	}

	if _, ok := c.symbols[symbol]; !ok {
		c.logger.Debug("Symbol not configured", zap.String("symbol", symbol))
		return
	}

	metrics.SignalsTotal.WithLabelValues(symbol, string(dir)).Inc()
	intent := models.Intent{
		Direction:     dir,
		Symbol:        symbol,
		ClientOrderID: uuid.NewString(),
		ReceivedAt:    time.Now(),
	}
	outcome := c.exec.Execute(ctx, intent)
	c.logger.Info("Signal processed",
		zap.String("symbol", symbol),
		zap.String("side", string(dir)),
		zap.String("outcome", string(outcome)),
	)

	if err := c.exec.Flush(ctx); err != nil {
		c.logger.Error("Failed to persist positions", zap.Error(err))
	}
}
