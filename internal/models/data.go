package models

import "time"

// Direction 交易方向
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// SignalMessage 信号源推送的原始消息
type SignalMessage struct {
	Side   *string `json:"s"` // "B" 或 "S"
	Symbol *string `json:"t"` // 交易对, 例如 BTC/USDT
}

// Intent 由单条信号派生出的交易意图, 不持久化
type Intent struct {
	Direction     Direction `json:"direction"`
	Symbol        string    `json:"symbol"`
	ClientOrderID string    `json:"client_order_id"` // 同一意图的所有重试共用
	ReceivedAt    time.Time `json:"received_at"`
}

// Outcome 一次意图执行的结果
type Outcome string

const (
	OutcomeFilled  Outcome = "filled"  // 交易所已成交
	OutcomeSkipped Outcome = "skipped" // 被闸门或数量检查拦截, 未调用下单
	OutcomeFailed  Outcome = "failed"  // 重试耗尽, 未成交
)
