package risk

// FlagProvider exposes the operator's buy gates. Implementations must read
// the current state on every call; callers never cache the result.
type FlagProvider interface {
	// StopBuys reports whether all new buys are suspended
	StopBuys() bool

	// AllowTopUps reports whether buys for already held symbols may continue while StopBuys is set
	AllowTopUps() bool
}

// BuyDecision 买入闸门的判定结果
type BuyDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}
