package domain

import "time"

// Kafka 主题
const (
	TopicBankInitialized = "lending.bank.initialized"
	TopicPositionOpened  = "lending.position.opened"
	TopicDeposited       = "lending.deposited"
	TopicWithdrawn       = "lending.withdrawn"
	TopicBorrowed        = "lending.borrowed"
	TopicRepaid          = "lending.repaid"
	TopicLiquidated      = "lending.liquidated"
)

// BankInitializedEvent 借贷池创建事件
type BankInitializedEvent struct {
	EventID      string    `json:"event_id"`
	AssetID      string    `json:"asset_id"`
	Authority    string    `json:"authority"`
	InterestRate float64   `json:"interest_rate"`
	Timestamp    time.Time `json:"timestamp"`
}

// PositionOpenedEvent 仓位创建事件
type PositionOpenedEvent struct {
	EventID           string    `json:"event_id"`
	Owner             string    `json:"owner"`
	CollateralAssetID string    `json:"collateral_asset_id"`
	StableAssetID     string    `json:"stable_asset_id"`
	Timestamp         time.Time `json:"timestamp"`
}

// LedgerMutationEvent 存取借还四类账本变更共用的事件载荷
type LedgerMutationEvent struct {
	EventID   string    `json:"event_id"`
	Owner     string    `json:"owner"`
	AssetID   string    `json:"asset_id"`
	Amount    string    `json:"amount"`
	Shares    string    `json:"shares"`
	Timestamp time.Time `json:"timestamp"`
}

// LiquidatedEvent 清算事件，携带两腿结算金额
type LiquidatedEvent struct {
	EventID           string    `json:"event_id"`
	Liquidator        string    `json:"liquidator"`
	Owner             string    `json:"owner"`
	CollateralAssetID string    `json:"collateral_asset_id"`
	BorrowedAssetID   string    `json:"borrowed_asset_id"`
	HealthFactor      string    `json:"health_factor"`
	RepaidAmount      string    `json:"repaid_amount"`
	SeizedAmount      string    `json:"seized_amount"`
	Timestamp         time.Time `json:"timestamp"`
}
