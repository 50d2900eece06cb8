package domain

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var one = decimal.NewFromInt(1)

// RiskParams 银行风险参数，均为 [0,1] 区间内的比例
type RiskParams struct {
	LiquidationThreshold   decimal.Decimal
	MaxLTV                 decimal.Decimal
	LiquidationBonus       decimal.Decimal
	LiquidationCloseFactor decimal.Decimal
}

// Validate 校验风险参数区间
func (p RiskParams) Validate() error {
	for _, v := range []decimal.Decimal{
		p.LiquidationThreshold, p.MaxLTV, p.LiquidationBonus, p.LiquidationCloseFactor,
	} {
		if v.IsNegative() || v.GreaterThan(one) {
			return ErrInvalidRiskParameter
		}
	}
	return nil
}

// Bank 单资产借贷池聚合根
// 存款侧与借款侧各自维护总额与份额，份额只在本池本侧内有意义，不可跨池转移
type Bank struct {
	gorm.Model
	AssetID   string `gorm:"column:asset_id;type:varchar(64);uniqueIndex;not null"`
	Authority string `gorm:"column:authority;type:varchar(64);not null"`

	TotalDepositValue  decimal.Decimal `gorm:"column:total_deposit_value;type:decimal(30,0);not null"`
	TotalDepositShares decimal.Decimal `gorm:"column:total_deposit_shares;type:decimal(30,0);not null"`
	TotalBorrowValue   decimal.Decimal `gorm:"column:total_borrow_value;type:decimal(30,0);not null"`
	TotalBorrowShares  decimal.Decimal `gorm:"column:total_borrow_shares;type:decimal(30,0);not null"`

	LiquidationThreshold   decimal.Decimal `gorm:"column:liquidation_threshold;type:decimal(5,4);not null"`
	MaxLTV                 decimal.Decimal `gorm:"column:max_ltv;type:decimal(5,4);not null"`
	LiquidationBonus       decimal.Decimal `gorm:"column:liquidation_bonus;type:decimal(5,4);not null"`
	LiquidationCloseFactor decimal.Decimal `gorm:"column:liquidation_close_factor;type:decimal(5,4);not null"`

	// 每秒连续利率
	InterestRate float64 `gorm:"column:interest_rate;not null"`
	// 上次利息折算的时间戳（unix 秒）
	LastUpdated int64 `gorm:"column:last_updated;not null"`
}

func (Bank) TableName() string { return "lending_banks" }

// NewBank 创建新借贷池
func NewBank(authority, assetID string, params RiskParams, interestRate float64, now int64) (*Bank, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if interestRate < 0 {
		return nil, ErrInvalidRiskParameter
	}
	return &Bank{
		AssetID:                assetID,
		Authority:              authority,
		TotalDepositValue:      decimal.Zero,
		TotalDepositShares:     decimal.Zero,
		TotalBorrowValue:       decimal.Zero,
		TotalBorrowShares:      decimal.Zero,
		LiquidationThreshold:   params.LiquidationThreshold,
		MaxLTV:                 params.MaxLTV,
		LiquidationBonus:       params.LiquidationBonus,
		LiquidationCloseFactor: params.LiquidationCloseFactor,
		InterestRate:           interestRate,
		LastUpdated:            now,
	}, nil
}

// Accrue 将两侧总额按连续复利折算到 now，并推进检查点。
// 所有份额换算都必须先经过本方法，否则会以过期总额定价。
func (b *Bank) Accrue(now int64) error {
	elapsed := now - b.LastUpdated
	dep, err := AccruedValue(b.TotalDepositValue, b.InterestRate, elapsed)
	if err != nil {
		return err
	}
	bor, err := AccruedValue(b.TotalBorrowValue, b.InterestRate, elapsed)
	if err != nil {
		return err
	}
	b.TotalDepositValue = dep
	b.TotalBorrowValue = bor
	b.LastUpdated = now
	return nil
}

// MintDepositShares 按当前每份价值为存入金额铸造存款份额并计入总额。
// 空池时 1:1 铸造；否则 floor(amount * totalShares / totalValue)，舍入方向偏向池子。
func (b *Bank) MintDepositShares(amount decimal.Decimal) (decimal.Decimal, error) {
	shares, err := mintShares(amount, b.TotalDepositValue, b.TotalDepositShares)
	if err != nil {
		return decimal.Zero, err
	}
	b.TotalDepositValue = b.TotalDepositValue.Add(amount)
	b.TotalDepositShares = b.TotalDepositShares.Add(shares)
	return shares, nil
}

// BurnDepositSharesForValue 为取出金额销毁份额，ceil 向上取整保证不少收份额。
// ownerShares 为调用方持有的份额上限。
func (b *Bank) BurnDepositSharesForValue(amount, ownerShares decimal.Decimal) (decimal.Decimal, error) {
	shares, err := burnShares(amount, b.TotalDepositValue, b.TotalDepositShares, ownerShares)
	if err != nil {
		return decimal.Zero, err
	}
	b.TotalDepositValue = b.TotalDepositValue.Sub(amount)
	b.TotalDepositShares = b.TotalDepositShares.Sub(shares)
	b.clampDepositSide()
	return shares, nil
}

// MintBorrowShares 借款侧铸造，与存款侧独立折算
func (b *Bank) MintBorrowShares(amount decimal.Decimal) (decimal.Decimal, error) {
	shares, err := mintShares(amount, b.TotalBorrowValue, b.TotalBorrowShares)
	if err != nil {
		return decimal.Zero, err
	}
	b.TotalBorrowValue = b.TotalBorrowValue.Add(amount)
	b.TotalBorrowShares = b.TotalBorrowShares.Add(shares)
	return shares, nil
}

// BurnBorrowSharesForValue 还款时销毁借款份额
func (b *Bank) BurnBorrowSharesForValue(amount, ownerShares decimal.Decimal) (decimal.Decimal, error) {
	shares, err := burnShares(amount, b.TotalBorrowValue, b.TotalBorrowShares, ownerShares)
	if err != nil {
		return decimal.Zero, err
	}
	b.TotalBorrowValue = b.TotalBorrowValue.Sub(amount)
	b.TotalBorrowShares = b.TotalBorrowShares.Sub(shares)
	b.clampBorrowSide()
	return shares, nil
}

// DepositValueOf 份额折算为当前存款价值（向下取整）
func (b *Bank) DepositValueOf(shares decimal.Decimal) decimal.Decimal {
	return valueOf(shares, b.TotalDepositValue, b.TotalDepositShares)
}

// BorrowValueOf 份额折算为当前债务价值（向下取整）
func (b *Bank) BorrowValueOf(shares decimal.Decimal) decimal.Decimal {
	return valueOf(shares, b.TotalBorrowValue, b.TotalBorrowShares)
}

// AvailableLiquidity 未被借出的流动性
func (b *Bank) AvailableLiquidity() decimal.Decimal {
	avail := b.TotalDepositValue.Sub(b.TotalBorrowValue)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// Utilization 资金利用率 totalBorrow / totalDeposit，无存款时为 0
func (b *Bank) Utilization() decimal.Decimal {
	if b.TotalDepositValue.IsZero() {
		return decimal.Zero
	}
	return b.TotalBorrowValue.Div(b.TotalDepositValue).Round(8)
}

// 销毁后保持不变量 shares == 0 ⟺ value == 0，残余尘埃归零
func (b *Bank) clampDepositSide() {
	if b.TotalDepositShares.IsZero() || b.TotalDepositValue.IsZero() {
		b.TotalDepositShares = decimal.Zero
		b.TotalDepositValue = decimal.Zero
	}
}

func (b *Bank) clampBorrowSide() {
	if b.TotalBorrowShares.IsZero() || b.TotalBorrowValue.IsZero() {
		b.TotalBorrowShares = decimal.Zero
		b.TotalBorrowValue = decimal.Zero
	}
}

// mintShares 先乘后除避免整数除法精度损失，小额存入不会被静默折算为零份额
func mintShares(amount, totalValue, totalShares decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrZeroAmount
	}
	if totalShares.IsZero() {
		// 空池引导：份额与金额 1:1
		return amount, nil
	}
	if totalValue.IsZero() {
		return decimal.Zero, ErrArithmetic
	}
	return amount.Mul(totalShares).Div(totalValue).Floor(), nil
}

func burnShares(amount, totalValue, totalShares, ownerShares decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrZeroAmount
	}
	if totalShares.IsZero() || totalValue.IsZero() {
		return decimal.Zero, ErrInsufficientShares
	}
	if amount.GreaterThan(totalValue) {
		return decimal.Zero, ErrInsufficientFunds
	}
	shares := amount.Mul(totalShares).Div(totalValue).Ceil()
	if shares.GreaterThan(ownerShares) {
		return decimal.Zero, ErrInsufficientShares
	}
	return shares, nil
}

func valueOf(shares, totalValue, totalShares decimal.Decimal) decimal.Decimal {
	if shares.IsZero() || totalShares.IsZero() {
		return decimal.Zero
	}
	return shares.Mul(totalValue).Div(totalShares).Floor()
}
