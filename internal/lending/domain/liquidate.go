package domain

import "github.com/shopspring/decimal"

// LiquidationQuote 一次清算的结算参数
// RepayAmount 以被借资产计量，SeizeAmount 以抵押资产计量
type LiquidationQuote struct {
	HealthFactor decimal.Decimal
	RepayAmount  decimal.Decimal
	SeizeAmount  decimal.Decimal
}

// QuoteLiquidation 校验可清算性并计算部分清算的偿还与罚没金额。
// collateralValue/debtValue 为折算利息后的资产单位数量，价格用于统一计价。
// 单次清算只允许偿还 closeFactor 比例的债务，罚没含 bonus 奖励，
// 且罚没量不得超过现存抵押。
func QuoteLiquidation(
	collateralValue, debtValue decimal.Decimal,
	collateralPrice, debtPrice decimal.Decimal,
	liquidationThreshold, closeFactor, bonus decimal.Decimal,
) (*LiquidationQuote, error) {
	if collateralPrice.LessThanOrEqual(decimal.Zero) || debtPrice.LessThanOrEqual(decimal.Zero) {
		return nil, ErrMissingPrice
	}

	collateralQuoted := collateralValue.Mul(collateralPrice)
	debtQuoted := debtValue.Mul(debtPrice)

	hf, defined := HealthFactor(collateralQuoted, liquidationThreshold, debtQuoted)
	if !IsLiquidatable(hf, defined) {
		return nil, ErrHealthyPosition
	}

	repay := debtValue.Mul(closeFactor).Floor()
	if repay.LessThanOrEqual(decimal.Zero) {
		return nil, ErrZeroAmount
	}

	// 罚没量按计价单位换算回抵押资产：repay * debtPrice * (1+bonus) / collateralPrice
	seize := repay.Mul(debtPrice).Mul(one.Add(bonus)).Div(collateralPrice).Floor()
	if seize.GreaterThan(collateralValue) {
		return nil, ErrInsufficientCollateral
	}

	return &LiquidationQuote{
		HealthFactor: hf,
		RepayAmount:  repay,
		SeizeAmount:  seize,
	}, nil
}
