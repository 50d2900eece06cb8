package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Price 外部喂价，带自身时间戳用于最大时效校验
type Price struct {
	AssetID   string          `json:"asset_id"`
	Value     decimal.Decimal `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// CheckAge 校验价格时效，超过 maxAge 视为过期
func (p *Price) CheckAge(now time.Time, maxAge time.Duration) error {
	if p == nil || p.Value.LessThanOrEqual(decimal.Zero) {
		return ErrMissingPrice
	}
	if now.Sub(p.Timestamp) > maxAge {
		return ErrStalePrice
	}
	return nil
}

// BorrowableAmount 抵押价值折算出的最大可借额度（统一计价单位）
func BorrowableAmount(collateralValue, liquidationThreshold decimal.Decimal) decimal.Decimal {
	return collateralValue.Mul(liquidationThreshold)
}

// HealthFactor 健康因子 = 抵押价值 * 清算阈值 / 债务价值。
// 无债务时健康因子无定义（视为无穷大，永远健康），ok 返回 false。
func HealthFactor(collateralValue, liquidationThreshold, borrowedValue decimal.Decimal) (decimal.Decimal, bool) {
	if borrowedValue.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return collateralValue.Mul(liquidationThreshold).Div(borrowedValue), true
}

// IsLiquidatable 健康因子低于 1 才允许清算
func IsLiquidatable(healthFactor decimal.Decimal, defined bool) bool {
	return defined && healthFactor.LessThan(one)
}
