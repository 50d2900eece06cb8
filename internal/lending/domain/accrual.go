package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// AccruedValue 按连续复利将本金折算到当前时刻：principal * e^(rate*elapsed)。
// rate 为每秒连续利率，结果向下取整到最小资产单位。
// elapsedSeconds 为负说明检查点晚于当前时间（时钟回拨或脏数据），视为错误而非静默接受。
func AccruedValue(principal decimal.Decimal, rate float64, elapsedSeconds int64) (decimal.Decimal, error) {
	if elapsedSeconds < 0 {
		return decimal.Zero, ErrStaleCheckpoint
	}
	if principal.IsZero() || rate == 0 || elapsedSeconds == 0 {
		return principal, nil
	}
	// 连续复利保证按区间拆分累积与一次性累积等价（截断误差以内）
	factor := math.Exp(rate * float64(elapsedSeconds))
	if math.IsInf(factor, 0) || math.IsNaN(factor) {
		return decimal.Zero, ErrArithmetic
	}
	return principal.Mul(decimal.NewFromFloat(factor)).Floor(), nil
}
