// Package domain 借贷池领域模型：份额记账、利息累积、健康因子与清算计算
package domain

import "errors"

var (
	ErrZeroAmount           = errors.New("lending: amount must be positive")
	ErrInsufficientFunds    = errors.New("lending: insufficient funds")
	ErrOverBorrowableAmount = errors.New("lending: not eligible to borrow this much amount")
	ErrOverRepayAmount      = errors.New("lending: repay exceeds outstanding debt")
	ErrHealthyPosition      = errors.New("lending: position does not fall below health factor")

	ErrInsufficientCollateral = errors.New("lending: liquidation would seize more collateral than exists")
	ErrInsufficientShares     = errors.New("lending: insufficient shares")
	ErrInsufficientLiquidity  = errors.New("lending: insufficient un-borrowed liquidity")

	ErrStaleCheckpoint = errors.New("lending: accrual checkpoint is in the future")
	ErrStalePrice      = errors.New("lending: price is too old")
	ErrMissingPrice    = errors.New("lending: price not available")
	ErrTransferFailed  = errors.New("lending: asset transfer failed")

	ErrArithmetic           = errors.New("lending: arithmetic overflow or division by zero")
	ErrInvalidRiskParameter = errors.New("lending: risk parameter out of range")
	ErrBankExists           = errors.New("lending: bank already initialized for asset")
	ErrBankNotFound         = errors.New("lending: bank not found")
	ErrPositionExists       = errors.New("lending: position already initialized for owner")
	ErrPositionNotFound     = errors.New("lending: position not found")
	ErrUnknownAsset         = errors.New("lending: asset not covered by position")
	ErrDuplicateAsset       = errors.New("lending: collateral and stable assets must differ")
)
