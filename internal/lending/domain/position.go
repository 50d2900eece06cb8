package domain

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AssetSide 仓位中资产的角色，用显式标签取代按资产标识逐处比较的分支
type AssetSide string

const (
	AssetSideCollateral AssetSide = "COLLATERAL"
	AssetSideStable     AssetSide = "STABLE"
)

// Position 用户仓位聚合根，覆盖抵押资产与稳定资产两侧的存借份额
type Position struct {
	gorm.Model
	Owner             string `gorm:"column:owner;type:varchar(64);uniqueIndex;not null"`
	CollateralAssetID string `gorm:"column:collateral_asset_id;type:varchar(64);not null"`
	StableAssetID     string `gorm:"column:stable_asset_id;type:varchar(64);not null"`

	CollateralDepositShares decimal.Decimal `gorm:"column:collateral_deposit_shares;type:decimal(30,0);not null"`
	CollateralBorrowShares  decimal.Decimal `gorm:"column:collateral_borrow_shares;type:decimal(30,0);not null"`
	StableDepositShares     decimal.Decimal `gorm:"column:stable_deposit_shares;type:decimal(30,0);not null"`
	StableBorrowShares      decimal.Decimal `gorm:"column:stable_borrow_shares;type:decimal(30,0);not null"`

	// 用户侧存款/借款利息折算检查点（unix 秒）
	DepositCheckpoint int64 `gorm:"column:deposit_checkpoint;not null"`
	BorrowCheckpoint  int64 `gorm:"column:borrow_checkpoint;not null"`
}

func (Position) TableName() string { return "lending_positions" }

// NewPosition 创建用户仓位，两侧资产必须不同
func NewPosition(owner, collateralAssetID, stableAssetID string, now int64) (*Position, error) {
	if collateralAssetID == stableAssetID {
		return nil, ErrDuplicateAsset
	}
	return &Position{
		Owner:                   owner,
		CollateralAssetID:       collateralAssetID,
		StableAssetID:           stableAssetID,
		CollateralDepositShares: decimal.Zero,
		CollateralBorrowShares:  decimal.Zero,
		StableDepositShares:     decimal.Zero,
		StableBorrowShares:      decimal.Zero,
		DepositCheckpoint:       now,
		BorrowCheckpoint:        now,
	}, nil
}

// SideOf 解析资产标识对应的仓位侧
func (p *Position) SideOf(assetID string) (AssetSide, error) {
	switch assetID {
	case p.CollateralAssetID:
		return AssetSideCollateral, nil
	case p.StableAssetID:
		return AssetSideStable, nil
	default:
		return "", ErrUnknownAsset
	}
}

// OtherAssetID 返回仓位中另一侧的资产标识
func (p *Position) OtherAssetID(assetID string) (string, error) {
	switch assetID {
	case p.CollateralAssetID:
		return p.StableAssetID, nil
	case p.StableAssetID:
		return p.CollateralAssetID, nil
	default:
		return "", ErrUnknownAsset
	}
}

// DepositShares 指定侧的存款份额
func (p *Position) DepositShares(side AssetSide) decimal.Decimal {
	if side == AssetSideCollateral {
		return p.CollateralDepositShares
	}
	return p.StableDepositShares
}

// BorrowShares 指定侧的借款份额
func (p *Position) BorrowShares(side AssetSide) decimal.Decimal {
	if side == AssetSideCollateral {
		return p.CollateralBorrowShares
	}
	return p.StableBorrowShares
}

// AddDepositShares 增加存款份额并推进存款检查点
func (p *Position) AddDepositShares(side AssetSide, shares decimal.Decimal, now int64) {
	if side == AssetSideCollateral {
		p.CollateralDepositShares = p.CollateralDepositShares.Add(shares)
	} else {
		p.StableDepositShares = p.StableDepositShares.Add(shares)
	}
	p.DepositCheckpoint = now
}

// SubDepositShares 扣减存款份额，调用方须已通过份额销毁校验
func (p *Position) SubDepositShares(side AssetSide, shares decimal.Decimal, now int64) error {
	cur := p.DepositShares(side)
	if shares.GreaterThan(cur) {
		return ErrInsufficientShares
	}
	if side == AssetSideCollateral {
		p.CollateralDepositShares = cur.Sub(shares)
	} else {
		p.StableDepositShares = cur.Sub(shares)
	}
	p.DepositCheckpoint = now
	return nil
}

// AddBorrowShares 增加借款份额并推进借款检查点
func (p *Position) AddBorrowShares(side AssetSide, shares decimal.Decimal, now int64) {
	if side == AssetSideCollateral {
		p.CollateralBorrowShares = p.CollateralBorrowShares.Add(shares)
	} else {
		p.StableBorrowShares = p.StableBorrowShares.Add(shares)
	}
	p.BorrowCheckpoint = now
}

// SubBorrowShares 扣减借款份额
func (p *Position) SubBorrowShares(side AssetSide, shares decimal.Decimal, now int64) error {
	cur := p.BorrowShares(side)
	if shares.GreaterThan(cur) {
		return ErrInsufficientShares
	}
	if side == AssetSideCollateral {
		p.CollateralBorrowShares = cur.Sub(shares)
	} else {
		p.StableBorrowShares = cur.Sub(shares)
	}
	p.BorrowCheckpoint = now
	return nil
}
