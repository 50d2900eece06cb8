// Package custody 托管账本：记录用户与池金库的资产余额并承担划转
package custody

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amitk-codes/lendity-fi/internal/lending/domain"
)

// AccountBalance 托管账户单资产余额
type AccountBalance struct {
	gorm.Model
	Account string          `gorm:"column:account;type:varchar(64);uniqueIndex:idx_account_asset;not null"`
	AssetID string          `gorm:"column:asset_id;type:varchar(64);uniqueIndex:idx_account_asset;not null"`
	Balance decimal.Decimal `gorm:"column:balance;type:decimal(30,0);not null"`
}

func (AccountBalance) TableName() string { return "custody_balances" }

// Ledger 数据库内托管账本。
// 与借贷账本共用事务，划转失败自然回滚份额变更。
type Ledger struct {
	db *database.DB
}

func NewLedger(db *database.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return l.db.DB.WithContext(ctx)
}

// Transfer 从 from 扣减并向 to 入账，余额不足返回 ErrTransferFailed。
// 扣减行加排他锁，避免并发划转下的超额支出。
func (l *Ledger) Transfer(ctx context.Context, from, to, assetID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrZeroAmount
	}
	db := l.getDB(ctx)

	var src AccountBalance
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account = ? AND asset_id = ?", from, assetID).
		First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrTransferFailed
	}
	if err != nil {
		return err
	}
	if src.Balance.LessThan(amount) {
		return domain.ErrTransferFailed
	}

	src.Balance = src.Balance.Sub(amount)
	if err := db.Save(&src).Error; err != nil {
		return err
	}
	return l.credit(db, to, assetID, amount)
}

// Credit 无来源入账，用于充值入金
func (l *Ledger) Credit(ctx context.Context, account, assetID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrZeroAmount
	}
	return l.credit(l.getDB(ctx), account, assetID, amount)
}

// BalanceOf 查询托管余额，无记录视为零
func (l *Ledger) BalanceOf(ctx context.Context, account, assetID string) (decimal.Decimal, error) {
	var row AccountBalance
	err := l.getDB(ctx).Where("account = ? AND asset_id = ?", account, assetID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.Balance, nil
}

func (l *Ledger) credit(db *gorm.DB, account, assetID string, amount decimal.Decimal) error {
	var dst AccountBalance
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account = ? AND asset_id = ?", account, assetID).
		First(&dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&AccountBalance{
			Account: account,
			AssetID: assetID,
			Balance: amount,
		}).Error
	}
	if err != nil {
		return err
	}
	dst.Balance = dst.Balance.Add(amount)
	return db.Save(&dst).Error
}
