// Package mysql 借贷服务 MySQL 仓储实现
package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/pkg/database"
	"gorm.io/gorm"

	"github.com/amitk-codes/lendity-fi/internal/lending/domain"
)

type BankRepositoryImpl struct {
	db *database.DB
}

func NewBankRepository(db *database.DB) domain.BankRepository {
	return &BankRepositoryImpl{db: db}
}

func (r *BankRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.DB.WithContext(ctx)
}

func (r *BankRepositoryImpl) Create(ctx context.Context, bank *domain.Bank) error {
	err := r.getDB(ctx).Create(bank).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrBankExists
	}
	return err
}

func (r *BankRepositoryImpl) Save(ctx context.Context, bank *domain.Bank) error {
	return r.getDB(ctx).Save(bank).Error
}

func (r *BankRepositoryImpl) GetByAssetID(ctx context.Context, assetID string) (*domain.Bank, error) {
	var bank domain.Bank
	err := r.getDB(ctx).Where("asset_id = ?", assetID).First(&bank).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBankNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bank, nil
}

func (r *BankRepositoryImpl) List(ctx context.Context) ([]*domain.Bank, error) {
	var banks []*domain.Bank
	err := r.getDB(ctx).Order("asset_id").Find(&banks).Error
	return banks, err
}

type PositionRepositoryImpl struct {
	db *database.DB
}

func NewPositionRepository(db *database.DB) domain.PositionRepository {
	return &PositionRepositoryImpl{db: db}
}

func (r *PositionRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.DB.WithContext(ctx)
}

func (r *PositionRepositoryImpl) Create(ctx context.Context, position *domain.Position) error {
	err := r.getDB(ctx).Create(position).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrPositionExists
	}
	return err
}

func (r *PositionRepositoryImpl) Save(ctx context.Context, position *domain.Position) error {
	return r.getDB(ctx).Save(position).Error
}

func (r *PositionRepositoryImpl) GetByOwner(ctx context.Context, owner string) (*domain.Position, error) {
	var position domain.Position
	err := r.getDB(ctx).Where("owner = ?", owner).First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPositionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &position, nil
}
