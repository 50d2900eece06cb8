package domain

import "context"

// BankRepository 借贷池仓储
type BankRepository interface {
	Create(ctx context.Context, bank *Bank) error
	Save(ctx context.Context, bank *Bank) error
	GetByAssetID(ctx context.Context, assetID string) (*Bank, error)
	List(ctx context.Context) ([]*Bank, error)
}

// PositionRepository 仓位仓储
type PositionRepository interface {
	Create(ctx context.Context, position *Position) error
	Save(ctx context.Context, position *Position) error
	GetByOwner(ctx context.Context, owner string) (*Position, error)
}
