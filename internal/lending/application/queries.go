package application

import (
	"context"

	"github.com/amitk-codes/lendity-fi/internal/lending/domain"
)

// BankView 借贷池查询视图，总额为折算到查询时刻的只读快照
type BankView struct {
	AssetID                string  `json:"asset_id"`
	Authority              string  `json:"authority"`
	TotalDepositValue      string  `json:"total_deposit_value"`
	TotalDepositShares     string  `json:"total_deposit_shares"`
	TotalBorrowValue       string  `json:"total_borrow_value"`
	TotalBorrowShares      string  `json:"total_borrow_shares"`
	AvailableLiquidity     string  `json:"available_liquidity"`
	Utilization            string  `json:"utilization"`
	LiquidationThreshold   string  `json:"liquidation_threshold"`
	MaxLTV                 string  `json:"max_ltv"`
	LiquidationBonus       string  `json:"liquidation_bonus"`
	LiquidationCloseFactor string  `json:"liquidation_close_factor"`
	InterestRate           float64 `json:"interest_rate"`
	LastUpdated            int64   `json:"last_updated"`
}

// PositionView 仓位查询视图，份额按两侧池折算为当前价值
type PositionView struct {
	Owner             string   `json:"owner"`
	CollateralAssetID string   `json:"collateral_asset_id"`
	StableAssetID     string   `json:"stable_asset_id"`
	Collateral        SideView `json:"collateral"`
	Stable            SideView `json:"stable"`
	DepositCheckpoint int64    `json:"deposit_checkpoint"`
	BorrowCheckpoint  int64    `json:"borrow_checkpoint"`
}

// SideView 仓位单侧的份额与折算价值
type SideView struct {
	DepositShares string `json:"deposit_shares"`
	DepositValue  string `json:"deposit_value"`
	BorrowShares  string `json:"borrow_shares"`
	BorrowValue   string `json:"borrow_value"`
}

// HealthView 健康因子查询视图。
// Defined 为 false 表示无债务，健康因子视为无穷大。
type HealthView struct {
	Owner           string `json:"owner"`
	HealthFactor    string `json:"health_factor"`
	Defined         bool   `json:"defined"`
	Liquidatable    bool   `json:"liquidatable"`
	CollateralValue string `json:"collateral_value"`
	BorrowedValue   string `json:"borrowed_value"`
}

// GetBank 查询单个借贷池，总额折算到当前时刻后返回，不落库
func (s *LendingService) GetBank(ctx context.Context, assetID string) (*BankView, error) {
	bank, err := s.banks.GetByAssetID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := bank.Accrue(s.clk.Now().Unix()); err != nil {
		return nil, err
	}
	return bankView(bank), nil
}

// ListBanks 查询全部借贷池
func (s *LendingService) ListBanks(ctx context.Context) ([]*BankView, error) {
	banks, err := s.banks.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now().Unix()
	views := make([]*BankView, 0, len(banks))
	for _, bank := range banks {
		if err := bank.Accrue(now); err != nil {
			return nil, err
		}
		views = append(views, bankView(bank))
	}
	return views, nil
}

// GetPosition 查询用户仓位，两侧份额折算为当前价值
func (s *LendingService) GetPosition(ctx context.Context, owner string) (*PositionView, error) {
	position, err := s.positions.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now().Unix()

	collateralBank, err := s.accruedBank(ctx, position.CollateralAssetID, now)
	if err != nil {
		return nil, err
	}
	stableBank, err := s.accruedBank(ctx, position.StableAssetID, now)
	if err != nil {
		return nil, err
	}

	return &PositionView{
		Owner:             position.Owner,
		CollateralAssetID: position.CollateralAssetID,
		StableAssetID:     position.StableAssetID,
		Collateral:        sideView(collateralBank, position, domain.AssetSideCollateral),
		Stable:            sideView(stableBank, position, domain.AssetSideStable),
		DepositCheckpoint: position.DepositCheckpoint,
		BorrowCheckpoint:  position.BorrowCheckpoint,
	}, nil
}

// GetHealthFactor 查询仓位健康因子，抵押与债务按当前喂价统一计价
func (s *LendingService) GetHealthFactor(ctx context.Context, owner string) (*HealthView, error) {
	position, err := s.positions.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	nowTime := s.clk.Now()
	now := nowTime.Unix()

	collateralBank, err := s.accruedBank(ctx, position.CollateralAssetID, now)
	if err != nil {
		return nil, err
	}
	stableBank, err := s.accruedBank(ctx, position.StableAssetID, now)
	if err != nil {
		return nil, err
	}

	collateralPrice, err := s.prices.GetPrice(ctx, position.CollateralAssetID, s.maxPriceAge)
	if err != nil {
		return nil, err
	}
	stablePrice, err := s.prices.GetPrice(ctx, position.StableAssetID, s.maxPriceAge)
	if err != nil {
		return nil, err
	}
	if err := collateralPrice.CheckAge(nowTime, s.maxPriceAge); err != nil {
		return nil, err
	}
	if err := stablePrice.CheckAge(nowTime, s.maxPriceAge); err != nil {
		return nil, err
	}

	collateralQuoted := collateralBank.DepositValueOf(position.DepositShares(domain.AssetSideCollateral)).Mul(collateralPrice.Value).
		Add(stableBank.DepositValueOf(position.DepositShares(domain.AssetSideStable)).Mul(stablePrice.Value))
	borrowedQuoted := collateralBank.BorrowValueOf(position.BorrowShares(domain.AssetSideCollateral)).Mul(collateralPrice.Value).
		Add(stableBank.BorrowValueOf(position.BorrowShares(domain.AssetSideStable)).Mul(stablePrice.Value))

	hf, defined := domain.HealthFactor(collateralQuoted, collateralBank.LiquidationThreshold, borrowedQuoted)

	return &HealthView{
		Owner:           owner,
		HealthFactor:    hf.String(),
		Defined:         defined,
		Liquidatable:    domain.IsLiquidatable(hf, defined),
		CollateralValue: collateralQuoted.String(),
		BorrowedValue:   borrowedQuoted.String(),
	}, nil
}

func (s *LendingService) accruedBank(ctx context.Context, assetID string, now int64) (*domain.Bank, error) {
	bank, err := s.banks.GetByAssetID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := bank.Accrue(now); err != nil {
		return nil, err
	}
	return bank, nil
}

func bankView(b *domain.Bank) *BankView {
	return &BankView{
		AssetID:                b.AssetID,
		Authority:              b.Authority,
		TotalDepositValue:      b.TotalDepositValue.String(),
		TotalDepositShares:     b.TotalDepositShares.String(),
		TotalBorrowValue:       b.TotalBorrowValue.String(),
		TotalBorrowShares:      b.TotalBorrowShares.String(),
		AvailableLiquidity:     b.AvailableLiquidity().String(),
		Utilization:            b.Utilization().String(),
		LiquidationThreshold:   b.LiquidationThreshold.String(),
		MaxLTV:                 b.MaxLTV.String(),
		LiquidationBonus:       b.LiquidationBonus.String(),
		LiquidationCloseFactor: b.LiquidationCloseFactor.String(),
		InterestRate:           b.InterestRate,
		LastUpdated:            b.LastUpdated,
	}
}

func sideView(bank *domain.Bank, p *domain.Position, side domain.AssetSide) SideView {
	return SideView{
		DepositShares: p.DepositShares(side).String(),
		DepositValue:  bank.DepositValueOf(p.DepositShares(side)).String(),
		BorrowShares:  p.BorrowShares(side).String(),
		BorrowValue:   bank.BorrowValueOf(p.BorrowShares(side)).String(),
	}
}
