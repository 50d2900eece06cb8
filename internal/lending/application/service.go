// Package application 借贷账本应用服务：编排折算、校验、划转与账本落库
package application

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/contextx"
	"github.com/wyfcoding/pkg/idgen"
	"gorm.io/gorm"

	"github.com/amitk-codes/lendity-fi/internal/lending/domain"
)

// PriceFeed 外部喂价接口 (External Dependency)
type PriceFeed interface {
	GetPrice(ctx context.Context, assetID string, maxAge time.Duration) (*domain.Price, error)
}

// AssetTransfer 资产托管划转接口 (External Dependency)
// 实现须原子地从 from 扣减并向 to 入账 amount
type AssetTransfer interface {
	Transfer(ctx context.Context, from, to, assetID string, amount decimal.Decimal) error
}

// EventPublisher 领域事件发布接口
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// TxRunner 事务执行器，*gorm.DB 天然满足
type TxRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

// BankVault 借贷池金库账户标识
func BankVault(assetID string) string {
	return "bank:" + assetID
}

// LendingService 借贷账本应用服务
type LendingService struct {
	banks     domain.BankRepository
	positions domain.PositionRepository
	custody   AssetTransfer
	prices    PriceFeed
	events    EventPublisher
	db        TxRunner
	clk       clock.Clock
	logger    *slog.Logger

	maxPriceAge time.Duration
}

func NewLendingService(
	banks domain.BankRepository,
	positions domain.PositionRepository,
	custody AssetTransfer,
	prices PriceFeed,
	events EventPublisher,
	db TxRunner,
	clk clock.Clock,
	maxPriceAge time.Duration,
	logger *slog.Logger,
) *LendingService {
	return &LendingService{
		banks:       banks,
		positions:   positions,
		custody:     custody,
		prices:      prices,
		events:      events,
		db:          db,
		clk:         clk,
		maxPriceAge: maxPriceAge,
		logger:      logger.With("module", "lending_service"),
	}
}

type InitializeBankCmd struct {
	Authority              string
	AssetID                string
	LiquidationThreshold   decimal.Decimal
	MaxLTV                 decimal.Decimal
	LiquidationBonus       decimal.Decimal
	LiquidationCloseFactor decimal.Decimal
	InterestRate           float64
}

// InitializeBank 创建单资产借贷池，每个资产只允许创建一次
func (s *LendingService) InitializeBank(ctx context.Context, cmd InitializeBankCmd) error {
	now := s.clk.Now()

	bank, err := domain.NewBank(cmd.Authority, cmd.AssetID, domain.RiskParams{
		LiquidationThreshold:   cmd.LiquidationThreshold,
		MaxLTV:                 cmd.MaxLTV,
		LiquidationBonus:       cmd.LiquidationBonus,
		LiquidationCloseFactor: cmd.LiquidationCloseFactor,
	}, cmd.InterestRate, now.Unix())
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		txCtx := contextx.WithTx(ctx, tx)

		if _, err := s.banks.GetByAssetID(txCtx, cmd.AssetID); err == nil {
			return domain.ErrBankExists
		} else if err != domain.ErrBankNotFound {
			return err
		}
		return s.banks.Create(txCtx, bank)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, domain.TopicBankInitialized, cmd.AssetID, domain.BankInitializedEvent{
		EventID:      eventID(),
		AssetID:      cmd.AssetID,
		Authority:    cmd.Authority,
		InterestRate: cmd.InterestRate,
		Timestamp:    now,
	})
	s.logger.InfoContext(ctx, "bank initialized", "asset_id", cmd.AssetID, "authority", cmd.Authority)
	return nil
}

type InitializeUserCmd struct {
	Owner             string
	CollateralAssetID string
	StableAssetID     string
}

// InitializeUser 为用户开立两侧仓位，首次存款前必须完成
func (s *LendingService) InitializeUser(ctx context.Context, cmd InitializeUserCmd) error {
	now := s.clk.Now()
	position, err := domain.NewPosition(cmd.Owner, cmd.CollateralAssetID, cmd.StableAssetID, now.Unix())
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		txCtx := contextx.WithTx(ctx, tx)

		if _, err := s.positions.GetByOwner(txCtx, cmd.Owner); err == nil {
			return domain.ErrPositionExists
		} else if err != domain.ErrPositionNotFound {
			return err
		}
		return s.positions.Create(txCtx, position)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, domain.TopicPositionOpened, cmd.Owner, domain.PositionOpenedEvent{
		EventID:           eventID(),
		Owner:             cmd.Owner,
		CollateralAssetID: cmd.CollateralAssetID,
		StableAssetID:     cmd.StableAssetID,
		Timestamp:         now,
	})
	return nil
}

type LedgerCmd struct {
	Owner   string
	AssetID string
	Amount  decimal.Decimal
}

// Deposit 存入资产换取存款份额。
// 折算 → 铸造份额 → 划转（用户 → 金库）→ 落库，同一事务内完成，划转失败则全部回滚。
func (s *LendingService) Deposit(ctx context.Context, cmd LedgerCmd) error {
	now := s.clk.Now().Unix()
	var minted decimal.Decimal

	err := s.db.Transaction(func(tx *gorm.DB) error {
		txCtx := contextx.WithTx(ctx, tx)

		bank, position, side, err := s.loadLedger(txCtx, cmd.Owner, cmd.AssetID)
		if err != nil {
			return err
		}
		if err := bank.Accrue(now); err != nil {
			return err
		}

		minted, err = bank.MintDepositShares(cmd.Amount)
		if err != nil {
			return err
		}
		position.AddDepositShares(side, minted, now)

		if err := s.custody.Transfer(txCtx, cmd.Owner, BankVault(cmd.AssetID), cmd.AssetID, cmd.Amount); err != nil {
			return err
		}
		return s.saveLedger(txCtx, bank, position)
	})
	if err != nil {
		return err
	}

	s.publishMutation(ctx, domain.TopicDeposited, cmd, minted)
	return nil
}

// Withdraw 销毁份额取回资产。
// 除余额校验外还检查池内未借出流动性是否足以兑付。
func (s *LendingService) Withdraw(ctx context.Context, cmd LedgerCmd) error {
	now := s.clk.Now().Unix()
	var burned decimal.Decimal

	err := s.db.Transaction(func(tx *gorm.DB) error {
		txCtx := contextx.WithTx(ctx, tx)

		bank, position, side, err := s.loadLedger(txCtx, cmd.Owner, cmd.AssetID)
		if err != nil {
			return err
		}
		if err := bank.Accrue(now); err != nil {
			return err
		}

		accrued := bank.DepositValueOf(position.DepositShares(side))
		if cmd.Amount.GreaterThan(accrued) {
			return domain.ErrInsufficientFunds
		}
		if cmd.Amount.GreaterThan(bank.AvailableLiquidity()) {
			return domain.ErrInsufficientLiquidity
		}

		burned, err = bank.BurnDepositSharesForValue(cmd.Amount, position.DepositShares(side))
		if err != nil {
			return err
		}
		if err := position.SubDepositShares(side, burned, now); err != nil {
			return err
		}

		if err := s.custody.Transfer(txCtx, BankVault(cmd.AssetID), cmd.Owner, cmd.AssetID, cmd.Amount); err != nil {
			return err
		}
		return s.saveLedger(txCtx, bank, position)
	})
	if err != nil {
		return err
	}

	s.publishMutation(ctx, domain.TopicWithdrawn, cmd, burned)
	return nil
}

// Borrow 以另一侧资产为抵押借出资产。
// 健康校验针对加上本次借款后的假想债务，通过后才铸造借款份额并放款。
func (s *LendingService) Borrow(ctx context.Context, cmd LedgerCmd) error {
	nowTime := s.clk.Now()
	now := nowTime.Unix()
	var minted decimal.Decimal

	err := s.db.Transaction(func(tx *gorm.DB) error {
		txCtx := contextx.WithTx(ctx, tx)

		borrowBank, position, borrowSide, err := s.loadLedger(txCtx, cmd.Owner, cmd.AssetID)
		if err != nil {
			return err
		}
		collateralAssetID, err := position.OtherAssetID(cmd.AssetID)
		if err != nil {
			return err
		}
		collateralBank, err := s.banks.GetByAssetID(txCtx, collateralAssetID)
		if err != nil {
			return err
		}
		collateralSide, err := position.SideOf(collateralAssetID)
		if err != nil {
			return err
		}

		if err := borrowBank.Accrue(now); err != nil {
			return err
		}
		if err := collateralBank.Accrue(now); err != nil {
			return err
		}

		borrowPrice, err := s.prices.GetPrice(txCtx, cmd.AssetID, s.maxPriceAge)
		if err != nil {
			return err
		}
		collateralPrice, err := s.prices.GetPrice(txCtx, collateralAssetID, s.maxPriceAge)
		if err != nil {
			return err
		}
		if err := borrowPrice.CheckAge(nowTime, s.maxPriceAge); err != nil {
			return err
		}
		if err := collateralPrice.CheckAge(nowTime, s.maxPriceAge); err != nil {
			return err
		}

		collateralValue := collateralBank.DepositValueOf(position.DepositShares(collateralSide))
		collateralQuoted := collateralValue.Mul(collateralPrice.Value)

		currentDebt := borrowBank.BorrowValueOf(position.BorrowShares(borrowSide))
		projectedDebtQuoted := currentDebt.Add(cmd.Amount).Mul(borrowPrice.Value)

		// 可借上限取清算阈值与最大 LTV 中更紧的一个
		limit := collateralBank.LiquidationThreshold
		if collateralBank.MaxLTV.LessThan(limit) {
			limit = collateralBank.MaxLTV
		}
		if projectedDebtQuoted.GreaterThan(domain.BorrowableAmount(collateralQuoted, limit)) {
			return domain.ErrOverBorrowableAmount
		}

		if cmd.Amount.GreaterThan(borrowBank.AvailableLiquidity()) {
			return domain.ErrInsufficientLiquidity
		}

		minted, err = borrowBank.MintBorrowShares(cmd.Amount)
		if err != nil {
			return err
		}
		position.AddBorrowShares(borrowSide, minted, now)

		if err := s.custody.Transfer(txCtx, BankVault(cmd.AssetID), cmd.Owner, cmd.AssetID, cmd.Amount); err != nil {
			return err
		}
		if err := s.banks.Save(txCtx, collateralBank); err != nil {
			return err
		}
		return s.saveLedger(txCtx, borrowBank, position)
	})
	if err != nil {
		return err
	}

	s.publishMutation(ctx, domain.TopicBorrowed, cmd, minted)
	return nil
}

// Repay 偿还债务销毁借款份额，超出折算后债务的还款被拒绝
func (s *LendingService) Repay(ctx context.Context, cmd LedgerCmd) error {
	now := s.clk.Now().Unix()
	var burned decimal.Decimal

	err := s.db.Transaction(func(tx *gorm.DB) error {
		txCtx := contextx.WithTx(ctx, tx)

		bank, position, side, err := s.loadLedger(txCtx, cmd.Owner, cmd.AssetID)
		if err != nil {
			return err
		}
		if err := bank.Accrue(now); err != nil {
			return err
		}

		accruedDebt := bank.BorrowValueOf(position.BorrowShares(side))
		if cmd.Amount.GreaterThan(accruedDebt) {
			return domain.ErrOverRepayAmount
		}

		burned, err = bank.BurnBorrowSharesForValue(cmd.Amount, position.BorrowShares(side))
		if err != nil {
			return err
		}
		if err := position.SubBorrowShares(side, burned, now); err != nil {
			return err
		}

		if err := s.custody.Transfer(txCtx, cmd.Owner, BankVault(cmd.AssetID), cmd.AssetID, cmd.Amount); err != nil {
			return err
		}
		return s.saveLedger(txCtx, bank, position)
	})
	if err != nil {
		return err
	}

	s.publishMutation(ctx, domain.TopicRepaid, cmd, burned)
	return nil
}

type LiquidateCmd struct {
	Liquidator        string
	Owner             string
	CollateralAssetID string
	BorrowedAssetID   string
}

// Liquidate 清算低于健康因子的仓位。
// 健康校验与两腿划转、份额销毁在同一事务快照内完成，任一腿失败全部回滚。
func (s *LendingService) Liquidate(ctx context.Context, cmd LiquidateCmd) (*domain.LiquidationQuote, error) {
	nowTime := s.clk.Now()
	now := nowTime.Unix()
	var quote *domain.LiquidationQuote

	err := s.db.Transaction(func(tx *gorm.DB) error {
		txCtx := contextx.WithTx(ctx, tx)

		position, err := s.positions.GetByOwner(txCtx, cmd.Owner)
		if err != nil {
			return err
		}
		collateralSide, err := position.SideOf(cmd.CollateralAssetID)
		if err != nil {
			return err
		}
		borrowedSide, err := position.SideOf(cmd.BorrowedAssetID)
		if err != nil {
			return err
		}

		collateralBank, err := s.banks.GetByAssetID(txCtx, cmd.CollateralAssetID)
		if err != nil {
			return err
		}
		borrowedBank, err := s.banks.GetByAssetID(txCtx, cmd.BorrowedAssetID)
		if err != nil {
			return err
		}
		if err := collateralBank.Accrue(now); err != nil {
			return err
		}
		if err := borrowedBank.Accrue(now); err != nil {
			return err
		}

		collateralPrice, err := s.prices.GetPrice(txCtx, cmd.CollateralAssetID, s.maxPriceAge)
		if err != nil {
			return err
		}
		borrowedPrice, err := s.prices.GetPrice(txCtx, cmd.BorrowedAssetID, s.maxPriceAge)
		if err != nil {
			return err
		}
		if err := collateralPrice.CheckAge(nowTime, s.maxPriceAge); err != nil {
			return err
		}
		if err := borrowedPrice.CheckAge(nowTime, s.maxPriceAge); err != nil {
			return err
		}

		collateralValue := collateralBank.DepositValueOf(position.DepositShares(collateralSide))
		debtValue := borrowedBank.BorrowValueOf(position.BorrowShares(borrowedSide))

		quote, err = domain.QuoteLiquidation(
			collateralValue, debtValue,
			collateralPrice.Value, borrowedPrice.Value,
			collateralBank.LiquidationThreshold,
			borrowedBank.LiquidationCloseFactor,
			collateralBank.LiquidationBonus,
		)
		if err != nil {
			return err
		}

		// 清算人代偿债务，等同还款
		repayShares, err := borrowedBank.BurnBorrowSharesForValue(quote.RepayAmount, position.BorrowShares(borrowedSide))
		if err != nil {
			return err
		}
		if err := position.SubBorrowShares(borrowedSide, repayShares, now); err != nil {
			return err
		}
		if err := s.custody.Transfer(txCtx, cmd.Liquidator, BankVault(cmd.BorrowedAssetID), cmd.BorrowedAssetID, quote.RepayAmount); err != nil {
			return err
		}

		// 罚没抵押划给清算人，等同取款
		seizeShares, err := collateralBank.BurnDepositSharesForValue(quote.SeizeAmount, position.DepositShares(collateralSide))
		if err != nil {
			return err
		}
		if err := position.SubDepositShares(collateralSide, seizeShares, now); err != nil {
			return err
		}
		if err := s.custody.Transfer(txCtx, BankVault(cmd.CollateralAssetID), cmd.Liquidator, cmd.CollateralAssetID, quote.SeizeAmount); err != nil {
			return err
		}

		if err := s.banks.Save(txCtx, collateralBank); err != nil {
			return err
		}
		if err := s.banks.Save(txCtx, borrowedBank); err != nil {
			return err
		}
		return s.positions.Save(txCtx, position)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.TopicLiquidated, cmd.Owner, domain.LiquidatedEvent{
		EventID:           eventID(),
		Liquidator:        cmd.Liquidator,
		Owner:             cmd.Owner,
		CollateralAssetID: cmd.CollateralAssetID,
		BorrowedAssetID:   cmd.BorrowedAssetID,
		HealthFactor:      quote.HealthFactor.String(),
		RepaidAmount:      quote.RepayAmount.String(),
		SeizedAmount:      quote.SeizeAmount.String(),
		Timestamp:         nowTime,
	})
	s.logger.InfoContext(ctx, "position liquidated",
		"owner", cmd.Owner,
		"liquidator", cmd.Liquidator,
		"repaid", quote.RepayAmount.String(),
		"seized", quote.SeizeAmount.String(),
	)
	return quote, nil
}

func (s *LendingService) loadLedger(ctx context.Context, owner, assetID string) (*domain.Bank, *domain.Position, domain.AssetSide, error) {
	bank, err := s.banks.GetByAssetID(ctx, assetID)
	if err != nil {
		return nil, nil, "", err
	}
	position, err := s.positions.GetByOwner(ctx, owner)
	if err != nil {
		return nil, nil, "", err
	}
	side, err := position.SideOf(assetID)
	if err != nil {
		return nil, nil, "", err
	}
	return bank, position, side, nil
}

func (s *LendingService) saveLedger(ctx context.Context, bank *domain.Bank, position *domain.Position) error {
	if err := s.banks.Save(ctx, bank); err != nil {
		return err
	}
	return s.positions.Save(ctx, position)
}

func (s *LendingService) publishMutation(ctx context.Context, topic string, cmd LedgerCmd, shares decimal.Decimal) {
	s.publish(ctx, topic, cmd.Owner, domain.LedgerMutationEvent{
		EventID:   eventID(),
		Owner:     cmd.Owner,
		AssetID:   cmd.AssetID,
		Amount:    cmd.Amount.String(),
		Shares:    shares.String(),
		Timestamp: s.clk.Now(),
	})
}

// publish 事件发布失败不回滚业务，仅记录告警
func (s *LendingService) publish(ctx context.Context, topic, key string, value any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, topic, key, value); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "topic", topic, "error", err)
	}
}

func eventID() string {
	return fmt.Sprintf("EVT%s", idgen.GenIDString())
}
