package application

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/amitk-codes/lendity-fi/internal/lending/domain"
)

type fakeTxRunner struct{}

func (fakeTxRunner) Transaction(fc func(tx *gorm.DB) error, _ ...*sql.TxOptions) error {
	return fc(nil)
}

// fakeBankRepo 读取返回副本、保存覆盖存量，未提交的内存修改不会外泄
type fakeBankRepo struct {
	banks map[string]*domain.Bank
}

func newFakeBankRepo() *fakeBankRepo {
	return &fakeBankRepo{banks: make(map[string]*domain.Bank)}
}

func (r *fakeBankRepo) Create(_ context.Context, bank *domain.Bank) error {
	if _, ok := r.banks[bank.AssetID]; ok {
		return domain.ErrBankExists
	}
	clone := *bank
	r.banks[bank.AssetID] = &clone
	return nil
}

func (r *fakeBankRepo) Save(_ context.Context, bank *domain.Bank) error {
	clone := *bank
	r.banks[bank.AssetID] = &clone
	return nil
}

func (r *fakeBankRepo) GetByAssetID(_ context.Context, assetID string) (*domain.Bank, error) {
	bank, ok := r.banks[assetID]
	if !ok {
		return nil, domain.ErrBankNotFound
	}
	clone := *bank
	return &clone, nil
}

func (r *fakeBankRepo) List(_ context.Context) ([]*domain.Bank, error) {
	out := make([]*domain.Bank, 0, len(r.banks))
	for _, bank := range r.banks {
		clone := *bank
		out = append(out, &clone)
	}
	return out, nil
}

type fakePositionRepo struct {
	positions map[string]*domain.Position
}

func newFakePositionRepo() *fakePositionRepo {
	return &fakePositionRepo{positions: make(map[string]*domain.Position)}
}

func (r *fakePositionRepo) Create(_ context.Context, p *domain.Position) error {
	if _, ok := r.positions[p.Owner]; ok {
		return domain.ErrPositionExists
	}
	clone := *p
	r.positions[p.Owner] = &clone
	return nil
}

func (r *fakePositionRepo) Save(_ context.Context, p *domain.Position) error {
	clone := *p
	r.positions[p.Owner] = &clone
	return nil
}

func (r *fakePositionRepo) GetByOwner(_ context.Context, owner string) (*domain.Position, error) {
	p, ok := r.positions[owner]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	clone := *p
	return &clone, nil
}

type fakeCustody struct {
	balances map[string]decimal.Decimal
}

func newFakeCustody() *fakeCustody {
	return &fakeCustody{balances: make(map[string]decimal.Decimal)}
}

func (c *fakeCustody) key(account, assetID string) string { return account + "/" + assetID }

func (c *fakeCustody) set(account, assetID string, amount int64) {
	c.balances[c.key(account, assetID)] = decimal.NewFromInt(amount)
}

func (c *fakeCustody) balance(account, assetID string) decimal.Decimal {
	return c.balances[c.key(account, assetID)]
}

func (c *fakeCustody) Transfer(_ context.Context, from, to, assetID string, amount decimal.Decimal) error {
	src := c.balances[c.key(from, assetID)]
	if src.LessThan(amount) {
		return domain.ErrTransferFailed
	}
	c.balances[c.key(from, assetID)] = src.Sub(amount)
	c.balances[c.key(to, assetID)] = c.balances[c.key(to, assetID)].Add(amount)
	return nil
}

type fakePriceFeed struct {
	prices map[string]*domain.Price
}

func newFakePriceFeed() *fakePriceFeed {
	return &fakePriceFeed{prices: make(map[string]*domain.Price)}
}

func (f *fakePriceFeed) GetPrice(_ context.Context, assetID string, _ time.Duration) (*domain.Price, error) {
	p, ok := f.prices[assetID]
	if !ok {
		return nil, domain.ErrMissingPrice
	}
	return p, nil
}

type fakePublisher struct {
	topics []string
}

func (p *fakePublisher) Publish(_ context.Context, topic, _ string, _ any) error {
	p.topics = append(p.topics, topic)
	return nil
}

type testEnv struct {
	svc       *LendingService
	banks     *fakeBankRepo
	positions *fakePositionRepo
	custody   *fakeCustody
	prices    *fakePriceFeed
	events    *fakePublisher
	clk       *clock.Mock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		banks:     newFakeBankRepo(),
		positions: newFakePositionRepo(),
		custody:   newFakeCustody(),
		prices:    newFakePriceFeed(),
		events:    &fakePublisher{},
		clk:       clock.NewMock(),
	}
	env.svc = NewLendingService(
		env.banks, env.positions, env.custody, env.prices, env.events,
		fakeTxRunner{}, env.clk, time.Minute, slog.Default(),
	)
	return env
}

func (e *testEnv) setPrice(assetID string, value string) {
	e.prices.prices[assetID] = &domain.Price{
		AssetID:   assetID,
		Value:     decimal.RequireFromString(value),
		Timestamp: e.clk.Now(),
	}
}

func (e *testEnv) initBank(t *testing.T, assetID string, rate float64) {
	t.Helper()
	require.NoError(t, e.svc.InitializeBank(context.Background(), InitializeBankCmd{
		Authority:              "authority-1",
		AssetID:                assetID,
		LiquidationThreshold:   decimal.RequireFromString("0.8"),
		MaxLTV:                 decimal.RequireFromString("0.8"),
		LiquidationBonus:       decimal.RequireFromString("0.1"),
		LiquidationCloseFactor: decimal.RequireFromString("0.5"),
		InterestRate:           rate,
	}))
}

func (e *testEnv) initUser(t *testing.T, owner string) {
	t.Helper()
	require.NoError(t, e.svc.InitializeUser(context.Background(), InitializeUserCmd{
		Owner:             owner,
		CollateralAssetID: "ETH",
		StableAssetID:     "USDC",
	}))
}

func TestInitializeBankDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.initBank(t, "ETH", 0)

	err := env.svc.InitializeBank(context.Background(), InitializeBankCmd{
		Authority:            "authority-2",
		AssetID:              "ETH",
		LiquidationThreshold: decimal.RequireFromString("0.8"),
	})
	assert.ErrorIs(t, err, domain.ErrBankExists)
}

func TestInitializeUserDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.initUser(t, "alice")

	err := env.svc.InitializeUser(context.Background(), InitializeUserCmd{
		Owner:             "alice",
		CollateralAssetID: "ETH",
		StableAssetID:     "USDC",
	})
	assert.ErrorIs(t, err, domain.ErrPositionExists)
}

func TestDepositWithoutPosition(t *testing.T) {
	env := newTestEnv(t)
	env.initBank(t, "ETH", 0)

	err := env.svc.Deposit(context.Background(), LedgerCmd{
		Owner: "alice", AssetID: "ETH", Amount: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestDepositTransferFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.initBank(t, "ETH", 0)
	env.initUser(t, "alice")
	env.custody.set("alice", "ETH", 10)

	err := env.svc.Deposit(context.Background(), LedgerCmd{
		Owner: "alice", AssetID: "ETH", Amount: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	bank, err := env.banks.GetByAssetID(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, bank.TotalDepositValue.IsZero())
	assert.True(t, env.custody.balance("alice", "ETH").Equal(decimal.NewFromInt(10)))
}

func TestWithdrawValidation(t *testing.T) {
	env := newTestEnv(t)
	env.initBank(t, "USDC", 0)
	env.initBank(t, "ETH", 0)
	env.initUser(t, "alice")
	env.initUser(t, "bob")
	env.custody.set("alice", "ETH", 1000)
	env.custody.set("bob", "USDC", 10000)
	env.setPrice("ETH", "1")
	env.setPrice("USDC", "1")

	require.NoError(t, env.svc.Deposit(context.Background(), LedgerCmd{
		Owner: "alice", AssetID: "ETH", Amount: decimal.NewFromInt(1000),
	}))
	require.NoError(t, env.svc.Deposit(context.Background(), LedgerCmd{
		Owner: "bob", AssetID: "USDC", Amount: decimal.NewFromInt(10000),
	}))

	t.Run("over balance rejected", func(t *testing.T) {
		err := env.svc.Withdraw(context.Background(), LedgerCmd{
			Owner: "alice", AssetID: "ETH", Amount: decimal.NewFromInt(1001),
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	t.Run("over liquidity rejected", func(t *testing.T) {
		require.NoError(t, env.svc.Borrow(context.Background(), LedgerCmd{
			Owner: "alice", AssetID: "USDC", Amount: decimal.NewFromInt(500),
		}))
		err := env.svc.Withdraw(context.Background(), LedgerCmd{
			Owner: "bob", AssetID: "USDC", Amount: decimal.NewFromInt(10000),
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
	})

	t.Run("partial withdraw succeeds", func(t *testing.T) {
		require.NoError(t, env.svc.Withdraw(context.Background(), LedgerCmd{
			Owner: "bob", AssetID: "USDC", Amount: decimal.NewFromInt(500),
		}))
		assert.True(t, env.custody.balance("bob", "USDC").Equal(decimal.NewFromInt(500)))
	})
}

func TestAccrualThroughService(t *testing.T) {
	env := newTestEnv(t)
	env.initBank(t, "USDC", 1.0)
	env.initUser(t, "bob")
	env.custody.set("bob", "USDC", 1000)

	require.NoError(t, env.svc.Deposit(context.Background(), LedgerCmd{
		Owner: "bob", AssetID: "USDC", Amount: decimal.NewFromInt(1000),
	}))

	env.clk.Add(time.Second)

	view, err := env.svc.GetBank(context.Background(), "USDC")
	require.NoError(t, err)
	// 1000 * e^1 = 2718.28... -> 2718
	assert.Equal(t, "2718", view.TotalDepositValue)
	assert.Equal(t, "1000", view.TotalDepositShares)
}

// 端到端：存入抵押、借款受限、价格下跌触发清算
func TestLendingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.initBank(t, "ETH", 0)
	env.initBank(t, "USDC", 0)
	env.initUser(t, "alice")
	env.initUser(t, "bob")

	env.custody.set("alice", "ETH", 1000)
	env.custody.set("bob", "USDC", 10000)
	env.custody.set("carol", "USDC", 1000)

	env.setPrice("ETH", "1")
	env.setPrice("USDC", "1")

	// 流动性注入与抵押存入
	require.NoError(t, env.svc.Deposit(ctx, LedgerCmd{Owner: "bob", AssetID: "USDC", Amount: decimal.NewFromInt(10000)}))
	require.NoError(t, env.svc.Deposit(ctx, LedgerCmd{Owner: "alice", AssetID: "ETH", Amount: decimal.NewFromInt(1000)}))
	assert.True(t, env.custody.balance(BankVault("ETH"), "ETH").Equal(decimal.NewFromInt(1000)))

	// 阈值 0.8：可借上限 800
	require.NoError(t, env.svc.Borrow(ctx, LedgerCmd{Owner: "alice", AssetID: "USDC", Amount: decimal.NewFromInt(500)}))
	assert.True(t, env.custody.balance("alice", "USDC").Equal(decimal.NewFromInt(500)))

	err := env.svc.Borrow(ctx, LedgerCmd{Owner: "alice", AssetID: "USDC", Amount: decimal.NewFromInt(400)})
	assert.ErrorIs(t, err, domain.ErrOverBorrowableAmount)

	health, err := env.svc.GetHealthFactor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1.6", health.HealthFactor)
	assert.False(t, health.Liquidatable)

	// 健康仓位不可清算
	_, err = env.svc.Liquidate(ctx, LiquidateCmd{
		Liquidator: "carol", Owner: "alice",
		CollateralAssetID: "ETH", BorrowedAssetID: "USDC",
	})
	assert.ErrorIs(t, err, domain.ErrHealthyPosition)

	// 超额还款被拒
	err = env.svc.Repay(ctx, LedgerCmd{Owner: "alice", AssetID: "USDC", Amount: decimal.NewFromInt(501)})
	assert.ErrorIs(t, err, domain.ErrOverRepayAmount)

	// 抵押价格腰斩：hf = 500*0.8/500 = 0.8
	env.setPrice("ETH", "0.5")

	health, err = env.svc.GetHealthFactor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "0.8", health.HealthFactor)
	assert.True(t, health.Liquidatable)

	quote, err := env.svc.Liquidate(ctx, LiquidateCmd{
		Liquidator: "carol", Owner: "alice",
		CollateralAssetID: "ETH", BorrowedAssetID: "USDC",
	})
	require.NoError(t, err)
	// closeFactor 0.5：代偿 250；罚没 250*1*1.1/0.5 = 550
	assert.True(t, quote.RepayAmount.Equal(decimal.NewFromInt(250)), "repay %s", quote.RepayAmount)
	assert.True(t, quote.SeizeAmount.Equal(decimal.NewFromInt(550)), "seize %s", quote.SeizeAmount)

	assert.True(t, env.custody.balance("carol", "USDC").Equal(decimal.NewFromInt(750)))
	assert.True(t, env.custody.balance("carol", "ETH").Equal(decimal.NewFromInt(550)))
	assert.True(t, env.custody.balance(BankVault("ETH"), "ETH").Equal(decimal.NewFromInt(450)))

	position, err := env.svc.GetPosition(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "450", position.Collateral.DepositShares)
	assert.Equal(t, "250", position.Stable.BorrowShares)

	// 债务与份额同步缩减，事件全程发布
	assert.Contains(t, env.events.topics, domain.TopicLiquidated)
	assert.Contains(t, env.events.topics, domain.TopicBorrowed)
	assert.Contains(t, env.events.topics, domain.TopicDeposited)
}

func TestInitializeUserDuplicateAssetID(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.InitializeUser(context.Background(), InitializeUserCmd{
		Owner:             "alice",
		CollateralAssetID: "USDC",
		StableAssetID:     "USDC",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateAsset)

	_, err = env.positions.GetByOwner(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestBorrowAtExactLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.initBank(t, "ETH", 0)
	env.initBank(t, "USDC", 0)
	env.initUser(t, "alice")
	env.initUser(t, "bob")
	env.custody.set("alice", "ETH", 1000)
	env.custody.set("bob", "USDC", 10000)
	env.setPrice("ETH", "1")
	env.setPrice("USDC", "1")

	require.NoError(t, env.svc.Deposit(ctx, LedgerCmd{Owner: "bob", AssetID: "USDC", Amount: decimal.NewFromInt(10000)}))
	require.NoError(t, env.svc.Deposit(ctx, LedgerCmd{Owner: "alice", AssetID: "ETH", Amount: decimal.NewFromInt(1000)}))

	// 恰好触线的借款允许通过，再多一个单位被拒
	require.NoError(t, env.svc.Borrow(ctx, LedgerCmd{Owner: "alice", AssetID: "USDC", Amount: decimal.NewFromInt(800)}))
	assert.True(t, env.custody.balance("alice", "USDC").Equal(decimal.NewFromInt(800)))

	err := env.svc.Borrow(ctx, LedgerCmd{Owner: "alice", AssetID: "USDC", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrOverBorrowableAmount)
}

func TestBorrowStalePrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.initBank(t, "ETH", 0)
	env.initBank(t, "USDC", 0)
	env.initUser(t, "alice")
	env.initUser(t, "bob")
	env.custody.set("alice", "ETH", 1000)
	env.custody.set("bob", "USDC", 10000)
	env.setPrice("ETH", "1")
	env.setPrice("USDC", "1")

	require.NoError(t, env.svc.Deposit(ctx, LedgerCmd{Owner: "bob", AssetID: "USDC", Amount: decimal.NewFromInt(10000)}))
	require.NoError(t, env.svc.Deposit(ctx, LedgerCmd{Owner: "alice", AssetID: "ETH", Amount: decimal.NewFromInt(1000)}))

	// 价格超过最大时效
	env.clk.Add(2 * time.Minute)

	err := env.svc.Borrow(ctx, LedgerCmd{Owner: "alice", AssetID: "USDC", Amount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, domain.ErrStalePrice)
}

func TestBorrowInsufficientLiquidity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.initBank(t, "ETH", 0)
	env.initBank(t, "USDC", 0)
	env.initUser(t, "alice")
	env.initUser(t, "bob")
	env.custody.set("alice", "ETH", 1000)
	env.custody.set("bob", "USDC", 100)
	env.setPrice("ETH", "1")
	env.setPrice("USDC", "1")

	require.NoError(t, env.svc.Deposit(ctx, LedgerCmd{Owner: "bob", AssetID: "USDC", Amount: decimal.NewFromInt(100)}))
	require.NoError(t, env.svc.Deposit(ctx, LedgerCmd{Owner: "alice", AssetID: "ETH", Amount: decimal.NewFromInt(1000)}))

	// 额度允许 800 但池内只有 100
	err := env.svc.Borrow(ctx, LedgerCmd{Owner: "alice", AssetID: "USDC", Amount: decimal.NewFromInt(500)})
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
}
