package exchange

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"backxchange/internal/config"
	"backxchange/internal/errs"
	"backxchange/internal/quote"
	"backxchange/internal/slippage"
	"backxchange/internal/timer"
	"backxchange/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

const t0 int64 = 1000
const step int64 = 60

func newExchange(t *testing.T, src *quote.MemorySource, cfg *config.Config) *Exchange {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	tm := timer.New(t0, t0+step*10, step)
	ex, err := New(testLogger(), cfg, src, slippage.Identity{}, tm)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return ex
}

func fixedBarSource(symbol types.Symbol, price string, from, to, step int64) *quote.MemorySource {
	src := quote.NewMemorySource()
	for ts := from; ts <= to; ts += step {
		src.Put(symbol, ts, types.Bar{Open: d(price), High: d(price), Low: d(price), Close: d(price), Volume: d("1000000")})
	}
	return src
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	t.Parallel()

	src := fixedBarSource("XRP/ETH", "0.5", t0, t0+step*10, step)
	ex := newExchange(t, src, nil)

	got, err := ex.Deposit("ETH", d("10"))
	if err != nil {
		t.Fatalf("Deposit() error: %v", err)
	}
	if !got.Equal(d("10")) {
		t.Fatalf("Deposit() = %s, want 10", got)
	}

	got, err = ex.Withdraw("ETH", d("3"))
	if err != nil {
		t.Fatalf("Withdraw() error: %v", err)
	}
	if !got.Equal(d("3")) {
		t.Fatalf("Withdraw() = %s, want 3", got)
	}

	bal, err := ex.FetchBalance("ETH")
	if err != nil {
		t.Fatalf("FetchBalance() error: %v", err)
	}
	if !bal.Total.Equal(d("7")) || !bal.Free.Equal(d("7")) || !bal.Used.IsZero() {
		t.Fatalf("FetchBalance(ETH) = %+v, want total=7 free=7 used=0", bal)
	}

	history := ex.FetchDepositHistory()
	if len(history) != 2 {
		t.Fatalf("FetchDepositHistory() returned %d entries, want 2", len(history))
	}
	if !history[0].Amount.Equal(d("10")) || !history[1].Amount.Equal(d("-3")) {
		t.Fatalf("FetchDepositHistory() amounts = %s, %s; want +10, -3", history[0].Amount, history[1].Amount)
	}
}

func TestDepositRejectsUnsupportedAsset(t *testing.T) {
	t.Parallel()

	src := fixedBarSource("XRP/ETH", "0.5", t0, t0+step*10, step)
	ex := newExchange(t, src, nil)

	_, err := ex.Deposit("DOGE", d("10"))
	if !errors.Is(err, errs.ErrNotSupported) {
		t.Fatalf("expected NotSupported, got %v", err)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	t.Parallel()

	src := fixedBarSource("XRP/ETH", "0.5", t0, t0+step*10, step)
	ex := newExchange(t, src, nil)
	if _, err := ex.Deposit("ETH", d("100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := ex.CreateMarketBuyOrder("XRP/ETH", d("0")); !errors.Is(err, errs.ErrInvalidOrder) {
		t.Fatalf("zero amount: expected InvalidOrder, got %v", err)
	}
	if _, err := ex.CreateMarketBuyOrder("DOGE/ETH", d("10")); !errors.Is(err, errs.ErrInvalidOrder) {
		t.Fatalf("unsupported symbol: expected InvalidOrder, got %v", err)
	}
	if _, err := ex.CreateLimitBuyOrder("XRP/ETH", d("10"), d("0")); !errors.Is(err, errs.ErrInvalidOrder) {
		t.Fatalf("zero limit price: expected InvalidOrder, got %v", err)
	}
	if _, err := ex.CreateStopLimitBuyOrder("XRP/ETH", d("10"), d("0.5"), d("0")); !errors.Is(err, errs.ErrInvalidOrder) {
		t.Fatalf("zero stop price: expected InvalidOrder, got %v", err)
	}
}

func TestMarketBuyOrderFillsOnProcess(t *testing.T) {
	t.Parallel()

	src := fixedBarSource("XRP/ETH", "0.5", t0, t0+step*10, step)
	cfg := config.Default()
	cfg.FeeRatePct = d("1")
	ex := newExchange(t, src, cfg)

	if _, err := ex.Deposit("ETH", d("100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, err := ex.CreateMarketBuyOrder("XRP/ETH", d("100"))
	if err != nil {
		t.Fatalf("CreateMarketBuyOrder() error: %v", err)
	}
	if info.Status != types.Submitted {
		t.Fatalf("new order status = %s, want submitted", info.Status)
	}

	if _, err := ex.Process(); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	got, err := ex.FetchOrder(info.ID)
	if err != nil {
		t.Fatalf("FetchOrder() error: %v", err)
	}
	if got.Status != types.Filled {
		t.Fatalf("order status = %s, want filled", got.Status)
	}

	// 100 XRP bought at 0.5 ETH each costs 50 ETH; 100 XRP credited minus 1% fee.
	eth, err := ex.FetchBalance("ETH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !types.EqualWithTolerance(eth.Total, d("50")) {
		t.Fatalf("ETH total = %s, want 50", eth.Total)
	}
	xrp, err := ex.FetchBalance("XRP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !types.EqualWithTolerance(xrp.Total, d("99")) {
		t.Fatalf("XRP total = %s, want 99", xrp.Total)
	}
}

func TestLimitOrderOpensReservesThenCancelRefunds(t *testing.T) {
	t.Parallel()

	src := fixedBarSource("XRP/ETH", "0.5", t0, t0+step*10, step)
	ex := newExchange(t, src, nil)
	if _, err := ex.Deposit("ETH", d("100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Limit price far below market so it never fills; it just sits open.
	info, err := ex.CreateLimitBuyOrder("XRP/ETH", d("10"), d("0.1"))
	if err != nil {
		t.Fatalf("CreateLimitBuyOrder() error: %v", err)
	}
	if _, err := ex.Process(); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	open := ex.FetchOpenOrders("XRP/ETH", 0)
	if len(open) != 1 || open[0].ID != info.ID {
		t.Fatalf("FetchOpenOrders() = %+v, want one open order %s", open, info.ID)
	}

	eth, err := ex.FetchBalance("ETH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eth.Used.Equal(d("1")) { // 10 * 0.1
		t.Fatalf("ETH used = %s, want 1 (reserved for the limit buy)", eth.Used)
	}

	if err := ex.CancelOpenOrder(info.ID); err != nil {
		t.Fatalf("CancelOpenOrder() error: %v", err)
	}

	eth, err = ex.FetchBalance("ETH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eth.Used.IsZero() || !eth.Total.Equal(d("100")) {
		t.Fatalf("ETH after cancel = %+v, want used=0 total=100", eth)
	}

	closedOrders := ex.FetchClosedOrders("XRP/ETH", 0)
	if len(closedOrders) != 1 || closedOrders[0].Status != types.Cancelled {
		t.Fatalf("FetchClosedOrders() = %+v, want one cancelled order", closedOrders)
	}
}

func TestCancelSubmittedOrderBeforeDrain(t *testing.T) {
	t.Parallel()

	src := fixedBarSource("XRP/ETH", "0.5", t0, t0+step*10, step)
	ex := newExchange(t, src, nil)
	if _, err := ex.Deposit("ETH", d("100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := ex.CreateLimitBuyOrder("XRP/ETH", d("10"), d("0.1"))
	if err != nil {
		t.Fatalf("CreateLimitBuyOrder() error: %v", err)
	}
	if err := ex.CancelSubmittedOrder(info.ID); err != nil {
		t.Fatalf("CancelSubmittedOrder() error: %v", err)
	}
	if _, err := ex.Process(); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	got, err := ex.FetchOrder(info.ID)
	if err != nil {
		t.Fatalf("FetchOrder() error: %v", err)
	}
	if got.Status != types.Cancelled {
		t.Fatalf("order status = %s, want cancelled", got.Status)
	}

	eth, err := ex.FetchBalance("ETH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eth.Used.IsZero() {
		t.Fatalf("ETH used = %s, want 0 (order never reserved, cancelled before drain)", eth.Used)
	}
}

func TestCancelSubmittedOrderUnknownIDFails(t *testing.T) {
	t.Parallel()

	src := fixedBarSource("XRP/ETH", "0.5", t0, t0+step*10, step)
	ex := newExchange(t, src, nil)

	if err := ex.CancelSubmittedOrder("nonexistent"); !errors.Is(err, errs.ErrOrderNotFound) {
		t.Fatalf("expected OrderNotFound, got %v", err)
	}
	if _, err := ex.FetchOrder("nonexistent"); !errors.Is(err, errs.ErrOrderNotFound) {
		t.Fatalf("expected OrderNotFound, got %v", err)
	}
}

func TestListingDelistCancelsOpenOrdersAndRemovesAsset(t *testing.T) {
	t.Parallel()

	src := quote.NewMemorySource()
	src.Put("NANO/ETH", t0, types.Bar{Open: d("0.001"), High: d("0.001"), Low: d("0.001"), Close: d("0.001"), Volume: d("1000")})
	// NANO/ETH is absent starting the next tick: delisted.

	ex := newExchange(t, src, nil)
	if _, err := ex.Deposit("ETH", d("10")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := ex.CreateLimitBuyOrder("NANO/ETH", d("100"), d("0.0001"))
	if err != nil {
		t.Fatalf("CreateLimitBuyOrder() error: %v", err)
	}
	if _, err := ex.Process(); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(ex.FetchOpenOrders("NANO/ETH", 0)) != 1 {
		t.Fatalf("expected the order to be open before delisting")
	}

	if _, err := ex.Process(); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	got, err := ex.FetchOrder(info.ID)
	if err != nil {
		t.Fatalf("FetchOrder() error: %v", err)
	}
	if got.Status != types.Cancelled {
		t.Fatalf("order status after delisting = %s, want cancelled", got.Status)
	}
	if _, err := ex.FetchBalance("NANO"); !errors.Is(err, errs.ErrNotSupported) {
		t.Fatalf("expected NANO balance entry removed after delisting, got err=%v", err)
	}
}

func TestFetchBalanceInSelfMapping(t *testing.T) {
	t.Parallel()

	src := fixedBarSource("XRP/ETH", "0.5", t0, t0+step*10, step)
	ex := newExchange(t, src, nil)
	if _, err := ex.Deposit("ETH", d("42")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := ex.FetchBalanceIn("ETH", false)
	if err != nil {
		t.Fatalf("FetchBalanceIn() error: %v", err)
	}
	if !got.Equal(d("42")) {
		t.Fatalf("FetchBalanceIn(ETH) = %s, want 42", got)
	}
}

func TestProcessRunsInvariantCheckWithoutError(t *testing.T) {
	t.Parallel()

	src := fixedBarSource("XRP/ETH", "0.5", t0, t0+step*10, step)
	cfg := config.Default()
	cfg.DebugInvariants = true
	ex := newExchange(t, src, cfg)

	if _, err := ex.Deposit("ETH", d("100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ex.CreateLimitBuyOrder("XRP/ETH", d("10"), d("0.1")); err != nil {
		t.Fatalf("CreateLimitBuyOrder() error: %v", err)
	}
	if _, err := ex.CreateMarketBuyOrder("XRP/ETH", d("5")); err != nil {
		t.Fatalf("CreateMarketBuyOrder() error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := ex.Process(); err != nil {
			t.Fatalf("Process() iteration %d error: %v", i, err)
		}
	}
}

func TestProcessReportsDoneAtTimerEnd(t *testing.T) {
	t.Parallel()

	src := fixedBarSource("XRP/ETH", "0.5", t0, t0+step*3, step)
	tm := timer.New(t0, t0+step*2, step)
	ex, err := New(testLogger(), config.Default(), src, slippage.Identity{}, tm)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	done, err := ex.Process()
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if done {
		t.Fatal("Process() reported done after the first tick, want false")
	}
	done, err = ex.Process()
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if done {
		t.Fatal("Process() reported done after the second tick, want false")
	}
	done, err = ex.Process()
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if !done {
		t.Fatal("Process() should report done once past the timer's end")
	}
}
