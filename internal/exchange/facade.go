// Package exchange implements the Exchange Facade: the single public
// surface a Strategy drives, owning the Timer, the Balance Ledger, the
// Submitted Queue, the Open/Closed Books, the Listing Controller, the
// Matching Engine, and the Portfolio Valuator.
//
// Every mutating call validates its arguments and raises a typed error from
// internal/errs on failure. Deposits, withdrawals and open-order
// cancellations take effect immediately; order creation only enqueues, and
// process() is the only call that fills orders.
package exchange

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"backxchange/internal/book"
	"backxchange/internal/config"
	"backxchange/internal/errs"
	"backxchange/internal/ledger"
	"backxchange/internal/listing"
	"backxchange/internal/matching"
	"backxchange/internal/order"
	"backxchange/internal/quote"
	"backxchange/internal/slippage"
	"backxchange/internal/timer"
	"backxchange/internal/valuation"
	"backxchange/pkg/types"
)

// Exchange is the facade every Strategy call goes through. It owns every
// order for life; the Open/Closed Books reference orders, they do not
// duplicate them, and the Submitted Queue owns a submitted order until the
// matching engine drains it.
type Exchange struct {
	log    *slog.Logger
	cfg    *config.Config
	source quote.Source
	tm     *timer.Timer

	ledger   *ledger.Ledger
	listing  *listing.Controller
	engine   *matching.Engine
	valuator *valuation.Valuator

	queue  *book.SubmittedQueue
	open   *book.OrderBook
	closed *book.OrderBook

	nextID uint64
}

// New builds an Exchange wired from cfg, a Quote Source, a slippage Model,
// and a Timer, seeding the ledger with a zero entry for every asset the
// source can ever name and then applying cfg.InitialDeposits. Mirrors
// BackExchange's constructor in seeding balances from the quote source's
// asset list up front rather than lazily on first listing.
func New(log *slog.Logger, cfg *config.Config, source quote.Source, model slippage.Model, tm *timer.Timer) (*Exchange, error) {
	log = log.With("component", "exchange")
	l := ledger.New(log)

	for _, symbol := range source.Symbols() {
		quoteAsset, baseAsset := symbol.Split()
		l.CreateEntry(quoteAsset)
		l.CreateEntry(baseAsset)
	}

	engineCfg := matching.Config{FeeRatePct: cfg.FeeRatePct, BuyPrice: cfg.BuyPrice, SellPrice: cfg.SellPrice}
	ctrl := listing.New(log, source, l)
	engine := matching.New(log, engineCfg, source, model, l)
	valuatorCfg := valuation.Config{FeeRatePct: cfg.FeeRatePct, BuyPrice: cfg.BuyPrice, SellPrice: cfg.SellPrice}
	val := valuation.New(valuatorCfg, source, ctrl, l)

	e := &Exchange{
		log:      log,
		cfg:      cfg,
		source:   source,
		tm:       tm,
		ledger:   l,
		listing:  ctrl,
		engine:   engine,
		valuator: val,
		queue:    book.NewSubmittedQueue(),
		open:     book.New(),
		closed:   book.New(),
	}

	if err := e.listing.Reconcile(tm.Now(), e.open, e.closed); err != nil {
		return nil, fmt.Errorf("new: initial reconcile: %w", err)
	}

	for asset, amountStr := range cfg.InitialDeposits {
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("new: initial_deposits[%s]: %w", asset, err)
		}
		if !e.ledger.HasEntry(asset) {
			e.ledger.CreateEntry(asset)
		}
		if _, err := e.Deposit(asset, amount); err != nil {
			return nil, fmt.Errorf("new: initial_deposits[%s]: %w", asset, err)
		}
	}

	return e, nil
}

func (e *Exchange) newOrderID() string {
	e.nextID++
	return fmt.Sprintf("%020d", e.nextID)
}

// Deposit credits qty of asset. A non-positive qty is a no-op returning
// zero, matching the ledger's own clamp-free behavior.
func (e *Exchange) Deposit(asset types.Asset, qty decimal.Decimal) (decimal.Decimal, error) {
	if !e.ledger.HasEntry(asset) {
		return decimal.Zero, errs.Newf(errs.NotSupported, "deposit", "asset %s is not supported", asset)
	}
	return e.ledger.Deposit(e.tm.Now(), asset, qty)
}

// Withdraw debits up to qty of asset from available balance, clamping.
func (e *Exchange) Withdraw(asset types.Asset, qty decimal.Decimal) (decimal.Decimal, error) {
	if !e.ledger.HasEntry(asset) {
		return decimal.Zero, errs.Newf(errs.NotSupported, "withdraw", "asset %s is not supported", asset)
	}
	return e.ledger.Withdraw(e.tm.Now(), asset, qty)
}

func (e *Exchange) validateCreate(symbol types.Symbol, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return errs.Newf(errs.InvalidOrder, "create_order", "amount must be > 0, got %s", amount)
	}
	if !e.listing.IsSymbolSupported(symbol) {
		return errs.Newf(errs.InvalidOrder, "create_order", "symbol %s is not supported", symbol)
	}
	return nil
}

func (e *Exchange) createOrder(symbol types.Symbol, side types.Side, typ types.OrderType, amount, price, stopPrice decimal.Decimal) (order.Info, error) {
	if err := e.validateCreate(symbol, amount); err != nil {
		return order.Info{}, err
	}
	if typ == types.Limit && price.Sign() <= 0 {
		return order.Info{}, errs.Newf(errs.InvalidOrder, "create_order", "price must be > 0 for limit orders, got %s", price)
	}
	if typ == types.StopLimit {
		if price.Sign() <= 0 {
			return order.Info{}, errs.Newf(errs.InvalidOrder, "create_order", "price must be > 0 for stop-limit orders, got %s", price)
		}
		if stopPrice.Sign() <= 0 {
			return order.Info{}, errs.Newf(errs.InvalidOrder, "create_order", "stop_price must be > 0 for stop-limit orders, got %s", stopPrice)
		}
	}

	o, err := order.New(e.newOrderID(), e.tm.Now(), symbol, side, typ, amount, price, stopPrice)
	if err != nil {
		return order.Info{}, errs.New(errs.InvalidOrder, "create_order", err)
	}
	e.queue.Push(o)
	e.log.Debug("order submitted", "id", o.ID, "symbol", symbol, "side", side, "type", typ, "amount", amount)
	return o.Info(), nil
}

// CreateMarketBuyOrder enqueues a market buy for later draining by process().
func (e *Exchange) CreateMarketBuyOrder(symbol types.Symbol, amount decimal.Decimal) (order.Info, error) {
	return e.createOrder(symbol, types.Buy, types.Market, amount, decimal.Zero, decimal.Zero)
}

// CreateMarketSellOrder enqueues a market sell.
func (e *Exchange) CreateMarketSellOrder(symbol types.Symbol, amount decimal.Decimal) (order.Info, error) {
	return e.createOrder(symbol, types.Sell, types.Market, amount, decimal.Zero, decimal.Zero)
}

// CreateLimitBuyOrder enqueues a limit buy at price.
func (e *Exchange) CreateLimitBuyOrder(symbol types.Symbol, amount, price decimal.Decimal) (order.Info, error) {
	return e.createOrder(symbol, types.Buy, types.Limit, amount, price, decimal.Zero)
}

// CreateLimitSellOrder enqueues a limit sell at price.
func (e *Exchange) CreateLimitSellOrder(symbol types.Symbol, amount, price decimal.Decimal) (order.Info, error) {
	return e.createOrder(symbol, types.Sell, types.Limit, amount, price, decimal.Zero)
}

// CreateStopLimitBuyOrder enqueues a stop-limit buy, triggering at stopPrice
// and then behaving as a limit buy at price.
func (e *Exchange) CreateStopLimitBuyOrder(symbol types.Symbol, amount, price, stopPrice decimal.Decimal) (order.Info, error) {
	return e.createOrder(symbol, types.Buy, types.StopLimit, amount, price, stopPrice)
}

// CreateStopLimitSellOrder enqueues a stop-limit sell.
func (e *Exchange) CreateStopLimitSellOrder(symbol types.Symbol, amount, price, stopPrice decimal.Decimal) (order.Info, error) {
	return e.createOrder(symbol, types.Sell, types.StopLimit, amount, price, stopPrice)
}

// CancelSubmittedOrder marks a still-queued order Cancelled in place; it is
// still drained in FIFO position on the next process() call, landing
// straight in the Closed Book.
func (e *Exchange) CancelSubmittedOrder(id string) error {
	if _, ok := e.queue.Get(id); !ok {
		return errs.Newf(errs.OrderNotFound, "cancel_submitted_order", "order %s is not in the submitted queue", id)
	}
	if !e.queue.Cancel(id) {
		return errs.Newf(errs.OrderNotFound, "cancel_submitted_order", "order %s is not in the submitted queue", id)
	}
	return nil
}

// CancelOpenOrder cancels an order from the Open Book and refunds its
// remaining reservation immediately, moving it to the Closed Book.
func (e *Exchange) CancelOpenOrder(id string) error {
	o, ok := e.open.Get(id)
	if !ok {
		return errs.Newf(errs.OrderNotFound, "cancel_open_order", "order %s is not open", id)
	}
	if err := e.ledger.CancelAndRefund(o); err != nil {
		return err
	}
	e.open.Remove(id)
	e.closed.Insert(o)
	return nil
}

// FetchTicker returns the OHLCV bar for symbol at the current tick.
func (e *Exchange) FetchTicker(symbol types.Symbol) (Ticker, error) {
	bar, err := e.source.Bar(symbol, e.tm.Now())
	if err != nil {
		return Ticker{}, errs.Newf(errs.NotSupported, "fetch_ticker", "symbol %s not supported at %d", symbol, e.tm.Now())
	}
	return tickerFrom(bar), nil
}

// FetchAllTickers returns the OHLCV bar for every currently supported
// symbol at the current tick.
func (e *Exchange) FetchAllTickers() map[types.Symbol]Ticker {
	out := make(map[types.Symbol]Ticker)
	for _, symbol := range e.listing.SupportedSymbols() {
		if bar, err := e.source.Bar(symbol, e.tm.Now()); err == nil {
			out[symbol] = tickerFrom(bar)
		}
	}
	return out
}

// FetchMarkets returns every symbol currently supported.
func (e *Exchange) FetchMarkets() []types.Symbol {
	return e.listing.SupportedSymbols()
}

// FetchTimestamp returns the current tick timestamp.
func (e *Exchange) FetchTimestamp() int64 {
	return e.tm.Now()
}

// FetchBalance returns the {total, free, used} entry for asset.
func (e *Exchange) FetchBalance(asset types.Asset) (BalanceEntry, error) {
	entry, ok := e.ledger.Balance(asset)
	if !ok {
		return BalanceEntry{}, errs.Newf(errs.NotSupported, "fetch_balance", "asset %s is not supported", asset)
	}
	return balanceEntryFrom(entry), nil
}

// FetchBalances returns the {total, free, used} entry for every asset
// carrying a balance entry.
func (e *Exchange) FetchBalances() map[types.Asset]BalanceEntry {
	out := make(map[types.Asset]BalanceEntry)
	for _, asset := range e.ledger.Assets() {
		if entry, ok := e.ledger.Balance(asset); ok {
			out[asset] = balanceEntryFrom(entry)
		}
	}
	return out
}

// FetchDepositHistory returns the full deposit/withdraw audit log.
func (e *Exchange) FetchDepositHistory() []DepositRecord {
	history := e.ledger.History()
	out := make([]DepositRecord, 0, len(history))
	for _, r := range history {
		out = append(out, depositRecordFrom(r))
	}
	return out
}

// FetchOpenOrders returns Open Book orders, optionally filtered to symbol,
// truncated to limit when limit > 0.
func (e *Exchange) FetchOpenOrders(symbol types.Symbol, limit int) []order.Info {
	return infoList(e.open.List(symbol, limit))
}

// FetchClosedOrders returns Closed Book orders, optionally filtered to
// symbol, truncated to limit when limit > 0.
func (e *Exchange) FetchClosedOrders(symbol types.Symbol, limit int) []order.Info {
	return infoList(e.closed.List(symbol, limit))
}

// FetchSubmittedOrders returns every order still awaiting the drain phase.
func (e *Exchange) FetchSubmittedOrders() []order.Info {
	out := make([]order.Info, 0)
	for _, id := range e.queue.IDs() {
		if o, ok := e.queue.Get(id); ok {
			out = append(out, o.Info())
		}
	}
	return out
}

// FetchOrder looks up an order by id across all three indices.
func (e *Exchange) FetchOrder(id string) (order.Info, error) {
	if o, ok := e.queue.Get(id); ok {
		return o.Info(), nil
	}
	if o, ok := e.open.Get(id); ok {
		return o.Info(), nil
	}
	if o, ok := e.closed.Get(id); ok {
		return o.Info(), nil
	}
	return order.Info{}, errs.Newf(errs.OrderNotFound, "fetch_order", "order %s not found", id)
}

// FetchBalanceIn converts the whole portfolio into target, per the
// Portfolio Valuator's shortest-conversion-path algorithm.
func (e *Exchange) FetchBalanceIn(target types.Asset, includeFee bool) (decimal.Decimal, error) {
	return e.valuator.Value(e.tm.Now(), target, includeFee)
}

// Process runs one tick: reconcile listings, drain the Submitted Queue,
// re-examine the Open Book, mark the tick processed, then advance the
// Timer. When cfg.DebugInvariants is set, the data-model invariants are
// checked after a successful tick and a violation is fatal and
// non-recoverable. done reports whether the run has reached the Timer's
// end, matching the Timer.Advance contract.
func (e *Exchange) Process() (done bool, err error) {
	now := e.tm.Now()

	if err := e.listing.Reconcile(now, e.open, e.closed); err != nil {
		return false, fmt.Errorf("process: reconcile: %w", err)
	}
	if err := e.engine.Process(now, e.queue, e.open, e.closed); err != nil {
		return false, err
	}
	if err := e.tm.MarkProcessed(now); err != nil {
		return false, fmt.Errorf("process: %w", err)
	}
	if e.cfg.DebugInvariants {
		if err := e.checkInvariants(); err != nil {
			return false, fmt.Errorf("process: invariant violation: %w", err)
		}
	}
	return e.tm.Advance(), nil
}

func infoList(orders []*order.Order) []order.Info {
	out := make([]order.Info, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Info())
	}
	return out
}
