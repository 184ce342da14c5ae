package exchange

import (
	"github.com/shopspring/decimal"

	"backxchange/internal/ledger"
	"backxchange/pkg/types"
)

// BalanceEntry is the observable {total, free, used} balance shape returned
// across the fetch_balance family of calls.
type BalanceEntry struct {
	Total decimal.Decimal `json:"total"`
	Free  decimal.Decimal `json:"free"`
	Used  decimal.Decimal `json:"used"`
}

func balanceEntryFrom(e ledger.Entry) BalanceEntry {
	return BalanceEntry{Total: e.Total, Free: e.Free, Used: e.Used}
}

// Ticker is the observable OHLCV shape returned by fetch_ticker.
type Ticker struct {
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

func tickerFrom(b types.Bar) Ticker {
	return Ticker{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
}

// DepositRecord is the observable deposit-history entry shape: amount is
// signed, positive for a deposit and negative for a withdraw.
type DepositRecord struct {
	Timestamp int64           `json:"timestamp"`
	Asset     types.Asset     `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
}

func depositRecordFrom(r ledger.DepositRecord) DepositRecord {
	return DepositRecord{Timestamp: r.Timestamp, Asset: r.Asset, Amount: r.Amount}
}
