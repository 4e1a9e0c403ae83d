package thermal

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/id"
	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/types"
)

// TransactionLedger is the append-only log of production readings and
// trades. It never moves funds; trades only change status through the
// SettlementEngine.
type TransactionLedger struct {
	b    *book
	auth *OperatorAuthority
}

func newTransactionLedger(b *book, auth *OperatorAuthority) *TransactionLedger {
	return &TransactionLedger{b: b, auth: auth}
}

// RecordProduction appends an audit record of energy produced by a device.
func (l *TransactionLedger) RecordProduction(ctx context.Context, caller types.Account, req record.ProductionRequest) (*record.ProductionRecord, error) {
	req.DeviceID = strings.TrimSpace(req.DeviceID)

	var created *record.ProductionRecord
	err := l.b.update(ctx, "record_production", func(t *tx) error {
		if err := l.auth.authorize(t, caller); err != nil {
			return err
		}
		if req.DeviceID == "" {
			return invalidInput("device_id", "must not be empty")
		}
		if !req.Amount.IsPositive() {
			return invalidAmount("amount", "must be positive")
		}

		ts := req.Timestamp
		if ts.IsZero() {
			ts = t.now
		}
		created = &record.ProductionRecord{
			ID:         id.NewProductionID(),
			DeviceID:   req.DeviceID,
			Amount:     req.Amount,
			Timestamp:  ts.UTC(),
			RecordedBy: caller,
			RecordedAt: t.now,
		}
		t.appendProduction(created)
		t.emit(&event.ProductionRecorded{
			Meta:       event.NewMeta(t.now),
			RecordID:   created.ID,
			DeviceID:   created.DeviceID,
			Amount:     created.Amount,
			Timestamp:  created.Timestamp,
			RecordedBy: caller,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// RecordTrade appends a Pending trade. Validation is structural only;
// balances are checked at settlement.
func (l *TransactionLedger) RecordTrade(ctx context.Context, caller types.Account, req record.TradeRequest) (*record.TradeRecord, error) {
	req.TradeID = strings.TrimSpace(req.TradeID)

	var created *record.TradeRecord
	err := l.b.update(ctx, "record_trade", func(t *tx) error {
		if err := l.auth.authorize(t, caller); err != nil {
			return err
		}
		if err := validateTrade(t, req); err != nil {
			return err
		}
		value, err := record.SettlementValue(req.Amount, req.Price)
		if err != nil {
			return overflow("record_trade", err)
		}
		if !value.IsPositive() {
			return invalidAmount("price", "settlement value rounds to zero")
		}

		ts := req.Timestamp
		if ts.IsZero() {
			ts = t.now
		}
		created = &record.TradeRecord{
			TradeID:    req.TradeID,
			Seller:     req.Seller,
			Buyer:      req.Buyer,
			Amount:     req.Amount,
			Price:      req.Price,
			Timestamp:  ts.UTC(),
			RecordedBy: caller,
			RecordedAt: t.now,
			Status:     record.StatusPending,
		}
		t.putTrade(created)
		t.emit(&event.TradeRecorded{
			Meta:    event.NewMeta(t.now),
			TradeID: created.TradeID,
			Seller:  created.Seller,
			Buyer:   created.Buyer,
			Amount:  created.Amount,
			Price:   created.Price,
			Value:   value,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

func validateTrade(t *tx, req record.TradeRequest) error {
	if req.TradeID == "" {
		return invalidInput("trade_id", "must not be empty")
	}
	if _, ok := t.trade(req.TradeID); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTradeID, req.TradeID)
	}
	if req.Seller.IsNull() {
		return invalidInput("seller", "must not be the null account")
	}
	if req.Buyer.IsNull() {
		return invalidInput("buyer", "must not be the null account")
	}
	if req.Seller == req.Buyer {
		return invalidInput("buyer", "must differ from seller")
	}
	if !req.Amount.IsPositive() {
		return invalidAmount("amount", "must be positive")
	}
	if !req.Price.IsPositive() {
		return invalidAmount("price", "must be positive")
	}
	return nil
}

// GetRecord returns a copy of the trade with tradeID.
func (l *TransactionLedger) GetRecord(_ context.Context, tradeID string) (*record.TradeRecord, error) {
	var tr *record.TradeRecord
	l.b.view(func(s *store.Snapshot) {
		tr = s.Trades[strings.TrimSpace(tradeID)].Clone()
	})
	if tr == nil {
		return nil, fmt.Errorf("%w: trade %s", ErrNotFound, tradeID)
	}
	return tr, nil
}

// ListPending returns copies of all Pending trades in ascending trade ID
// order.
func (l *TransactionLedger) ListPending(ctx context.Context) []*record.TradeRecord {
	return l.Trades(ctx, record.StatusPending)
}

// Trades returns copies of the trades in ascending trade ID order,
// optionally filtered by status. An empty status matches every trade.
func (l *TransactionLedger) Trades(_ context.Context, status record.Status) []*record.TradeRecord {
	var out []*record.TradeRecord
	l.b.view(func(s *store.Snapshot) {
		for _, tr := range s.Trades {
			if status == "" || tr.Status == status {
				out = append(out, tr.Clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TradeID < out[j].TradeID })
	return out
}

// ListProduction returns copies of the production records in append
// order. An empty deviceID matches every device.
func (l *TransactionLedger) ListProduction(_ context.Context, deviceID string) []*record.ProductionRecord {
	deviceID = strings.TrimSpace(deviceID)

	var out []*record.ProductionRecord
	l.b.view(func(s *store.Snapshot) {
		for _, p := range s.Production {
			if deviceID == "" || p.DeviceID == deviceID {
				out = append(out, p.Clone())
			}
		}
	})
	return out
}
