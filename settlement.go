package thermal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/thermal/event"
	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/types"
)

// SettlementResult is the outcome of one settlement attempt. A trade that
// could not be funded is a Failed result, not an error.
type SettlementResult struct {
	TradeID   string        `json:"trade_id"`
	Status    record.Status `json:"status"`
	Value     types.Amount  `json:"value"`
	Reason    string        `json:"reason,omitempty"`
	SettledBy types.Account `json:"settled_by"`
	SettledAt time.Time     `json:"settled_at"`
}

// Settled reports whether funds moved.
func (r *SettlementResult) Settled() bool { return r.Status == record.StatusSettled }

// SettlementEngine moves funds for recorded trades. The transfer and the
// status transition commit together, so a trade is never left Pending
// after an attempt and funds never move partially.
type SettlementEngine struct {
	b          *book
	auth       *OperatorAuthority
	identities *IdentityRegistry
	tokens     *TokenLedger
	records    *TransactionLedger
}

func newSettlementEngine(b *book, auth *OperatorAuthority, identities *IdentityRegistry, tokens *TokenLedger, records *TransactionLedger) *SettlementEngine {
	return &SettlementEngine{
		b:          b,
		auth:       auth,
		identities: identities,
		tokens:     tokens,
		records:    records,
	}
}

// Settle attempts the seller to buyer transfer for tradeID exactly once.
// Settling a trade that is already terminal returns ErrAlreadySettled or
// ErrAlreadyFailed.
func (e *SettlementEngine) Settle(ctx context.Context, caller types.Account, tradeID string) (*SettlementResult, error) {
	tradeID = strings.TrimSpace(tradeID)

	var res *SettlementResult
	err := e.b.update(ctx, "settle", func(t *tx) error {
		if err := e.auth.authorize(t, caller); err != nil {
			return err
		}
		var err error
		res, err = e.settle(t, caller, tradeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if res.Settled() {
		e.b.logger.Info("trade settled",
			"trade_id", res.TradeID,
			"value", res.Value.String(),
			"settled_by", res.SettledBy,
		)
	} else {
		e.b.logger.Warn("trade settlement failed",
			"trade_id", res.TradeID,
			"value", res.Value.String(),
			"reason", res.Reason,
		)
	}
	return res, nil
}

// SettleAll settles every Pending trade in ascending trade ID order, one
// transaction per trade. A Failed trade does not affect the others. Trades
// that became terminal after the pending list was taken are skipped. A
// store or context error stops the batch and is returned with the results
// gathered so far.
func (e *SettlementEngine) SettleAll(ctx context.Context, caller types.Account) ([]*SettlementResult, error) {
	if err := e.auth.Authorize(ctx, caller); err != nil {
		return nil, err
	}

	pending := e.records.ListPending(ctx)
	results := make([]*SettlementResult, 0, len(pending))
	for _, tr := range pending {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := e.Settle(ctx, caller, tr.TradeID)
		switch {
		case err == nil:
			results = append(results, res)
		case IsSettlementConflict(err), IsNotFound(err):
			continue
		default:
			return results, fmt.Errorf("thermal: settle all stopped at %s: %w", tr.TradeID, err)
		}
	}

	if len(results) > 0 {
		e.b.logger.Info("settlement cycle complete",
			"attempted", len(results),
			"settled", countSettled(results),
		)
	}
	return results, nil
}

func (e *SettlementEngine) settle(t *tx, caller types.Account, tradeID string) (*SettlementResult, error) {
	if tradeID == "" {
		return nil, invalidInput("trade_id", "must not be empty")
	}
	cur, ok := t.trade(tradeID)
	if !ok {
		return nil, fmt.Errorf("%w: trade %s", ErrNotFound, tradeID)
	}
	switch cur.Status {
	case record.StatusSettled:
		return nil, fmt.Errorf("%w: %s", ErrAlreadySettled, tradeID)
	case record.StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyFailed, tradeID)
	}

	next := cur.Clone()
	next.SettledBy = caller
	settledAt := t.now
	next.SettledAt = &settledAt

	value, err := cur.Value()
	if err == nil {
		err = e.tokens.transfer(t, cur.Seller, cur.Buyer, value)
	}

	res := &SettlementResult{
		TradeID:   tradeID,
		Value:     value,
		SettledBy: caller,
		SettledAt: settledAt,
	}
	if err != nil {
		next.Status = record.StatusFailed
		next.FailureReason = e.failureReason(t, cur, err)
		res.Status = next.Status
		res.Reason = next.FailureReason

		t.putTrade(next)
		t.emit(&event.TradeSettlementFailed{
			Meta:      event.NewMeta(t.now),
			TradeID:   tradeID,
			Seller:    cur.Seller,
			Buyer:     cur.Buyer,
			Value:     value,
			Reason:    next.FailureReason,
			SettledBy: caller,
		})
		return res, nil
	}

	next.Status = record.StatusSettled
	res.Status = next.Status

	t.putTrade(next)
	t.emit(&event.TradeSettled{
		Meta:      event.NewMeta(t.now),
		TradeID:   tradeID,
		Seller:    cur.Seller,
		Buyer:     cur.Buyer,
		Value:     value,
		SettledBy: caller,
	})
	return res, nil
}

// failureReason maps a transfer error to the stable code stored on the
// trade.
func (e *SettlementEngine) failureReason(t *tx, tr *record.TradeRecord, err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return record.ReasonInsufficientBalance
	case errors.Is(err, ErrNotVerified):
		if !e.identities.verified(t, tr.Seller) {
			return record.ReasonSellerNotVerified
		}
		return record.ReasonBuyerNotVerified
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, types.ErrOverflow):
		return record.ReasonInvalidAmount
	default:
		return err.Error()
	}
}

func countSettled(results []*SettlementResult) int {
	n := 0
	for _, r := range results {
		if r.Settled() {
			n++
		}
	}
	return n
}
