package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/thermal"
	"github.com/xraph/thermal/identity"
	"github.com/xraph/thermal/record"
	"github.com/xraph/thermal/store/memory"
	"github.com/xraph/thermal/types"
)

// Scenario is a scripted sequence of ledger operations.
type Scenario struct {
	Owner                    string   `yaml:"owner"`
	RequireVerifiedRecipient bool     `yaml:"require_verified_recipient"`
	Operators                []string `yaml:"operators"`
	Steps                    []Step   `yaml:"steps"`
}

// Step is one operation. Which fields apply depends on Op. Amounts and
// prices are display-unit decimals ("12.50").
type Step struct {
	Op          string     `yaml:"op"`
	Caller      string     `yaml:"caller"`
	Account     string     `yaml:"account"`
	From        string     `yaml:"from"`
	To          string     `yaml:"to"`
	Seller      string     `yaml:"seller"`
	Buyer       string     `yaml:"buyer"`
	Phone       string     `yaml:"phone"`
	PhoneHash   string     `yaml:"phone_hash"`
	Device      string     `yaml:"device"`
	TradeID     string     `yaml:"trade_id"`
	Amount      string     `yaml:"amount"`
	Price       string     `yaml:"price"`
	At          *time.Time `yaml:"at"`
	ExpectError string     `yaml:"expect_error"`
}

// Report is the ledger state after a scenario ran.
type Report struct {
	Steps       int               `yaml:"steps"`
	TotalSupply string            `yaml:"total_supply"`
	Balances    map[string]string `yaml:"balances"`
	Verified    []string          `yaml:"verified"`
	Operators   []string          `yaml:"operators"`
	Trades      []TradeReport     `yaml:"trades,omitempty"`
	Production  int               `yaml:"production_records"`
}

// TradeReport summarizes one trade.
type TradeReport struct {
	TradeID string `yaml:"trade_id"`
	Status  string `yaml:"status"`
	Value   string `yaml:"value"`
	Reason  string `yaml:"reason,omitempty"`
}

// StepError reports the step a scenario stopped at.
type StepError struct {
	Index int
	Op    string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Op, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ParseScenario decodes a YAML scenario. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if types.Account(sc.Owner).IsNull() {
		return nil, errors.New("parse scenario: owner is required")
	}
	for i, st := range sc.Steps {
		if _, ok := stepHandlers[st.Op]; !ok {
			return nil, &StepError{Index: i, Op: st.Op, Err: errors.New("unknown op")}
		}
	}
	return &sc, nil
}

// Run applies the scenario to a fresh in-memory ledger and reports the
// final state. A step whose error does not match ExpectError stops the
// run.
func (sc *Scenario) Run(ctx context.Context, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	owner := types.Account(sc.Owner)

	l := thermal.New(memory.New(), owner,
		thermal.WithLogger(logger),
		thermal.WithRecipientVerification(sc.RequireVerifiedRecipient),
	)
	if err := l.Start(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = l.Stop() }()

	for _, op := range sc.Operators {
		if err := l.Operators().AddOperator(ctx, owner, types.Account(op)); err != nil {
			return nil, fmt.Errorf("add operator %s: %w", op, err)
		}
	}

	for i, st := range sc.Steps {
		err := stepHandlers[st.Op](ctx, l, st)
		if err := checkExpectation(err, st.ExpectError); err != nil {
			return nil, &StepError{Index: i, Op: st.Op, Err: err}
		}
	}

	if err := l.CheckInvariants(); err != nil {
		return nil, err
	}
	return buildReport(ctx, l, len(sc.Steps)), nil
}

func checkExpectation(err error, want string) error {
	switch {
	case want == "" && err != nil:
		return err
	case want != "" && err == nil:
		return fmt.Errorf("expected error containing %q, got none", want)
	case want != "" && !strings.Contains(err.Error(), want):
		return fmt.Errorf("expected error containing %q, got %w", want, err)
	}
	return nil
}

type stepFunc func(ctx context.Context, l *thermal.Ledger, st Step) error

var stepHandlers = map[string]stepFunc{
	"register": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		hash := st.PhoneHash
		if hash == "" && st.Phone != "" {
			hash = identity.HashPhone(st.Phone)
		}
		_, err := l.Identities().Register(ctx, types.Account(st.Account), hash)
		return err
	},
	"verify": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		return l.Identities().Verify(ctx, types.Account(st.Caller), types.Account(st.Account))
	},
	"update_phone": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		hash := st.PhoneHash
		if hash == "" && st.Phone != "" {
			hash = identity.HashPhone(st.Phone)
		}
		return l.Identities().UpdatePhoneHash(ctx, types.Account(st.Account), hash)
	},
	"add_operator": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		return l.Operators().AddOperator(ctx, types.Account(st.Caller), types.Account(st.Account))
	},
	"remove_operator": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		return l.Operators().RemoveOperator(ctx, types.Account(st.Caller), types.Account(st.Account))
	},
	"mint": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		amount, err := types.ParseAmount(st.Amount)
		if err != nil {
			return err
		}
		return l.Tokens().Mint(ctx, types.Account(st.Caller), types.Account(st.To), amount)
	},
	"burn": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		amount, err := types.ParseAmount(st.Amount)
		if err != nil {
			return err
		}
		return l.Tokens().Burn(ctx, types.Account(st.Caller), types.Account(st.From), amount)
	},
	"transfer": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		amount, err := types.ParseAmount(st.Amount)
		if err != nil {
			return err
		}
		return l.Tokens().Transfer(ctx, types.Account(st.From), types.Account(st.To), amount)
	},
	"record_production": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		amount, err := types.ParseAmount(st.Amount)
		if err != nil {
			return err
		}
		req := record.ProductionRequest{DeviceID: st.Device, Amount: amount}
		if st.At != nil {
			req.Timestamp = *st.At
		}
		_, err = l.Records().RecordProduction(ctx, types.Account(st.Caller), req)
		return err
	},
	"record_trade": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		amount, err := types.ParseAmount(st.Amount)
		if err != nil {
			return err
		}
		price, err := types.ParseAmount(st.Price)
		if err != nil {
			return err
		}
		req := record.TradeRequest{
			TradeID: st.TradeID,
			Seller:  types.Account(st.Seller),
			Buyer:   types.Account(st.Buyer),
			Amount:  amount,
			Price:   price,
		}
		if st.At != nil {
			req.Timestamp = *st.At
		}
		_, err = l.Records().RecordTrade(ctx, types.Account(st.Caller), req)
		return err
	},
	"settle": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		res, err := l.Settlement().Settle(ctx, types.Account(st.Caller), st.TradeID)
		if err != nil {
			return err
		}
		if !res.Settled() {
			return fmt.Errorf("trade %s failed: %s", res.TradeID, res.Reason)
		}
		return nil
	},
	"settle_all": func(ctx context.Context, l *thermal.Ledger, st Step) error {
		_, err := l.Settlement().SettleAll(ctx, types.Account(st.Caller))
		return err
	},
}

func buildReport(ctx context.Context, l *thermal.Ledger, steps int) *Report {
	r := &Report{
		Steps:       steps,
		TotalSupply: l.Tokens().TotalSupply(ctx).String(),
		Balances:    make(map[string]string),
		Verified:    []string{},
		Operators:   []string{},
	}
	for acct, bal := range l.Tokens().Balances(ctx) {
		r.Balances[string(acct)] = bal.String()
	}
	for _, ident := range l.Identities().List(ctx) {
		if ident.Verified {
			r.Verified = append(r.Verified, string(ident.Account))
		}
	}
	sort.Strings(r.Verified)
	for _, op := range l.Operators().Operators(ctx) {
		r.Operators = append(r.Operators, string(op))
	}

	for _, tr := range l.Records().Trades(ctx, "") {
		value, _ := tr.Value()
		r.Trades = append(r.Trades, TradeReport{
			TradeID: tr.TradeID,
			Status:  string(tr.Status),
			Value:   value.String(),
			Reason:  tr.FailureReason,
		})
	}
	r.Production = len(l.Records().ListProduction(ctx, ""))
	return r
}
