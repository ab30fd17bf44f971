package strategy

import (
	"errors"

	"github.com/shopspring/decimal"
)

const (
	DefaultName   = "DCA Strategy"
	DefaultInCoin = "0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI"
)

var (
	ErrNotSubmittable  = errors.New("order is not submittable")
	ErrInvalidField    = errors.New("invalid field")
	ErrUnknownTemplate = errors.New("unknown template")
)

// Fields is the live state of the order form. Amounts are smallest-unit
// integers kept as decimal strings, exactly as the user typed them.
type Fields struct {
	Name                  string `json:"name"`
	InCoinType            string `json:"in_coin_type"`
	OutCoinType           string `json:"out_coin_type"`
	TotalInAmount         string `json:"total_in_amount"`
	CycleCount            string `json:"cycle_count"`
	CycleFrequency        string `json:"cycle_frequency"`
	PerCycleMinOutAmount  string `json:"per_cycle_min_out_amount"`
	PerCycleMaxOutAmount  string `json:"per_cycle_max_out_amount"`
	PerCycleInAmountLimit string `json:"per_cycle_in_amount_limit"`
	FeeRate               string `json:"fee_rate"`
	Signature             string `json:"signature"`
	Timestamp             string `json:"timestamp"`
}

func DefaultFields() Fields {
	return Fields{
		Name:                  DefaultName,
		InCoinType:            DefaultInCoin,
		TotalInAmount:         "1000000000",
		CycleCount:            "4",
		CycleFrequency:        "600",
		PerCycleMinOutAmount:  "0",
		PerCycleMaxOutAmount:  "0",
		PerCycleInAmountLimit: "0",
		FeeRate:               "0",
	}
}

// Draft is a saved, named snapshot of the order parameters. The price
// signature and timestamp are deliberately not part of it.
type Draft struct {
	ID                    string `json:"id" msgpack:"id"`
	Name                  string `json:"name" msgpack:"name"`
	InCoinType            string `json:"in_coin_type" msgpack:"in_coin_type"`
	OutCoinType           string `json:"out_coin_type" msgpack:"out_coin_type"`
	TotalInAmount         string `json:"total_in_amount" msgpack:"total_in_amount"`
	CycleCount            string `json:"cycle_count" msgpack:"cycle_count"`
	CycleFrequency        string `json:"cycle_frequency" msgpack:"cycle_frequency"`
	PerCycleMinOutAmount  string `json:"per_cycle_min_out_amount" msgpack:"per_cycle_min_out_amount"`
	PerCycleMaxOutAmount  string `json:"per_cycle_max_out_amount" msgpack:"per_cycle_max_out_amount"`
	PerCycleInAmountLimit string `json:"per_cycle_in_amount_limit" msgpack:"per_cycle_in_amount_limit"`
	FeeRate               string `json:"fee_rate" msgpack:"fee_rate"`
}

// NewDraft snapshots f under id. A blank name falls back to DefaultName.
func NewDraft(id string, f Fields) Draft {
	return Draft{
		ID:                    id,
		Name:                  DraftName(f.Name),
		InCoinType:            f.InCoinType,
		OutCoinType:           f.OutCoinType,
		TotalInAmount:         f.TotalInAmount,
		CycleCount:            f.CycleCount,
		CycleFrequency:        f.CycleFrequency,
		PerCycleMinOutAmount:  f.PerCycleMinOutAmount,
		PerCycleMaxOutAmount:  f.PerCycleMaxOutAmount,
		PerCycleInAmountLimit: f.PerCycleInAmountLimit,
		FeeRate:               f.FeeRate,
	}
}

// ApplyTo overwrites every draft-backed field of f. Signature and timestamp
// are left alone.
func (d Draft) ApplyTo(f *Fields) {
	f.Name = d.Name
	f.InCoinType = d.InCoinType
	f.OutCoinType = d.OutCoinType
	f.TotalInAmount = d.TotalInAmount
	f.CycleCount = d.CycleCount
	f.CycleFrequency = d.CycleFrequency
	f.PerCycleMinOutAmount = d.PerCycleMinOutAmount
	f.PerCycleMaxOutAmount = d.PerCycleMaxOutAmount
	f.PerCycleInAmountLimit = d.PerCycleInAmountLimit
	f.FeeRate = d.FeeRate
}

// OpenOrderRequest is the parameter set handed to the protocol gateway to
// build an open-order transaction.
type OpenOrderRequest struct {
	InCoinType            string          `json:"in_coin_type" validate:"required"`
	OutCoinType           string          `json:"out_coin_type" validate:"required"`
	InCoinAmount          string          `json:"in_coin_amount" validate:"required"`
	CycleFrequency        int64           `json:"cycle_frequency" validate:"gt=0"`
	CycleCount            int64           `json:"cycle_count" validate:"gt=0"`
	PerCycleMinOutAmount  string          `json:"per_cycle_min_out_amount"`
	PerCycleMaxOutAmount  string          `json:"per_cycle_max_out_amount"`
	PerCycleInAmountLimit string          `json:"per_cycle_in_amount_limit"`
	FeeRate               decimal.Decimal `json:"fee_rate"`
	Timestamp             int64           `json:"timestamp"`
	Signature             string          `json:"signature" validate:"required"`
}
