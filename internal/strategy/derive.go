package strategy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// submissionGate holds exactly the fields that decide whether an order may
// be submitted.
type submissionGate struct {
	InCoinType     string `validate:"required"`
	OutCoinType    string `validate:"required"`
	TotalInAmount  string `validate:"required"`
	CycleCount     int64  `validate:"gt=0"`
	CycleFrequency int64  `validate:"gt=0"`
	Signature      string `validate:"required"`
}

func DraftName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultName
	}
	return trimmed
}

// PerCycleHint is floor(total / cycleCount) computed with integer division.
// It is "0" when cycleCount is not a positive integer or total is not a
// non-negative number.
func PerCycleHint(total, cycleCount string) string {
	count, ok := parseInt(cycleCount)
	if !ok || count <= 0 {
		return "0"
	}
	amount, ok := parseAmount(total)
	if !ok || amount.IsNegative() {
		return "0"
	}
	q, _ := amount.QuoRem(decimal.NewFromInt(count), 0)
	return q.String()
}

// DerivePerCycleInLimit passes an explicit limit through unchanged; the
// sentinel "0" is replaced by PerCycleHint.
func DerivePerCycleInLimit(limit, total, cycleCount string) string {
	trimmed := strings.TrimSpace(limit)
	if trimmed != "0" {
		return trimmed
	}
	return PerCycleHint(strings.TrimSpace(total), cycleCount)
}

func CanSubmit(f Fields) bool {
	return CheckSubmittable(f) == nil
}

// CheckSubmittable reports why f cannot be submitted, wrapping
// ErrNotSubmittable, or nil when it can.
func CheckSubmittable(f Fields) error {
	count, _ := parseInt(f.CycleCount)
	freq, _ := parseInt(f.CycleFrequency)
	gate := submissionGate{
		InCoinType:     f.InCoinType,
		OutCoinType:    f.OutCoinType,
		TotalInAmount:  strings.TrimSpace(f.TotalInAmount),
		CycleCount:     count,
		CycleFrequency: freq,
		Signature:      strings.TrimSpace(f.Signature),
	}
	if err := validate.Struct(gate); err != nil {
		return fmt.Errorf("%w: %s", ErrNotSubmittable, describeValidation(err))
	}
	return nil
}

// BuildOpenOrderRequest derives the gateway request from f. A blank
// timestamp becomes now in unix seconds.
func BuildOpenOrderRequest(f Fields, now time.Time) (OpenOrderRequest, error) {
	if err := CheckSubmittable(f); err != nil {
		return OpenOrderRequest{}, err
	}
	timestamp := now.Unix()
	if raw := strings.TrimSpace(f.Timestamp); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return OpenOrderRequest{}, fmt.Errorf("%w: timestamp %q", ErrInvalidField, f.Timestamp)
		}
		timestamp = parsed
	}
	fee := decimal.Zero
	if raw := strings.TrimSpace(f.FeeRate); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return OpenOrderRequest{}, fmt.Errorf("%w: fee rate %q", ErrInvalidField, f.FeeRate)
		}
		fee = parsed
	}
	count, _ := parseInt(f.CycleCount)
	freq, _ := parseInt(f.CycleFrequency)
	total := strings.TrimSpace(f.TotalInAmount)
	req := OpenOrderRequest{
		InCoinType:            f.InCoinType,
		OutCoinType:           f.OutCoinType,
		InCoinAmount:          total,
		CycleFrequency:        freq,
		CycleCount:            count,
		PerCycleMinOutAmount:  strings.TrimSpace(f.PerCycleMinOutAmount),
		PerCycleMaxOutAmount:  strings.TrimSpace(f.PerCycleMaxOutAmount),
		PerCycleInAmountLimit: DerivePerCycleInLimit(f.PerCycleInAmountLimit, total, f.CycleCount),
		FeeRate:               fee,
		Timestamp:             timestamp,
		Signature:             strings.TrimSpace(f.Signature),
	}
	if err := validate.Struct(req); err != nil {
		return OpenOrderRequest{}, fmt.Errorf("%w: %s", ErrNotSubmittable, describeValidation(err))
	}
	return req, nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "gt":
			parts = append(parts, fe.Field()+" must be > "+fe.Param())
		default:
			parts = append(parts, fe.Field()+" failed "+fe.Tag())
		}
	}
	return strings.Join(parts, ", ")
}

func parseInt(raw string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, true
	}
	v, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}
