package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dca-console/internal/strategy"
)

// ErrNoOrders means the account has never opened an order, so the protocol
// has no order table for it. Callers treat it as an empty order list.
var ErrNoOrders = errors.New("no order table for account")

// legacyNoOrdersMarker is what the protocol SDK says when it trips over a
// missing order table instead of reporting it.
const legacyNoOrdersMarker = "reading 'value'"

type CoinWhitelist struct {
	In  []string `json:"in_coin_list"`
	Out []string `json:"out_coin_list"`
}

type Order struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	InCoinType  string `json:"in_coin_type"`
	OutCoinType string `json:"out_coin_type"`
	InBalance   string `json:"in_balance"`
	OutBalance  string `json:"out_balance"`
	NextCycleAt int64  `json:"next_cycle_at"`
}

func (o Order) Ref() OrderRef {
	return OrderRef{OrderID: o.ID, InCoinType: o.InCoinType, OutCoinType: o.OutCoinType}
}

type OrderRef struct {
	OrderID     string `json:"order_id"`
	InCoinType  string `json:"in_coin_type"`
	OutCoinType string `json:"out_coin_type"`
}

type TxKind string

const (
	TxOpen     TxKind = "open"
	TxWithdraw TxKind = "withdraw"
	TxClose    TxKind = "close"
)

// TxPayload is an unsigned transaction built by the protocol. Bytes is
// opaque to this service.
type TxPayload struct {
	Kind  TxKind `json:"kind"`
	Bytes string `json:"tx_bytes"`
}

// Gateway is the protocol SDK bridge for one network.
type Gateway interface {
	CoinWhitelist(ctx context.Context, retryCount int) (CoinWhitelist, error)
	Orders(ctx context.Context, account string) ([]Order, error)
	BuildOpenOrder(ctx context.Context, req strategy.OpenOrderRequest) (TxPayload, error)
	BuildWithdraw(ctx context.Context, ref OrderRef) (TxPayload, error)
	BuildCloseOrders(ctx context.Context, refs []OrderRef) (TxPayload, error)
}

// Transactor signs and executes a built payload on behalf of account and
// returns the transaction digest.
type Transactor interface {
	Execute(ctx context.Context, account string, tx TxPayload) (string, error)
}

// ClassifyOrdersError maps any flavour of the missing-order-table condition
// onto ErrNoOrders and returns other errors unchanged.
func ClassifyOrdersError(err error) error {
	if err == nil || errors.Is(err, ErrNoOrders) {
		return err
	}
	if strings.Contains(err.Error(), legacyNoOrdersMarker) {
		return fmt.Errorf("%w: %v", ErrNoOrders, err)
	}
	return err
}
