package dashboard

import (
	"fmt"

	"dca-console/internal/gateway"
	"dca-console/internal/network"
	"dca-console/internal/strategy"
)

type Status string

const (
	StatusConnect     Status = "connect"
	StatusUnsupported Status = "unsupported"
	StatusLoading     Status = "loading"
	StatusError       Status = "error"
	StatusReady       Status = "ready"
)

type OrderRow struct {
	gateway.Order
	ShortID      string `json:"short_id"`
	InCoinShort  string `json:"in_coin_short"`
	OutCoinShort string `json:"out_coin_short"`
}

type DraftRow struct {
	strategy.Draft
	InCoinShort  string `json:"in_coin_short"`
	OutCoinShort string `json:"out_coin_short"`
}

// CoinSelect describes one coin picker. With no options the coin is typed
// in freely.
type CoinSelect struct {
	Options  []string `json:"options"`
	FreeText bool     `json:"free_text"`
}

// View is everything the frontend needs to draw the dashboard.
type View struct {
	Status           Status              `json:"status"`
	Message          string              `json:"message,omitempty"`
	Session          Session             `json:"session"`
	WhitelistWarning string              `json:"whitelist_warning,omitempty"`
	InCoin           CoinSelect          `json:"in_coin"`
	OutCoin          CoinSelect          `json:"out_coin"`
	Orders           []OrderRow          `json:"orders"`
	Form             strategy.Fields     `json:"form"`
	PerCycleHint     string              `json:"per_cycle_hint"`
	CanSubmit        bool                `json:"can_submit"`
	SubmitBlocker    string              `json:"submit_blocker,omitempty"`
	Drafts           []DraftRow          `json:"drafts"`
	Templates        []strategy.Template `json:"templates"`
	Chart            *strategy.ChartData `json:"chart,omitempty"`
	ChartOmitted     string              `json:"chart_omitted,omitempty"`
}

func (d *Dashboard) View() View {
	d.mu.Lock()
	v := View{
		Session:          d.session,
		WhitelistWarning: d.whitelistWarning,
		InCoin:           coinSelect(d.whitelist.In),
		OutCoin:          coinSelect(d.whitelist.Out),
		Orders:           orderRows(d.orders),
	}
	switch {
	case d.session.Account == "":
		v.Status = StatusConnect
	case !d.session.Network.Supported():
		v.Status = StatusUnsupported
		v.Message = network.UnsupportedMessage
	case d.refreshing > 0:
		v.Status = StatusLoading
	case d.err != "":
		v.Status = StatusError
		v.Message = d.err
	default:
		v.Status = StatusReady
	}
	d.mu.Unlock()

	f := d.drafts.Fields()
	v.Form = f
	v.PerCycleHint = strategy.PerCycleHint(f.TotalInAmount, f.CycleCount)
	if err := strategy.CheckSubmittable(f); err != nil {
		v.SubmitBlocker = err.Error()
	} else {
		v.CanSubmit = true
	}
	v.Drafts = draftRows(d.drafts.List())
	v.Templates = strategy.Templates()
	chart, err := Chart(f.TotalInAmount, f.CycleCount, f.PerCycleMinOutAmount, f.PerCycleMaxOutAmount)
	if err != nil {
		v.ChartOmitted = err.Error()
	} else {
		v.Chart = &chart
	}
	return v
}

// Chart estimates and renders the price band, refusing series longer than
// strategy.MaxChartPoints.
func Chart(total, cycleCount, minOut, maxOut string) (strategy.ChartData, error) {
	if n := strategy.EstimateLength(cycleCount); n > strategy.MaxChartPoints {
		return strategy.ChartData{}, fmt.Errorf("%w: %d cycles, limit %d", ErrChartTooLarge, n, strategy.MaxChartPoints)
	}
	return strategy.Chart(strategy.Estimate(total, cycleCount, minOut, maxOut)), nil
}

func coinSelect(options []string) CoinSelect {
	if len(options) == 0 {
		return CoinSelect{Options: []string{}, FreeText: true}
	}
	return CoinSelect{Options: append([]string(nil), options...)}
}

func orderRows(orders []gateway.Order) []OrderRow {
	rows := make([]OrderRow, len(orders))
	for i, o := range orders {
		rows[i] = OrderRow{
			Order:        o,
			ShortID:      network.ShortenID(o.ID),
			InCoinShort:  network.ShortenType(o.InCoinType),
			OutCoinShort: network.ShortenType(o.OutCoinType),
		}
	}
	return rows
}

func draftRows(list []strategy.Draft) []DraftRow {
	rows := make([]DraftRow, len(list))
	for i, dr := range list {
		rows[i] = DraftRow{
			Draft:        dr,
			InCoinShort:  network.ShortenType(dr.InCoinType),
			OutCoinShort: network.ShortenType(dr.OutCoinType),
		}
	}
	return rows
}
