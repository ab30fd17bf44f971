package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	Refresh             Counter
	RefreshFailed       Counter
	WhitelistFallback   Counter
	OrdersSubmitted     Counter
	OrdersSucceeded     Counter
	OrdersFailed        Counter
	DraftsSaved         Counter
	StaleRefreshDropped Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		Refresh:             n,
		RefreshFailed:       n,
		WhitelistFallback:   n,
		OrdersSubmitted:     n,
		OrdersSucceeded:     n,
		OrdersFailed:        n,
		DraftsSaved:         n,
		StaleRefreshDropped: n,
	}
}
