package strategy

import "fmt"

// Template is a named preset for the cycle shape of an order.
type Template struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	CycleCount           string `json:"cycle_count"`
	CycleFrequency       string `json:"cycle_frequency"`
	PerCycleMinOutAmount string `json:"per_cycle_min_out_amount"`
	PerCycleMaxOutAmount string `json:"per_cycle_max_out_amount"`
}

const (
	TemplateConservative = "conservative"
	TemplateBalanced     = "balanced"
	TemplateAggressive   = "aggressive"
)

var templates = []Template{
	{ID: TemplateConservative, Name: "Conservative", CycleCount: "12", CycleFrequency: "86400", PerCycleMinOutAmount: "0", PerCycleMaxOutAmount: "0"},
	{ID: TemplateBalanced, Name: "Balanced", CycleCount: "6", CycleFrequency: "43200", PerCycleMinOutAmount: "0", PerCycleMaxOutAmount: "0"},
	{ID: TemplateAggressive, Name: "Aggressive", CycleCount: "3", CycleFrequency: "21600", PerCycleMinOutAmount: "0", PerCycleMaxOutAmount: "0"},
}

func Templates() []Template {
	return append([]Template(nil), templates...)
}

func TemplateByID(id string) (Template, error) {
	for _, t := range templates {
		if t.ID == id {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
}

// Apply overwrites only the cycle-shape fields of f.
func (t Template) Apply(f *Fields) {
	f.CycleCount = t.CycleCount
	f.CycleFrequency = t.CycleFrequency
	f.PerCycleMinOutAmount = t.PerCycleMinOutAmount
	f.PerCycleMaxOutAmount = t.PerCycleMaxOutAmount
}
