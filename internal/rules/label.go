package rules

// Label is the outcome of classification.
type Label string

const (
	LabelCritical              Label = "critical"
	LabelHighInvalidTraffic    Label = "high_invalid_traffic"
	LabelLowMargin             Label = "low_margin"
	LabelUnprofitableAfterCost Label = "unprofitable_after_cost"
	LabelImpressionDiscrepancy Label = "impression_discrepancy"
	LabelOK                    Label = "ok"
)

// Labels lists every label from highest to lowest precedence.
var Labels = []Label{
	LabelCritical,
	LabelHighInvalidTraffic,
	LabelLowMargin,
	LabelUnprofitableAfterCost,
	LabelImpressionDiscrepancy,
	LabelOK,
}

// Precedence is the label's rank, 0 being the strongest.
func (l Label) Precedence() int {
	for i, x := range Labels {
		if x == l {
			return i
		}
	}
	return len(Labels)
}

// Title is the display name.
func (l Label) Title() string {
	switch l {
	case LabelCritical:
		return "Critical"
	case LabelHighInvalidTraffic:
		return "High IVT"
	case LabelLowMargin:
		return "Low Margin"
	case LabelUnprofitableAfterCost:
		return "Losing Money"
	case LabelImpressionDiscrepancy:
		return "Impression Discrepancy"
	case LabelOK:
		return "OK"
	default:
		return string(l)
	}
}

// Action is the recommendation attached to a label.
type Action string

const (
	ActionBlock       Action = "block"
	ActionInvestigate Action = "investigate"
	ActionSafe        Action = "safe"
)

// Action maps a label to what an operator should do with the key.
func (l Label) Action() Action {
	switch l {
	case LabelCritical, LabelHighInvalidTraffic:
		return ActionBlock
	case LabelLowMargin, LabelUnprofitableAfterCost, LabelImpressionDiscrepancy:
		return ActionInvestigate
	default:
		return ActionSafe
	}
}
