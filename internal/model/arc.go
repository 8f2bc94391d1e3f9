package model

// FibRatios are the fixed retracement ratios, in level order.
var FibRatios = [...]float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 0.9, 1}

// FibLabels are the level keys matching FibRatios.
var FibLabels = [...]string{"0%", "23.6%", "38.2%", "50%", "61.8%", "78.6%", "90%", "100%"}

// Arc is one Fibonacci swing from a local low to the subsequent local high.
// EndIndex is nil while the arc is open.
type Arc struct {
	StartIndex int                `json:"start_index"`
	EndIndex   *int               `json:"end_index"`
	Low        float64            `json:"low"`
	LowIndex   int                `json:"low_index"`
	High       float64            `json:"high"`
	HighIndex  int                `json:"high_index"`
	Levels     map[string]float64 `json:"levels"`
}

// Closed reports whether the arc has been retraced past 61.8%.
func (a *Arc) Closed() bool { return a.EndIndex != nil }

// FibLevels computes high - ratio*(high-low) for every fixed ratio.
func FibLevels(low, high float64) map[string]float64 {
	levels := make(map[string]float64, len(FibRatios))
	span := high - low
	for i, r := range FibRatios {
		levels[FibLabels[i]] = high - r*span
	}
	return levels
}
