package indicator

// Cross directions.
const (
	CrossDown = 0
	CrossUp   = 1
)

// Crossovers compares two series of recent values plus their current values.
// The series are aligned on their common suffix. For each adjacent pair it
// emits CrossUp when a moves from <= b to > b, CrossDown when a moves from
// >= b to < b, and nil otherwise or when any of the four values is missing.
func Crossovers(a, b []*float64, curA, curB *float64) []*int {
	a = append(a[:len(a):len(a)], curA)
	b = append(b[:len(b):len(b)], curB)

	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	a, b = a[len(a)-n:], b[len(b)-n:]

	if n < 2 {
		return nil
	}
	out := make([]*int, n-1)
	for i := 1; i < n; i++ {
		if a[i-1] == nil || b[i-1] == nil || a[i] == nil || b[i] == nil {
			continue
		}
		pa, pb, ca, cb := *a[i-1], *b[i-1], *a[i], *b[i]
		switch {
		case pa <= pb && ca > cb:
			out[i-1] = intPtr(CrossUp)
		case pa >= pb && ca < cb:
			out[i-1] = intPtr(CrossDown)
		}
	}
	return out
}

// LatestCross returns the newest non-nil crossover, or nil.
func LatestCross(crosses []*int) *int {
	for i := len(crosses) - 1; i >= 0; i-- {
		if crosses[i] != nil {
			return crosses[i]
		}
	}
	return nil
}

func intPtr(v int) *int { return &v }
