package acoder

// Model is an order-n adaptive arithmetic-coding probability model
// over an M-symbol alphabet. Cumulative counts are kept per context;
// once the total for a context exceeds Scale, all counts in that
// context are halved and re-monotonised so that count[i] > count[i-1]
// always holds.
type Model struct {
	Symbols int
	Scale   int // 0 means static (no adaptation)
	Order   int

	context []int // current order-n context, length Order
	totals  [][]int // one cumulative-count row (len Symbols+1) per context
}

// NewModel builds a model for an M-symbol, order-n alphabet. If init is
// non-nil it seeds every context's initial histogram (len(init) ==
// symbols); otherwise every symbol starts with probability 1/symbols.
func NewModel(symbols, scale, order int, init []int) *Model {
	numContexts := 1
	for i := 0; i < order; i++ {
		numContexts *= symbols
	}
	m := &Model{
		Symbols: symbols,
		Scale:   scale,
		Order:   order,
		totals:  make([][]int, numContexts),
	}
	if order > 0 {
		m.context = make([]int, order)
	}
	for c := 0; c < numContexts; c++ {
		row := make([]int, symbols+1)
		for i := 0; i < symbols; i++ {
			if init != nil {
				row[i+1] = row[i] + init[i]
			} else {
				row[i+1] = row[i] + 1
			}
		}
		m.totals[c] = row
	}
	return m
}

// contextIndex packs the current order-n symbol history into a single
// m-ary context address.
func (m *Model) contextIndex() int {
	if m.Order == 0 {
		return 0
	}
	index, power := 0, 1
	for i := 0; i < m.Order; i++ {
		index += m.context[i] * power
		power *= m.Symbols
	}
	return index
}

func (m *Model) advanceContext(symbol int) {
	if m.Order == 0 {
		return
	}
	copy(m.context, m.context[1:])
	m.context[m.Order-1] = symbol
}

// interval returns (lowCount, highCount, scale) for symbol in the current
// context, without mutating state.
func (m *Model) interval(symbol int) (low, high, scale int) {
	row := m.totals[m.contextIndex()]
	return row[symbol], row[symbol+1], row[m.Symbols]
}

// update increments the running counts for symbol and rescales if the
// context total exceeds Scale, then advances the order-n context.
func (m *Model) update(symbol int) {
	if m.Scale > 0 {
		row := m.totals[m.contextIndex()]
		for i := symbol + 1; i <= m.Symbols; i++ {
			row[i]++
		}
		if row[m.Symbols] > m.Scale {
			for i := 1; i <= m.Symbols; i++ {
				row[i] >>= 1
				if row[i] <= row[i-1] {
					row[i] = row[i-1] + 1
				}
			}
		}
	}
	m.advanceContext(symbol)
}

// Duplicate deep-copies the model so the subdivider can trial a branch and
// roll back.
func (m *Model) Duplicate() *Model {
	cp := &Model{Symbols: m.Symbols, Scale: m.Scale, Order: m.Order}
	if m.context != nil {
		cp.context = append([]int(nil), m.context...)
	}
	cp.totals = make([][]int, len(m.totals))
	for i, row := range m.totals {
		cp.totals[i] = append([]int(nil), row...)
	}
	return cp
}
