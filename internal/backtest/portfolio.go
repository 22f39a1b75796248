package backtest

// Position is either Flat or Long. The unexported marker method keeps the
// set of variants closed to this package.
type Position interface {
	isPosition()
}

// Flat holds no asset
type Flat struct{}

// Long holds the whole portfolio in the asset
type Long struct {
	EntryPrice float64
	Quantity   float64
	EntryIndex int
}

func (Flat) isPosition() {}
func (Long) isPosition() {}

// Portfolio is the single-position state owned by one simulation run
type Portfolio struct {
	Cash     float64
	Position Position
}

// newPortfolio creates a flat portfolio holding the initial balance
func newPortfolio(initialBalance float64) *Portfolio {
	return &Portfolio{
		Cash:     initialBalance,
		Position: Flat{},
	}
}

// Quantity returns the held quantity, 0 when flat
func (p *Portfolio) Quantity() float64 {
	if long, ok := p.Position.(Long); ok {
		return long.Quantity
	}
	return 0
}

// IsLong returns true if a position is open
func (p *Portfolio) IsLong() bool {
	_, ok := p.Position.(Long)
	return ok
}

// MarkToMarket values the portfolio at the given price
func (p *Portfolio) MarkToMarket(price float64) float64 {
	return p.Cash + p.Quantity()*price
}

// enter commits all cash to a long position at price, net of fee.
// It returns the fee paid.
func (p *Portfolio) enter(index int, price, fee float64) float64 {
	capital := p.Cash
	p.Position = Long{
		EntryPrice: price,
		Quantity:   (capital * (1 - fee)) / price,
		EntryIndex: index,
	}
	p.Cash = 0
	return capital * fee
}

// exit liquidates the long position at price, net of fee.
// It returns the fee paid.
func (p *Portfolio) exit(price, fee float64) float64 {
	gross := p.Quantity() * price
	p.Cash = gross * (1 - fee)
	p.Position = Flat{}
	return gross * fee
}
