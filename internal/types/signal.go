package types

// Signal carries the per-bar buy/sell flags produced by the signal
// generator. A signal slice is aligned 1:1 with the bar slice it was built from.
type Signal struct {
	Buy  bool `json:"buy"`
	Sell bool `json:"sell"`
}

// CountSignals returns the number of buy and sell flags set
func CountSignals(signals []Signal) (buys, sells int) {
	for _, s := range signals {
		if s.Buy {
			buys++
		}
		if s.Sell {
			sells++
		}
	}
	return buys, sells
}
