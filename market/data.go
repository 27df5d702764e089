package market

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Data is the analyzed view of one token's OHLCV history, plus any externally
// supplied strategy signals merged in before analysis.
type Data struct {
	Token   string   `json:"token"`
	Candles []Candle `json:"-"`

	CurrentPrice   float64 `json:"current_price"`
	MA20           float64 `json:"ma20"`
	MA40           float64 `json:"ma40"`
	RSI14          float64 `json:"rsi14"`
	PriceChangePct float64 `json:"price_change_pct"` // over the collected window
	AvgVolume      float64 `json:"avg_volume"`
	LastVolume     float64 `json:"last_volume"`

	StrategySignals json.RawMessage `json:"strategy_signals,omitempty"`
}

// NewData computes the indicator summary from raw candles.
func NewData(token string, candles []Candle) *Data {
	d := &Data{Token: token, Candles: candles}
	n := len(candles)
	if n == 0 {
		return d
	}

	d.CurrentPrice = candles[n-1].Close
	d.LastVolume = candles[n-1].Volume
	d.MA20 = movingAverage(candles, 20)
	d.MA40 = movingAverage(candles, 40)
	d.RSI14 = rsi(candles, 14)

	first := candles[0].Close
	if first > 0 {
		d.PriceChangePct = (d.CurrentPrice - first) / first * 100
	}

	var totalVolume float64
	for _, c := range candles {
		totalVolume += c.Volume
	}
	d.AvgVolume = totalVolume / float64(n)

	return d
}

// Summary renders the block of market context embedded into the trading
// prompt: price vs moving averages, RSI, volume behavior, recent moves.
func (d *Data) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Token: %s\n", d.Token)
	fmt.Fprintf(&b, "Current price: %.6f\n", d.CurrentPrice)
	fmt.Fprintf(&b, "MA20: %.6f (price is %s MA20)\n", d.MA20, aboveBelow(d.CurrentPrice, d.MA20))
	fmt.Fprintf(&b, "MA40: %.6f (price is %s MA40)\n", d.MA40, aboveBelow(d.CurrentPrice, d.MA40))
	fmt.Fprintf(&b, "RSI(14): %.1f\n", d.RSI14)
	fmt.Fprintf(&b, "Price change over window: %.2f%%\n", d.PriceChangePct)
	fmt.Fprintf(&b, "Last volume: %.2f (average %.2f)\n", d.LastVolume, d.AvgVolume)
	fmt.Fprintf(&b, "Candles analyzed: %d\n", len(d.Candles))
	return b.String()
}

func aboveBelow(price, ref float64) string {
	if price >= ref {
		return "above"
	}
	return "below"
}

// movingAverage averages the last period closes; with fewer candles than the
// period it averages what exists.
func movingAverage(candles []Candle, period int) float64 {
	n := len(candles)
	if n == 0 {
		return 0
	}
	if period > n {
		period = n
	}
	var sum float64
	for _, c := range candles[n-period:] {
		sum += c.Close
	}
	return sum / float64(period)
}

// rsi is the standard Wilder RSI over the last period deltas. Returns 50 when
// there's not enough history to say anything.
func rsi(candles []Candle, period int) float64 {
	if len(candles) <= period {
		return 50
	}
	var gains, losses float64
	start := len(candles) - period
	for i := start; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}
