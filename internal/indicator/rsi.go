package indicator

// Func computes an indicator over values. The result omits the warm-up
// window, so len(result) <= len(values) and result[k] belongs to
// values[len(values)-len(result)+k].
type Func func(period int, values []float64) []float64

// RSI computes Wilder's relative strength index. The first output belongs to
// values[period]: a series of n values yields n-period outputs.
func RSI(period int, values []float64) []float64 {
	if period < 1 || len(values) <= period {
		return nil
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	out := make([]float64, 0, len(values)-period)
	out = append(out, rsiValue(avgGain, avgLoss))

	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	if avgGain == 0 {
		return 0
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
