package sysinfo

// UsageScale is the fixed-point denominator of CPU usage ratios: a stored
// value of UsageScale means 100 %.
const UsageScale = 10000

// UsageRatio converts a process tick delta into a fixed-point usage ratio.
//
// The system delta is multiplied by divisor before dividing. Loaders whose
// system total is already summed over all cores pass 1; loaders measuring wall
// clock time pass the logical processor count. The result is clamped to
// [0, UsageScale]; a zero system delta yields 0.
func UsageRatio(processDelta int64, systemDelta uint64, divisor int) int64 {
	if processDelta <= 0 || systemDelta == 0 {
		return 0
	}
	if divisor < 1 {
		divisor = 1
	}

	denom := systemDelta * uint64(divisor)
	if uint64(processDelta) >= denom {
		return UsageScale
	}
	// processDelta < denom here, so the product below only overflows for
	// deltas far beyond any realistic sampling interval.
	return int64(uint64(processDelta) * UsageScale / denom)
}

// Percent converts a fixed-point usage ratio to a percentage.
func Percent(ratio int64) float64 {
	return float64(ratio) * 100 / UsageScale
}
