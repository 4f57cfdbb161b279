package alert

// Condition kinds, also used in lock keys and email job payloads.
const (
	KindBeforeTP  = "beforeTP"
	KindTPReached = "tpReached"
)

// BeforeTPPrice is the lower bound of the warning band below a target.
func BeforeTPPrice(target, pct float64) float64 {
	return target * (1 - pct/100)
}

// BeforeTPHolds reports whether price sits in the half-open band
// [target*(1-pct/100), target). The band is narrow and asymmetric: a price
// that jumps over it between two polls never triggers the condition.
func BeforeTPHolds(price, target, pct float64) bool {
	return BeforeTPPrice(target, pct) <= price && price < target
}

// TPReachedHolds reports whether price crossed the target, boundary
// inclusive.
func TPReachedHolds(price, target float64) bool {
	return price >= target
}
