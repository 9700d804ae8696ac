// Package domain holds the market-facing state of the node: fixed-point
// amounts, the static market table, the open-offer book, and the trade
// statistics cache with its ticker rollups. Everything here is fed by the
// data router and read by the query API.
package domain

import (
	"fmt"
)

// NumberWithPrecision is a fixed-point rational base * 10^(-precision),
// used for all price, amount and volume arithmetic. Comparison between two
// values happens at the greater of their precisions.
type NumberWithPrecision struct {
	base      uint64
	precision uint32
}

// Zero is the additive identity at precision 0.
var Zero = NumberWithPrecision{}

// NewNumber builds a fixed-point value from a raw base amount and its
// precision.
func NewNumber(base uint64, precision uint32) NumberWithPrecision {
	return NumberWithPrecision{base: base, precision: precision}
}

// Base returns the raw base amount.
func (n NumberWithPrecision) Base() uint64 { return n.base }

// Precision returns the number of fractional digits of the base amount.
func (n NumberWithPrecision) Precision() uint32 { return n.precision }

func pow10(exp uint32) uint64 {
	res := uint64(1)
	for i := uint32(0); i < exp; i++ {
		res *= 10
	}
	return res
}

// withPrecision rescales to the target precision, truncating toward zero
// when digits are dropped.
func (n NumberWithPrecision) withPrecision(target uint32) NumberWithPrecision {
	rest := n.base
	if target > n.precision {
		rest *= pow10(target - n.precision)
	} else if n.precision > target {
		rest /= pow10(n.precision - target)
	}
	return NewNumber(rest, target)
}

// Format renders the value with exactly targetPrecision fractional digits
// and at least one integer digit.
func (n NumberWithPrecision) Format(targetPrecision uint32) string {
	buf := make([]byte, 0, 24)
	rest := n.withPrecision(targetPrecision).base

	for uint32(len(buf)) < targetPrecision {
		buf = append(buf, byte('0'+rest%10))
		rest /= 10
	}
	buf = append(buf, '.')
	for rest > 0 {
		buf = append(buf, byte('0'+rest%10))
		rest /= 10
	}
	if uint32(len(buf)) == targetPrecision+1 {
		buf = append(buf, '0')
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

func (n NumberWithPrecision) String() string {
	return n.Format(n.precision)
}

// Mul multiplies two fixed-point values at the greater of their precisions.
// Trailing-zero digits are trimmed off the factors before widening so the
// intermediate product stays within uint64 range for realistic inputs.
func (n NumberWithPrecision) Mul(o NumberWithPrecision) NumberWithPrecision {
	leftPrecision, rightPrecision := n.precision, o.precision
	leftValue, rightValue := n.base, o.base
	resPrecision := leftPrecision + rightPrecision
	targetPrecision := leftPrecision
	if rightPrecision > targetPrecision {
		targetPrecision = rightPrecision
	}

	for resPrecision > targetPrecision && leftValue%10 == 0 {
		leftValue /= 10
		resPrecision--
	}
	for resPrecision > targetPrecision && rightValue%10 == 0 {
		rightValue /= 10
		resPrecision--
	}

	res := leftValue * rightValue
	if resPrecision > targetPrecision {
		res /= pow10(resPrecision - targetPrecision)
	} else if resPrecision < targetPrecision {
		res *= pow10(targetPrecision - resPrecision)
	}
	return NewNumber(res, targetPrecision)
}

// Div divides by a plain integer, truncating toward zero. Division by zero
// is a fatal programming error.
func (n NumberWithPrecision) Div(d uint64) NumberWithPrecision {
	if d == 0 {
		panic(fmt.Sprintf("division of %s by zero", n))
	}
	return NewNumber(n.base/d, n.precision)
}

// Add sums two values at the greater of their precisions.
func (n NumberWithPrecision) Add(o NumberWithPrecision) NumberWithPrecision {
	target := n.precision
	if o.precision > target {
		target = o.precision
	}
	return NewNumber(n.withPrecision(target).base+o.withPrecision(target).base, target)
}

// Cmp orders two values at the greater of their precisions. The result is
// -1, 0 or 1.
func (n NumberWithPrecision) Cmp(o NumberWithPrecision) int {
	target := n.precision
	if o.precision > target {
		target = o.precision
	}
	a, b := n.withPrecision(target).base, o.withPrecision(target).base
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Equal reports value equality across differing precisions.
func (n NumberWithPrecision) Equal(o NumberWithPrecision) bool {
	return n.Cmp(o) == 0
}

// Max returns the greater of two values.
func (n NumberWithPrecision) Max(o NumberWithPrecision) NumberWithPrecision {
	if n.Cmp(o) >= 0 {
		return n
	}
	return o
}

// Min returns the lesser of two values.
func (n NumberWithPrecision) Min(o NumberWithPrecision) NumberWithPrecision {
	if n.Cmp(o) <= 0 {
		return n
	}
	return o
}
