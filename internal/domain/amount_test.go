package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiply(t *testing.T) {
	leftPrecision := uint32(4)
	rightPrecision := uint32(8)

	price := NewNumber(9000*pow10(leftPrecision), leftPrecision)
	amount := NewNumber(1*pow10(rightPrecision), rightPrecision)

	highVolume := price.Mul(amount)
	lowVolume := price.Mul(amount).Div(10000)
	assert.Equal(t, "9000.00000000", highVolume.Format(8))
	assert.Equal(t, "0.90000000", lowVolume.Format(8))
}

func TestEqualityAcrossPrecisions(t *testing.T) {
	a := NewNumber(90, 1)
	b := NewNumber(900, 2)
	assert.True(t, a.Equal(b))
	assert.Equal(t, 0, a.Cmp(b))
	assert.Equal(t, 0, b.Cmp(a))

	c := NewNumber(901, 2)
	assert.False(t, a.Equal(c))
	assert.Equal(t, -1, a.Cmp(c))
	assert.Equal(t, 1, c.Cmp(a))
}

func TestFormatShape(t *testing.T) {
	// At least one integer digit, exactly the requested fraction digits.
	assert.Equal(t, "0.500", NewNumber(5, 1).Format(3))
	assert.Equal(t, "0.0", NewNumber(0, 0).Format(1))
	assert.Equal(t, "12.", NewNumber(12, 0).Format(0))
	assert.Equal(t, "1.0000", NewNumber(10000, 4).Format(4))
	// Truncation toward zero when narrowing.
	assert.Equal(t, "1.23", NewNumber(1239, 3).Format(2))
}

func TestDivTruncatesTowardZero(t *testing.T) {
	n := NewNumber(10, 0)
	assert.Equal(t, uint64(3), n.Div(3).Base())
}

func TestDivByZeroPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewNumber(1, 0).Div(0)
	})
}

func TestAddWidensPrecision(t *testing.T) {
	a := NewNumber(15, 1)  // 1.5
	b := NewNumber(250, 3) // 0.25
	sum := a.Add(b)
	assert.Equal(t, "1.750", sum.Format(3))
	assert.Equal(t, uint32(3), sum.Precision())
}

func TestMulMatchesDecimalProduct(t *testing.T) {
	// 1.25 * 0.5 = 0.625
	a := NewNumber(125, 2)
	b := NewNumber(5, 1)
	assert.Equal(t, "0.62", a.Mul(b).Format(2))
}

func TestMinMax(t *testing.T) {
	a := NewNumber(100, 2)
	b := NewNumber(2000, 3)
	assert.True(t, a.Max(b).Equal(b))
	assert.True(t, a.Min(b).Equal(a))
}
