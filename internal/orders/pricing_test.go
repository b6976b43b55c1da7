package orders

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLine(t *testing.T) {
	cases := []struct {
		unit  string
		qty   int
		total string
	}{
		{"10.00", 2, "20.00"},
		{"5.00", 1, "5.00"},
		{"0.10", 3, "0.30"}, // would drift with float64
		{"999.99", 7, "6999.93"},
		{"0.00", 5, "0.00"},
	}
	for _, c := range cases {
		unit, total := Line(dec(c.unit), c.qty)
		if !unit.Equal(dec(c.unit)) {
			t.Errorf("Line(%s, %d): unit %s, want %s", c.unit, c.qty, unit, c.unit)
		}
		if !total.Equal(dec(c.total)) {
			t.Errorf("Line(%s, %d): total %s, want %s", c.unit, c.qty, total, c.total)
		}
	}
}
