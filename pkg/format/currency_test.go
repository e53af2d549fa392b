package format

import "testing"

func TestCurrency(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected string
	}{
		{"Small", 5.5, "R$ 5,50"},
		{"Thousands", 1023.0999999999999, "R$ 1.023,10"},
		{"Millions", 1234567.891, "R$ 1.234.567,89"},
		{"Negative", -1234.5, "-R$ 1.234,50"},
		{"Negative rounds to zero", -0.001, "R$ 0,00"},
		{"Zero", 0, "R$ 0,00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Currency(tt.input); got != tt.expected {
				t.Errorf("Currency(%v) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNumericCurrency(t *testing.T) {
	if got := NumericCurrency(-1234.56); got != "-1.234,56" {
		t.Errorf("NumericCurrency(-1234.56) = %q", got)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected string
	}{
		{"Accumulated", 0.0230999999999999, "2,3100%"},
		{"Monthly", 0.0105999, "1,0600%"},
		{"Deflation", -0.0021, "-0,2100%"},
		{"Large", 12.5, "1.250,0000%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percent(tt.input); got != tt.expected {
				t.Errorf("Percent(%v) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		value    float64
		places   int
		expected string
	}{
		{6474.09, 2, "6.474,09"},
		{100, 0, "100"},
		{1000, 0, "1.000"},
		{0.5, 3, "0,500"},
	}

	for _, tt := range tests {
		if got := Number(tt.value, tt.places); got != tt.expected {
			t.Errorf("Number(%v, %d) = %q, expected %q", tt.value, tt.places, got, tt.expected)
		}
	}
}
