package payment

import "testing"

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		name   string
		price  string
		isFree bool
		want   int64
	}{
		{"通常", "25.99", false, 2599},
		{"整数", "25", false, 2500},
		{"丸め", "19.999", false, 2000},
		{"浮動小数点誤差", "0.29", false, 29},
		{"無料は価格を無視", "99.99", true, 0},
		{"無料で価格なし", "", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MinorUnits(tt.price, tt.isFree)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("MinorUnits(%q, %v) = %d, want %d", tt.price, tt.isFree, got, tt.want)
			}
		})
	}
}

func TestMinorUnits_Invalid(t *testing.T) {
	for _, price := range []string{"", "abc", "-1", "NaN"} {
		if _, err := MinorUnits(price, false); err == nil {
			t.Errorf("MinorUnits(%q) expected error", price)
		}
	}
}

func TestFormatMinorUnits(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{2599, "25.99"},
		{2500, "25"},
		{2550, "25.5"},
		{2505, "25.05"},
		{5, "0.05"},
		{0, "0"},
	}

	for _, tt := range tests {
		if got := FormatMinorUnits(tt.amount); got != tt.want {
			t.Errorf("FormatMinorUnits(%d) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}
