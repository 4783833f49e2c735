// Package payment は決済プロバイダとのチェックアウト連携と金額変換を提供する。
package payment

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MinorUnits は10進数の価格を最小通貨単位に変換する。無料イベントは常に0。
// 例: "25.99" → 2599
func MinorUnits(price string, isFree bool) (int64, error) {
	if isFree {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid price %q", price)
	}
	return int64(math.Round(v * 100)), nil
}

// FormatMinorUnits は最小通貨単位の金額を10進数文字列に変換する。
// 末尾の0は出力しない。例: 2599 → "25.99", 2550 → "25.5", 2500 → "25", 0 → "0"
func FormatMinorUnits(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	whole, frac := amount/100, amount%100
	switch {
	case frac == 0:
		return fmt.Sprintf("%s%d", sign, whole)
	case frac%10 == 0:
		return fmt.Sprintf("%s%d.%d", sign, whole, frac/10)
	default:
		return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
	}
}
