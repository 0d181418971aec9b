package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals del token nativo (CELO), 1 CELO = 1e18 wei.
const Decimals = 18

var weiPerUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ParseAmount convierte un importe decimal ("0.1") a wei sin pasar por float.
// Los decimales más allá de 18 se truncan.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("domain.ParseAmount: empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		frac = frac[:Decimals]
	}
	frac += strings.Repeat("0", Decimals-len(frac))

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || strings.ContainsAny(whole+frac, "+-") {
		return nil, fmt.Errorf("domain.ParseAmount: invalid amount %q", s)
	}
	return v, nil
}

// FormatAmount formatea wei como "1.234 CELO" (3 decimales, truncado).
func FormatAmount(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0 CELO"
	}
	// milésimas de CELO
	milli := new(big.Int).Mul(wei, big.NewInt(1000))
	milli.Quo(milli, weiPerUnit)
	neg := milli.Sign() < 0
	milli.Abs(milli)

	q, r := new(big.Int).QuoRem(milli, big.NewInt(1000), new(big.Int))
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%s.%03d CELO", sign, q.String(), r.Int64())
}
