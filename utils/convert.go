package utils

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
)

var (
	OneEtherInWei = int64(1_000_000_000_000_000_000)
	OneGweiInWei  = int64(1_000_000_000)
)

func FloatToWei(value float64) *big.Int {
	return floatToUnit(value, OneEtherInWei)
}

func GweiToWei(value float64) *big.Int {
	return floatToUnit(value, OneGweiInWei)
}

func floatToUnit(value float64, unit int64) *big.Int {
	bigval := new(big.Float)
	bigval.SetFloat64(value)

	bigval = bigval.Mul(bigval, new(big.Float).SetInt(big.NewInt(unit)))

	result := new(big.Int)
	bigval.Int(result)
	return result
}

// ToDecimalString normalizes a numeric string given in decimal or 0x-prefixed hex into its
// canonical decimal form.
func ToDecimalString(s string) (string, error) {
	n, ok := math.ParseBig256(s)
	if !ok {
		return "", fmt.Errorf("invalid numeric value %q", s)
	}

	return n.String(), nil
}
