package metadata

import (
	"math/big"
	"strings"
)

// transform applies the value labels and the scale of a to vals, returning a new slice.
func transform(vals []string, a Attribute) []string {
	if a.Scale == 0 && len(a.ValueLabels) == 0 {
		return vals
	}

	res := make([]string, len(vals))

	for i, v := range vals {
		if l, ok := label(a.ValueLabels, v); ok {
			res[i] = l

			continue
		}

		res[i] = Rescale(v, a.Scale)
	}

	return res
}

func label(labels map[string]string, v string) (string, bool) {
	if l, ok := labels[v]; ok {
		return l, true
	}

	l, ok := labels[strings.ToLower(v)]

	return l, ok
}

// Rescale shifts the decimal point of the number v left by scale digits, ie. Rescale("1500000", 6) is "1.5". Values
// that are not numbers are returned unchanged.
func Rescale(v string, scale int) string {
	if scale <= 0 {
		return v
	}

	r, ok := new(big.Rat).SetString(v)
	if !ok {
		return v
	}

	r.Quo(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)))

	prec := scale
	if i := strings.IndexByte(v, '.'); i >= 0 {
		prec += len(v) - i - 1
	}

	s := r.FloatString(prec)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}

	return s
}
