package ordering

import "fmt"

// PositionAfter returns a key that sorts after key. The integer part is
// incremented when there is room, otherwise the fraction grows.
func PositionAfter(key string) (string, error) {
	if err := Validate(key); err != nil {
		return "", err
	}
	integer, fraction := split(key)
	if next, ok := increment(integer); ok {
		return next, nil
	}
	return integer + midpoint(fraction, ""), nil
}

// PositionBefore returns a key that sorts before key.
func PositionBefore(key string) (string, error) {
	if err := Validate(key); err != nil {
		return "", err
	}
	integer, fraction := split(key)
	if integer == smallestInteger {
		// Validate guarantees a fraction here.
		return integer + midpoint("", fraction), nil
	}
	if fraction != "" {
		return integer, nil
	}
	prev := integerValue(integer) - 1
	if prev == minInteger {
		return smallestInteger + midpoint("", ""), nil
	}
	prevKey, _ := integerKey(prev)
	return prevKey, nil
}

// PositionBetween returns a key strictly between low and high. An empty bound
// is open on that side, and two empty bounds yield FirstPosition. It fails
// with ErrInvalidRange unless low sorts before high.
func PositionBetween(low, high string) (string, error) {
	switch {
	case low == "" && high == "":
		return FirstPosition, nil
	case low == "":
		return PositionBefore(high)
	case high == "":
		return PositionAfter(low)
	}
	if err := Validate(low); err != nil {
		return "", err
	}
	if err := Validate(high); err != nil {
		return "", err
	}
	if low >= high {
		return "", fmt.Errorf("%w: %q >= %q", ErrInvalidRange, low, high)
	}

	il, fl := split(low)
	ih, fh := split(high)
	if il == ih {
		return il + midpoint(fl, fh), nil
	}
	if next, ok := increment(il); ok && next < high {
		return next, nil
	}
	return il + midpoint(fl, ""), nil
}

// MustBetween is PositionBetween for callers whose bounds are known to be
// ordered. It panics otherwise.
func MustBetween(low, high string) string {
	key, err := PositionBetween(low, high)
	if err != nil {
		panic(err)
	}
	return key
}

// Spread returns n increasing keys starting at FirstPosition, the same keys a
// list gets when its items are appended one by one.
func Spread(n int) []string {
	if n <= 0 {
		return nil
	}
	keys := make([]string, n)
	keys[0] = FirstPosition
	for i := 1; i < n; i++ {
		keys[i] = MustBetween(keys[i-1], "")
	}
	return keys
}

func increment(integer string) (string, bool) {
	return integerKey(integerValue(integer) + 1)
}

// midpoint returns a fraction strictly between fractions a and b, where an
// empty b is an open upper bound. Neither argument may end in '0' and a must
// sort before b.
func midpoint(a, b string) string {
	if b != "" {
		n := 0
		for n < len(b) && digitAt(a, n) == b[n] {
			n++
		}
		if n > 0 {
			return b[:n] + midpoint(tail(a, n), b[n:])
		}
	}

	digitA := int64(0)
	if a != "" {
		digitA = digitValue(a[0])
	}
	digitB := base
	if b != "" {
		digitB = digitValue(b[0])
	}
	if digitB-digitA > 1 {
		return string(digits[(digitA+digitB+1)/2])
	}
	if len(b) > 1 {
		return b[:1]
	}
	return string(digits[digitA]) + midpoint(tail(a, 1), "")
}

// digitAt pads a with zeros past its end.
func digitAt(a string, i int) byte {
	if i < len(a) {
		return a[i]
	}
	return '0'
}

func tail(a string, i int) string {
	if i < len(a) {
		return a[i:]
	}
	return ""
}
