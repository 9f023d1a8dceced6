// Package ordering assigns sortable string keys to the items of a reorderable
// list, such as the ingredients, sections and steps of a recipe.
//
// A list's display order is the ascending byte-wise order of its keys. Moving
// an item gives it a new key between its new neighbours. No sibling is
// renumbered.
//
// # Key format
//
// A key is a two byte integer part followed by an optional fraction:
//
//	a0      integer 0, no fraction (FirstPosition)
//	a1      integer 1
//	a0V     integer 0 plus 31/62
//	Zz      integer -1
//
// Digits are base 62 in ASCII order ("0-9A-Za-z"). The head byte selects the
// integer block: 'a'..'z' for non-negative integers and 'A'..'Z' for negative
// ones, so every integer part has the same width. A fraction never ends in '0'.
// Both rules make byte order agree with numeric order.
//
// The smallest integer, "A0", is reserved: it only appears with a fraction,
// so there is always room for a key before any valid key.
//
// # Growth
//
// Appending with [PositionAfter] bumps the integer part and stays two bytes
// long for the first 1612 items. Inserting repeatedly at one boundary grows
// the fraction by about one digit every five or six inserts. Growth is
// unbounded. Callers that want short keys respace a list with [Spread].
package ordering

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = int64(len(digits))

const (
	// FirstPosition is the key given to the first item of an empty list.
	FirstPosition = "a0"

	smallestInteger = "A0"
	minInteger      = -26 * base
	maxInteger      = 26*base - 1
)

var (
	ErrInvalidKey       = errors.New("ordering: invalid position key")
	ErrInvalidRange     = errors.New("ordering: low key must sort before high key")
	ErrNotRepresentable = errors.New("ordering: value has no position key")
)

// digitValue maps a base 62 digit to 0..61, or -1 for any other byte.
func digitValue(c byte) int64 {
	switch {
	case c >= '0' && c <= '9':
		return int64(c - '0')
	case c >= 'A' && c <= 'Z':
		return int64(c-'A') + 10
	case c >= 'a' && c <= 'z':
		return int64(c-'a') + 36
	default:
		return -1
	}
}

func isHead(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// Validate reports whether key is a well-formed position key.
func Validate(key string) error {
	if len(key) < 2 {
		return fmt.Errorf("%w: %q is shorter than its integer part", ErrInvalidKey, key)
	}
	if !isHead(key[0]) {
		return fmt.Errorf("%w: %q has no integer head", ErrInvalidKey, key)
	}
	for i := 1; i < len(key); i++ {
		if digitValue(key[i]) < 0 {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, key[i])
		}
	}
	if len(key) > 2 && key[len(key)-1] == '0' {
		return fmt.Errorf("%w: %q has a trailing zero", ErrInvalidKey, key)
	}
	if key == smallestInteger {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidKey, key)
	}
	return nil
}

// split assumes a validated key.
func split(key string) (integer, fraction string) {
	return key[:2], key[2:]
}

func integerValue(integer string) int64 {
	head, digit := integer[0], digitValue(integer[1])
	if head >= 'a' {
		return int64(head-'a')*base + digit
	}
	return (int64(head-'A')-26)*base + digit
}

func integerKey(v int64) (string, bool) {
	if v < minInteger || v > maxInteger {
		return "", false
	}
	if v >= 0 {
		return string([]byte{'a' + byte(v/base), digits[v%base]}), true
	}
	u := v - minInteger
	return string([]byte{'A' + byte(u/base), digits[u%base]}), true
}

// Decode returns the exact value a key stands for: its integer part plus its
// base 62 fraction.
func Decode(key string) (*big.Rat, error) {
	if err := Validate(key); err != nil {
		return nil, err
	}
	integer, fraction := split(key)

	radix := big.NewInt(base)
	num := new(big.Int)
	den := big.NewInt(1)
	for i := 0; i < len(fraction); i++ {
		num.Mul(num, radix)
		num.Add(num, big.NewInt(digitValue(fraction[i])))
		den.Mul(den, radix)
	}

	value := new(big.Rat).SetInt64(integerValue(integer))
	return value.Add(value, new(big.Rat).SetFrac(num, den)), nil
}

// Encode is the inverse of Decode. It fails with ErrNotRepresentable when x is
// outside the integer range, is the reserved smallest integer, or has no
// finite base 62 expansion.
func Encode(x *big.Rat) (string, error) {
	if x == nil {
		return "", fmt.Errorf("%w: nil value", ErrNotRepresentable)
	}
	den := x.Denom()
	// Euclidean division floors for a positive denominator.
	whole, rem := new(big.Int).DivMod(x.Num(), den, new(big.Int))
	if !whole.IsInt64() {
		return "", fmt.Errorf("%w: %s out of range", ErrNotRepresentable, x.RatString())
	}
	integer, ok := integerKey(whole.Int64())
	if !ok {
		return "", fmt.Errorf("%w: %s out of range", ErrNotRepresentable, x.RatString())
	}
	if !terminates(den) {
		return "", fmt.Errorf("%w: %s does not terminate in base %d", ErrNotRepresentable, x.RatString(), base)
	}

	var sb strings.Builder
	sb.WriteString(integer)
	radix := big.NewInt(base)
	digit := new(big.Int)
	for rem.Sign() != 0 {
		rem.Mul(rem, radix)
		digit.DivMod(rem, den, rem)
		sb.WriteByte(digits[digit.Int64()])
	}

	key := sb.String()
	if key == smallestInteger {
		return "", fmt.Errorf("%w: %s is reserved", ErrNotRepresentable, x.RatString())
	}
	return key, nil
}

// terminates reports whether 1/den has a finite base 62 expansion, which holds
// when den has no prime factors other than those of 62.
func terminates(den *big.Int) bool {
	d := new(big.Int).Set(den)
	q, r := new(big.Int), new(big.Int)
	for _, p := range []*big.Int{big.NewInt(2), big.NewInt(31)} {
		for {
			q.QuoRem(d, p, r)
			if r.Sign() != 0 {
				break
			}
			d.Set(q)
		}
	}
	return d.IsInt64() && d.Int64() == 1
}
