// Package shopping turns the ingredients of scheduled recipes into one
// combined shopping list.
package shopping

import (
	"errors"
	"math/big"
	"regexp"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/unicode/norm"
)

var ErrIncompatibleUnits = errors.New("shopping: incompatible units")

type Unit int

const (
	UnitNone Unit = iota
	UnitSome
	UnitUnknown
	UnitTeaspoon
	UnitTablespoon
	UnitFluidOunce
	UnitCup
	UnitPint
	UnitQuart
	UnitGallon
	UnitMilliliter
	UnitLiter
	UnitGram
	UnitKilogram
	UnitOunce
	UnitPound
)

type dimension int

const (
	dimCount dimension = iota
	dimVolume
	dimMass
)

type unitInfo struct {
	symbol string
	dim    dimension
	// size in milliliters or grams
	size *big.Rat
}

func rat(s string) *big.Rat {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		panic("shopping: bad constant " + s)
	}
	return r
}

// US customary volumes are defined from the teaspoon, 4.92892159375 ml.
var units = map[Unit]unitInfo{
	UnitTeaspoon:   {"tsp", dimVolume, rat("4.92892159375")},
	UnitTablespoon: {"tbsp", dimVolume, rat("14.78676478125")},
	UnitFluidOunce: {"fl oz", dimVolume, rat("29.5735295625")},
	UnitCup:        {"cup", dimVolume, rat("236.5882365")},
	UnitPint:       {"pint", dimVolume, rat("473.176473")},
	UnitQuart:      {"quart", dimVolume, rat("946.352946")},
	UnitGallon:     {"gallon", dimVolume, rat("3785.411784")},
	UnitMilliliter: {"ml", dimVolume, rat("1")},
	UnitLiter:      {"l", dimVolume, rat("1000")},
	UnitGram:       {"g", dimMass, rat("1")},
	UnitKilogram:   {"kg", dimMass, rat("1000")},
	UnitOunce:      {"oz", dimMass, rat("28.349523125")},
	UnitPound:      {"lb", dimMass, rat("453.59237")},
}

var unitAliases = map[string]Unit{
	"tsp": UnitTeaspoon, "tsps": UnitTeaspoon, "teaspoon": UnitTeaspoon, "teaspoons": UnitTeaspoon,
	"tbsp": UnitTablespoon, "tbsps": UnitTablespoon, "tbs": UnitTablespoon, "tbl": UnitTablespoon,
	"tablespoon": UnitTablespoon, "tablespoons": UnitTablespoon,
	"fl oz": UnitFluidOunce, "fluid ounce": UnitFluidOunce, "fluid ounces": UnitFluidOunce,
	"cup": UnitCup, "cups": UnitCup, "c": UnitCup,
	"pint": UnitPint, "pints": UnitPint, "pt": UnitPint,
	"quart": UnitQuart, "quarts": UnitQuart, "qt": UnitQuart,
	"gallon": UnitGallon, "gallons": UnitGallon, "gal": UnitGallon,
	"ml": UnitMilliliter, "milliliter": UnitMilliliter, "milliliters": UnitMilliliter,
	"millilitre": UnitMilliliter, "millilitres": UnitMilliliter,
	"l": UnitLiter, "liter": UnitLiter, "liters": UnitLiter, "litre": UnitLiter, "litres": UnitLiter,
	"g": UnitGram, "gr": UnitGram, "gram": UnitGram, "grams": UnitGram,
	"kg": UnitKilogram, "kilogram": UnitKilogram, "kilograms": UnitKilogram,
	"oz": UnitOunce, "ounce": UnitOunce, "ounces": UnitOunce,
	"lb": UnitPound, "lbs": UnitPound, "pound": UnitPound, "pounds": UnitPound,
}

var someWords = map[string]bool{
	"": true, "some": true, "pinch": true, "dash": true, "handful": true,
	"to taste": true, "as needed": true, "splash": true,
}

// Quantity is an exact amount of one unit. Label names the unit when Unit is
// UnitUnknown.
type Quantity struct {
	Amount *big.Rat
	Unit   Unit
	Label  string
}

func some() Quantity {
	return Quantity{Amount: big.NewRat(1, 1), Unit: UnitSome}
}

const number = `\d+\s+\d+/\d+|\d+/\d+|\d+(?:\.\d+)?`

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	alternative   = regexp.MustCompile(`([A-Za-z.])\s*/.*$`)
	addition      = regexp.MustCompile(`\s+(?:\+|plus)\s+`)
	amountPattern = regexp.MustCompile(`^(` + number + `)?\s*(?:(?:-|–|to)\s*(` + number + `))?\s*(.*)$`)
)

// ParseQuantity reads a free-form quantity such as "1 1/2 cups", "4-5",
// "½ tsp" or "1 tbsp + 1 tsp". Text without an amount is "some".
func ParseQuantity(raw string) Quantity {
	text := normalizeFractions(raw)
	text = parenthetical.ReplaceAllString(text, " ")
	text = alternative.ReplaceAllString(text, "$1")
	text = strings.TrimSpace(text)

	parts := addition.Split(text, -1)
	total := parseSingle(parts[0])
	for _, part := range parts[1:] {
		sum, err := total.Add(parseSingle(part))
		if err != nil {
			break
		}
		total = sum
	}
	return total
}

func parseSingle(text string) Quantity {
	m := amountPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return some()
	}
	amountText, upper, unitText := m[1], m[2], strings.TrimSpace(m[3])
	if upper != "" {
		amountText = upper
	}
	unitText = strings.TrimSuffix(strings.TrimSuffix(unitText, " of"), ".")

	if amountText == "" {
		return some()
	}
	amount := parseAmount(amountText)

	switch unitText {
	case "t":
		return Quantity{Amount: amount, Unit: UnitTeaspoon}
	case "T":
		return Quantity{Amount: amount, Unit: UnitTablespoon}
	}
	lower := strings.ToLower(unitText)
	if lower == "" {
		return Quantity{Amount: amount, Unit: UnitNone}
	}
	if unit, ok := unitAliases[lower]; ok {
		return Quantity{Amount: amount, Unit: unit}
	}
	if someWords[lower] {
		return some()
	}
	return Quantity{Amount: amount, Unit: UnitUnknown, Label: singular(strings.Fields(lower)[0])}
}

func parseAmount(text string) *big.Rat {
	total := new(big.Rat)
	for _, field := range strings.Fields(text) {
		if r, ok := new(big.Rat).SetString(field); ok {
			total.Add(total, r)
		}
	}
	return total
}

// normalizeFractions rewrites vulgar fractions such as "1¾" as "1 3/4".
func normalizeFractions(s string) string {
	var b strings.Builder
	var prev rune
	for _, r := range s {
		if isVulgarFraction(r) && unicode.IsDigit(prev) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return strings.ReplaceAll(norm.NFKC.String(b.String()), "⁄", "/")
}

func isVulgarFraction(r rune) bool {
	return (r >= '¼' && r <= '¾') || (r >= '⅐' && r <= '⅞')
}

// Scale multiplies the amount by n. "some" stays "some".
func (q Quantity) Scale(n int) Quantity {
	if q.Unit == UnitSome || n == 1 {
		return q
	}
	q.Amount = new(big.Rat).Mul(q.Amount, big.NewRat(int64(n), 1))
	return q
}

// Add combines two quantities. Volumes and masses convert to the smaller of
// the two units, "some" disappears next to a real amount, and anything else
// of a different kind fails with ErrIncompatibleUnits.
func (q Quantity) Add(other Quantity) (Quantity, error) {
	switch {
	case q.Unit == UnitSome:
		return other, nil
	case other.Unit == UnitSome:
		return q, nil
	case q.Unit == other.Unit && (q.Unit != UnitUnknown || q.Label == other.Label):
		return Quantity{Amount: new(big.Rat).Add(q.Amount, other.Amount), Unit: q.Unit, Label: q.Label}, nil
	}

	a, aok := units[q.Unit]
	b, bok := units[other.Unit]
	if !aok || !bok || a.dim != b.dim {
		return Quantity{}, ErrIncompatibleUnits
	}
	target, small := q.Unit, a
	if b.size.Cmp(a.size) < 0 {
		target, small = other.Unit, b
	}
	sum := new(big.Rat).Add(
		new(big.Rat).Mul(q.Amount, a.size),
		new(big.Rat).Mul(other.Amount, b.size),
	)
	return Quantity{Amount: sum.Quo(sum, small.size), Unit: target}, nil
}

func (q Quantity) String() string {
	if q.Unit == UnitSome {
		return "some"
	}
	f, _ := q.Amount.Float64()
	amount := humanize.FtoaWithDigits(f, 2)
	switch q.Unit {
	case UnitNone:
		return amount
	case UnitUnknown:
		return amount + " " + q.Label
	default:
		return amount + " " + units[q.Unit].symbol
	}
}
