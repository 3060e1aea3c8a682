package report

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Money formats d as dollars with thousands separators and two decimal
// places, e.g. "$24,500.00" or "-$1,250.50".
func Money(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")
	return sign + "$" + groupThousands(whole) + "." + cents
}

// maxPrinterDigits keeps whole parts inside int64 for the printer.
const maxPrinterDigits = 18

// groupThousands inserts separators into a string of digits.
func groupThousands(digits string) string {
	if len(digits) <= maxPrinterDigits {
		n, err := strconv.ParseInt(digits, 10, 64)
		if err == nil {
			return printer.Sprintf("%d", n)
		}
	}
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Percent formats p with one decimal place, e.g. "107.1%".
func Percent(p decimal.Decimal) string {
	return p.StringFixed(1) + "%"
}
