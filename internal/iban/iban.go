// Package iban generates and validates the bank's checksummed account
// numbers. A number is 18 characters: a 2-letter region code, 2 check
// digits, a 4-letter product tag and a 10-digit serial whose first digit
// is always zero. The check digits follow IBAN-style mod-97 arithmetic
// over the letter-expanded product tag, the serial and the region code.
package iban

import (
	"math/rand"
	"strconv"
)

// Length is the fixed size of every account number.
const Length = 18

// Codec produces and checks account numbers for one region/product pair.
type Codec struct {
	region  string
	product string
	cash    string
	prefix  string // product letters expanded to digits
	suffix  string // region letters expanded to digits, plus "00"
}

// New builds a codec. Region must be 2 letters, product 4 letters; cash is
// the sentinel identifier accepted as an external counterparty.
func New(region, product, cash string) *Codec {
	return &Codec{
		region:  region,
		product: product,
		cash:    cash,
		prefix:  expandLetters(product),
		suffix:  expandLetters(region) + "00",
	}
}

// Generate returns a fresh account number. Generation itself never fails;
// collisions with existing balances are the caller's concern.
func (c *Codec) Generate() string {
	digits := make([]byte, 0, 10)
	digits = append(digits, '0')
	for i := 0; i < 9; i++ {
		digits = append(digits, byte('0'+rand.Intn(10)))
	}
	return c.assemble(string(digits))
}

// Valid reports whether the number has the right shape and its embedded
// check digits match the trailing serial. This is a format check only.
func (c *Codec) Valid(account string) bool {
	if len(account) != Length {
		return false
	}
	for i := 8; i < Length; i++ {
		if account[i] < '0' || account[i] > '9' {
			return false
		}
	}
	return account == c.assemble(account[8:])
}

// ValidTransferSource reports whether the identifier may appear as the
// "from" side of a transfer: any valid open account, or the cash sentinel
// standing in for an external counterparty.
func (c *Codec) ValidTransferSource(identifier string) bool {
	if identifier == c.cash {
		return true
	}
	return c.Valid(identifier)
}

func (c *Codec) assemble(digits string) string {
	return c.region + c.checkDigits(digits) + c.product + digits
}

func (c *Codec) checkDigits(digits string) string {
	check := 98 - mod97(c.prefix+digits+c.suffix)
	if check < 10 {
		return "0" + strconv.Itoa(check)
	}
	return strconv.Itoa(check)
}

// mod97 reduces an arbitrarily long decimal string digit by digit, so the
// 24-digit check string never needs big-integer arithmetic.
func mod97(s string) int {
	r := 0
	for i := 0; i < len(s); i++ {
		r = (r*10 + int(s[i]-'0')) % 97
	}
	return r
}

// expandLetters maps A..Z to 10..35, the IBAN letter expansion.
func expandLetters(letters string) string {
	out := make([]byte, 0, len(letters)*2)
	for i := 0; i < len(letters); i++ {
		out = strconv.AppendInt(out, int64(letters[i]-'A'+10), 10)
	}
	return string(out)
}
