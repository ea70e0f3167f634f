package domain

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	letters      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
	alphanumeric = letters + digits

	qrPrefix    = "PASS_"
	qrRandomLen = 24
)

// Random is the source identifiers are drawn from. *rand.Rand satisfies it.
type Random interface {
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) }

// IDGenerator produces PNRs, tracking numbers and pass QR tokens. It never
// checks uniqueness; the storage layer's unique indexes do.
type IDGenerator struct {
	rnd Random
}

// NewIDGenerator uses rnd, or the process-wide source when rnd is nil.
func NewIDGenerator(rnd Random) *IDGenerator {
	if rnd == nil {
		rnd = globalRandom{}
	}
	return &IDGenerator{rnd: rnd}
}

// PNR returns one uppercase letter followed by nine digits.
func (g *IDGenerator) PNR() string {
	var b strings.Builder
	b.Grow(10)

	b.WriteByte(letters[g.rnd.IntN(len(letters))])
	for range 9 {
		b.WriteByte(digits[g.rnd.IntN(len(digits))])
	}

	return b.String()
}

// TrackingNumber returns the first two characters of city, uppercased, and a
// zero-padded number in [0, 10000).
func (g *IDGenerator) TrackingNumber(city string) string {
	code := []rune(strings.TrimSpace(city))
	if len(code) > 2 {
		code = code[:2]
	}

	return fmt.Sprintf("%s%04d", strings.ToUpper(string(code)), g.rnd.IntN(10000))
}

func (g *IDGenerator) QRToken() string {
	var b strings.Builder
	b.Grow(len(qrPrefix) + qrRandomLen)

	b.WriteString(qrPrefix)
	for range qrRandomLen {
		b.WriteByte(alphanumeric[g.rnd.IntN(len(alphanumeric))])
	}

	return b.String()
}
