package domain

import (
	"math/rand/v2"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	pnrPattern = regexp.MustCompile(`^[A-Z][0-9]{9}$`)
	qrPattern  = regexp.MustCompile(`^PASS_[A-Z0-9]{24}$`)
)

func TestIDGenerator_PNR(t *testing.T) {
	gen := NewIDGenerator(nil)

	for range 10000 {
		pnr := gen.PNR()
		if !pnrPattern.MatchString(pnr) {
			t.Fatalf("unexpected PNR %q", pnr)
		}
	}
}

func TestIDGenerator_Deterministic(t *testing.T) {
	a := NewIDGenerator(rand.New(rand.NewPCG(1, 2)))
	b := NewIDGenerator(rand.New(rand.NewPCG(1, 2)))

	assert.Equal(t, a.PNR(), b.PNR())
	assert.Equal(t, a.QRToken(), b.QRToken())
}

func TestIDGenerator_TrackingNumber(t *testing.T) {
	gen := NewIDGenerator(nil)

	tn := gen.TrackingNumber("pune")
	assert.Regexp(t, `^PU[0-9]{4}$`, tn)

	assert.Regexp(t, `^X[0-9]{4}$`, gen.TrackingNumber("x"))
}

func TestIDGenerator_QRToken(t *testing.T) {
	gen := NewIDGenerator(nil)

	for range 100 {
		assert.Regexp(t, qrPattern, gen.QRToken())
	}
}
