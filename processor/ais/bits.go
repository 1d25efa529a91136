package ais

import (
	"fmt"
	"strings"

	"github.com/c360/seatrack/errors"
)

// payload is a de-armoured AIS message: one 6-bit value per character.
type payload struct {
	sixbits []byte
	nbits   int
}

func unarmour(armoured string, fillBits int) (payload, error) {
	if fillBits < 0 || fillBits > 5 {
		return payload{}, errors.WrapInvalid(fmt.Errorf("%w: fill bits %d", errors.ErrParsingFailed, fillBits),
			"ais", "unarmour", "check fill bits")
	}

	p := payload{sixbits: make([]byte, len(armoured))}
	for i := 0; i < len(armoured); i++ {
		c := armoured[i]
		if c < '0' || c > 'w' || (c > 'W' && c < '`') {
			return payload{}, errors.WrapInvalid(fmt.Errorf("%w: payload character %q", errors.ErrParsingFailed, c),
				"ais", "unarmour", "decode payload")
		}
		v := c - '0'
		if v > 40 {
			v -= 8
		}
		p.sixbits[i] = v
	}
	p.nbits = len(armoured)*6 - fillBits
	if p.nbits < 0 {
		p.nbits = 0
	}
	return p, nil
}

func (p payload) bit(i int) uint64 {
	if i >= p.nbits {
		return 0
	}
	return uint64(p.sixbits[i/6]>>(5-i%6)) & 1
}

// unsigned reads n bits from start as an unsigned integer. Bits past the end of
// the payload read as zero.
func (p payload) unsigned(start, n int) uint64 {
	var v uint64
	for i := start; i < start+n; i++ {
		v = v<<1 | p.bit(i)
	}
	return v
}

// signed reads n bits from start as a two's complement integer.
func (p payload) signed(start, n int) int64 {
	v := p.unsigned(start, n)
	if v&(1<<(n-1)) != 0 {
		return int64(v) - int64(1)<<n
	}
	return int64(v)
}

// text reads n bits from start as 6-bit ASCII, dropping '@' padding and
// trailing spaces.
func (p payload) text(start, n int) string {
	var b strings.Builder
	for i := start; i+6 <= start+n && i+6 <= p.nbits; i += 6 {
		c := byte(p.unsigned(i, 6))
		if c < 32 {
			c += 64
		}
		b.WriteByte(c)
	}
	s := b.String()
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	return strings.TrimSpace(s)
}
