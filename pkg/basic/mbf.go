package basic

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

// MBF32 converts a 4-byte Microsoft Binary Format single into an IEEE float32
func MBF32(mbf [4]byte) float32 {
	if mbf[3] == 0 {
		return 0
	}

	sign := mbf[2] & 0x80
	exp := mbf[3] - 2

	var ieee [4]byte
	ieee[3] = sign | exp>>1
	ieee[2] = (exp<<7)&0x80 | mbf[2]&0x7F
	ieee[1] = mbf[1]
	ieee[0] = mbf[0]

	return math.Float32frombits(binary.LittleEndian.Uint32(ieee[:]))
}

// MBF64 converts an 8-byte Microsoft Binary Format double into an IEEE float64
func MBF64(mbf [8]byte) float64 {
	if mbf[7] == 0 {
		return 0
	}

	sign := mbf[6] & 0x80
	mbf[6] &= 0x7F
	exp := (uint16(mbf[7]) - 129 + 1023) & 0xFFFF

	for i := 0; i < 7; i++ {
		mbf[i] = mbf[i]>>3 | mbf[i+1]<<5
	}
	mbf[7] = sign | byte(exp>>4)&0x7F
	mbf[6] = mbf[6]&0x0F | byte(exp&0x0F)<<4

	return math.Float64frombits(binary.LittleEndian.Uint64(mbf[:]))
}

// formatNumber prints f with prec significant digits (JavaScript toPrecision style) and drops
// trailing zeros from the fraction. The decimal point stays, so 1 prints as "1.". Mantissa
// zeros of exponential forms and integer digits are kept.
func formatNumber(f float64, prec int) string {
	s := toPrecision(f, prec)
	if strings.ContainsRune(s, 'e') || !strings.ContainsRune(s, '.') {
		return s
	}
	return strings.TrimRight(s, "0")
}

func toPrecision(f float64, prec int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return strconv.FormatFloat(0, 'f', prec-1, 64)
	}

	s := strconv.FormatFloat(f, 'e', prec-1, 64)
	i := strings.IndexByte(s, 'e')
	exp, _ := strconv.Atoi(s[i+1:])

	if exp < -6 || exp >= prec {
		sign := "+"
		if exp < 0 {
			sign = "-"
			exp = -exp
		}
		return s[:i] + "e" + sign + strconv.Itoa(exp)
	}
	return strconv.FormatFloat(f, 'f', prec-1-exp, 64)
}
