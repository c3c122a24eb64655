package codec

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// PostgreSQL's numeric wire format groups decimal digits into base-10000
// "digits" anchored at the decimal point: weight is the base-10000
// exponent of the first stored group, dscale is the number of decimal
// digits displayed after the point, and sign is 0x0000/0x4000/0xC000 for
// positive/negative/NaN.
const (
	numericPosSign = 0x0000
	numericNegSign = 0x4000
	numericNaNSign = 0xC000
)

func decodeNumeric(format Format, src []byte) (*apd.Decimal, error) {
	if format == FormatText {
		d, _, err := apd.NewFromString(string(src))
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	if len(src) < 8 {
		return nil, fmt.Errorf("invalid binary numeric header length %d", len(src))
	}
	ndigits := int(binary.BigEndian.Uint16(src[0:2]))
	weight := int16(binary.BigEndian.Uint16(src[2:4]))
	sign := binary.BigEndian.Uint16(src[4:6])
	dscale := binary.BigEndian.Uint16(src[6:8])

	if sign == numericNaNSign {
		d := &apd.Decimal{Form: apd.NaN}
		return d, nil
	}
	if sign != numericPosSign && sign != numericNegSign {
		return nil, fmt.Errorf("invalid numeric sign 0x%x", sign)
	}

	if len(src) < 8+ndigits*2 {
		return nil, fmt.Errorf("truncated numeric digits")
	}

	var b strings.Builder
	for i := 0; i < ndigits; i++ {
		group := binary.BigEndian.Uint16(src[8+i*2 : 10+i*2])
		if group > 9999 {
			return nil, fmt.Errorf("invalid numeric digit group %d", group)
		}
		fmt.Fprintf(&b, "%04d", group)
	}
	if ndigits == 0 {
		b.WriteByte('0')
	}

	// digitsStr represents the value as an integer with implicit decimal
	// point placed (weight+1)*4 digits from the left.
	digitsStr := b.String()
	pointPos := (int(weight) + 1) * 4
	var intPart, fracPart string
	if pointPos <= 0 {
		intPart = "0"
		fracPart = strings.Repeat("0", -pointPos) + digitsStr
	} else if pointPos >= len(digitsStr) {
		intPart = digitsStr + strings.Repeat("0", pointPos-len(digitsStr))
		fracPart = ""
	} else {
		intPart = digitsStr[:pointPos]
		fracPart = digitsStr[pointPos:]
	}

	if len(fracPart) > int(dscale) {
		fracPart = fracPart[:dscale]
	} else if len(fracPart) < int(dscale) {
		fracPart = fracPart + strings.Repeat("0", int(dscale)-len(fracPart))
	}

	text := intPart
	if dscale > 0 {
		text += "." + fracPart
	}
	if sign == numericNegSign {
		text = "-" + text
	}

	d, _, err := apd.NewFromString(text)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func encodeNumeric(format Format, v any) ([]byte, error) {
	d, ok := v.(*apd.Decimal)
	if !ok {
		return nil, fmt.Errorf("expected *apd.Decimal, got %T", v)
	}

	if format == FormatText {
		return []byte(d.String()), nil
	}

	if d.Form == apd.NaN || d.Form == apd.NaNSignaling {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint16(buf[4:6], numericNaNSign)
		return buf, nil
	}

	sign := uint16(numericPosSign)
	if d.Negative {
		sign = numericNegSign
	}

	coeffDigits := d.Coeff.String()
	exponent := int(d.Exponent)

	var intPart, fracPart string
	if exponent >= 0 {
		intPart = coeffDigits + strings.Repeat("0", exponent)
		fracPart = ""
	} else {
		fracLen := -exponent
		if len(coeffDigits) <= fracLen {
			coeffDigits = strings.Repeat("0", fracLen-len(coeffDigits)+1) + coeffDigits
		}
		intPart = coeffDigits[:len(coeffDigits)-fracLen]
		fracPart = coeffDigits[len(coeffDigits)-fracLen:]
	}
	intPart = strings.TrimLeft(intPart, "0")
	dscale := uint16(len(fracPart))

	effectiveIntLen := len(intPart)
	numIntGroups := (effectiveIntLen + 3) / 4
	padLeft := numIntGroups*4 - effectiveIntLen
	paddedInt := strings.Repeat("0", padLeft) + intPart

	numFracGroups := (len(fracPart) + 3) / 4
	padRight := numFracGroups*4 - len(fracPart)
	paddedFrac := fracPart + strings.Repeat("0", padRight)

	groups := make([]uint16, 0, numIntGroups+numFracGroups)
	for i := 0; i < numIntGroups; i++ {
		groups = append(groups, parseGroup(paddedInt[i*4:i*4+4]))
	}
	for i := 0; i < numFracGroups; i++ {
		groups = append(groups, parseGroup(paddedFrac[i*4:i*4+4]))
	}

	weight := numIntGroups - 1

	for len(groups) > 0 && groups[0] == 0 {
		groups = groups[1:]
		weight--
	}
	for len(groups) > 0 && groups[len(groups)-1] == 0 {
		groups = groups[:len(groups)-1]
	}
	if len(groups) == 0 {
		weight = 0
		sign = numericPosSign
	}

	buf := make([]byte, 8+len(groups)*2)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(groups)))
	binary.BigEndian.PutUint16(buf[2:4], uint16(int16(weight)))
	binary.BigEndian.PutUint16(buf[4:6], sign)
	binary.BigEndian.PutUint16(buf[6:8], dscale)
	for i, g := range groups {
		binary.BigEndian.PutUint16(buf[8+i*2:10+i*2], g)
	}
	return buf, nil
}

func parseGroup(s string) uint16 {
	var n uint16
	for _, c := range s {
		n = n*10 + uint16(c-'0')
	}
	return n
}
