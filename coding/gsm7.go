package coding

import (
	"fmt"
	"strings"
)

// escape introduces a code from the extension table.
const escape byte = 0x1B

// gsm7Default maps GSM 03.38 default alphabet codes (0x00–0x7F) to runes.
// 0x1B is the escape code and has no rune of its own.
var gsm7Default = [128]rune{
	'@', '£', '$', '¥', 'è', 'é', 'ù', 'ì', 'ò', 'Ç', '\n', 'Ø', 'ø', '\r', 'Å', 'å',
	'Δ', '_', 'Φ', 'Γ', 'Λ', 'Ω', 'Π', 'Ψ', 'Σ', 'Θ', 'Ξ', 0, 'Æ', 'æ', 'ß', 'É',
	' ', '!', '"', '#', '¤', '%', '&', '\'', '(', ')', '*', '+', ',', '-', '.', '/',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', ';', '<', '=', '>', '?',
	'¡', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', 'Ä', 'Ö', 'Ñ', 'Ü', '§',
	'¿', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', 'ä', 'ö', 'ñ', 'ü', 'à',
}

// gsm7Extension maps extension codes (following 0x1B) to runes.
var gsm7Extension = map[byte]rune{
	0x0A: '\f',
	0x14: '^',
	0x28: '{',
	0x29: '}',
	0x2F: '\\',
	0x3C: '[',
	0x3D: '~',
	0x3E: ']',
	0x40: '|',
	0x65: '€',
}

// Reverse lookups, built once from the tables above.
var (
	gsm7BasicSet      = make(map[rune]byte, len(gsm7Default))
	gsm7ExtendedSet   = make(map[rune]byte, len(gsm7Extension))
	replacementSeptet byte
)

func init() {
	for code, r := range gsm7Default {
		if byte(code) == escape {
			continue
		}
		gsm7BasicSet[r] = byte(code)
	}
	for code, r := range gsm7Extension {
		gsm7ExtendedSet[r] = code
	}
	replacementSeptet = gsm7BasicSet['?']
}

// InGSM7 reports whether r can be sent with the GSM 7-bit alphabet,
// either directly or through the extension table.
func InGSM7(r rune) bool {
	if _, ok := gsm7BasicSet[r]; ok {
		return true
	}
	_, ok := gsm7ExtendedSet[r]
	return ok
}

// EncodeGSM7 encodes text as unpacked GSM 7-bit septets, one per byte, which is
// what SMPP expects for data_coding 0. Extension characters are written as an
// escape followed by their code. Characters outside the alphabet become '?'.
func EncodeGSM7(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if code, ok := gsm7BasicSet[r]; ok {
			out = append(out, code)
		} else if code, ok := gsm7ExtendedSet[r]; ok {
			out = append(out, escape, code)
		} else {
			out = append(out, replacementSeptet)
		}
	}
	return out
}

// DecodeGSM7 decodes unpacked GSM 7-bit septets into a string.
func DecodeGSM7(input []byte) (string, error) {
	var builder strings.Builder
	for i := 0; i < len(input); i++ {
		b := input[i]
		if b == escape {
			if i+1 >= len(input) {
				return "", ErrEscapeAtEnd
			}
			i++
			r, ok := gsm7Extension[input[i]]
			if !ok {
				return "", fmt.Errorf("%w: extension 0x%02X", ErrInvalidSeptet, input[i])
			}
			builder.WriteRune(r)
			continue
		}
		if b > 0x7F {
			return "", fmt.Errorf("%w: 0x%02X", ErrInvalidSeptet, b)
		}
		builder.WriteRune(gsm7Default[b])
	}
	return builder.String(), nil
}

// PackSeptets packs 7-bit values into octets, least significant bit first.
func PackSeptets(septets []byte) []byte {
	packed := make([]byte, 0, (len(septets)*7+7)/8)
	var acc uint16
	var bits uint
	for _, s := range septets {
		acc |= uint16(s&0x7F) << bits
		bits += 7
		for bits >= 8 {
			packed = append(packed, byte(acc))
			acc >>= 8
			bits -= 8
		}
	}
	if bits > 0 {
		packed = append(packed, byte(acc))
	}
	return packed
}

// UnpackSeptets reverses PackSeptets. When the packed length is a multiple of
// seven the final septet is ambiguous; a zero there is treated as padding, so a
// trailing '@' in a message of exactly 8n characters does not survive the round trip.
func UnpackSeptets(packed []byte) []byte {
	septets := make([]byte, 0, len(packed)*8/7)
	var acc uint16
	var bits uint
	for _, b := range packed {
		acc |= uint16(b) << bits
		bits += 8
		for bits >= 7 {
			septets = append(septets, byte(acc&0x7F))
			acc >>= 7
			bits -= 7
		}
	}
	if len(packed)%7 == 0 && len(septets) > 0 && septets[len(septets)-1] == 0 {
		septets = septets[:len(septets)-1]
	}
	return septets
}
