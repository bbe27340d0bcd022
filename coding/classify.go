package coding

// Classify suggests an encoding for text: GSM when every character is in the
// GSM 7-bit alphabet or its extension table, Unicode otherwise. The empty
// string is GSM.
//
// Only the whitespace GSM 03.38 defines counts: space, line feed, carriage
// return and (through the extension table) form feed. A tab has no GSM code
// and makes the text Unicode.
//
// The result is advisory. Callers may still send with an explicit encoding.
func Classify(text string) Encoding {
	for _, r := range text {
		if !InGSM7(r) {
			return Unicode
		}
	}
	return GSM
}
