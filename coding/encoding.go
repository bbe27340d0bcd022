package coding

import (
	"fmt"
	"strings"
)

// Encoding is the character repertoire a message is sent with.
type Encoding string

const (
	// GSM is the GSM 03.38 7-bit default alphabet (plus extension table).
	GSM Encoding = "GSM"
	// Unicode is UCS-2, used whenever a message leaves the GSM alphabet.
	Unicode Encoding = "UNICODE"
)

func (e Encoding) String() string {
	return string(e)
}

// Valid reports whether e is one of the known encodings.
func (e Encoding) Valid() bool {
	return e == GSM || e == Unicode
}

// ParseEncoding accepts the names used by the API and the CLI.
// GSM7 and UCS2 are accepted as aliases.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GSM", "GSM7":
		return GSM, nil
	case "UNICODE", "UCS2":
		return Unicode, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEncoding, s)
}

// UnmarshalText lets Encoding be decoded from JSON and YAML documents.
// An empty value decodes to the zero Encoding ("detect").
func (e *Encoding) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*e = ""
		return nil
	}
	parsed, err := ParseEncoding(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
