package store

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/google/uuid"
)

// ImportResult reports what ImportVCard or ImportCSV read.
type ImportResult struct {
	Contacts []Contact `json:"contacts"`
	Skipped  []string  `json:"skipped,omitempty"`
}

// ImportVCard reads contacts from a vCard stream. Only the formatted name, the
// preferred telephone number and the first category are used. Cards without a
// valid number are skipped and reported by name.
func ImportVCard(r io.Reader, region string) (ImportResult, error) {
	var res ImportResult
	dec := vcard.NewDecoder(r)
	for {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("failed to decode vcard: %w", err)
		}

		name := strings.TrimSpace(card.PreferredValue(vcard.FieldFormattedName))
		phone, err := NormalizePhone(card.PreferredValue(vcard.FieldTelephone), region)
		if err != nil {
			res.Skipped = append(res.Skipped, name)
			continue
		}

		group := card.Value(vcard.FieldCategories)
		if i := strings.IndexByte(group, ','); i >= 0 {
			group = group[:i]
		}

		id := card.Value(vcard.FieldUID)
		if id == "" {
			id = uuid.NewString()
		}
		res.Contacts = append(res.Contacts, Contact{
			ID:    id,
			Name:  name,
			Phone: phone,
			Group: strings.TrimSpace(group),
		})
	}
	return res, nil
}

// ExportVCard writes one vCard 3.0 card per contact with its name, number,
// group as category and ID as UID, which is what ImportVCard reads back.
func ExportVCard(w io.Writer, contacts []Contact) error {
	enc := vcard.NewEncoder(w)
	for _, c := range contacts {
		card := make(vcard.Card)
		card.SetValue(vcard.FieldVersion, "3.0")
		card.SetValue(vcard.FieldUID, c.ID)
		card.SetValue(vcard.FieldFormattedName, c.Name)
		card.SetValue(vcard.FieldTelephone, c.Phone)
		if c.Group != "" {
			card.SetValue(vcard.FieldCategories, c.Group)
		}
		if err := enc.Encode(card); err != nil {
			return fmt.Errorf("failed to encode vcard for %s: %w", c.ID, err)
		}
	}
	return nil
}
