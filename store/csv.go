package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var ErrMissingColumn = errors.New("store: missing csv column")

// Columns every contact CSV starts with. Any further column is a merge field.
var contactColumns = []string{"id", "name", "phone", "group"}

// ImportCSV reads contacts from a CSV stream whose first row names the
// columns. name and phone are required; id and group are optional and every
// other column becomes a contact field. Rows without a valid number are
// skipped and reported by name.
func ImportCSV(r io.Reader, region string) (ImportResult, error) {
	var res ImportResult
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"name", "phone"} {
		if _, ok := index[required]; !ok {
			return res, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	cell := func(row []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("failed to read csv: %w", err)
		}

		name := cell(row, "name")
		phone, err := NormalizePhone(cell(row, "phone"), region)
		if err != nil {
			res.Skipped = append(res.Skipped, name)
			continue
		}

		c := Contact{
			ID:    cell(row, "id"),
			Name:  name,
			Phone: phone,
			Group: cell(row, "group"),
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		for column := range index {
			if isContactColumn(column) {
				continue
			}
			if v := cell(row, column); v != "" {
				if c.Fields == nil {
					c.Fields = make(map[string]string)
				}
				c.Fields[column] = v
			}
		}
		res.Contacts = append(res.Contacts, c)
	}
	return res, nil
}

// ExportCSV writes contacts with a header row. Field columns are the sorted
// union of every contact's field names.
func ExportCSV(w io.Writer, contacts []Contact) error {
	fieldSet := make(map[string]struct{})
	for _, c := range contacts {
		for k := range c.Fields {
			fieldSet[k] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for k := range fieldSet {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	writer := csv.NewWriter(w)
	if err := writer.Write(append(append([]string{}, contactColumns...), fields...)); err != nil {
		return err
	}
	for _, c := range contacts {
		row := []string{c.ID, c.Name, c.Phone, c.Group}
		for _, k := range fields {
			row = append(row, c.Fields[k])
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func isContactColumn(column string) bool {
	for _, c := range contactColumns {
		if c == column {
			return true
		}
	}
	return false
}
