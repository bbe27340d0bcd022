package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTemplates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Template(ctx, "birthday")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.SaveTemplate(ctx, Template{Name: "no id"}), ErrMissingID)

	require.NoError(t, m.SaveTemplate(ctx, Template{ID: "get-well", Name: "Get Well Soon", Body: "Get well soon, {{recipient_name}}!"}))
	require.NoError(t, m.SaveTemplate(ctx, Template{ID: "birthday", Name: "Birthday Celebration", Body: "Happy Birthday {{recipient_name}}!"}))

	tpl, err := m.Template(ctx, "birthday")
	require.NoError(t, err)
	assert.Equal(t, "Birthday Celebration", tpl.Name)

	all, err := m.Templates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "birthday", all[0].ID)
}

func TestMemoryContactsByGroup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveContact(ctx, Contact{ID: "1", Name: "Sarah Cohen", Group: "Family"}))
	require.NoError(t, m.SaveContact(ctx, Contact{ID: "2", Name: "David Levy", Group: "Synagogue"}))
	require.NoError(t, m.SaveContact(ctx, Contact{ID: "5", Name: "Lisa Wilson", Group: "Family"}))

	family, err := m.Contacts(ctx, "Family")
	require.NoError(t, err)
	assert.Len(t, family, 2)

	all, err := m.Contacts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = m.Contact(ctx, "9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("(650) 253-0000", "")
	require.NoError(t, err)
	assert.Equal(t, "+16502530000", got)

	got, err = NormalizePhone("+44 20 7031 3000", "US")
	require.NoError(t, err)
	assert.Equal(t, "+442070313000", got)

	_, err = NormalizePhone("12345", "US")
	assert.ErrorIs(t, err, ErrInvalidPhone)

	_, err = NormalizePhone("call me", "US")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestImportVCard(t *testing.T) {
	cards := strings.Join([]string{
		"BEGIN:VCARD",
		"VERSION:3.0",
		"UID:contact-1",
		"FN:Sarah Cohen",
		"TEL;TYPE=CELL:(650) 253-0000",
		"CATEGORIES:Family,Friends",
		"END:VCARD",
		"BEGIN:VCARD",
		"VERSION:3.0",
		"FN:No Phone",
		"END:VCARD",
		"BEGIN:VCARD",
		"VERSION:3.0",
		"FN:Oliver Twist",
		"TEL:+44 20 7031 3000",
		"END:VCARD",
		"",
	}, "\r\n")

	res, err := ImportVCard(strings.NewReader(cards), "US")
	require.NoError(t, err)
	require.Len(t, res.Contacts, 2)
	assert.Equal(t, []string{"No Phone"}, res.Skipped)

	assert.Equal(t, Contact{ID: "contact-1", Name: "Sarah Cohen", Phone: "+16502530000", Group: "Family"}, res.Contacts[0])
	assert.Equal(t, "Oliver Twist", res.Contacts[1].Name)
	assert.Equal(t, "+442070313000", res.Contacts[1].Phone)
	assert.NotEmpty(t, res.Contacts[1].ID)
}

func TestExportVCardRoundTrip(t *testing.T) {
	contacts := []Contact{
		{ID: "c1", Name: "Sarah Cohen", Phone: "+16502530000", Group: "Family"},
		{ID: "c2", Name: "David Levy", Phone: "+442070313000"},
	}

	var buf strings.Builder
	require.NoError(t, ExportVCard(&buf, contacts))
	assert.Contains(t, buf.String(), "FN:Sarah Cohen")
	assert.Equal(t, 2, strings.Count(buf.String(), "BEGIN:VCARD"))

	res, err := ImportVCard(strings.NewReader(buf.String()), "US")
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, contacts, res.Contacts)
}

func TestImportCSV(t *testing.T) {
	data := "Name,Phone,Group,event_date\n" +
		"Sarah Cohen,(650) 253-0000,Family,2024-03-01\n" +
		"Nobody,12345,,\n" +
		"Rachel Green,+44 20 7031 3000,,\n"

	res, err := ImportCSV(strings.NewReader(data), "US")
	require.NoError(t, err)
	require.Len(t, res.Contacts, 2)
	assert.Equal(t, []string{"Nobody"}, res.Skipped)

	sarah := res.Contacts[0]
	assert.NotEmpty(t, sarah.ID)
	assert.Equal(t, "+16502530000", sarah.Phone)
	assert.Equal(t, "Family", sarah.Group)
	assert.Equal(t, map[string]string{"event_date": "2024-03-01"}, sarah.Fields)
	assert.Nil(t, res.Contacts[1].Fields)
}

func TestImportCSVErrors(t *testing.T) {
	_, err := ImportCSV(strings.NewReader("name,email\nSarah,s@example.com\n"), "US")
	assert.ErrorIs(t, err, ErrMissingColumn)

	res, err := ImportCSV(strings.NewReader(""), "US")
	require.NoError(t, err)
	assert.Empty(t, res.Contacts)
}

func TestExportCSVRoundTrip(t *testing.T) {
	contacts := []Contact{
		{ID: "c1", Name: "Cohen, Sarah", Phone: "+16502530000", Group: "Family", Fields: map[string]string{"event_date": "2024-03-01"}},
		{ID: "c2", Name: "David Levy", Phone: "+442070313000", Fields: map[string]string{"age": "40"}},
	}

	var buf strings.Builder
	require.NoError(t, ExportCSV(&buf, contacts))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,name,phone,group,age,event_date", lines[0])
	assert.Equal(t, `c1,"Cohen, Sarah",+16502530000,Family,,2024-03-01`, lines[1])

	res, err := ImportCSV(strings.NewReader(buf.String()), "US")
	require.NoError(t, err)
	assert.Equal(t, contacts, res.Contacts)
}
