// Package merge renders greeting-card templates. Templates reference fields as
// {{field_name}} and may wrap text in {{#if field_name}}...{{/if}} so that it
// only appears when the field has a value.
package merge

import (
	"regexp"
	"sort"
	"strings"
)

// FieldType describes what a merge field holds, for editors and validation.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldName   FieldType = "name"
	FieldDate   FieldType = "date"
	FieldNumber FieldType = "number"
	FieldCustom FieldType = "custom"
)

// Field is a merge field definition.
type Field struct {
	Key         string    `json:"key" bson:"key"`
	Name        string    `json:"name" bson:"name"`
	Type        FieldType `json:"type" bson:"type"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Example     string    `json:"example,omitempty" bson:"example,omitempty"`
	Required    bool      `json:"required" bson:"required"`
}

// Placeholder returns the text a template uses to reference the field.
func (f Field) Placeholder() string {
	return "{{" + f.Key + "}}"
}

// DefaultFields are the fields every greeting template may use.
var DefaultFields = []Field{
	{Key: "recipient_name", Name: "Recipient Name", Type: FieldName, Description: "The name of the person receiving the card", Example: "Sarah Cohen", Required: true},
	{Key: "sender_name", Name: "Sender Name", Type: FieldName, Description: "The name of the person sending the card", Example: "David Levy"},
	{Key: "event_date", Name: "Event Date", Type: FieldDate, Description: "The date of the event", Example: "February 15, 2024"},
	{Key: "custom_message", Name: "Custom Message", Type: FieldText, Description: "Personal message from the sender", Example: "Wishing you a wonderful day!"},
	{Key: "age", Name: "Age", Type: FieldNumber, Description: "Age of the recipient", Example: "25"},
	{Key: "years_together", Name: "Years Together", Type: FieldNumber, Description: "Number of years, for anniversaries", Example: "10"},
}

var (
	conditionalRe = regexp.MustCompile(`(?s)\{\{#if\s+([A-Za-z0-9_]+)\s*\}\}(.*?)\{\{/if\}\}`)
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)
)

// Render fills a template. Conditional blocks are kept only when their field
// has a non-blank value; placeholders without a value are replaced with "".
func Render(template string, values map[string]string) string {
	out := conditionalRe.ReplaceAllStringFunc(template, func(block string) string {
		m := conditionalRe.FindStringSubmatch(block)
		if strings.TrimSpace(values[m[1]]) == "" {
			return ""
		}
		return m[2]
	})
	return placeholderRe.ReplaceAllStringFunc(out, func(ph string) string {
		m := placeholderRe.FindStringSubmatch(ph)
		return values[m[1]]
	})
}

// Preview renders a template the way an editor preview does: fields without a
// value fall back to the example of their definition.
func Preview(template string, values map[string]string, fields []Field) string {
	withExamples := make(map[string]string, len(fields)+len(values))
	for _, f := range fields {
		withExamples[f.Key] = f.Example
	}
	for k, v := range values {
		if v != "" {
			withExamples[k] = v
		}
	}
	return Render(template, withExamples)
}

// Referenced returns the field keys a template uses, sorted and de-duplicated.
func Referenced(template string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		seen[m[1]] = struct{}{}
	}
	for _, m := range conditionalRe.FindAllStringSubmatch(template, -1) {
		seen[m[1]] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Missing lists required fields that the template references but values
// leaves blank.
func Missing(template string, values map[string]string, fields []Field) []string {
	required := make(map[string]bool, len(fields))
	for _, f := range fields {
		required[f.Key] = f.Required
	}
	var missing []string
	for _, key := range Referenced(template) {
		if required[key] && strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}
