package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const birthdayCard = `Dear {{recipient_name}},

{{custom_message}}

{{#if age}}Happy {{age}}th Birthday!{{/if}}
{{#if years_together}}Congratulations on {{years_together}} years together!{{/if}}

Best wishes,
{{sender_name}}`

func TestRender(t *testing.T) {
	got := Render(birthdayCard, map[string]string{
		"recipient_name": "Sarah",
		"custom_message": "Have a great one!",
		"age":            "30",
		"sender_name":    "David",
	})
	assert.Equal(t, `Dear Sarah,

Have a great one!

Happy 30th Birthday!


Best wishes,
David`, got)
}

func TestRenderBlankConditional(t *testing.T) {
	got := Render("{{#if age}}Age {{age}}{{/if}}done", map[string]string{"age": "  "})
	assert.Equal(t, "done", got)
}

func TestRenderMultilineConditional(t *testing.T) {
	got := Render("{{#if note}}P.S.\n{{note}}{{/if}}", map[string]string{"note": "see you soon"})
	assert.Equal(t, "P.S.\nsee you soon", got)
}

func TestRenderUnknownFieldIsEmpty(t *testing.T) {
	assert.Equal(t, "Hi !", Render("Hi {{ nickname }}!", nil))
}

func TestPreviewUsesExamples(t *testing.T) {
	got := Preview("Dear {{recipient_name}}, from {{sender_name}}", map[string]string{"sender_name": "Rachel"}, DefaultFields)
	assert.Equal(t, "Dear Sarah Cohen, from Rachel", got)
}

func TestReferenced(t *testing.T) {
	assert.Equal(t,
		[]string{"age", "custom_message", "recipient_name", "sender_name", "years_together"},
		Referenced(birthdayCard))
}

func TestMissing(t *testing.T) {
	assert.Equal(t, []string{"recipient_name"}, Missing(birthdayCard, map[string]string{"age": "3"}, DefaultFields))
	assert.Empty(t, Missing(birthdayCard, map[string]string{"recipient_name": "Lisa"}, DefaultFields))
	assert.Empty(t, Missing("no fields here", nil, DefaultFields))
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "{{event_date}}", DefaultFields[2].Placeholder())
}
