// Package store holds greeting templates and contacts.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrInvalidPhone = errors.New("store: invalid phone number")
	ErrMissingID    = errors.New("store: missing id")
)

// Template is a greeting-card message template.
type Template struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Category  string    `json:"category,omitempty" bson:"category,omitempty"`
	Body      string    `json:"body" bson:"body"`
	MediaURL  string    `json:"media_url,omitempty" bson:"media_url,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Contact is a card recipient. Fields carries per-contact merge values such
// as event_date.
type Contact struct {
	ID     string            `json:"id" bson:"_id"`
	Name   string            `json:"name" bson:"name"`
	Phone  string            `json:"phone" bson:"phone"`
	Group  string            `json:"group,omitempty" bson:"group,omitempty"`
	Fields map[string]string `json:"fields,omitempty" bson:"fields,omitempty"`
}

// TemplateStore reads and writes templates.
type TemplateStore interface {
	Template(ctx context.Context, id string) (Template, error)
	Templates(ctx context.Context) ([]Template, error)
	SaveTemplate(ctx context.Context, t Template) error
}

// ContactStore reads and writes contacts. An empty group lists every contact.
type ContactStore interface {
	Contact(ctx context.Context, id string) (Contact, error)
	Contacts(ctx context.Context, group string) ([]Contact, error)
	SaveContact(ctx context.Context, c Contact) error
}
