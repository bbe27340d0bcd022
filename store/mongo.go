package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DBName                 = "smscard"
	TemplateCollectionName = "templates"
	ContactCollectionName  = "contacts"
)

// Mongo keeps templates and contacts in MongoDB.
type Mongo struct {
	templates *mongo.Collection
	contacts  *mongo.Collection
}

// NewMongo uses the standard collections of database dbName.
func NewMongo(client *mongo.Client, dbName string) *Mongo {
	if dbName == "" {
		dbName = DBName
	}
	db := client.Database(dbName)
	return &Mongo{
		templates: db.Collection(TemplateCollectionName),
		contacts:  db.Collection(ContactCollectionName),
	}
}

func (m *Mongo) Template(ctx context.Context, id string) (Template, error) {
	var t Template
	err := m.templates.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Template{}, ErrNotFound
	}
	if err != nil {
		return Template{}, fmt.Errorf("failed to find template %s: %w", id, err)
	}
	return t, nil
}

func (m *Mongo) Templates(ctx context.Context) ([]Template, error) {
	opts := options.Find().SetSort(bson.M{"_id": 1})
	cursor, err := m.templates.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer cursor.Close(ctx)

	templates := []Template{}
	if err = cursor.All(ctx, &templates); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}
	return templates, nil
}

func (m *Mongo) SaveTemplate(ctx context.Context, t Template) error {
	if t.ID == "" {
		return ErrMissingID
	}
	_, err := m.templates.ReplaceOne(ctx, bson.M{"_id": t.ID}, t, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save template %s: %w", t.ID, err)
	}
	return nil
}

func (m *Mongo) Contact(ctx context.Context, id string) (Contact, error) {
	var c Contact
	err := m.contacts.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("failed to find contact %s: %w", id, err)
	}
	return c, nil
}

func (m *Mongo) Contacts(ctx context.Context, group string) ([]Contact, error) {
	filter := bson.M{}
	if group != "" {
		filter["group"] = group
	}
	cursor, err := m.contacts.Find(ctx, filter, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer cursor.Close(ctx)

	contacts := []Contact{}
	if err = cursor.All(ctx, &contacts); err != nil {
		return nil, fmt.Errorf("failed to decode contacts: %w", err)
	}
	return contacts, nil
}

func (m *Mongo) SaveContact(ctx context.Context, c Contact) error {
	if c.ID == "" {
		return ErrMissingID
	}
	_, err := m.contacts.ReplaceOne(ctx, bson.M{"_id": c.ID}, c, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save contact %s: %w", c.ID, err)
	}
	return nil
}
