// Package campaign sends one template to many contacts.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"smscard-gateway/billing"
	"smscard-gateway/coding"
	"smscard-gateway/delivery"
	"smscard-gateway/formatter"
	"smscard-gateway/merge"
	"smscard-gateway/records"
	"smscard-gateway/store"
)

var (
	ErrNoBody     = errors.New("campaign: no template or body")
	ErrNoContacts = errors.New("campaign: no contacts selected")
	ErrNoSender   = errors.New("campaign: missing from number")
)

const defaultWorkers = 4

// Outcome statuses beyond the record statuses.
const (
	StatusSkipped = "skipped"
)

// Request describes a send. Either TemplateID or Body supplies the text and
// either ContactIDs or Group the recipients.
type Request struct {
	TemplateID   string            `json:"template_id,omitempty"`
	Body         string            `json:"body,omitempty"`
	ContactIDs   []string          `json:"contact_ids,omitempty"`
	Group        string            `json:"group,omitempty"`
	From         string            `json:"from"`
	Encoding     coding.Encoding   `json:"encoding,omitempty"`
	AutoSplit    bool              `json:"auto_split"`
	IncludeMedia bool              `json:"include_media"`
	MediaURL     string            `json:"media_url,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	Gateway      string            `json:"gateway,omitempty"`
}

func (r Request) Validate() error {
	if r.TemplateID == "" && strings.TrimSpace(r.Body) == "" {
		return ErrNoBody
	}
	if len(r.ContactIDs) == 0 && r.Group == "" {
		return ErrNoContacts
	}
	if r.From == "" {
		return ErrNoSender
	}
	if r.Encoding != "" && !r.Encoding.Valid() {
		return coding.ErrInvalidEncoding
	}
	return nil
}

// Outcome is the result for one contact.
type Outcome struct {
	ContactID string             `json:"contact_id"`
	To        string             `json:"to"`
	LogID     string             `json:"log_id,omitempty"`
	Status    string             `json:"status"`
	Segments  int                `json:"segments"`
	Units     int                `json:"units"`
	Cost      billing.Rate       `json:"cost"`
	Missing   []string           `json:"missing,omitempty"`
	Receipts  []delivery.Receipt `json:"receipts,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Report aggregates a send.
type Report struct {
	CampaignID string       `json:"campaign_id"`
	Gateway    string       `json:"gateway"`
	Outcomes   []Outcome    `json:"outcomes"`
	Sent       int          `json:"sent"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	TotalUnits int          `json:"total_units"`
	TotalCost  billing.Rate `json:"total_cost"`
}

// GatewayLookup resolves a gateway by name; *delivery.Registry implements it.
type GatewayLookup interface {
	Get(name string) (delivery.Gateway, error)
}

// RecordWriter persists message records; *records.Repository implements it.
type RecordWriter interface {
	Insert(ctx context.Context, rec *records.Record) error
}

type Sender struct {
	Templates store.TemplateStore
	Contacts  store.ContactStore
	Formatter *formatter.Formatter
	Gateways  GatewayLookup
	Records   RecordWriter
	Fields    []merge.Field
	Workers   int
	Logger    logrus.FieldLogger
}

// Send merges, formats and delivers the request to every selected contact.
// Contacts are processed concurrently, bounded by Workers. Contacts not yet
// started when ctx ends are reported as skipped.
func (s *Sender) Send(ctx context.Context, req Request) (Report, error) {
	if err := req.Validate(); err != nil {
		return Report{}, err
	}

	body, mediaURL := req.Body, req.MediaURL
	if req.TemplateID != "" {
		tmpl, err := s.Templates.Template(ctx, req.TemplateID)
		if err != nil {
			return Report{}, err
		}
		body = tmpl.Body
		if mediaURL == "" {
			mediaURL = tmpl.MediaURL
		}
	}

	gateway, err := s.Gateways.Get(req.Gateway)
	if err != nil {
		return Report{}, err
	}

	contacts, err := s.contacts(ctx, req)
	if err != nil {
		return Report{}, err
	}
	if len(contacts) == 0 {
		return Report{}, ErrNoContacts
	}

	report := Report{
		CampaignID: uuid.NewString(),
		Gateway:    gateway.Name(),
		Outcomes:   make([]Outcome, len(contacts)),
	}

	workers := s.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, c := range contacts {
		if !acquire(ctx, sem) {
			report.Outcomes[i] = Outcome{ContactID: c.ID, To: c.Phone, Status: StatusSkipped, Error: ctx.Err().Error()}
			continue
		}
		wg.Add(1)
		go func(i int, c store.Contact) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Outcomes[i] = s.sendOne(ctx, report.CampaignID, gateway, req, body, mediaURL, c)
		}(i, c)
	}
	wg.Wait()

	for _, o := range report.Outcomes {
		switch o.Status {
		case StatusSkipped:
			report.Skipped++
		case records.StatusFailed:
			report.Failed++
		default:
			report.Sent++
		}
		report.TotalUnits += o.Units
		report.TotalCost += o.Cost
	}
	return report, nil
}

// acquire takes a worker slot unless ctx ends first.
func acquire(ctx context.Context, sem chan struct{}) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Sender) contacts(ctx context.Context, req Request) ([]store.Contact, error) {
	if len(req.ContactIDs) == 0 {
		return s.Contacts.Contacts(ctx, req.Group)
	}
	out := make([]store.Contact, 0, len(req.ContactIDs))
	for _, id := range req.ContactIDs {
		c, err := s.Contacts.Contact(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("contact %s: %w", id, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Sender) fields() []merge.Field {
	if s.Fields != nil {
		return s.Fields
	}
	return merge.DefaultFields
}

// Values builds the merge values for one contact: request fields first, then
// the contact's own fields, then its name as recipient_name.
func Values(req map[string]string, c store.Contact) map[string]string {
	values := make(map[string]string, len(req)+len(c.Fields)+1)
	for k, v := range req {
		values[k] = v
	}
	for k, v := range c.Fields {
		values[k] = v
	}
	if c.Name != "" {
		values["recipient_name"] = c.Name
	}
	return values
}

func (s *Sender) sendOne(ctx context.Context, campaignID string, gateway delivery.Gateway, req Request, body, mediaURL string, c store.Contact) Outcome {
	out := Outcome{ContactID: c.ID, To: c.Phone}
	log := s.logger().WithFields(logrus.Fields{
		"campaignID": campaignID,
		"contactID":  c.ID,
	})

	values := Values(req.Fields, c)
	if missing := merge.Missing(body, values, s.fields()); len(missing) > 0 {
		out.Status = StatusSkipped
		out.Missing = missing
		out.Error = "missing required fields"
		return out
	}

	res, err := s.Formatter.Format(formatter.Draft{
		Text:         merge.Render(body, values),
		Encoding:     req.Encoding,
		AutoSplit:    req.AutoSplit,
		IncludeMedia: req.IncludeMedia && mediaURL != "",
		MediaURL:     mediaURL,
	})
	if err != nil {
		out.Status = records.StatusFailed
		out.Error = err.Error()
		return out
	}
	if len(res.Segments) == 0 {
		out.Status = StatusSkipped
		out.Error = "empty message"
		return out
	}

	msg := delivery.Message{
		ID:       uuid.NewString(),
		From:     req.From,
		To:       c.Phone,
		Encoding: res.Encoding,
		Segments: res.Segments,
	}
	out.LogID = msg.ID
	out.Segments = len(res.Segments)
	out.Units = res.TotalUnits
	out.Cost = res.TotalCost

	receipts, err := gateway.Deliver(ctx, msg)
	out.Receipts = receipts
	out.Status = records.Status(receipts, err)
	if err != nil {
		out.Error = err.Error()
		log.WithError(err).Error("delivery failed")
	} else if rc, failed := delivery.FirstFailed(receipts); failed {
		out.Error = rc.Error
	}

	if s.Records != nil {
		rec := records.FromDelivery(campaignID, c.ID, gateway.Name(), msg, res.TotalUnits, res.TotalCost, receipts, err)
		if ierr := s.Records.Insert(ctx, &rec); ierr != nil {
			log.WithError(ierr).Warn("failed to write message record")
		}
	}
	return out
}

func (s *Sender) logger() logrus.FieldLogger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}
