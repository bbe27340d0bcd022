// Package records persists one row per delivered message for usage reporting.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"smscard-gateway/billing"
	"smscard-gateway/delivery"
)

var ErrNilRepository = errors.New("records: repository not configured")

const (
	StatusSent    = "sent"
	StatusPartial = "partial"
	StatusFailed  = "failed"

	defaultListLimit = 100
	maxListLimit     = 1000
)

// Record is a delivered (or attempted) message.
type Record struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	LogID         string    `gorm:"uniqueIndex;size:36" json:"log_id"`
	CampaignID    string    `gorm:"index" json:"campaign_id,omitempty"`
	ContactID     string    `gorm:"index" json:"contact_id,omitempty"`
	To            string    `gorm:"index" json:"to_number"`
	From          string    `gorm:"index" json:"from_number"`
	Encoding      string    `json:"encoding"`
	TotalSegments int       `json:"total_segments"`
	TotalUnits    int       `json:"total_units"`
	CostMicros    int64     `json:"cost_micros"`
	Gateway       string    `json:"gateway"`
	Status        string    `gorm:"index" json:"status"`
	Error         string    `json:"error,omitempty"`
	Preview       string    `json:"preview"` // redacted body
	MediaURL      string    `json:"media_url,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

// Cost returns the record cost as a Rate.
func (r Record) Cost() billing.Rate {
	return billing.Rate(r.CostMicros)
}

// FromDelivery builds a record for msg given the gateway receipts.
func FromDelivery(campaignID, contactID, gateway string, msg delivery.Message, units int, cost billing.Rate, receipts []delivery.Receipt, deliverErr error) Record {
	rec := Record{
		LogID:         msg.ID,
		CampaignID:    campaignID,
		ContactID:     contactID,
		To:            msg.To,
		From:          msg.From,
		Encoding:      msg.Encoding.String(),
		TotalSegments: len(msg.Segments),
		TotalUnits:    units,
		CostMicros:    int64(cost),
		Gateway:       gateway,
		Status:        Status(receipts, deliverErr),
	}
	if rec.LogID == "" {
		rec.LogID = uuid.NewString()
	}
	if len(msg.Segments) > 0 {
		rec.Preview = RedactContent(msg.Segments[0].Content)
		rec.MediaURL = msg.Segments[0].MediaURL
	}
	if deliverErr != nil {
		rec.Error = deliverErr.Error()
	} else if rc, failed := delivery.FirstFailed(receipts); failed {
		rec.Error = rc.Error
	}
	return rec
}

// Status summarises receipts into sent, partial or failed.
func Status(receipts []delivery.Receipt, deliverErr error) string {
	if deliverErr != nil || len(receipts) == 0 {
		return StatusFailed
	}
	failed := 0
	for _, rc := range receipts {
		if rc.Status == delivery.StatusFailed {
			failed++
		}
	}
	switch failed {
	case 0:
		return StatusSent
	case len(receipts):
		return StatusFailed
	default:
		return StatusPartial
	}
}

// RedactContent partially redacts a message body.
func RedactContent(message string) string {
	runes := []rune(message)
	if len(runes) <= 10 {
		return "**********"
	}
	return string(runes[:5]) + "*****"
}

// Filter narrows a listing. Zero values are ignored.
type Filter struct {
	CampaignID string
	From       string
	To         string
	Status     string
	Since      time.Time
	Limit      int
}

// Usage aggregates units and cost.
type Usage struct {
	Messages int64        `json:"messages"`
	Units    int64        `json:"units"`
	Cost     billing.Rate `json:"cost"`
}

// Repository reads and writes records through gorm.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Open connects to Postgres at dsn.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("records: open database: %w", err)
	}
	return db, nil
}

func (r *Repository) Migrate() error {
	if r == nil || r.db == nil {
		return ErrNilRepository
	}
	return r.db.AutoMigrate(&Record{})
}

func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	if r == nil || r.db == nil {
		return ErrNilRepository
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("records: insert %s: %w", rec.LogID, err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, f Filter) ([]Record, error) {
	if r == nil || r.db == nil {
		return nil, ErrNilRepository
	}
	var out []Record
	if err := r.listQuery(r.db.WithContext(ctx), f).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("records: list: %w", err)
	}
	return out, nil
}

func (r *Repository) listQuery(tx *gorm.DB, f Filter) *gorm.DB {
	tx = tx.Model(&Record{})
	if f.CampaignID != "" {
		tx = tx.Where("campaign_id = ?", f.CampaignID)
	}
	if f.From != "" {
		tx = tx.Where("\"from\" = ?", f.From)
	}
	if f.To != "" {
		tx = tx.Where("\"to\" = ?", f.To)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if !f.Since.IsZero() {
		tx = tx.Where("created_at >= ?", f.Since)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return tx.Order("created_at DESC").Limit(limit)
}

// UsageSince sums units and cost for a sender since a point in time. An
// empty from covers every sender.
func (r *Repository) UsageSince(ctx context.Context, from string, since time.Time) (Usage, error) {
	if r == nil || r.db == nil {
		return Usage{}, ErrNilRepository
	}
	var row struct {
		Messages int64
		Units    int64
		Cost     int64
	}
	tx := r.db.WithContext(ctx).Model(&Record{}).
		Select("COUNT(*) AS messages, COALESCE(SUM(total_units), 0) AS units, COALESCE(SUM(cost_micros), 0) AS cost").
		Where("created_at >= ?", since)
	if from != "" {
		tx = tx.Where("\"from\" = ?", from)
	}
	if err := tx.Scan(&row).Error; err != nil {
		return Usage{}, fmt.Errorf("records: usage: %w", err)
	}
	return Usage{Messages: row.Messages, Units: row.Units, Cost: billing.Rate(row.Cost)}, nil
}
