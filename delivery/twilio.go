package delivery

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the part of the Twilio REST API the gateway uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Twilio sends each segment as its own message through the REST API.
// The first segment carries the media URL when one is attached.
type Twilio struct {
	api    messageCreator
	logger logrus.FieldLogger
}

func NewTwilio(accountSID, authToken string, logger logrus.FieldLogger) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Twilio{api: client.Api, logger: logger}
}

func (t *Twilio) Name() string {
	return "twilio"
}

func (t *Twilio) Deliver(ctx context.Context, msg Message) ([]Receipt, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	receipts := make([]Receipt, 0, len(msg.Segments))
	for _, seg := range msg.Segments {
		if err := ctx.Err(); err != nil {
			receipts = append(receipts, failedReceipt(msg, seg, err))
			continue
		}

		params := &twilioApi.CreateMessageParams{}
		params.SetTo(msg.To)
		params.SetFrom(msg.From)
		params.SetBody(seg.Content)
		if seg.IncludesMedia && seg.MediaURL != "" {
			params.SetMediaUrl([]string{seg.MediaURL})
		}

		resp, err := t.api.CreateMessage(params)
		if err != nil {
			err = fmt.Errorf("error sending SMS via Twilio: %w", err)
			if t.logger != nil {
				t.logger.WithFields(logrus.Fields{
					"messageID": msg.ID,
					"segment":   seg.Index,
				}).WithError(err).Error("twilio create message failed")
			}
			receipts = append(receipts, failedReceipt(msg, seg, err))
			continue
		}

		rc := Receipt{MessageID: msg.ID, SegmentIndex: seg.Index, Status: StatusSent}
		if resp != nil && resp.Sid != nil {
			rc.ProviderID = *resp.Sid
		}
		receipts = append(receipts, rc)
	}
	return receipts, nil
}
