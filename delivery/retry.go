package delivery

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"smscard-gateway/formatter"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 2 * time.Second
)

// Retry re-sends the segments a gateway reported as failed. Segments that
// went through are never sent twice. Waits grow linearly with the attempt.
type Retry struct {
	Gateway  Gateway
	Attempts int
	Backoff  time.Duration
	Logger   logrus.FieldLogger
}

// WithRetry wraps g with the default policy of three attempts.
func WithRetry(g Gateway, logger logrus.FieldLogger) *Retry {
	return &Retry{Gateway: g, Attempts: defaultAttempts, Backoff: defaultBackoff, Logger: logger}
}

func (r *Retry) Name() string {
	return r.Gateway.Name()
}

func (r *Retry) Deliver(ctx context.Context, msg Message) ([]Receipt, error) {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	final := make(map[int]Receipt, len(msg.Segments))
	pending := msg
	pending.TotalSegments = msg.Parts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		receipts, err := r.Gateway.Deliver(ctx, pending)
		lastErr = err
		if err == nil {
			var retry []formatter.MessageSegment
			for i, rc := range receipts {
				final[rc.SegmentIndex] = rc
				if rc.Status == StatusFailed && i < len(pending.Segments) {
					retry = append(retry, pending.Segments[i])
				}
			}
			if len(retry) == 0 {
				break
			}
			pending.Segments = retry
		}

		if attempt == attempts {
			break
		}
		if r.Logger != nil {
			r.Logger.WithFields(logrus.Fields{
				"gateway":   r.Gateway.Name(),
				"messageID": msg.ID,
				"attempt":   attempt,
				"pending":   len(pending.Segments),
			}).Warn("delivery attempt incomplete, retrying")
		}
		select {
		case <-time.After(time.Duration(attempt) * r.Backoff):
		case <-ctx.Done():
			return collect(msg, final), ctx.Err()
		}
	}

	if len(final) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return collect(msg, final), nil
}

// collect returns receipts in segment order, marking segments that never got
// one as failed.
func collect(msg Message, final map[int]Receipt) []Receipt {
	out := make([]Receipt, 0, len(msg.Segments))
	for _, seg := range msg.Segments {
		rc, ok := final[seg.Index]
		if !ok {
			rc = Receipt{MessageID: msg.ID, SegmentIndex: seg.Index, Status: StatusFailed, Error: "not attempted"}
		}
		out = append(out, rc)
	}
	return out
}
