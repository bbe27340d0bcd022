package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	smppcoding "github.com/M2MGateway/go-smpp/coding"
	"github.com/M2MGateway/go-smpp/pdu"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"smscard-gateway/coding"
	"smscard-gateway/formatter"
)

func testMessage(contents ...string) Message {
	segs := make([]formatter.MessageSegment, len(contents))
	for i, c := range contents {
		segs[i] = formatter.MessageSegment{Index: i, Content: c, SegmentUnits: 1}
	}
	return Message{ID: "msg-1", From: "+15550000001", To: "+15550000002", Encoding: coding.GSM, Segments: segs}
}

type fakeGateway struct {
	name  string
	calls [][]int
	fail  map[int]int
	err   error
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) Deliver(_ context.Context, msg Message) ([]Receipt, error) {
	var indexes []int
	for _, s := range msg.Segments {
		indexes = append(indexes, s.Index)
	}
	f.calls = append(f.calls, indexes)
	if f.err != nil {
		return nil, f.err
	}
	var out []Receipt
	for _, s := range msg.Segments {
		rc := Receipt{MessageID: msg.ID, SegmentIndex: s.Index, Status: StatusSent}
		if f.fail[s.Index] > 0 {
			f.fail[s.Index]--
			rc.Status = StatusFailed
			rc.Error = "boom"
		}
		out = append(out, rc)
	}
	return out, nil
}

func TestMessageValidate(t *testing.T) {
	assert.ErrorIs(t, Message{Segments: testMessage("a").Segments}.Validate(), ErrNoRecipient)
	assert.ErrorIs(t, Message{To: "+1"}.Validate(), ErrNoSegments)
	assert.NoError(t, testMessage("a").Validate())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("")
	assert.ErrorIs(t, err, ErrUnknownGateway)

	r.Register(&fakeGateway{name: "twilio"})
	r.Register(&fakeGateway{name: "kafka"})

	g, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "twilio", g.Name())

	require.NoError(t, r.SetDefault("kafka"))
	g, err = r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "kafka", g.Name())

	assert.ErrorIs(t, r.SetDefault("nope"), ErrUnknownGateway)
	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownGateway)
	assert.Equal(t, []string{"kafka", "twilio"}, r.Names())
}

func TestRetryResendsOnlyFailedSegments(t *testing.T) {
	fake := &fakeGateway{name: "fake", fail: map[int]int{1: 1}}
	r := &Retry{Gateway: fake, Attempts: 3, Backoff: time.Millisecond}

	receipts, err := r.Deliver(context.Background(), testMessage("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2}, {1}}, fake.calls)
	require.Len(t, receipts, 3)
	_, failed := FirstFailed(receipts)
	assert.False(t, failed)
	for i, rc := range receipts {
		assert.Equal(t, i, rc.SegmentIndex)
	}
}

func TestRetryGivesUp(t *testing.T) {
	fake := &fakeGateway{name: "fake", fail: map[int]int{0: 10}}
	r := &Retry{Gateway: fake, Attempts: 2, Backoff: time.Millisecond}

	receipts, err := r.Deliver(context.Background(), testMessage("a"))
	require.NoError(t, err)
	assert.Len(t, fake.calls, 2)
	rc, failed := FirstFailed(receipts)
	assert.True(t, failed)
	assert.Equal(t, 0, rc.SegmentIndex)
}

func TestRetryReturnsTransportError(t *testing.T) {
	fake := &fakeGateway{name: "fake", err: errors.New("down")}
	r := &Retry{Gateway: fake, Attempts: 2, Backoff: time.Millisecond}

	_, err := r.Deliver(context.Background(), testMessage("a"))
	assert.EqualError(t, err, "down")
	assert.Len(t, fake.calls, 2)
}

func TestRetryHonoursContext(t *testing.T) {
	fake := &fakeGateway{name: "fake", fail: map[int]int{0: 10}}
	r := &Retry{Gateway: fake, Attempts: 5, Backoff: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	receipts, err := r.Deliver(ctx, testMessage("a"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, failed := FirstFailed(receipts)
	assert.True(t, failed)
	assert.Len(t, fake.calls, 1)
}

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	failAt int
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if len(f.params) == f.failAt {
		return nil, errors.New("rate limited")
	}
	sid := "SM" + *params.Body
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioDeliver(t *testing.T) {
	api := &fakeCreator{failAt: 2}
	tw := &Twilio{api: api}

	msg := testMessage("one", "two")
	msg.Segments[0].IncludesMedia = true
	msg.Segments[0].MediaURL = "https://example.com/card.png"

	receipts, err := tw.Deliver(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, StatusSent, receipts[0].Status)
	assert.Equal(t, "SMone", receipts[0].ProviderID)
	assert.Equal(t, StatusFailed, receipts[1].Status)
	assert.Contains(t, receipts[1].Error, "rate limited")

	require.Len(t, api.params, 2)
	assert.Equal(t, "+15550000002", *api.params[0].To)
	require.NotNil(t, api.params[0].MediaUrl)
	assert.Equal(t, []string{"https://example.com/card.png"}, *api.params[0].MediaUrl)
	assert.Nil(t, api.params[1].MediaUrl)
}

type fakeSubmitter struct {
	sent []*pdu.SubmitSM
}

func (f *fakeSubmitter) submit(_ context.Context, sm *pdu.SubmitSM) (string, error) {
	f.sent = append(f.sent, sm)
	return "smsc-id", nil
}

func (f *fakeSubmitter) close(context.Context) error { return nil }

func TestSMPPDeliverGSM(t *testing.T) {
	sub := &fakeSubmitter{}
	g := &SMPP{sender: sub}

	receipts, err := g.Deliver(context.Background(), testMessage("Hi €", "there"))
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, "smsc-id", receipts[1].ProviderID)

	require.Len(t, sub.sent, 2)
	first := sub.sent[0].Message.Message
	require.Greater(t, len(first), 6)
	assert.Equal(t, []byte{0x05, 0x00, 0x03}, first[:3])
	assert.Equal(t, []byte{2, 1}, first[4:6])
	assert.Equal(t, coding.EncodeGSM7("Hi €"), first[6:])
	assert.Equal(t, first[3], sub.sent[1].Message.Message[3])
	assert.Equal(t, byte(2), sub.sent[1].Message.Message[5])
	assert.True(t, sub.sent[0].ESMClass.UDHIndicator)
	assert.Equal(t, "+15550000002", sub.sent[0].DestAddr.No)
}

func TestSMPPRetryKeepsConcatenation(t *testing.T) {
	msg := testMessage("one", "two", "three")
	msg.Segments = msg.Segments[2:]
	msg.TotalSegments = 3

	sm, err := submitSM(msg, msg.Segments[0], false)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 3}, sm.Message.Message[4:6])
	assert.Equal(t, coding.EncodeGSM7("three"), sm.Message.Message[6:])
}

func TestSMPPPackedConcatenation(t *testing.T) {
	msg := testMessage("hellohello", "x")
	sm, err := submitSM(msg, msg.Segments[0], true)
	require.NoError(t, err)

	payload := sm.Message.Message
	assert.Equal(t, []byte{0x05, 0x00, 0x03}, payload[:3])
	// Header plus fill bit occupy seven septets; the text follows them.
	septets := coding.UnpackSeptets(append(make([]byte, 6), payload[6:]...))
	assert.Equal(t, coding.EncodeGSM7("hellohello"), septets[7:])
}

func TestSMPPDeliverUnicode(t *testing.T) {
	sub := &fakeSubmitter{}
	g := &SMPP{sender: sub}

	msg := testMessage("Hi 😀")
	msg.Encoding = coding.Unicode
	_, err := g.Deliver(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, sub.sent, 1)
	// "Hi " is 3 UCS2 code units, the emoji a surrogate pair.
	assert.Len(t, sub.sent[0].Message.Message, 10)
}

func TestSMPPPackedGSM7(t *testing.T) {
	sub := &fakeSubmitter{}
	g := &SMPP{sender: sub, packGSM7: true}

	_, err := g.Deliver(context.Background(), testMessage("hellohello"))
	require.NoError(t, err)
	require.Len(t, sub.sent, 1)
	assert.Equal(t, []byte{0xE8, 0x32, 0x9B, 0xFD, 0x46, 0x97, 0xD9, 0xEC, 0x37}, sub.sent[0].Message.Message)

	text, err := shortMessageText(sub.sent[0].Message, true)
	require.NoError(t, err)
	assert.Equal(t, "hellohello", text)
}

func TestShortMessageText(t *testing.T) {
	text, err := shortMessageText(pdu.ShortMessage{
		DataCoding: smppcoding.GSM7BitCoding,
		Message:    coding.EncodeGSM7("id:42 stat:DELIVRD {ok}"),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "id:42 stat:DELIVRD {ok}", text)

	msg := testMessage("Привет")
	msg.Encoding = coding.Unicode
	sm, err := submitSM(msg, msg.Segments[0], false)
	require.NoError(t, err)
	text, err = shortMessageText(sm.Message, false)
	require.NoError(t, err)
	assert.Equal(t, "Привет", text)

	_, err = shortMessageText(pdu.ShortMessage{
		DataCoding: smppcoding.GSM7BitCoding,
		Message:    []byte{0x41, 0x1B},
	}, false)
	assert.ErrorIs(t, err, coding.ErrEscapeAtEnd)
}

type fakePublisher struct {
	published []amqp.Publishing
	failAt    int
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	f.published = append(f.published, msg)
	if len(f.published) == f.failAt {
		return errors.New("channel closed")
	}
	return nil
}

func TestAMQPDeliver(t *testing.T) {
	pub := &fakePublisher{failAt: 2}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := &AMQP{queue: "sms.segments", channel: pub, now: func() time.Time { return now }}

	receipts, err := a.Deliver(context.Background(), testMessage("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, receipts[0].Status)
	assert.Equal(t, StatusFailed, receipts[1].Status)

	require.Len(t, pub.published, 2)
	assert.Equal(t, "msg-1-0", pub.published[0].MessageId)
	assert.JSONEq(t, `{
		"message_id": "msg-1",
		"segment_index": 0,
		"total_segments": 2,
		"from": "+15550000001",
		"to": "+15550000002",
		"encoding": "GSM",
		"content": "a",
		"units": 1,
		"queued_at": "2024-05-01T12:00:00Z"
	}`, string(pub.published[0].Body))
	assert.True(t, a.IsReady())
}

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.written = append(f.written, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaDeliver(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w, now: time.Now}

	receipts, err := k.Deliver(context.Background(), testMessage("a", "b"))
	require.NoError(t, err)
	_, failed := FirstFailed(receipts)
	assert.False(t, failed)
	require.Len(t, w.written, 2)
	assert.Equal(t, []byte("msg-1"), w.written[1].Key)
}

func TestKafkaPartialFailure(t *testing.T) {
	w := &fakeWriter{err: kafka.WriteErrors{nil, errors.New("leader not available")}}
	k := &Kafka{writer: w, now: time.Now}

	receipts, err := k.Deliver(context.Background(), testMessage("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, receipts[0].Status)
	assert.Equal(t, StatusFailed, receipts[1].Status)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092"))
	assert.Nil(t, ParseBrokers(""))
}
