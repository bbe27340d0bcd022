package delivery

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"sync"
	"time"

	"github.com/M2MGateway/go-smpp"
	smppcoding "github.com/M2MGateway/go-smpp/coding"
	"github.com/M2MGateway/go-smpp/pdu"
	"github.com/sirupsen/logrus"

	"smscard-gateway/coding"
	"smscard-gateway/formatter"
)

var (
	ErrSMPPBind     = errors.New("smpp: bind rejected")
	ErrSMPPRejected = errors.New("smpp: submit_sm rejected")
	ErrSMPPClosed   = errors.New("smpp: session closed")
)

const smppResponseTimeout = 10 * time.Second

// submitter sends one submit_sm and returns the SMSC message id.
type submitter interface {
	submit(ctx context.Context, sm *pdu.SubmitSM) (string, error)
	close(ctx context.Context) error
}

// SMPPConfig holds the ESME credentials for an outbound bind.
type SMPPConfig struct {
	Addr     string
	SystemID string
	Password string
	// PackGSM7 sends GSM text as packed septets instead of one septet per octet.
	PackGSM7 bool
}

// SMPP delivers segments as submit_sm PDUs over a single transceiver bind.
// Submits are serialized because responses are matched on one PDU stream.
type SMPP struct {
	mu       sync.Mutex
	sender   submitter
	packGSM7 bool
	logger   logrus.FieldLogger
}

// DialSMPP connects to the SMSC and binds as a transceiver.
func DialSMPP(ctx context.Context, cfg SMPPConfig, logger logrus.FieldLogger) (*SMPP, error) {
	conn, err := (&net.Dialer{Timeout: smppResponseTimeout}).DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("smpp: dial %s: %w", cfg.Addr, err)
	}
	session := smpp.NewSession(context.Background(), conn)
	s := &sessionSubmitter{session: session, packGSM7: cfg.PackGSM7, logger: logger}
	if err := s.bind(ctx, cfg.SystemID, cfg.Password); err != nil {
		_ = session.Close(context.Background())
		return nil, err
	}
	return &SMPP{sender: s, packGSM7: cfg.PackGSM7, logger: logger}, nil
}

func (g *SMPP) Name() string {
	return "smpp"
}

func (g *SMPP) Deliver(ctx context.Context, msg Message) ([]Receipt, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	receipts := make([]Receipt, 0, len(msg.Segments))
	for _, seg := range msg.Segments {
		sm, err := submitSM(msg, seg, g.packGSM7)
		if err != nil {
			receipts = append(receipts, failedReceipt(msg, seg, err))
			continue
		}
		id, err := g.sender.submit(ctx, sm)
		if err != nil {
			if g.logger != nil {
				g.logger.WithFields(logrus.Fields{
					"messageID": msg.ID,
					"segment":   seg.Index,
				}).WithError(err).Error("submit_sm failed")
			}
			receipts = append(receipts, failedReceipt(msg, seg, err))
			continue
		}
		receipts = append(receipts, Receipt{
			MessageID:    msg.ID,
			SegmentIndex: seg.Index,
			ProviderID:   id,
			Status:       StatusSent,
		})
	}
	return receipts, nil
}

func (g *SMPP) Close(ctx context.Context) error {
	return g.sender.close(ctx)
}

// submitSM builds the PDU for one segment. GSM segments travel as septets,
// packed when the SMSC asks for it; everything else as UCS2. Segments of a
// multi-part message carry a concatenation header so handsets reassemble them.
func submitSM(msg Message, seg formatter.MessageSegment, packGSM7 bool) (*pdu.SubmitSM, error) {
	var udh []byte
	if parts := msg.Parts(); parts > 1 {
		udh = concatHeader(msg.ID, parts, seg.Index+1)
	}

	var (
		payload    []byte
		dataCoding smppcoding.DataCoding
	)
	switch msg.Encoding {
	case coding.GSM:
		septets := coding.EncodeGSM7(seg.Content)
		dataCoding = smppcoding.GSM7BitCoding
		switch {
		case packGSM7 && udh != nil:
			// The header plus one fill bit takes the room of seven septets.
			payload = coding.PackSeptets(append(make([]byte, 7), septets...))
			copy(payload, udh)
		case packGSM7:
			payload = coding.PackSeptets(septets)
		default:
			payload = append(udh, septets...)
		}
	default:
		encoded, err := smppcoding.UCS2Coding.Encoding().NewEncoder().Bytes([]byte(seg.Content))
		if err != nil {
			return nil, fmt.Errorf("smpp: encode ucs2: %w", err)
		}
		payload = append(udh, encoded...)
		dataCoding = smppcoding.UCS2Coding
	}
	return &pdu.SubmitSM{
		SourceAddr: pdu.Address{TON: 1, NPI: 1, No: msg.From},
		DestAddr:   pdu.Address{TON: 1, NPI: 1, No: msg.To},
		ESMClass:   pdu.ESMClass{UDHIndicator: udh != nil},
		Message: pdu.ShortMessage{
			Message:    payload,
			DataCoding: dataCoding,
		},
		RegisteredDelivery: pdu.RegisteredDelivery{MCDeliveryReceipt: 1},
	}, nil
}

// concatHeader returns the 8-bit reference concatenation UDH (IEI 0x00).
// The reference is derived from the message ID so retries reuse it.
func concatHeader(messageID string, parts, seq int) []byte {
	h := fnv.New32a()
	_, _ = h.Write([]byte(messageID))
	return []byte{0x05, 0x00, 0x03, byte(h.Sum32()), byte(parts), byte(seq)}
}

type sessionSubmitter struct {
	session  *smpp.Session
	packGSM7 bool
	logger   logrus.FieldLogger
}

func (s *sessionSubmitter) bind(ctx context.Context, systemID, password string) error {
	seq := s.session.NextSequence()
	err := s.session.Send(&pdu.BindTransceiver{
		Header:   pdu.Header{Sequence: seq},
		SystemID: systemID,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("smpp: send bind: %w", err)
	}
	resp, err := s.await(ctx, func(packet any) bool {
		r, ok := packet.(*pdu.BindTransceiverResp)
		return ok && r.Header.Sequence == seq
	})
	if err != nil {
		return err
	}
	if resp.(*pdu.BindTransceiverResp).Header.CommandStatus != 0 {
		return ErrSMPPBind
	}
	return nil
}

func (s *sessionSubmitter) submit(ctx context.Context, sm *pdu.SubmitSM) (string, error) {
	seq := s.session.NextSequence()
	sm.Header = pdu.Header{Sequence: seq}
	if err := s.session.Send(sm); err != nil {
		return "", fmt.Errorf("smpp: send submit_sm: %w", err)
	}
	resp, err := s.await(ctx, func(packet any) bool {
		r, ok := packet.(*pdu.SubmitSMResp)
		return ok && r.Header.Sequence == seq
	})
	if err != nil {
		return "", err
	}
	r := resp.(*pdu.SubmitSMResp)
	if r.Header.CommandStatus != 0 {
		return "", ErrSMPPRejected
	}
	return r.MessageID, nil
}

// await reads the PDU stream until a packet satisfies match, answering
// requests the SMSC sends in the meantime.
func (s *sessionSubmitter) await(ctx context.Context, match func(any) bool) (any, error) {
	timer := time.NewTimer(smppResponseTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, errors.New("smpp: response timeout")
		case packet, ok := <-s.session.PDU():
			if !ok {
				return nil, ErrSMPPClosed
			}
			if match(packet) {
				return packet, nil
			}
			if dsm, ok := packet.(*pdu.DeliverSM); ok {
				s.logDeliverSM(dsm)
			}
			switch p := packet.(type) {
			case pdu.Responsable:
				if err := s.session.Send(p.Resp()); err != nil && s.logger != nil {
					s.logger.WithError(err).Warn("error answering smsc pdu")
				}
			default:
				if s.logger != nil {
					s.logger.Debugf("ignoring pdu %T", p)
				}
			}
		}
	}
}

// logDeliverSM records delivery receipts and mobile-originated messages that
// arrive on the transceiver bind.
func (s *sessionSubmitter) logDeliverSM(dsm *pdu.DeliverSM) {
	if s.logger == nil {
		return
	}
	log := s.logger.WithFields(logrus.Fields{
		"from": dsm.SourceAddr.No,
		"to":   dsm.DestAddr.No,
	})
	text, err := shortMessageText(dsm.Message, s.packGSM7)
	if err != nil {
		log.WithError(err).Warn("undecodable deliver_sm")
		return
	}
	log.WithField("text", text).Info("deliver_sm received")
}

// shortMessageText decodes a short message body according to its data coding.
func shortMessageText(sm pdu.ShortMessage, packedGSM7 bool) (string, error) {
	switch sm.DataCoding {
	case smppcoding.GSM7BitCoding:
		septets := sm.Message
		if packedGSM7 {
			septets = coding.UnpackSeptets(septets)
		}
		return coding.DecodeGSM7(septets)
	case smppcoding.UCS2Coding:
		text, err := smppcoding.UCS2Coding.Encoding().NewDecoder().String(string(sm.Message))
		if err != nil {
			return "", fmt.Errorf("smpp: decode ucs2: %w", err)
		}
		return text, nil
	default:
		return string(sm.Message), nil
	}
}

func (s *sessionSubmitter) close(ctx context.Context) error {
	return s.session.Close(ctx)
}
