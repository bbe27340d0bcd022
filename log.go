package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var LogType = struct {
	Startup  string
	API      string
	Campaign string
	Delivery string
	Records  string
	Auth     string
}{
	Startup:  "startup",
	API:      "api",
	Campaign: "campaign",
	Delivery: "delivery",
	Records:  "records",
	Auth:     "middleware_auth",
}

// LoggingFormat is the structured log line every component emits.
type LoggingFormat struct {
	Path           string
	Function       string
	Type           string
	Level          logrus.Level
	Message        string
	Error          error
	TransactionID  string
	AdditionalData map[string]interface{}
}

// AddField attaches extra data to the log line.
func (lf *LoggingFormat) AddField(key string, value interface{}) {
	if lf.AdditionalData == nil {
		lf.AdditionalData = make(map[string]interface{})
	}
	lf.AdditionalData[key] = value
}

func (lf *LoggingFormat) fields() logrus.Fields {
	fields := logrus.Fields{}
	if lf.Path != "" {
		fields["path"] = lf.Path
	}
	if lf.Function != "" {
		fields["function"] = lf.Function
	}
	if lf.Type != "" {
		fields["type"] = lf.Type
	}
	if lf.TransactionID != "" {
		fields["transaction_id"] = lf.TransactionID
	}
	if lf.Error != nil {
		fields[logrus.ErrorKey] = lf.Error.Error()
	}
	for k, v := range lf.AdditionalData {
		fields[k] = v
	}
	return fields
}

// Print writes the line through the standard logrus logger. A zero level
// logs at info.
func (lf *LoggingFormat) Print() {
	level := lf.Level
	if level == logrus.PanicLevel {
		level = logrus.InfoLevel
	}
	logrus.WithFields(lf.fields()).Log(level, lf.Message)
}

// ToError logs the line and returns it as an error wrapping lf.Error.
func (lf *LoggingFormat) ToError() error {
	if lf.Level == logrus.PanicLevel {
		lf.Level = logrus.ErrorLevel
	}
	lf.Print()
	if lf.Error != nil {
		return fmt.Errorf("%s: %w", lf.Message, lf.Error)
	}
	return errors.New(lf.Message)
}

// setupLogging configures the standard logger from the environment.
func setupLogging(cfg LogConfig) {
	if strings.EqualFold(cfg.Format, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LokiURL != "" {
		logrus.AddHook(NewLokiHook(NewLokiClient(cfg.LokiURL, cfg.LokiUsername, cfg.LokiPassword), cfg.Job))
	}
}

// LokiClient holds the configuration for the Loki client.
type LokiClient struct {
	PushURL  string
	Username string
	Password string
	client   *http.Client
}

type LogEntry struct {
	Timestamp time.Time
	Line      string
}

// LokiPushData represents the data structure required by Loki's push API.
type LokiPushData struct {
	Streams []LokiStream `json:"streams"`
}

// LokiStream represents a stream of logs with the same labels in Loki.
type LokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"` // [timestamp, line]
}

func NewLokiClient(pushURL, username, password string) *LokiClient {
	return &LokiClient{
		PushURL:  pushURL,
		Username: username,
		Password: password,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// PushLog sends a log entry to Loki.
func (c *LokiClient) PushLog(labels map[string]string, entry LogEntry) error {
	payload := LokiPushData{
		Streams: []LokiStream{
			{
				Stream: labels,
				Values: [][2]string{{strconv.FormatInt(entry.Timestamp.UnixNano(), 10), entry.Line}},
			},
		},
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling json: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.PushURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Username != "" && c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request to Loki: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received unexpected response status: %d", resp.StatusCode)
	}
	return nil
}

// LokiHook ships logrus entries to Loki from a background goroutine. Entries
// are dropped when the buffer is full rather than blocking the caller.
type LokiHook struct {
	client *LokiClient
	job    string
	lines  chan LogEntry
	format logrus.Formatter
}

func NewLokiHook(client *LokiClient, job string) *LokiHook {
	h := &LokiHook{
		client: client,
		job:    job,
		lines:  make(chan LogEntry, 256),
		format: &logrus.JSONFormatter{},
	}
	go h.run()
	return h
}

func (h *LokiHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *LokiHook) Fire(entry *logrus.Entry) error {
	line, err := h.format.Format(entry)
	if err != nil {
		return err
	}
	select {
	case h.lines <- LogEntry{Timestamp: entry.Time, Line: strings.TrimRight(string(line), "\n")}:
	default:
	}
	return nil
}

func (h *LokiHook) run() {
	labels := map[string]string{"job": h.job}
	for entry := range h.lines {
		if err := h.client.PushLog(labels, entry); err != nil {
			fmt.Fprintf(os.Stderr, "Error sending log to Loki: %v\n", err)
		}
	}
}
