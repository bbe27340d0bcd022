package main

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kataras/iris/v12"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"smscard-gateway/billing"
	"smscard-gateway/campaign"
	"smscard-gateway/coding"
	"smscard-gateway/delivery"
	"smscard-gateway/formatter"
	"smscard-gateway/health"
	"smscard-gateway/media"
	"smscard-gateway/merge"
	"smscard-gateway/records"
	"smscard-gateway/store"
)

var errRecordsDisabled = errors.New("records database not configured")

// newWebApp builds the HTTP API. /health and /metrics are open; everything
// under /v1 needs basic auth with the API key as password.
func (gateway *Gateway) newWebApp() *iris.Application {
	app := iris.New()
	app.Logger().SetLevel("warn")

	app.Get("/health", gateway.webHealth)
	app.Get("/metrics", iris.FromStd(promhttp.HandlerFor(gateway.Metrics, promhttp.HandlerOpts{})))

	v1 := app.Party("/v1", gateway.basicAuthMiddleware)
	{
		v1.Post("/classify", gateway.webClassify)
		v1.Post("/segment", gateway.webSegment)
		v1.Post("/estimate", gateway.webEstimate)
		v1.Post("/format", gateway.webFormat)
		v1.Post("/render", gateway.webRender)
		v1.Get("/fields", gateway.webFields)
		v1.Post("/media/probe", gateway.webProbeMedia)

		v1.Get("/templates", gateway.webTemplates)
		v1.Post("/templates", gateway.webSaveTemplate)
		v1.Get("/contacts", gateway.webContacts)
		v1.Post("/contacts/import", gateway.webImportContacts)
		v1.Get("/contacts/export", gateway.webExportContacts)

		v1.Post("/campaigns/send", gateway.webSendCampaign)
		v1.Get("/records", gateway.webRecords)
		v1.Get("/usage", gateway.webUsage)
	}
	return app
}

// basicAuthMiddleware enforces Basic Authentication using the API key as the
// password. The username is ignored.
func (gateway *Gateway) basicAuthMiddleware(ctx iris.Context) {
	expectedAPIKey := gateway.Config.APIKey
	if expectedAPIKey == "" {
		logf := LoggingFormat{
			Type:    LogType.Auth,
			Level:   logrus.ErrorLevel,
			Message: "API_KEY environment variable not set",
		}
		logf.Print()

		ctx.StatusCode(http.StatusInternalServerError)
		ctx.WriteString("Internal Server Error")
		return
	}

	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		unauthorized(ctx, "Authorization header missing")
		return
	}

	const prefix = "Basic "
	if !strings.HasPrefix(authHeader, prefix) {
		unauthorized(ctx, "Invalid Authorization header format")
		return
	}

	decodedBytes, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
	if err != nil {
		unauthorized(ctx, "Failed to decode credentials")
		return
	}
	credentials := string(decodedBytes)

	colonIndex := strings.IndexByte(credentials, ':')
	if colonIndex < 0 {
		unauthorized(ctx, "Invalid credentials format")
		return
	}

	apiKey := credentials[colonIndex+1:]
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expectedAPIKey)) != 1 {
		unauthorized(ctx, "Invalid API key")
		return
	}

	ctx.Next()
}

// unauthorized responds with a 401 status and a WWW-Authenticate header
func unauthorized(ctx iris.Context, message string) {
	logf := LoggingFormat{
		Type:    LogType.Auth,
		Level:   logrus.WarnLevel,
		Message: message,
	}
	logf.AddField("client_ip", ctx.RemoteAddr())
	logf.Print()

	ctx.Header("WWW-Authenticate", `Basic realm="Restricted"`)
	ctx.StatusCode(http.StatusUnauthorized)
	ctx.WriteString("Unauthorized")
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, delivery.ErrUnknownGateway):
		return http.StatusNotFound
	case errors.Is(err, coding.ErrInvalidEncoding),
		errors.Is(err, coding.ErrInvalidLimits),
		errors.Is(err, formatter.ErrMissingMediaURL),
		errors.Is(err, campaign.ErrNoBody),
		errors.Is(err, campaign.ErrNoContacts),
		errors.Is(err, campaign.ErrNoSender),
		errors.Is(err, store.ErrInvalidPhone),
		errors.Is(err, store.ErrMissingID),
		errors.Is(err, store.ErrMissingColumn),
		errors.Is(err, media.ErrUnsupportedScheme),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, errRecordsDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("invalid request body")

func webError(ctx iris.Context, function string, err error) {
	status := statusFor(err)
	logf := LoggingFormat{Path: "web_server", Function: function, Type: LogType.API, Error: err}
	logf.AddField("status", status)
	logf.AddField("client_ip", ctx.RemoteAddr())
	if status >= http.StatusInternalServerError {
		logf.Level = logrus.ErrorLevel
	} else {
		logf.Level = logrus.InfoLevel
	}
	logf.Message = "request failed"
	logf.Print()

	ctx.StopWithJSON(status, iris.Map{"error": err.Error()})
}

// readJSON decodes the body into v, reporting any decode failure as a bad request.
func readJSON(ctx iris.Context, function string, v interface{}) bool {
	if err := ctx.ReadJSON(v); err != nil {
		webError(ctx, function, errors.Join(errBadRequest, err))
		return false
	}
	return true
}

type classifyRequest struct {
	Text string `json:"text"`
}

func (gateway *Gateway) webClassify(ctx iris.Context) {
	var req classifyRequest
	if !readJSON(ctx, "webClassify", &req) {
		return
	}
	enc := gateway.Formatter.Classify(req.Text)
	count, err := gateway.Formatter.SegmentCount(req.Text, enc, true)
	if err != nil {
		webError(ctx, "webClassify", err)
		return
	}
	ctx.JSON(iris.Map{
		"encoding":        enc,
		"character_count": utf8.RuneCountInString(req.Text),
		"segment_count":   count,
	})
}

type segmentRequest struct {
	Text      string          `json:"text"`
	Encoding  coding.Encoding `json:"encoding"`
	AutoSplit *bool           `json:"auto_split"`
}

func (gateway *Gateway) webSegment(ctx iris.Context) {
	var req segmentRequest
	if !readJSON(ctx, "webSegment", &req) {
		return
	}
	enc := req.Encoding
	if enc == "" {
		enc = gateway.Formatter.Classify(req.Text)
	}
	autoSplit := req.AutoSplit == nil || *req.AutoSplit

	segments, err := gateway.Formatter.Segment(req.Text, enc, autoSplit)
	if err != nil {
		webError(ctx, "webSegment", err)
		return
	}
	ctx.JSON(iris.Map{"encoding": enc, "segments": segments})
}

type estimateRequest struct {
	Segments []string        `json:"segments"`
	Encoding coding.Encoding `json:"encoding"`
}

func (gateway *Gateway) webEstimate(ctx iris.Context) {
	var req estimateRequest
	if !readJSON(ctx, "webEstimate", &req) {
		return
	}
	enc := req.Encoding
	if enc == "" {
		enc = gateway.Formatter.Classify(strings.Join(req.Segments, ""))
	}
	if req.Segments == nil {
		req.Segments = []string{}
	}

	est, err := gateway.Formatter.Estimate(req.Segments, enc)
	if err != nil {
		webError(ctx, "webEstimate", err)
		return
	}
	ctx.JSON(est)
}

func (gateway *Gateway) webFormat(ctx iris.Context) {
	draft := formatter.Draft{AutoSplit: true}
	if !readJSON(ctx, "webFormat", &draft) {
		return
	}
	if err := draft.Validate(); err != nil {
		webError(ctx, "webFormat", err)
		return
	}
	res, err := gateway.Formatter.Format(draft)
	if err != nil {
		webError(ctx, "webFormat", err)
		return
	}
	ctx.JSON(res)
}

type renderRequest struct {
	TemplateID string            `json:"template_id"`
	Body       string            `json:"body"`
	Fields     map[string]string `json:"fields"`
}

type renderResponse struct {
	Text       string   `json:"text"`
	Preview    string   `json:"preview"`
	Referenced []string `json:"referenced"`
	Missing    []string `json:"missing"`
}

func (gateway *Gateway) webRender(ctx iris.Context) {
	var req renderRequest
	if !readJSON(ctx, "webRender", &req) {
		return
	}
	body := req.Body
	if req.TemplateID != "" {
		tmpl, err := gateway.Templates.Template(ctx.Request().Context(), req.TemplateID)
		if err != nil {
			webError(ctx, "webRender", err)
			return
		}
		body = tmpl.Body
	}

	missing := merge.Missing(body, req.Fields, merge.DefaultFields)
	if missing == nil {
		missing = []string{}
	}
	ctx.JSON(renderResponse{
		Text:       merge.Render(body, req.Fields),
		Preview:    merge.Preview(body, req.Fields, merge.DefaultFields),
		Referenced: merge.Referenced(body),
		Missing:    missing,
	})
}

func (gateway *Gateway) webFields(ctx iris.Context) {
	ctx.JSON(merge.DefaultFields)
}

type probeRequest struct {
	URL string `json:"url"`
}

func (gateway *Gateway) webProbeMedia(ctx iris.Context) {
	var req probeRequest
	if !readJSON(ctx, "webProbeMedia", &req) {
		return
	}
	info, err := gateway.Prober.Probe(ctx.Request().Context(), req.URL)
	if err != nil {
		webError(ctx, "webProbeMedia", err)
		return
	}
	ctx.JSON(info)
}

func (gateway *Gateway) webTemplates(ctx iris.Context) {
	templates, err := gateway.Templates.Templates(ctx.Request().Context())
	if err != nil {
		webError(ctx, "webTemplates", err)
		return
	}
	ctx.JSON(templates)
}

func (gateway *Gateway) webSaveTemplate(ctx iris.Context) {
	var tmpl store.Template
	if !readJSON(ctx, "webSaveTemplate", &tmpl) {
		return
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = time.Now().UTC()
	}
	if err := gateway.Templates.SaveTemplate(ctx.Request().Context(), tmpl); err != nil {
		webError(ctx, "webSaveTemplate", err)
		return
	}
	ctx.StatusCode(http.StatusCreated)
	ctx.JSON(tmpl)
}

func (gateway *Gateway) webContacts(ctx iris.Context) {
	contacts, err := gateway.Contacts.Contacts(ctx.Request().Context(), ctx.URLParam("group"))
	if err != nil {
		webError(ctx, "webContacts", err)
		return
	}
	ctx.JSON(contacts)
}

// contactFormat picks csv or vcf from the format parameter, falling back to
// the content type for uploads.
func contactFormat(ctx iris.Context) (string, error) {
	format := strings.ToLower(ctx.URLParamDefault("format", ""))
	if format == "" {
		format = "vcf"
		if strings.Contains(ctx.GetContentTypeRequested(), "csv") {
			format = "csv"
		}
	}
	switch format {
	case "csv", "vcf":
		return format, nil
	default:
		return "", errors.Join(errBadRequest, errors.New("format must be csv or vcf"))
	}
}

// webImportContacts stores every contact of a vCard or CSV body. Entries
// without a usable phone number are counted as skipped.
func (gateway *Gateway) webImportContacts(ctx iris.Context) {
	format, err := contactFormat(ctx)
	if err != nil {
		webError(ctx, "webImportContacts", err)
		return
	}
	importer := store.ImportVCard
	if format == "csv" {
		importer = store.ImportCSV
	}
	result, err := importer(ctx.Request().Body, gateway.Config.PhoneRegion)
	if err != nil {
		webError(ctx, "webImportContacts", errors.Join(errBadRequest, err))
		return
	}

	group := ctx.URLParam("group")
	for _, c := range result.Contacts {
		if group != "" && c.Group == "" {
			c.Group = group
		}
		if err := gateway.Contacts.SaveContact(ctx.Request().Context(), c); err != nil {
			webError(ctx, "webImportContacts", err)
			return
		}
	}

	logf := LoggingFormat{Path: "web_server", Function: "webImportContacts", Type: LogType.API, Level: logrus.InfoLevel}
	logf.AddField("imported", len(result.Contacts))
	logf.AddField("skipped", result.Skipped)
	logf.Message = "contacts imported"
	logf.Print()

	ctx.JSON(iris.Map{"imported": len(result.Contacts), "skipped": len(result.Skipped)})
}

// webExportContacts downloads the contacts of a group (all when empty) as
// CSV or vCard.
func (gateway *Gateway) webExportContacts(ctx iris.Context) {
	format, err := contactFormat(ctx)
	if err != nil {
		webError(ctx, "webExportContacts", err)
		return
	}
	contacts, err := gateway.Contacts.Contacts(ctx.Request().Context(), ctx.URLParam("group"))
	if err != nil {
		webError(ctx, "webExportContacts", err)
		return
	}

	var buf bytes.Buffer
	contentType := "text/vcard; charset=utf-8"
	if format == "csv" {
		contentType = "text/csv; charset=utf-8"
		err = store.ExportCSV(&buf, contacts)
	} else {
		err = store.ExportVCard(&buf, contacts)
	}
	if err != nil {
		webError(ctx, "webExportContacts", err)
		return
	}

	filename := "contacts_" + time.Now().UTC().Format("2006-01-02") + "." + format
	ctx.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	ctx.ContentType(contentType)
	_, _ = ctx.Write(buf.Bytes())
}

func (gateway *Gateway) webSendCampaign(ctx iris.Context) {
	req := campaign.Request{AutoSplit: true}
	if !readJSON(ctx, "webSendCampaign", &req) {
		return
	}
	report, err := gateway.Sender.Send(ctx.Request().Context(), req)
	if err != nil {
		webError(ctx, "webSendCampaign", err)
		return
	}

	logf := LoggingFormat{Path: "web_server", Function: "webSendCampaign", Type: LogType.Campaign, Level: logrus.InfoLevel}
	logf.TransactionID = report.CampaignID
	logf.AddField("gateway", report.Gateway)
	logf.AddField("sent", report.Sent)
	logf.AddField("failed", report.Failed)
	logf.AddField("skipped", report.Skipped)
	logf.AddField("units", report.TotalUnits)
	logf.Message = "campaign sent"
	logf.Print()

	ctx.JSON(report)
}

func (gateway *Gateway) webRecords(ctx iris.Context) {
	if gateway.Records == nil {
		webError(ctx, "webRecords", errRecordsDisabled)
		return
	}
	since, err := parseSince(ctx.URLParam("since"))
	if err != nil {
		webError(ctx, "webRecords", err)
		return
	}
	list, err := gateway.Records.List(ctx.Request().Context(), records.Filter{
		CampaignID: ctx.URLParam("campaign_id"),
		From:       ctx.URLParam("from"),
		To:         ctx.URLParam("to"),
		Status:     ctx.URLParam("status"),
		Since:      since,
		Limit:      ctx.URLParamIntDefault("limit", 0),
	})
	if err != nil {
		webError(ctx, "webRecords", err)
		return
	}
	ctx.JSON(list)
}

func (gateway *Gateway) webUsage(ctx iris.Context) {
	if gateway.Records == nil {
		webError(ctx, "webUsage", errRecordsDisabled)
		return
	}
	since, err := parseSince(ctx.URLParam("since"))
	if err != nil {
		webError(ctx, "webUsage", err)
		return
	}
	if since.IsZero() {
		now := time.Now().UTC()
		since = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	usage, err := gateway.Records.UsageSince(ctx.Request().Context(), ctx.URLParam("from"), since)
	if err != nil {
		webError(ctx, "webUsage", err)
		return
	}
	ctx.JSON(iris.Map{
		"since":         since,
		"messages":      usage.Messages,
		"units":         usage.Units,
		"cost":          usage.Cost,
		"cost_per_unit": gateway.Formatter.CostPerUnit(),
		"average_cost":  averageCost(usage),
	})
}

func averageCost(u records.Usage) billing.Rate {
	if u.Messages == 0 {
		return 0
	}
	return u.Cost / billing.Rate(u.Messages)
}

func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.Join(errBadRequest, err)
	}
	return t, nil
}

func (gateway *Gateway) webHealth(ctx iris.Context) {
	report := gateway.Health.Report(ctx.Request().Context())
	if report.Status == health.StatusDown {
		ctx.StatusCode(http.StatusServiceUnavailable)
	}
	ctx.JSON(report)
}
