package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"smscard-gateway/campaign"
	"smscard-gateway/delivery"
	"smscard-gateway/formatter"
	"smscard-gateway/health"
	"smscard-gateway/media"
	"smscard-gateway/records"
	"smscard-gateway/store"
	"smscard-gateway/tariff"
)

// Gateway holds every service the web API is built from.
type Gateway struct {
	Config     Config
	Formatter  *formatter.Formatter
	Templates  store.TemplateStore
	Contacts   store.ContactStore
	Deliveries *delivery.Registry
	Sender     *campaign.Sender
	Records    *records.Repository
	Health     *health.Registry
	Prober     *media.Prober
	Metrics    *prometheus.Registry

	closers []func()
}

// NewGateway connects the backends named in cfg. Backends left unconfigured
// are skipped: templates and contacts fall back to memory, records are not
// written and only the configured delivery gateways are registered.
func NewGateway(ctx context.Context, cfg Config) (*Gateway, error) {
	logf := LoggingFormat{Path: "gateway", Function: "NewGateway", Type: LogType.Startup}

	t := tariff.Default()
	if cfg.TariffFile != "" {
		loaded, err := tariff.Load(cfg.TariffFile)
		if err != nil {
			logf.Level = logrus.ErrorLevel
			logf.Error = err
			logf.Message = "failed to load tariff"
			return nil, logf.ToError()
		}
		t = loaded
	}

	gateway := &Gateway{
		Config:     cfg,
		Deliveries: delivery.NewRegistry(),
		Health:     health.NewRegistry(),
		Prober:     media.NewProber(),
		Metrics:    prometheus.NewRegistry(),
	}
	gateway.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		health.NewCollector(gateway.Health),
	)

	opts := []formatter.Option{formatter.WithObserver(health.NewFormatterMetrics(gateway.Metrics))}
	if cfg.Normalize {
		opts = append(opts, formatter.WithNormalization())
	}
	gateway.Formatter = formatter.New(t.Limits, t.CostPerUnit, opts...)

	if err := gateway.connectStore(ctx); err != nil {
		gateway.Close()
		return nil, err
	}
	if err := gateway.connectRecords(ctx); err != nil {
		gateway.Close()
		return nil, err
	}
	if err := gateway.connectDeliveries(ctx); err != nil {
		gateway.Close()
		return nil, err
	}

	gateway.Sender = &campaign.Sender{
		Templates: gateway.Templates,
		Contacts:  gateway.Contacts,
		Formatter: gateway.Formatter,
		Gateways:  gateway.Deliveries,
		Workers:   cfg.CampaignWorkers,
		Logger:    logrus.WithField("component", "campaign"),
	}
	if gateway.Records != nil {
		gateway.Sender.Records = gateway.Records
	}

	logf.Level = logrus.InfoLevel
	logf.Message = "gateway ready"
	logf.AddField("gateways", gateway.Deliveries.Names())
	logf.AddField("components", gateway.Health.Names())
	logf.AddField("cost_per_unit", t.CostPerUnit.String())
	logf.Print()
	return gateway, nil
}

func (gateway *Gateway) connectStore(ctx context.Context) error {
	if gateway.Config.MongoURI == "" {
		mem := store.NewMemory()
		gateway.Templates, gateway.Contacts = mem, mem
		return nil
	}

	logf := LoggingFormat{Path: "gateway", Function: "connectStore", Type: LogType.Startup}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(gateway.Config.MongoURI))
	if err != nil {
		logf.Level = logrus.ErrorLevel
		logf.Error = err
		logf.Message = "failed to connect to mongodb"
		return logf.ToError()
	}
	gateway.closers = append(gateway.closers, func() { _ = client.Disconnect(context.Background()) })

	docs := store.NewMongo(client, gateway.Config.MongoDB)
	gateway.Templates, gateway.Contacts = docs, docs
	gateway.Health.Register("mongo", health.MongoChecker{Client: client})
	return nil
}

func (gateway *Gateway) connectRecords(ctx context.Context) error {
	if gateway.Config.DatabaseURL == "" {
		return nil
	}

	logf := LoggingFormat{Path: "gateway", Function: "connectRecords", Type: LogType.Startup}
	db, err := records.Open(gateway.Config.DatabaseURL)
	if err != nil {
		logf.Level = logrus.ErrorLevel
		logf.Error = err
		logf.Message = "failed to open records database"
		return logf.ToError()
	}
	repo := records.NewRepository(db)
	if err := repo.Migrate(); err != nil {
		logf.Level = logrus.ErrorLevel
		logf.Error = err
		logf.Message = "failed to migrate records"
		return logf.ToError()
	}
	gateway.Records = repo

	pool, err := health.NewPGXPool(ctx, gateway.Config.DatabaseURL)
	if err != nil {
		logf.Level = logrus.ErrorLevel
		logf.Error = err
		logf.Message = "failed to open health check pool"
		return logf.ToError()
	}
	gateway.closers = append(gateway.closers, pool.Close)
	gateway.Health.Register("postgres", health.PGXChecker{Pool: pool})
	return nil
}

func (gateway *Gateway) connectDeliveries(ctx context.Context) error {
	cfg := gateway.Config
	logger := logrus.WithField("component", "delivery")
	register := func(g delivery.Gateway) {
		r := delivery.WithRetry(g, logger)
		r.Attempts = cfg.DeliveryRetries
		gateway.Deliveries.Register(r)
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		register(delivery.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, logger))
	}

	if cfg.SMPPAddr != "" {
		smsc, err := delivery.DialSMPP(ctx, delivery.SMPPConfig{
			Addr:     cfg.SMPPAddr,
			SystemID: cfg.SMPPSystemID,
			Password: cfg.SMPPPassword,
			PackGSM7: cfg.SMPPPackGSM7,
		}, logger)
		if err != nil {
			logf := LoggingFormat{Path: "gateway", Function: "connectDeliveries", Type: LogType.Startup}
			logf.Level = logrus.ErrorLevel
			logf.Error = err
			logf.Message = "failed to bind to smsc"
			return logf.ToError()
		}
		gateway.closers = append(gateway.closers, func() { _ = smsc.Close(context.Background()) })
		register(smsc)
	}

	if cfg.AMQPURL != "" {
		queue, err := delivery.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			logf := LoggingFormat{Path: "gateway", Function: "connectDeliveries", Type: LogType.Startup}
			logf.Level = logrus.ErrorLevel
			logf.Error = err
			logf.Message = "failed to connect to amqp"
			return logf.ToError()
		}
		gateway.closers = append(gateway.closers, func() { _ = queue.Close() })
		gateway.Health.Register("amqp", health.AMQPChecker{Conn: queue})
		register(queue)
	}

	if brokers := delivery.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		outbox := delivery.NewKafka(brokers, cfg.KafkaTopic)
		gateway.closers = append(gateway.closers, func() { _ = outbox.Close() })
		register(outbox)
	}

	if cfg.DefaultGateway != "" {
		if err := gateway.Deliveries.SetDefault(cfg.DefaultGateway); err != nil {
			return fmt.Errorf("DEFAULT_GATEWAY: %w", err)
		}
	}
	return nil
}

// Close releases every backend connection in reverse order.
func (gateway *Gateway) Close() {
	for i := len(gateway.closers) - 1; i >= 0; i-- {
		gateway.closers[i]()
	}
	gateway.closers = nil
}
