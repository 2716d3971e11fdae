package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/GreenMint-Hub/GreenMintBackend/internal/domain"
)

// Recorder runs the sensor path for one trace.
type Recorder interface {
	RecordSensorActivity(ctx context.Context, input domain.SensorInput) (*domain.Activity, domain.Detection, error)
}

// subscriberClient is the part of mqtt.Client the subscriber uses.
type subscriberClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// ClientConfig holds broker connection settings.
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect opens an auto-reconnecting MQTT connection.
func Connect(cfg ClientConfig, logger *slog.Logger) (mqtt.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(false)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", slog.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", slog.Any("error", err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// Subscriber consumes trace messages and records them through a Recorder.
// Messages are queued to a fixed set of workers so slow storage does not
// stall the MQTT client.
type Subscriber struct {
	client   subscriberClient
	topic    string
	qos      byte
	recorder Recorder
	workers  int
	timeout  time.Duration
	logger   *slog.Logger

	queue chan mqtt.Message
	wg    sync.WaitGroup
}

// Option customises a Subscriber.
type Option func(*Subscriber)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Subscriber) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWorkers sets the number of concurrent recorders.
func WithWorkers(n int) Option {
	return func(s *Subscriber) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout bounds each Recorder call.
func WithTimeout(d time.Duration) Option {
	return func(s *Subscriber) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSubscriber constructs a Subscriber for topic.
func NewSubscriber(client subscriberClient, topic string, qos byte, recorder Recorder, opts ...Option) *Subscriber {
	s := &Subscriber{
		client:   client,
		topic:    topic,
		qos:      qos,
		recorder: recorder,
		workers:  4,
		timeout:  10 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "mqtt_intake", "topic", topic)
	s.queue = make(chan mqtt.Message, s.workers*16)
	return s
}

// Run subscribes and processes traces until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	workCtx, stop := context.WithCancel(ctx)
	defer stop()
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.work(workCtx)
	}

	token := s.client.Subscribe(s.topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case s.queue <- msg:
		case <-ctx.Done():
		}
	})
	if token.Wait() && token.Error() != nil {
		stop()
		s.wg.Wait()
		return fmt.Errorf("subscribe %s: %w", s.topic, token.Error())
	}
	s.logger.InfoContext(ctx, "subscribed")

	<-ctx.Done()
	if token := s.client.Unsubscribe(s.topic); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		s.logger.Warn("unsubscribe failed", slog.Any("error", token.Error()))
	}
	s.wg.Wait()
	return ctx.Err()
}

func (s *Subscriber) work(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			_ = s.handle(ctx, msg)
		}
	}
}

// handle records one message. Bad traces are dropped and reported, never retried.
func (s *Subscriber) handle(ctx context.Context, msg mqtt.Message) error {
	userID, err := UserFromTopic(msg.Topic())
	if err != nil {
		recordTrace(resultRejected)
		s.logger.WarnContext(ctx, "dropping trace", slog.Any("error", err))
		return err
	}
	trace, err := DecodeTrace(msg.Payload())
	if err != nil {
		recordTrace(resultRejected)
		s.logger.WarnContext(ctx, "dropping malformed trace", slog.String("user_id", userID), slog.Any("error", err))
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	activity, det, err := s.recorder.RecordSensorActivity(callCtx, domain.SensorInput{
		UserID:   userID,
		Samples:  trace.SensorData,
		Strategy: trace.Strategy,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			recordTrace(resultRejected)
			s.logger.WarnContext(ctx, "trace rejected", slog.String("user_id", userID), slog.Any("error", err))
		} else {
			recordTrace(resultFailed)
			s.logger.ErrorContext(ctx, "record trace", slog.String("user_id", userID), slog.Any("error", err))
		}
		return err
	}

	recordTrace(resultRecorded)
	s.logger.DebugContext(ctx, "trace recorded",
		slog.String("user_id", userID),
		slog.String("activity_id", activity.ID),
		slog.String("type", string(activity.Type)),
		slog.Float64("confidence", det.Classification.Confidence),
	)
	return nil
}
