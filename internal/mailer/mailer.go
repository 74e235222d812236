// Package mailer delivers OTP mails. Delivery is asynchronous from the
// caller's point of view: a job is handed to the notification pipeline,
// which renders the template and talks to the mail provider.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"otp-guard/internal/config"
	"otp-guard/internal/util"
)

// ErrBreakerOpen is returned while the mail circuit is open.
var ErrBreakerOpen = errors.New("mailer: circuit open")

// Publisher is the slice of the Kafka producer the sender needs.
type Publisher interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Job is the message a notification worker consumes.
type Job struct {
	ID        string                 `json:"id"`
	To        string                 `json:"to"`
	Subject   string                 `json:"subject"`
	Template  string                 `json:"template"`
	Data      map[string]interface{} `json:"data"`
	CreatedAt time.Time              `json:"created_at"`
}

type KafkaSender struct {
	publisher Publisher
	topic     string
	breaker   *gobreaker.CircuitBreaker[struct{}]
	logger    *zap.Logger
	now       func() time.Time
}

func NewKafkaSender(publisher Publisher, cfg config.MailConfig, logger *zap.Logger) *KafkaSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: cfg.BreakerMaxRequests,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("mail circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &KafkaSender{
		publisher: publisher,
		topic:     cfg.Topic,
		breaker:   gobreaker.NewCircuitBreaker[struct{}](settings),
		logger:    logger,
		now:       time.Now,
	}
}

// Send publishes one mail job keyed by recipient.
func (s *KafkaSender) Send(ctx context.Context, to, subject, templateID string, data map[string]interface{}) error {
	job := Job{
		ID:        uuid.NewString(),
		To:        to,
		Subject:   subject,
		Template:  templateID,
		Data:      data,
		CreatedAt: s.now().UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode mail job: %w", err)
	}

	headers := map[string]string{
		"job_id":   job.ID,
		"template": templateID,
	}

	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.publisher.ProduceMessage(ctx, s.topic, []byte(to), payload, headers)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	if err != nil {
		return fmt.Errorf("publish mail job: %w", err)
	}

	s.logger.Debug("mail job published",
		zap.String("job_id", job.ID),
		zap.String("template", templateID),
		util.Identity(to),
	)
	return nil
}

// State reports the breaker state, e.g. "closed" or "open".
func (s *KafkaSender) State() string {
	return s.breaker.State().String()
}

// LogSender writes the job to the log instead of delivering it. It is the
// development fallback when Kafka is disabled, and it logs the code itself.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, subject, templateID string, data map[string]interface{}) error {
	s.logger.Info("mail delivery disabled, logging OTP mail",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("template", templateID),
		zap.Any("data", data),
	)
	return nil
}
