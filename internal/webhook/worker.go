package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/alerto360/internal/config"
	"github.com/sirupsen/logrus"
)

const signatureHeader = "X-Webhook-Signature"

// permanentError - ответ, который нет смысла повторять (4xx, кроме 429)
type permanentError struct {
	status int
}

func (e *permanentError) Error() string {
	return fmt.Sprintf("webhook endpoint rejected event with status %d", e.status)
}

// WebhookWorker забирает события из Redis и доставляет их на WEBHOOK_URL
type WebhookWorker struct {
	redisClient *redis.Client
	logger      *logrus.Logger
	cfg         *config.Config
	httpClient  *resty.Client
}

func NewWebhookWorker(redisClient *redis.Client, logger *logrus.Logger, cfg *config.Config) *WebhookWorker {
	return &WebhookWorker{
		redisClient: redisClient,
		logger:      logger,
		cfg:         cfg,
		httpClient: resty.New().
			SetTimeout(cfg.WebhookTimeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// Start запускает горутину обработки очереди. Останавливается при отмене ctx.
func (w *WebhookWorker) Start(ctx context.Context) {
	w.logger.Info("Starting webhook worker...")
	go func() {
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Stopping webhook worker.")
				return
			default:
				// 0 - ждать бесконечно
				result, err := w.redisClient.BRPop(ctx, 0, webhookQueueKey).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) {
						continue
					}
					w.logger.WithError(err).Error("Failed to pop webhook event from Redis")
					sleepCtx(ctx, w.cfg.WebhookTimeout)
					continue
				}

				// result[0] - ключ, result[1] - значение
				payload := result[1]
				var event WebhookEvent
				if err := json.Unmarshal([]byte(payload), &event); err != nil {
					w.logger.WithError(err).Error("Failed to unmarshal webhook event from Redis")
					continue
				}

				w.processWebhookEvent(ctx, event, payload)
			}
		}
	}()
}

func (w *WebhookWorker) processWebhookEvent(ctx context.Context, event WebhookEvent, rawPayload string) {
	log := w.logger.WithFields(logrus.Fields{
		"event_id":    event.ID,
		"event_type":  event.Type,
		"incident_id": event.IncidentID,
	})
	log.Debug("Processing webhook event...")

	if w.cfg.WebhookURL == "" {
		log.Warn("Webhook URL is not configured. Skipping webhook delivery.")
		return
	}

	attempts := w.cfg.WebhookMaxRetries
	if attempts < 1 {
		attempts = 1
	}

	err := retry.Do(
		func() error { return w.deliver(ctx, rawPayload) },
		retry.Attempts(uint(attempts)),
		retry.Delay(w.cfg.WebhookBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var perm *permanentError
			return ctx.Err() == nil && !errors.As(err, &perm)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Warnf("Webhook delivery attempt %d failed", n+1)
		}),
	)
	if err != nil {
		log.WithError(err).Errorf("Failed to deliver webhook event after %d attempts", attempts)
		return
	}
	log.Info("Webhook delivered successfully.")
}

// deliver выполняет одну попытку отправки
func (w *WebhookWorker) deliver(ctx context.Context, rawPayload string) error {
	req := w.httpClient.R().
		SetContext(ctx).
		SetBody(rawPayload)

	if w.cfg.WebhookSecret != "" {
		req.SetHeader(signatureHeader, generateHMACSHA256(rawPayload, w.cfg.WebhookSecret))
	}

	resp, err := req.Post(w.cfg.WebhookURL)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode() >= 400 && resp.StatusCode() < 500 && resp.StatusCode() != http.StatusTooManyRequests {
		return &permanentError{status: resp.StatusCode()}
	}
	return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode())
}

// generateHMACSHA256 генерирует HMAC-SHA256 подпись для данных
func generateHMACSHA256(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
