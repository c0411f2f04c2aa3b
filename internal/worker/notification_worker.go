package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carrental/internal/domain"
	"carrental/internal/metrics"
	"carrental/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Deliverer routes a notification to a channel and reports which one was used.
type Deliverer interface {
	Deliver(ctx context.Context, n *models.Notification) (string, error)
}

// NotificationWorker drains the notifications outbox. Rows are persisted first,
// then scheduled through redis or the in-memory queue; polling picks up anything
// the fast paths missed.
type NotificationWorker struct {
	store         domain.NotificationRepository
	deliverer     Deliverer
	redis         *redis.Client
	retryPolicy   RetryPolicy
	limiter       *rate.Limiter
	queue         chan models.Notification
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	now           func() time.Time
	logger        *zerolog.Logger
}

type Option func(*NotificationWorker)

func WithRedis(client *redis.Client) Option {
	return func(w *NotificationWorker) { w.redis = client }
}

func WithPolling(interval time.Duration, batchSize int) Option {
	return func(w *NotificationWorker) {
		if interval > 0 {
			w.pollInterval = interval
		}
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

// WithSendRate caps outbound deliveries per second.
func WithSendRate(perSecond float64, burst int) Option {
	return func(w *NotificationWorker) {
		if perSecond > 0 {
			w.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *NotificationWorker) { w.now = now }
}

// NewNotificationWorker builds a worker with sane defaults.
func NewNotificationWorker(store domain.NotificationRepository, deliverer Deliverer, retry RetryPolicy, logger *zerolog.Logger, opts ...Option) *NotificationWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	w := &NotificationWorker{
		store:         store,
		deliverer:     deliverer,
		retryPolicy:   retry,
		queue:         make(chan models.Notification, models.NotificationQueueSize),
		redisQueueKey: "notifications:queue",
		deadLetterKey: "notifications:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue persists the notification and schedules it via redis or the in-memory queue.
func (w *NotificationWorker) Enqueue(ctx context.Context, userID int64, kind, subject, body string) error {
	if userID == 0 {
		return errors.New("recipient is required")
	}
	if kind == "" {
		return errors.New("notification kind is required")
	}

	n := models.Notification{
		UserID:  userID,
		Kind:    kind,
		Subject: subject,
		Body:    body,
		Status:  models.NotificationPending,
	}
	if err := w.store.CreateNotification(ctx, &n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, &n); err != nil {
			w.logger.Warn().Err(err).Int64("notification_id", n.ID).Msg("Redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- n:
	default:
		w.logger.Warn().Int64("notification_id", n.ID).Msg("Memory queue full, notification left to polling")
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if n, ok := w.tryLocalQueue(); ok {
			w.process(ctx, &n)
			continue
		}

		if n, ok := w.tryRedis(ctx); ok {
			w.process(ctx, &n)
			continue
		}

		if processed := w.poll(ctx); processed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *NotificationWorker) poll(ctx context.Context) int {
	pending, err := w.store.GetPendingNotifications(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("Failed to fetch pending notifications")
		}
		return 0
	}
	for i := range pending {
		w.process(ctx, &pending[i])
	}
	return len(pending)
}

func (w *NotificationWorker) tryLocalQueue() (models.Notification, bool) {
	select {
	case n := <-w.queue:
		return n, true
	default:
		return models.Notification{}, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (models.Notification, bool) {
	if w.redis == nil {
		return models.Notification{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.Notification{}, false
		}
		w.logger.Warn().Err(err).Msg("Redis BRPOP failed")
		return models.Notification{}, false
	}
	if len(res) != 2 {
		return models.Notification{}, false
	}
	var n models.Notification
	if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
		w.logger.Error().Err(err).Msg("Failed to decode queued notification")
		return models.Notification{}, false
	}
	return n, true
}

// process claims the row before delivering so the queue and polling paths never send twice.
func (w *NotificationWorker) process(ctx context.Context, n *models.Notification) {
	claimed, err := w.store.ClaimNotification(ctx, n.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to claim notification")
		return
	}
	if !claimed {
		return
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			w.retryOrFail(ctx, n, err)
			return
		}
	}

	channel, err := w.deliverer.Deliver(ctx, n)
	if err != nil {
		metrics.IncNotification(channelLabel(channel), "error")
		w.retryOrFail(ctx, n, err)
		return
	}

	metrics.IncNotification(channel, "sent")
	if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to mark notification completed")
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, n *models.Notification, cause error) {
	attempt := n.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.logger.Error().Err(cause).Int64("notification_id", n.ID).Int("attempt", attempt).Msg("Notification failed permanently")
		if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to mark notification failed")
		}
		w.pushDeadLetter(ctx, n)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("notification_id", n.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("Notification delivery failed, will retry")
	if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Failed to schedule notification retry")
	}
}

func (w *NotificationWorker) pushRedis(ctx context.Context, key string, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, n *models.Notification) {
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, n); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("Dead letter push failed")
	}
}

func channelLabel(channel string) string {
	if channel == "" {
		return "none"
	}
	return channel
}
