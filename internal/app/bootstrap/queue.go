package bootstrap

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/barbershop-booking/internal/bookings"
	appconfig "github.com/wolfman30/barbershop-booking/internal/config"
	"github.com/wolfman30/barbershop-booking/internal/events"
	"github.com/wolfman30/barbershop-booking/internal/reconcile"
	"github.com/wolfman30/barbershop-booking/pkg/logging"
)

// BuildWebhookQueue uses SQS when WEBHOOK_QUEUE_URL is set and a bounded
// in-memory queue otherwise.
func BuildWebhookQueue(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) reconcile.Queue {
	if logger == nil {
		logger = logging.Default()
	}
	if url := strings.TrimSpace(cfg.WebhookQueueURL); url != "" && awsCfg != nil {
		logger.Info("webhook queue: sqs", "queue_url", url)
		return reconcile.NewSQSQueue(sqs.NewFromConfig(*awsCfg), url)
	}
	logger.Info("webhook queue: in-memory", "buffer", cfg.WebhookQueueBuffer)
	return reconcile.NewMemoryQueue(cfg.WebhookQueueBuffer)
}

// BuildEventPublisher routes booking lifecycle events through the Postgres
// outbox to RabbitMQ when both are configured, and to the log otherwise. The
// returned deliverer and closer are nil in log mode.
func BuildEventPublisher(cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) (bookings.EventPublisher, *events.Deliverer, io.Closer) {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.AMQPURL) == "" || pool == nil {
		return events.NewLogPublisher(logger), nil, nil
	}
	handler, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Warn("rabbitmq not available; logging booking events instead", "error", err)
		return events.NewLogPublisher(logger), nil, nil
	}
	outbox := events.NewOutbox(pool)
	logger.Info("booking events: outbox to rabbitmq", "exchange", cfg.AMQPExchange)
	return events.NewOutboxPublisher(outbox), events.NewDeliverer(outbox, handler, logger), handler
}

// StartDeliverer runs d until ctx is done. A nil deliverer is a no-op.
func StartDeliverer(ctx context.Context, d *events.Deliverer) {
	if d == nil {
		return
	}
	go d.Start(ctx)
}
