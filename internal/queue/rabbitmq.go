package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	contentType    = "application/json"
	publishTimeout = 5 * time.Second
)

// Handler processes one job. Returning a Permanent error drops the message.
type Handler func(ctx context.Context, job ValuationJob) error

type Config struct {
	URL      string
	Queue    string
	Prefetch int
}

// RabbitMQ publishes and consumes valuation jobs on a durable queue.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	logger  *zap.Logger
}

func Dial(cfg Config, logger *zap.Logger) (*RabbitMQ, error) {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueueName
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set prefetch: %w", err)
		}
	}

	q, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}

	logger.Info("connected to rabbitmq", zap.String("queue", q.Name))

	return &RabbitMQ{conn: conn, channel: ch, queue: q, logger: logger}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, job ValuationJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = r.channel.PublishWithContext(
		ctx,
		"",           // exchange
		r.queue.Name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			MessageId:    job.ID,
			Timestamp:    job.EnqueuedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}

	r.logger.Debug("valuation job published",
		zap.String("job_id", job.ID),
		zap.Uint("resume_id", job.ResumeID),
	)
	return nil
}

// Consume handles jobs until ctx is cancelled or the channel closes.
func (r *RabbitMQ) Consume(ctx context.Context, handler Handler) error {
	msgs, err := r.channel.ConsumeWithContext(
		ctx,
		r.queue.Name,
		"",
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	return consume(ctx, msgs, handler, r.logger)
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return r.conn.Close()
}

func consume(ctx context.Context, msgs <-chan amqp.Delivery, handler Handler, logger *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			handleDelivery(ctx, d, handler, logger)
		}
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler, logger *zap.Logger) {
	var job ValuationJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		logger.Error("invalid job format", zap.String("message_id", d.MessageId), zap.Error(err))
		if nerr := d.Nack(false, false); nerr != nil {
			logger.Error("nack failed", zap.Error(nerr))
		}
		return
	}

	log := logger.With(zap.String("job_id", job.ID), zap.Uint("resume_id", job.ResumeID))

	err := handler(ctx, job)
	if err == nil {
		if aerr := d.Ack(false); aerr != nil {
			log.Error("ack failed", zap.Error(aerr))
		}
		return
	}

	// Redelivered messages already had their second chance.
	requeue := !IsPermanent(err) && !d.Redelivered
	log.Error("valuation job failed", zap.Bool("requeue", requeue), zap.Error(err))
	if nerr := d.Nack(false, requeue); nerr != nil {
		log.Error("nack failed", zap.Error(nerr))
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
