// Package queue wires the API server and the ingest worker together over
// RabbitMQ. One durable queue carries job messages; a TTL retry queue
// dead-letters back into it, and messages that keep failing land in a DLQ.
package queue

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"bionexus/internal/util"
	"bionexus/pkg/logger"
)

const (
	IngestQueue = "ingest_queue"

	retryTTLMs = 10000
	maxRetries = 10
)

// Init connects to RabbitMQ using the env configuration.
func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnv("RABBITMQ_PORT")

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares the ingest queue alongside its retry queue and DLQ.
// The retry queue has no consumer: messages sit out their TTL and
// dead-letter back into the work queue.
func SetupQueues(ch *amqp091.Channel) error {
	_, err := ch.QueueDeclare(
		IngestQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("declare %s: %w", IngestQueue, err)
	}

	dlqName := IngestQueue + "_dlq"
	_, err = ch.QueueDeclare(dlqName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare %s: %w", dlqName, err)
	}

	retryName := IngestQueue + "_retry"
	_, err = ch.QueueDeclare(
		retryName,
		true,
		false,
		false,
		false,
		amqp091.Table{
			"x-message-ttl":             int32(retryTTLMs),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": IngestQueue,
		},
	)
	if err != nil {
		return fmt.Errorf("declare %s: %w", retryName, err)
	}

	return nil
}

// Publish sends a persistent message to the named queue.
func Publish(ch *amqp091.Channel, queueName string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.Publish(
		"",
		queueName,
		false,
		false,
		publishing,
	)
}

// HandleProcessingError routes a failed delivery: back through the retry
// queue until the retry budget is spent, then into the DLQ. The original
// delivery is acked once its replacement is published.
func HandleProcessingError(ch *amqp091.Channel, msg amqp091.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	if retries >= maxRetries {
		dlqName := queueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp091.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp091.Table{}
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
