package rabbitmq

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/streadway/amqp"
)

// receiptQueue is the durable queue carrying receipt delivery jobs. The
// checkout flow publishes here fire-and-forget; a consumer goroutine in main
// picks the jobs up and drives the delivery service.
const receiptQueue = "receipt_jobs"

// ReceiptJob asks the delivery consumer to render and ship a receipt for a
// committed order over the requested channels.
type ReceiptJob struct {
	TenantID      string   `json:"tenant_id"`
	OrderID       string   `json:"order_id"`
	Channels      []string `json:"channels"`
	CustomerEmail string   `json:"customer_email,omitempty"`
}

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL string
}

// NewClient connects to RabbitMQ, opens a channel and declares the receipt
// job queue so publishes cannot race the first consumer.
func NewClient(cfg Config) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close() // Close connection if channel creation fails
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		receiptQueue, // name
		true,         // durable (persists messages across broker restarts)
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare %s: %w", receiptQueue, err)
	}

	log.Printf("RabbitMQ client connected and %s declared.", receiptQueue)

	return &Client{
		conn:    conn,
		channel: ch,
	}, nil
}

// Close closes the RabbitMQ connection and channel.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred during RabbitMQ client close: %v", errs)
	}
	return nil
}

// PublishReceiptJob enqueues a receipt delivery job. The message is
// persistent so a broker restart does not lose a pending receipt.
func (c *Client) PublishReceiptJob(job ReceiptJob) error {
	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available")
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt job to JSON: %w", err)
	}

	err = c.channel.Publish(
		"",           // exchange: default exchange
		receiptQueue, // routing key: the queue name
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish receipt job: %w", err)
	}

	log.Printf(" [x] Enqueued receipt job for order %s", job.OrderID)
	return nil
}

// ConsumeReceiptJobs starts a goroutine that decodes receipt jobs and hands
// them to the handler. A handler error nacks the message for requeue; success
// acks it.
func (c *Client) ConsumeReceiptJobs(handler func(job ReceiptJob) error) error {
	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available for consumption")
	}

	queue, err := c.channel.QueueDeclare(
		receiptQueue, // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue for consuming: %w", err)
	}

	msgs, err := c.channel.Consume(
		queue.Name, // queue
		"",         // consumer tag
		false,      // auto-ack: false so delivery failures can be requeued
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			var job ReceiptJob
			if err := json.Unmarshal(msg.Body, &job); err != nil {
				log.Printf("Dropping malformed receipt job %d: %v", msg.DeliveryTag, err)
				// Malformed payloads can never succeed; do not requeue.
				if nackErr := msg.Nack(false, false); nackErr != nil {
					log.Printf("Error nacking message %d: %v", msg.DeliveryTag, nackErr)
				}
				continue
			}

			if err := handler(job); err != nil {
				log.Printf("Error processing receipt job for order %s: %v", job.OrderID, err)
				if requeueErr := msg.Nack(false, true); requeueErr != nil {
					log.Printf("Error nacking message %d: %v", msg.DeliveryTag, requeueErr)
				}
			} else {
				if ackErr := msg.Ack(false); ackErr != nil {
					log.Printf("Error acking message %d: %v", msg.DeliveryTag, ackErr)
				}
			}
		}
	}()

	return nil
}
