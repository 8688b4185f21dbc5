package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/imyashkale/deviceserver/internal/logger"
	"github.com/imyashkale/deviceserver/internal/models"
)

const messageTypeAttribute = "messageType"

// taskMessage is the wire shape of a task on the SQS boundary.
type taskMessage struct {
	TaskID    string              `json:"taskId"`
	GroupName string              `json:"groupName"`
	Status    models.TaskStatus   `json:"status"`
	Devices   []models.DeviceItem `json:"devices"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func toMessage(task *models.DeviceTaskSummary) *taskMessage {
	return &taskMessage{
		TaskID:    task.TaskID,
		GroupName: task.GroupName,
		Status:    task.Status,
		Devices:   task.Devices,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
}

func (m *taskMessage) toDomain() *models.DeviceTaskSummary {
	return &models.DeviceTaskSummary{
		TaskID:    m.TaskID,
		GroupName: m.GroupName,
		Status:    m.Status,
		Devices:   m.Devices,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// SQSPublisher publishes association tasks to an SQS queue, tagging each
// message with the device-association message type.
type SQSPublisher struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSPublisher creates a new SQS-backed task publisher
func NewSQSPublisher(cfg aws.Config, queueURL string) *SQSPublisher {
	return &SQSPublisher{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}
}

// Publish serializes the task and sends it to the queue
func (p *SQSPublisher) Publish(ctx context.Context, task *models.DeviceTaskSummary) error {
	body, err := json.Marshal(toMessage(task))
	if err != nil {
		return fmt.Errorf("failed to marshal task message: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			messageTypeAttribute: {
				DataType:    aws.String("String"),
				StringValue: aws.String(MessageTypeDeviceAssociation),
			},
		},
	})
	if err != nil {
		logger.WithTask(task.TaskID, task.GroupName).Error("Failed to publish task to SQS")
		return fmt.Errorf("failed to publish task: %w", err)
	}

	logger.WithTask(task.TaskID, task.GroupName).Info("Task published to SQS")
	return nil
}

// SQSConsumer long-polls an SQS queue and dispatches device-association
// tasks to a handler. Messages are always deleted after handling: a task
// failure is recorded in the store, not surfaced to the transport, so a
// permanently failing task cannot loop through redelivery.
type SQSConsumer struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSConsumer creates a new SQS-backed task consumer
func NewSQSConsumer(cfg aws.Config, queueURL string) *SQSConsumer {
	return &SQSConsumer{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}
}

// Run receives messages until the context is cancelled
func (c *SQSConsumer) Run(ctx context.Context, handler func(*models.DeviceTaskSummary)) {
	logger.WithField("queue_url", c.queueURL).Info("SQS consumer started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("SQS consumer stopping")
			return
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(c.queueURL),
			MaxNumberOfMessages:   10,
			WaitTimeSeconds:       20,
			MessageAttributeNames: []string{messageTypeAttribute},
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithField("error", err.Error()).Error("Failed to receive messages from SQS")
			time.Sleep(5 * time.Second)
			continue
		}

		for _, msg := range out.Messages {
			c.handleMessage(ctx, msg, handler)
		}
	}
}

func (c *SQSConsumer) handleMessage(ctx context.Context, msg types.Message, handler func(*models.DeviceTaskSummary)) {
	defer c.deleteMessage(ctx, msg)

	attr, ok := msg.MessageAttributes[messageTypeAttribute]
	if !ok || aws.ToString(attr.StringValue) != MessageTypeDeviceAssociation {
		logger.WithField("message_id", aws.ToString(msg.MessageId)).Warn("Ignoring message with unknown type")
		return
	}

	var m taskMessage
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &m); err != nil {
		logger.WithFields(map[string]interface{}{
			"message_id": aws.ToString(msg.MessageId),
			"error":      err.Error(),
		}).Error("Failed to unmarshal task message")
		return
	}

	handler(m.toDomain())
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, msg types.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"message_id": aws.ToString(msg.MessageId),
			"error":      err.Error(),
		}).Error("Failed to delete message from SQS")
	}
}
