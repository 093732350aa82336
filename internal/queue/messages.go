package queue

import (
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"
)

// IngestJobMsg tells the worker which submitted job to run.
type IngestJobMsg struct {
	JobID string `json:"job_id"`
}

// PublishIngestJob enqueues a job for the worker.
func PublishIngestJob(ch *amqp091.Channel, jobID string) error {
	data, err := json.Marshal(IngestJobMsg{JobID: jobID})
	if err != nil {
		return err
	}
	return Publish(ch, IngestQueue, data)
}
