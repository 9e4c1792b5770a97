package queue

import (
	"context"
)

// Publisher publishes invocation triggers to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg TriggerMessage) error
	Close() error
}

// TriggerHandler handles a consumed trigger message.
type TriggerHandler func(ctx context.Context, msg TriggerMessage) error

// Consumer consumes invocation triggers from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler TriggerHandler) error
	Close() error
}

const (
	// TriggerQueueName is the work queue that carries dispatcher invocation requests.
	TriggerQueueName = "notification-worker.trigger"

	dlqPrefix = "dlq."
)

var triggerQueues = []string{TriggerQueueName}

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.notification-worker.trigger.
func DLQName(queue string) string {
	return dlqPrefix + queue
}

// WorkQueueNames returns every work queue the worker declares.
func WorkQueueNames() []string {
	return append([]string(nil), triggerQueues...)
}
