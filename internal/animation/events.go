package animation

import (
	"context"
	"time"
)

// EventType classifies progress events emitted while a request runs.
type EventType string

const (
	// EventQueued reports the current queue position.
	EventQueued EventType = "queued"
	// EventLog carries one in-progress log line.
	EventLog EventType = "log"
	// EventCompleted is the final event of a successful request.
	EventCompleted EventType = "completed"
	// EventFailed is the final event of a failed request.
	EventFailed EventType = "failed"
)

// Event is one progress update. Log lines arrive in emission order; the
// completion or failure event is always last.
type Event struct {
	Type          EventType
	QueuePosition int         // Set for EventQueued
	Message       string      // Set for EventLog and EventFailed
	Video         VideoResult // Set for EventCompleted
	Err           error       // Set for EventFailed
}

// DefaultPollInterval is how often Watch polls the queue status.
const DefaultPollInterval = 2 * time.Second

// Watch polls a submitted request until it reaches a terminal state,
// emitting progress events on the returned channel. The channel is closed
// after the final completion or failure event. Cancelling the context
// stops the watch with a failure event.
func Watch(ctx context.Context, client Client, requestID string, interval time.Duration) <-chan Event {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	events := make(chan Event, 16)

	go func() {
		defer close(events)

		emitted := 0      // log lines already forwarded
		lastQueuePos := -1

		for {
			status, err := client.Status(ctx, requestID)
			if err != nil {
				events <- Event{Type: EventFailed, Err: err, Message: err.Error()}
				return
			}

			if status.Status == StatusInQueue && status.QueuePosition != lastQueuePos {
				lastQueuePos = status.QueuePosition
				events <- Event{Type: EventQueued, QueuePosition: status.QueuePosition}
			}

			// Statuses report cumulative logs; forward only new lines,
			// preserving emission order.
			for ; emitted < len(status.Logs); emitted++ {
				events <- Event{Type: EventLog, Message: status.Logs[emitted]}
			}

			switch status.Status {
			case StatusCompleted:
				video, err := client.Result(ctx, requestID)
				if err != nil {
					events <- Event{Type: EventFailed, Err: err, Message: err.Error()}
					return
				}
				events <- Event{Type: EventCompleted, Video: video}
				return
			case StatusFailed:
				events <- Event{Type: EventFailed, Message: status.Error}
				return
			}

			select {
			case <-ctx.Done():
				events <- Event{Type: EventFailed, Err: ctx.Err(), Message: ctx.Err().Error()}
				return
			case <-time.After(interval):
			}
		}
	}()

	return events
}
