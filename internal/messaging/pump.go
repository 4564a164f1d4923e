package messaging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/PalcoLivre/StageLink/internal/dispatch"
)

// Pump consumes inbound responses from a Service and feeds the dispatch
// queue, answering immediately with the stage placeholder (or backpressure
// copy when the queue is full). Used by the live-connection backend; the
// Twilio backend answers inside the webhook instead.
type Pump struct {
	service  Service
	queue    *dispatch.Queue
	busyText string
}

// NewPump creates a pump. busyText is sent when the queue refuses the message.
func NewPump(service Service, queue *dispatch.Queue, busyText string) *Pump {
	return &Pump{service: service, queue: queue, busyText: busyText}
}

// Run blocks consuming inbound messages until the context is cancelled or the
// service's response channel closes.
func (p *Pump) Run(ctx context.Context) {
	slog.Info("Messaging pump started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Messaging pump stopped", "reason", ctx.Err())
			return
		case resp, ok := <-p.service.Responses():
			if !ok {
				slog.Info("Messaging pump stopped, response channel closed")
				return
			}
			p.handle(ctx, resp.From, resp.Body)
		}
	}
}

func (p *Pump) handle(ctx context.Context, from, body string) {
	ack, err := p.queue.Enqueue(from, body)
	if err != nil {
		if errors.Is(err, dispatch.ErrQueueFull) {
			ack = p.busyText
		} else {
			slog.Error("Messaging pump enqueue failed", "error", err, "from", from)
			return
		}
	}
	if ack == "" {
		return
	}
	if sendErr := p.service.SendMessage(ctx, from, ack); sendErr != nil {
		slog.Warn("Messaging pump ack delivery failed", "error", sendErr, "from", from)
	}
}
