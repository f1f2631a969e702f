package outbox

import (
	"context"
	"fmt"

	"github.com/printit/orderdesk/internal/lifecycle"
	"github.com/printit/orderdesk/internal/models"
)

// Writer stores new outbox messages
type Writer interface {
	Create(ctx context.Context, message *models.OutboxMessage) error
}

// Recorder journals confirmed lifecycle transitions into the outbox.
type Recorder struct {
	writer Writer
}

func NewRecorder(writer Writer) *Recorder {
	return &Recorder{writer: writer}
}

// Record implements lifecycle.Recorder.
func (r *Recorder) Record(ctx context.Context, event lifecycle.Event) error {
	msg, err := models.NewLifecycleMessage(event)
	if err != nil {
		return fmt.Errorf("building outbox message for order %s: %w", event.OrderID, err)
	}
	return r.writer.Create(ctx, msg)
}
