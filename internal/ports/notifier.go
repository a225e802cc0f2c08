package ports

import "context"

// Notifier delivers formatted alert text to an outbound channel.
type Notifier interface {
	Send(ctx context.Context, channel, text string) error
}
