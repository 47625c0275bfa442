package events

import "context"

// NopPublisher discards all events. Used when no broker is configured and in
// tests.
type NopPublisher struct{}

var _ Publisher = (*NopPublisher)(nil)

func (NopPublisher) Publish(ctx context.Context, event Event) {}

func (NopPublisher) Close() {}
