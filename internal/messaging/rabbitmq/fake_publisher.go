package rabbitmq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// FakePublisher records published messages in memory. Used by stage tests in
// place of a live channel.
type FakePublisher struct {
	mu       sync.Mutex
	Messages []FakeMessage
	Err      error // returned by every Publish when set
}

type FakeMessage struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    amqp.Table
}

func (f *FakePublisher) Publish(_ context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)
	f.Messages = append(f.Messages, FakeMessage{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Body:       bodyCopy,
		Headers:    headers,
	})
	return nil
}

// ByExchange returns the recorded messages published to one exchange.
func (f *FakePublisher) ByExchange(exchange string) []FakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FakeMessage
	for _, m := range f.Messages {
		if m.Exchange == exchange {
			out = append(out, m)
		}
	}
	return out
}
