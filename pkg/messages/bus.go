package messages

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/trellis/pkg/extension"
)

// Level is the severity of a message
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Message is one broadcast entry
type Message struct {
	ID     string        `json:"id"`
	Level  Level         `json:"level"`
	Text   string        `json:"text"`
	Source extension.Key `json:"source"`
	Err    error         `json:"-"`
	Time   time.Time     `json:"time"`
}

// Bus fans messages out to subscribers and keeps a short history
type Bus struct {
	mu       sync.Mutex
	subs     map[int]chan Message
	nextID   int
	history  []Message
	capacity int
	log      *logrus.Logger
}

// NewBus creates a bus keeping the last historySize messages
func NewBus(historySize int, log *logrus.Logger) *Bus {
	if log == nil {
		log = logrus.New()
	}
	if historySize <= 0 {
		historySize = 100
	}

	return &Bus{
		subs:     make(map[int]chan Message),
		capacity: historySize,
		log:      log,
	}
}

// Publish broadcasts msg, filling in its id and timestamp when unset
func (b *Bus) Publish(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, msg)
	if len(b.history) > b.capacity {
		b.history = b.history[len(b.history)-b.capacity:]
	}

	for id, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			b.log.Warnf("Message subscriber %d is full, dropping message %s", id, msg.ID)
		}
	}
}

// Info publishes an informational message
func (b *Bus) Info(source extension.Key, text string) {
	b.Publish(Message{Level: LevelInfo, Text: text, Source: source})
}

// Report publishes an error. A zero source is filled in from the error taxonomy.
func (b *Bus) Report(source extension.Key, err error) {
	if err == nil {
		return
	}
	if source == (extension.Key{}) {
		if key, ok := extension.SourceOf(err); ok {
			source = key
		}
	}

	b.log.WithField("extension", source.String()).WithError(err).Warn("Extension error reported")
	b.Publish(Message{Level: LevelError, Text: err.Error(), Source: source, Err: err})
}

// Recent returns up to n of the most recent messages, oldest first
func (b *Bus) Recent(n int) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Message, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// Subscription receives published messages on C
type Subscription struct {
	C <-chan Message

	once  sync.Once
	close func()
}

// Close stops delivery and closes C
func (s *Subscription) Close() {
	s.once.Do(s.close)
}

// Subscribe registers a subscriber with the given buffer size
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, buffer)
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return &Subscription{
		C: ch,
		close: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		},
	}
}
