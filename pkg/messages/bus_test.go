package messages

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/trellis/pkg/extension"
)

func TestNewBus_Defaults(t *testing.T) {
	bus := NewBus(0, nil)

	assert.NotNil(t, bus.log)
	assert.Equal(t, 100, bus.capacity)
}

func TestBus_PublishFillsIdentity(t *testing.T) {
	bus := NewBus(10, logrus.New())
	sub := bus.Subscribe(4)
	defer sub.Close()

	bus.Info(extension.Key{Kind: extension.KindMusic, ID: "a"}, "hello")

	msg := <-sub.C
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Time.IsZero())
	assert.Equal(t, LevelInfo, msg.Level)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "music:a", msg.Source.String())
}

func TestBus_ReportDerivesSource(t *testing.T) {
	bus := NewBus(10, logrus.New())
	key := extension.Key{Kind: extension.KindTracker, ID: "scrobbler"}

	bus.Report(extension.Key{}, &extension.LoadError{Key: key, Err: errors.New("boom")})
	bus.Report(key, nil)

	recent := bus.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, LevelError, recent[0].Level)
	assert.Equal(t, key, recent[0].Source)

	var loadErr *extension.LoadError
	assert.ErrorAs(t, recent[0].Err, &loadErr)
}

func TestBus_HistoryIsBounded(t *testing.T) {
	bus := NewBus(3, logrus.New())
	for i := 0; i < 5; i++ {
		bus.Info(extension.Key{}, string(rune('a'+i)))
	}

	recent := bus.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].Text)
	assert.Equal(t, "e", recent[2].Text)

	assert.Len(t, bus.Recent(2), 2)
}

func TestBus_FullSubscriberDrops(t *testing.T) {
	bus := NewBus(10, logrus.New())
	sub := bus.Subscribe(1)
	defer sub.Close()

	bus.Info(extension.Key{}, "first")
	bus.Info(extension.Key{}, "second")

	assert.Equal(t, "first", (<-sub.C).Text)
	select {
	case msg := <-sub.C:
		t.Fatalf("expected drop, got %q", msg.Text)
	default:
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	bus := NewBus(10, logrus.New())
	sub := bus.Subscribe(1)
	sub.Close()
	sub.Close()

	_, ok := <-sub.C
	assert.False(t, ok)

	bus.Info(extension.Key{}, "after close")
}
