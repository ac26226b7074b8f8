package record

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nros/internal/pubsub"
)

func testMessage(topic, id string, payload string, at time.Time) pubsub.Message {
	return pubsub.Message{
		Topic:   topic,
		ID:      id,
		Sender:  ":1.7",
		Payload: []byte(payload),
		At:      at,
	}
}

func TestBagAppendAndSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bag")
	bag, err := Create(path)
	require.NoError(t, err)
	defer bag.Close()

	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	require.NoError(t, bag.Append(testMessage("clock/tick", "a", `{"n":1}`, base)))
	require.NoError(t, bag.Append(testMessage("clock/tick", "b", `{"n":2}`, base.Add(time.Second))))
	require.NoError(t, bag.Append(testMessage("sonar/range", "c", `{"mm":240}`, base.Add(2*time.Second))))

	s, err := bag.Summary()
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, base, s.Start.UTC())
	assert.Equal(t, base.Add(2*time.Second), s.End.UTC())
	assert.Equal(t, map[string]int{"clock/tick": 2, "sonar/range": 1}, s.Topics)
}

func TestBagMessagesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.bag")
	bag, err := Create(path)
	require.NoError(t, err)
	defer bag.Close()

	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	// Appended out of stamp order on purpose
	require.NoError(t, bag.Append(testMessage("t", "second", "2", base.Add(time.Second))))
	require.NoError(t, bag.Append(testMessage("t", "first", "1", base)))

	var ids []string
	require.NoError(t, bag.Messages(func(m pubsub.Message) error {
		ids = append(ids, m.ID)
		return nil
	}))
	assert.Equal(t, []string{"first", "second"}, ids)
}

func TestBagReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.bag")
	bag, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, bag.Append(testMessage("t", "x", "payload", time.Now())))
	require.NoError(t, bag.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	s, err := reopened.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count)

	var got pubsub.Message
	require.NoError(t, reopened.Messages(func(m pubsub.Message) error {
		got = m
		return nil
	}))
	assert.Equal(t, "x", got.ID)
	assert.Equal(t, []byte("payload"), got.Payload)
	assert.Equal(t, ":1.7", got.Sender)
}

func TestOpenMissingBag(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.bag"))
	assert.Error(t, err)
}

func TestEmptyBagSummary(t *testing.T) {
	bag, err := Create(filepath.Join(t.TempDir(), "empty.bag"))
	require.NoError(t, err)
	defer bag.Close()

	s, err := bag.Summary()
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count)
	assert.True(t, s.Start.IsZero())
}

func TestReplayDelay(t *testing.T) {
	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	// First message plays immediately
	assert.Equal(t, time.Duration(0), replayDelay(time.Time{}, base, PlayOptions{}))

	// Gaps are preserved by default
	assert.Equal(t, time.Second, replayDelay(base, base.Add(time.Second), PlayOptions{}))

	// Rate scales the gap
	assert.Equal(t, 500*time.Millisecond, replayDelay(base, base.Add(time.Second), PlayOptions{Rate: 2.0}))

	// Immediate ignores gaps
	assert.Equal(t, time.Duration(0), replayDelay(base, base.Add(time.Second), PlayOptions{Immediate: true}))

	// Out-of-order stamps never wait
	assert.Equal(t, time.Duration(0), replayDelay(base.Add(time.Second), base, PlayOptions{}))
}
