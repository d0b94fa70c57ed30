package archive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vocalhq/interview-trainer/internal/types"
)

func TestConfigIsConfigured(t *testing.T) {
	assert.False(t, Config{}.IsConfigured())
	assert.False(t, Config{Bucket: "b"}.IsConfigured())

	full := Config{Bucket: "b", AccessKeyID: "ak", SecretAccessKey: "sk"}
	assert.True(t, full.IsConfigured())
}

func TestObjectKeyLayout(t *testing.T) {
	a := New(Config{Bucket: "b"}, nil)

	key := a.objectKey("sess-42", 3, types.ModeAnswer)
	assert.True(t, strings.HasPrefix(key, "sessions/sess-42/turn-003-answer-"), key)
	assert.True(t, strings.HasSuffix(key, ".wav"))

	custom := New(Config{Bucket: "b", Prefix: "answers"}, nil)
	key = custom.objectKey("", 12, types.ModeClarification)
	assert.True(t, strings.HasPrefix(key, "answers/unassigned/turn-012-clarification-"), key)
}

func TestQueueAnswerSkipsWhenDisabled(t *testing.T) {
	a := New(Config{Bucket: "b", AccessKeyID: "ak", SecretAccessKey: "sk"}, nil)

	// Enabled is false, so nothing is queued.
	a.QueueAnswer("s-1", 1, types.ModeAnswer, []byte{1, 2, 3})
	assert.Empty(t, a.queue)
}

func TestQueueAnswerSkipsEmptyAudio(t *testing.T) {
	a := New(Config{Enabled: true, Bucket: "b", AccessKeyID: "ak", SecretAccessKey: "sk"}, nil)

	a.QueueAnswer("s-1", 1, types.ModeAnswer, nil)
	assert.Empty(t, a.queue)
}

func TestQueueAnswerEnqueues(t *testing.T) {
	a := New(Config{Enabled: true, Bucket: "b", AccessKeyID: "ak", SecretAccessKey: "sk"}, nil)

	a.QueueAnswer("s-1", 2, types.ModeAnswer, []byte{1, 2, 3})

	req := <-a.queue
	assert.Equal(t, "s-1", req.sessionID)
	assert.Equal(t, []byte{1, 2, 3}, req.data)
	assert.Contains(t, req.key, "turn-002-answer")
}
