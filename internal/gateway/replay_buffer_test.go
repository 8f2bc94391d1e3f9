package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqsOf(entries []replayEntry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.Seq
	}
	return out
}

func TestReplayBuffer_RangeSelectsInclusiveWindow(t *testing.T) {
	rb := NewReplayBuffer(100)
	for seq := int64(1); seq <= 10; seq++ {
		rb.Push(seq, []byte{byte(seq)})
	}

	assert.Equal(t, []int64{3, 4, 5, 6, 7}, seqsOf(rb.Range(3, 7)))
	assert.Empty(t, rb.Range(11, 20))
	assert.Empty(t, rb.Range(7, 3))
	assert.Equal(t, []byte{10}, rb.Range(10, 10)[0].Data)
}

func TestReplayBuffer_EvictsOldest(t *testing.T) {
	rb := NewReplayBuffer(5)
	for seq := int64(1); seq <= 8; seq++ {
		rb.Push(seq, []byte("snapshot"))
	}

	require.Equal(t, 5, rb.Len())
	assert.Equal(t, uint64(3), rb.Evicted())
	assert.Equal(t, []int64{4, 5, 6, 7, 8}, seqsOf(rb.Range(1, 100)))
}

func TestReplayBuffer_PushCopiesData(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("abc")
	rb.Push(1, data)
	data[0] = 'x'

	assert.Equal(t, "abc", string(rb.Last(1)[0].Data))
}

func TestReplayBuffer_Last(t *testing.T) {
	rb := NewReplayBuffer(4)
	assert.Empty(t, rb.Last(3))

	for seq := int64(1); seq <= 6; seq++ {
		rb.Push(seq, nil)
	}
	assert.Equal(t, []int64{4, 5, 6}, seqsOf(rb.Last(3)))
	assert.Len(t, rb.Last(10), 4)
}
