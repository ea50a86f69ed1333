package core_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-ai/nexus-go/pkg/core"
	"github.com/nexus-ai/nexus-go/pkg/llm"
)

func TestConversationMemory_KeepsLastK(t *testing.T) {
	for _, k := range []int{1, 2, 5, 10} {
		for _, n := range []int{k + 1, k + 3, 3*k + 2} {
			t.Run(fmt.Sprintf("k=%d,n=%d", k, n), func(t *testing.T) {
				m := core.NewConversationMemory(k)
				for i := 0; i < n; i++ {
					m.Add(llm.RoleUser, fmt.Sprintf("msg-%d", i))
				}

				ctx := m.Context()
				require.Len(t, ctx, k)
				for i, msg := range ctx {
					assert.Equal(t, fmt.Sprintf("msg-%d", n-k+i), msg.Content)
				}
			})
		}
	}
}

func TestConversationMemory_EvictsSystemMessage(t *testing.T) {
	m := core.NewConversationMemory(2)
	m.Add(llm.RoleSystem, "sys")
	m.Add(llm.RoleUser, "q")
	m.Add(llm.RoleAssistant, "a")

	ctx := m.Context()
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "q"},
		{Role: llm.RoleAssistant, Content: "a"},
	}, ctx)
}

func TestConversationMemory_MessagesAreCopies(t *testing.T) {
	m := core.NewConversationMemory(3)
	m.Add(llm.RoleUser, "hello")

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Timestamp.IsZero())

	msgs[0].Content = "mutated"
	ctx := m.Context()
	ctx[0].Content = "mutated too"
	assert.Equal(t, "hello", m.Messages()[0].Content)
}

func TestConversationMemory_Clear(t *testing.T) {
	m := core.NewConversationMemory(3)
	m.Add(llm.RoleUser, "a")
	m.Add(llm.RoleAssistant, "b")
	m.Clear()

	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Context())
	assert.Equal(t, 3, m.MaxSize())
}

func TestConversationMemory_MinimumSize(t *testing.T) {
	m := core.NewConversationMemory(0)
	m.Add(llm.RoleUser, "a")
	m.Add(llm.RoleUser, "b")
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, "b", m.Context()[0].Content)
}
