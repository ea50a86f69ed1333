package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-ai/nexus-go/pkg/core"
	"github.com/nexus-ai/nexus-go/pkg/llm"
	sqliteStore "github.com/nexus-ai/nexus-go/pkg/storage/sqlite"
)

type cannedProvider struct{ reply string }

func (p cannedProvider) GenerateWithMessages(context.Context, []llm.Message, llm.Settings) (string, error) {
	return p.reply, nil
}
func (cannedProvider) Name() string  { return "canned" }
func (cannedProvider) Model() string { return "canned-1" }
func (cannedProvider) Close() error  { return nil }

func newREPLAssistant(t *testing.T) *core.Assistant {
	t.Helper()
	store, err := sqliteStore.NewClient(&sqliteStore.Config{DBPath: filepath.Join(t.TempDir(), "learn.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	a, err := core.NewAssistant(context.Background(), core.DefaultConfig(),
		core.WithProvider(cannedProvider{reply: "Use a for loop!"}),
		core.WithStore(store),
		core.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestREPL_AskRateAndQuit(t *testing.T) {
	a := newREPLAssistant(t)
	in := strings.NewReader("How do I loop in python?\n+\n+\nstats\nbye\nnever read\n")
	var out bytes.Buffer

	require.NoError(t, repl(context.Background(), a, in, &out))

	text := out.String()
	assert.Contains(t, text, "Nexus (canned/canned-1)")
	assert.Contains(t, text, "Nexus: Use a for loop!")
	assert.Contains(t, text, "Thanks! Quality")
	assert.Contains(t, text, "topics: programming")
	assert.Contains(t, text, "no completed turn to rate")
	assert.Contains(t, text, `"total_conversations": 1`)
	assert.Contains(t, text, "Goodbye!")

	assert.Len(t, a.History(), 3)
}

func TestREPL_ResetHelpAndEOF(t *testing.T) {
	a := newREPLAssistant(t)
	in := strings.NewReader("hello\nreset\nhelp\nstatus\n")
	var out bytes.Buffer

	require.NoError(t, repl(context.Background(), a, in, &out))

	text := out.String()
	assert.Contains(t, text, "Conversation reset.")
	assert.Contains(t, text, "rate the last answer")
	assert.Contains(t, text, `"message_count": 1`)
	assert.Len(t, a.History(), 1)
}
