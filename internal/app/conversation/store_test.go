package conversation_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/consulmed/consulmed/internal/adapters/storage/memory"
	"github.com/consulmed/consulmed/internal/app/conversation"
	"github.com/consulmed/consulmed/internal/domain"
)

func newStore() *conversation.Store {
	return conversation.NewStore(memory.NewSessionStore(), memory.NewMessageStore())
}

func userMsg(content string) *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(uuid.NewString()),
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func TestCreateAssignsIDAndHash(t *testing.T) {
	store := newStore()

	sess, err := store.Create(context.Background(), "dr-1", "", "")

	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, conversation.SessionHash(sess.ID), sess.Hash)
	assert.Empty(t, sess.Title, "title is set on first append, not at creation")
}

func TestResumeByIDAfterAppend(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	sess, err := store.Create(ctx, "dr-1", "", "")
	require.NoError(t, err)

	first := userMsg("Paciente com febre há 3 dias e tosse produtiva")
	require.NoError(t, store.Append(ctx, sess.ID, first))

	loaded, msgs, err := store.LoadByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, "Paciente com febre há 3 dias e tosse produtiva", loaded.Title)

	// Later appends never touch the title.
	require.NoError(t, store.Append(ctx, sess.ID, userMsg("segunda mensagem")))
	loaded, _, err = store.LoadByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paciente com febre há 3 dias e tosse produtiva", loaded.Title)
}

func TestTitleFromModuleWhenBound(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	sess, err := store.Create(ctx, "dr-1", "mod-cardio", "Cardiologia")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, sess.ID, userMsg("dor torácica")))

	loaded, _, err := store.LoadByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cardiologia", loaded.Title)
	assert.Equal(t, domain.ModuleID("mod-cardio"), loaded.ModuleID)
}

func TestTitleTruncatesLongFirstMessage(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	sess, err := store.Create(ctx, "dr-1", "", "")
	require.NoError(t, err)

	long := ""
	for i := 0; i < 20; i++ {
		long += "história "
	}
	require.NoError(t, store.Append(ctx, sess.ID, userMsg(long)))

	loaded, _, err := store.LoadByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(loaded.Title)), 49)
}

func TestResumeByHash(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	sess, err := store.Create(ctx, "dr-1", "", "")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, sess.ID, userMsg("oi")))

	loaded, msgs, err := store.LoadByHash(ctx, sess.Hash)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	require.Len(t, msgs, 1)
}

func TestAppendToUnknownSession(t *testing.T) {
	store := newStore()

	err := store.Append(context.Background(), "gone", userMsg("oi"))

	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRetriedAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	sess, err := store.Create(ctx, "dr-1", "", "")
	require.NoError(t, err)

	msg := userMsg("primeira")
	require.NoError(t, store.Append(ctx, sess.ID, msg))
	require.NoError(t, store.Append(ctx, sess.ID, msg)) // network retry
	require.NoError(t, store.Append(ctx, sess.ID, userMsg("segunda")))
	require.NoError(t, store.Append(ctx, sess.ID, msg)) // late retry

	_, msgs, err := store.LoadByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "primeira", msgs[0].Content)
	assert.Equal(t, "segunda", msgs[1].Content)
}

func TestListRecentOrdering(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewSessionStore()
	messages := memory.NewMessageStore()
	store := conversation.NewStore(sessions, messages)

	a, err := store.Create(ctx, "dr-1", "", "")
	require.NoError(t, err)
	b, err := store.Create(ctx, "dr-1", "", "")
	require.NoError(t, err)
	_, err = store.Create(ctx, "dr-2", "", "")
	require.NoError(t, err)

	// Touch a after b so a is the most recent.
	require.NoError(t, store.Append(ctx, b.ID, userMsg("b")))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Append(ctx, a.ID, userMsg("a")))

	recent, err := store.ListRecent(ctx, "dr-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, a.ID, recent[0].ID)
	assert.Equal(t, b.ID, recent[1].ID)
}

// For every sequence of appends, the stored order equals call order, with
// retried ids deduplicated.
func TestAppendOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := newStore()

		sess, err := store.Create(ctx, "dr-1", "", "")
		if err != nil {
			t.Fatal(err)
		}

		n := rapid.IntRange(1, 20).Draw(t, "appends")
		var want []domain.MessageID
		var pool []*domain.Message

		for i := 0; i < n; i++ {
			retry := len(pool) > 0 && rapid.Bool().Draw(t, fmt.Sprintf("retry_%d", i))
			var msg *domain.Message
			if retry {
				msg = pool[rapid.IntRange(0, len(pool)-1).Draw(t, fmt.Sprintf("pick_%d", i))]
			} else {
				msg = userMsg(fmt.Sprintf("mensagem %d", i))
				pool = append(pool, msg)
				want = append(want, msg.ID)
			}
			if err := store.Append(ctx, sess.ID, msg); err != nil {
				t.Fatal(err)
			}
		}

		_, got, err := store.LoadByID(ctx, sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(want) {
			t.Fatalf("stored %d messages, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Fatalf("position %d: got %s, want %s", i, got[i].ID, want[i])
			}
		}
	})
}
