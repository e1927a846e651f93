package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	require.NoError(t, InitSchema(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func testChat(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	id, err := CreateChat(db, Chat{Title: "tavern", CharacterPath: "cards/luna.yaml"})
	require.NoError(t, err)
	return id
}

func TestInitSchema(t *testing.T) {
	db := testDB(t)

	tables := map[string]bool{}
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('chats','messages','events')`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables[name] = true
	}
	require.NoError(t, rows.Err())

	for _, want := range []string{"chats", "messages", "events"} {
		assert.True(t, tables[want], "table %q not created", want)
	}

	// Idempotent.
	require.NoError(t, InitSchema(db))
}

func TestLogEvent_Basic(t *testing.T) {
	db := testDB(t)

	id1, err := LogEvent(db, nil, EventChatCreated, map[string]any{"chat_id": 1, "character": "Luna"})
	require.NoError(t, err)
	assert.Positive(t, id1)

	id2, err := LogEvent(db, nil, EventContextAssembled, map[string]any{"chat_id": 1})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	var ts int64
	require.NoError(t, db.QueryRow(`SELECT timestamp FROM events WHERE id = ?`, id1).Scan(&ts))
	assert.NotZero(t, ts)

	var payloadStr string
	require.NoError(t, db.QueryRow(`SELECT payload FROM events WHERE id = ?`, id1).Scan(&payloadStr))
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(payloadStr), &payload))
	assert.Equal(t, "Luna", payload["character"])
}

func TestLogEvent_WithParent(t *testing.T) {
	db := testDB(t)

	parentID, err := LogEvent(db, nil, EventContextAssembled, nil)
	require.NoError(t, err)
	childID, err := LogEvent(db, &parentID, EventCompletionSucceeded, map[string]any{"output_tokens": 12})
	require.NoError(t, err)

	events, err := RecentEvents(db, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, childID, events[0].ID)
	require.NotNil(t, events[0].ParentID)
	assert.Equal(t, parentID, *events[0].ParentID)
	assert.Equal(t, EventCompletionSucceeded, events[0].Type)

	assert.Nil(t, events[1].ParentID)
	assert.Empty(t, events[1].Payload)
}

func TestRecentEvents_Limit(t *testing.T) {
	db := testDB(t)
	for i := 0; i < 5; i++ {
		_, err := LogEvent(db, nil, EventCompletionFailed, map[string]any{"attempt": i})
		require.NoError(t, err)
	}

	events, err := RecentEvents(db, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Greater(t, events[0].ID, events[1].ID)
	assert.Contains(t, events[0].Payload, `"attempt":4`)
}

func TestEventSubtree(t *testing.T) {
	db := testDB(t)

	rootID, err := LogEvent(db, nil, EventContextAssembled, nil)
	require.NoError(t, err)
	_, err = LogEvent(db, nil, EventChatCreated, nil)
	require.NoError(t, err)
	childID, err := LogEvent(db, &rootID, EventCompletionSucceeded, nil)
	require.NoError(t, err)
	grandchildID, err := LogEvent(db, &childID, EventReplyRegenerated, nil)
	require.NoError(t, err)

	events, err := EventSubtree(db, rootID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []int64{rootID, childID, grandchildID}, []int64{events[0].ID, events[1].ID, events[2].ID})

	events, err = EventSubtree(db, 999)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLatestEventID(t *testing.T) {
	db := testDB(t)

	_, err := LatestEventID(db, EventContextAssembled)
	assert.ErrorContains(t, err, "no context.assembled event found")

	_, err = LogEvent(db, nil, EventContextAssembled, nil)
	require.NoError(t, err)
	latest, err := LogEvent(db, nil, EventContextAssembled, nil)
	require.NoError(t, err)
	_, err = LogEvent(db, nil, EventChatCreated, nil)
	require.NoError(t, err)

	id, err := LatestEventID(db, EventContextAssembled)
	require.NoError(t, err)
	assert.Equal(t, latest, id)
}

func TestChat_CreateGetMemory(t *testing.T) {
	db := testDB(t)
	id := testChat(t, db)

	chat, err := GetChat(db, id)
	require.NoError(t, err)
	assert.Equal(t, "tavern", chat.Title)
	assert.Equal(t, "cards/luna.yaml", chat.CharacterPath)
	assert.Empty(t, chat.PersonaPath)
	assert.Empty(t, chat.Memory)
	assert.NotZero(t, chat.CreatedAt)

	require.NoError(t, SetChatMemory(db, id, "Luna owes the user a favour."))
	chat, err = GetChat(db, id)
	require.NoError(t, err)
	assert.Equal(t, "Luna owes the user a favour.", chat.Memory)
}

func TestChat_NotFound(t *testing.T) {
	db := testDB(t)

	_, err := GetChat(db, 42)
	assert.True(t, errors.Is(err, ErrChatNotFound))

	err = SetChatMemory(db, 42, "x")
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestMessages_AppendAndLatest(t *testing.T) {
	db := testDB(t)
	chatID := testChat(t, db)
	otherID := testChat(t, db)

	var ids []int64
	for i, sender := range []string{"assistant", "user", "assistant"} {
		id, err := AppendMessage(db, chatID, sender, string(rune('a'+i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := AppendMessage(db, otherID, "user", "elsewhere")
	require.NoError(t, err)

	msgs, err := LatestMessages(db, chatID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, ids[2], msgs[0].ID)
	assert.Equal(t, "c", msgs[0].Text)
	assert.Equal(t, ids[1], msgs[1].ID)
	assert.Equal(t, "user", msgs[1].Sender)
	assert.NotZero(t, msgs[0].InsertedAt)
}

func TestMessages_RejectsUnknownSender(t *testing.T) {
	db := testDB(t)
	chatID := testChat(t, db)

	_, err := AppendMessage(db, chatID, "system", "nope")
	assert.Error(t, err)
}

func TestDeleteMessagesFrom(t *testing.T) {
	db := testDB(t)
	chatID := testChat(t, db)

	var ids []int64
	for _, text := range []string{"one", "two", "three", "four"} {
		id, err := AppendMessage(db, chatID, "user", text)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	n, err := DeleteMessagesFrom(db, chatID, ids[2])
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	msgs, err := LatestMessages(db, chatID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
}
