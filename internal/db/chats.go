package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrChatNotFound is returned when a chat id does not exist.
var ErrChatNotFound = errors.New("chat not found")

// Chat binds a conversation to the character and persona cards it is
// played with.
type Chat struct {
	ID            int64
	Title         string
	CharacterPath string
	PersonaPath   string
	Memory        string
	CreatedAt     int64
}

// Message is a stored chat message.
type Message struct {
	ID         int64
	ChatID     int64
	Sender     string
	Text       string
	InsertedAt int64
}

// CreateChat inserts a chat and returns its id.
func CreateChat(database *sql.DB, chat Chat) (int64, error) {
	res, err := database.Exec(
		`INSERT INTO chats (title, character_path, persona_path, memory) VALUES (?, ?, ?, ?)`,
		chat.Title, chat.CharacterPath, chat.PersonaPath, chat.Memory,
	)
	if err != nil {
		return 0, fmt.Errorf("insert chat: %w", err)
	}
	return res.LastInsertId()
}

// GetChat loads a chat by id.
func GetChat(database *sql.DB, chatID int64) (Chat, error) {
	var chat Chat
	err := database.QueryRow(
		`SELECT id, title, character_path, persona_path, memory, created_at FROM chats WHERE id = ?`,
		chatID,
	).Scan(&chat.ID, &chat.Title, &chat.CharacterPath, &chat.PersonaPath, &chat.Memory, &chat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, fmt.Errorf("%w: id=%d", ErrChatNotFound, chatID)
	}
	if err != nil {
		return Chat{}, fmt.Errorf("query chat %d: %w", chatID, err)
	}
	return chat, nil
}

// SetChatMemory replaces the character memory of a chat.
func SetChatMemory(database *sql.DB, chatID int64, memory string) error {
	res, err := database.Exec(`UPDATE chats SET memory = ? WHERE id = ?`, memory, chatID)
	if err != nil {
		return fmt.Errorf("update chat memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id=%d", ErrChatNotFound, chatID)
	}
	return nil
}

// AppendMessage stores a message and returns its id.
func AppendMessage(database *sql.DB, chatID int64, sender, text string) (int64, error) {
	res, err := database.Exec(
		`INSERT INTO messages (chat_id, sender, text) VALUES (?, ?, ?)`,
		chatID, sender, text,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return res.LastInsertId()
}

// LatestMessages returns up to limit messages of a chat, newest first.
func LatestMessages(database *sql.DB, chatID int64, limit int) ([]Message, error) {
	rows, err := database.Query(
		`SELECT id, chat_id, sender, text, inserted_at FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Sender, &msg.Text, &msg.InsertedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		results = append(results, msg)
	}
	return results, rows.Err()
}

// DeleteMessagesFrom removes the message with id fromID and every newer
// message of the chat. It returns the number of deleted rows.
func DeleteMessagesFrom(database *sql.DB, chatID, fromID int64) (int64, error) {
	res, err := database.Exec(`DELETE FROM messages WHERE chat_id = ? AND id >= ?`, chatID, fromID)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return res.RowsAffected()
}
