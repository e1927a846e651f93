package context

import (
	"context"
	"database/sql"
	"time"
)

// SQLiteSource reads chat history from the messages table of a SQLite
// database.
type SQLiteSource struct {
	DB *sql.DB
}

// FetchBatch returns up to limit messages of the chat older than beforeID,
// newest first.
func (s *SQLiteSource) FetchBatch(ctx context.Context, chatID int64, limit int, beforeID *int64) ([]HistoryMessage, error) {
	query := "SELECT id, sender, text, inserted_at FROM messages WHERE chat_id = ?"
	args := []any{chatID}
	if beforeID != nil {
		query += " AND id < ?"
		args = append(args, *beforeID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []HistoryMessage
	for rows.Next() {
		var (
			msg        HistoryMessage
			sender     string
			insertedAt int64
		)
		if err := rows.Scan(&msg.ID, &sender, &msg.Text, &insertedAt); err != nil {
			return nil, err
		}
		msg.Sender = Sender(sender)
		msg.InsertedAt = time.Unix(insertedAt, 0)
		results = append(results, msg)
	}
	return results, rows.Err()
}
