package store

import (
	"fmt"
	"time"
)

// ConversationRecord is one append-only audit entry for a conversation
// the twin handled. Records are never mutated or deleted.
type ConversationRecord struct {
	ID            int64
	Timestamp     time.Time
	Requester     string
	Summary       string
	TwinResponse  string
	NeedsApproval bool
}

// CorrectionRecord captures an owner correction awaiting a learning pass.
type CorrectionRecord struct {
	ID               int64
	Timestamp        time.Time
	OriginalResponse string
	CorrectResponse  string
	Context          string
	Processed        bool
}

// InboxItem is a work item posted for the owner's attention.
type InboxItem struct {
	ID         int64
	Title      string
	Details    string
	Provenance string
	CreatedAt  time.Time
}

// AppendConversation appends an audit record. A zero Timestamp is filled
// with the current time.
func (s *Store) AppendConversation(persona string, rec ConversationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO conversations (persona, ts, requester, summary, twin_response, needs_approval)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		persona, rec.Timestamp, rec.Requester, rec.Summary, rec.TwinResponse, rec.NeedsApproval,
	)
	if err != nil {
		return fmt.Errorf("failed to append conversation: %w", err)
	}
	return nil
}

// ListConversations returns the most recent audit records, newest first.
func (s *Store) ListConversations(persona string, limit int) ([]ConversationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, ts, requester, summary, twin_response, needs_approval
		 FROM conversations WHERE persona = ? ORDER BY id DESC LIMIT ?`,
		persona, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		var rec ConversationRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Requester, &rec.Summary, &rec.TwinResponse, &rec.NeedsApproval); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AppendCorrection appends a correction with processed=false and returns
// its row ID.
func (s *Store) AppendCorrection(persona string, rec CorrectionRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO corrections (persona, ts, original_response, correct_response, context, processed)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		persona, rec.Timestamp, rec.OriginalResponse, rec.CorrectResponse, rec.Context,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append correction: %w", err)
	}
	return res.LastInsertId()
}

// MarkCorrectionProcessed flips the processed flag once a learning pass
// has consumed the correction.
func (s *Store) MarkCorrectionProcessed(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE corrections SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark correction processed: %w", err)
	}
	return nil
}

// UnprocessedCorrections returns corrections no learning pass has consumed,
// oldest first.
func (s *Store) UnprocessedCorrections(persona string, limit int) ([]CorrectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, ts, original_response, correct_response, context, processed
		 FROM corrections WHERE persona = ? AND processed = 0 ORDER BY id ASC LIMIT ?`,
		persona, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list corrections: %w", err)
	}
	defer rows.Close()

	var records []CorrectionRecord
	for rows.Next() {
		var rec CorrectionRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.OriginalResponse, &rec.CorrectResponse, &rec.Context, &rec.Processed); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PostInbox files a work item for the owner and returns its row ID.
func (s *Store) PostInbox(persona, title, details, provenance string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO inbox_items (persona, title, details, provenance, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		persona, title, details, provenance, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to post inbox item: %w", err)
	}
	return res.LastInsertId()
}

// ListInbox returns the newest inbox items first.
func (s *Store) ListInbox(persona string, limit int) ([]InboxItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, title, details, provenance, created_at
		 FROM inbox_items WHERE persona = ? ORDER BY id DESC LIMIT ?`,
		persona, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}
	defer rows.Close()

	var items []InboxItem
	for rows.Next() {
		var item InboxItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Details, &item.Provenance, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
