// Package record captures topic traffic into bag files (sqlite databases)
// and plays them back onto the bus, preserving the original message timing.
package record

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"nros/internal/logging"
	"nros/internal/pubsub"
)

const schema = `
CREATE TABLE IF NOT EXISTS bag_info (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	topic      TEXT NOT NULL,
	message_id TEXT NOT NULL,
	sender     TEXT NOT NULL DEFAULT '',
	payload    BLOB,
	stamp_ns   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_topic ON messages(topic);
CREATE INDEX IF NOT EXISTS idx_messages_stamp ON messages(stamp_ns);
`

// formatVersion is bumped when the bag schema changes.
const formatVersion = "1"

// Bag is an open bag file.
type Bag struct {
	db   *sql.DB
	path string
}

// Create opens (creating if needed) a bag for writing.
func Create(path string) (*Bag, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bag directory: %w", err)
	}
	return open(path)
}

// Open opens an existing bag.
func Open(path string) (*Bag, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open bag %s: %w", path, err)
	}
	return open(path)
}

func open(path string) (*Bag, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open bag %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate bag %s: %w", path, err)
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO bag_info (key, value) VALUES ('format', ?)`,
		formatVersion,
	); err != nil {
		db.Close()
		return nil, err
	}
	return &Bag{db: db, path: path}, nil
}

// Path returns the bag file path.
func (b *Bag) Path() string { return b.path }

// Append stores one message.
func (b *Bag) Append(msg pubsub.Message) error {
	_, err := b.db.Exec(
		`INSERT INTO messages (topic, message_id, sender, payload, stamp_ns) VALUES (?, ?, ?, ?, ?)`,
		msg.Topic, msg.ID, msg.Sender, msg.Payload, msg.At.UnixNano(),
	)
	if err != nil {
		logging.Get(logging.CategoryRecord).Error("append to %s failed: %v", b.path, err)
		return err
	}
	return nil
}

// Summary describes the content of a bag.
type Summary struct {
	Path   string
	Count  int
	Start  time.Time
	End    time.Time
	Topics map[string]int
}

// Summary computes message counts and time span.
func (b *Bag) Summary() (*Summary, error) {
	s := &Summary{Path: b.path, Topics: make(map[string]int)}

	var startNS, endNS sql.NullInt64
	err := b.db.QueryRow(`SELECT COUNT(*), MIN(stamp_ns), MAX(stamp_ns) FROM messages`).
		Scan(&s.Count, &startNS, &endNS)
	if err != nil {
		return nil, err
	}
	if startNS.Valid {
		s.Start = time.Unix(0, startNS.Int64)
		s.End = time.Unix(0, endNS.Int64)
	}

	rows, err := b.db.Query(`SELECT topic, COUNT(*) FROM messages GROUP BY topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var topic string
		var count int
		if err := rows.Scan(&topic, &count); err != nil {
			return nil, err
		}
		s.Topics[topic] = count
	}
	return s, rows.Err()
}

// Messages iterates the bag in capture order, calling fn for each message.
// Iteration stops at the first error fn returns.
func (b *Bag) Messages(fn func(pubsub.Message) error) error {
	rows, err := b.db.Query(
		`SELECT topic, message_id, sender, payload, stamp_ns FROM messages ORDER BY stamp_ns, seq`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var msg pubsub.Message
		var stampNS int64
		if err := rows.Scan(&msg.Topic, &msg.ID, &msg.Sender, &msg.Payload, &stampNS); err != nil {
			return err
		}
		msg.At = time.Unix(0, stampNS)
		if err := fn(msg); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close closes the underlying database.
func (b *Bag) Close() error {
	return b.db.Close()
}
