package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/chat/internal/domain"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

func messagePrefix(room domain.RoomID) []byte { return fmt.Appendf(nil, "msg:%019d:", room) }

// CreateMessage stores the message under "msg:{room}:{timestamp_padded}:{uuid}"
// so that a prefix scan yields creation order and equal timestamps never collide.
func (s *Store) CreateMessage(ctx context.Context, room domain.Room, author domain.User, body string) (domain.Message, error) {
	id, err := s.nextID(s.msgs)
	if err != nil {
		return domain.Message{}, persistErr("create message", err)
	}
	m := domain.Message{
		ID:        domain.MessageID(id),
		UUID:      uuid.New(),
		RoomID:    room.ID,
		Author:    author,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	rec := messageRecord{ID: id, UUID: m.UUID, UserID: int64(author.ID), Body: body, CreatedAt: m.CreatedAt.UnixNano()}
	key := fmt.Appendf(messagePrefix(room.ID), "%019d:%s", rec.CreatedAt, m.UUID)
	err = s.update(ctx, func(txn *badger.Txn) error { return setRecord(txn, key, rec) })
	if err != nil {
		return domain.Message{}, persistErr("create message", err)
	}
	return m, nil
}

// RecentMessages walks the room prefix backwards from the newest key.
func (s *Store) RecentMessages(_ context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	prefix := messagePrefix(room)
	var out []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		authors := make(map[int64]domain.User)
		for it.Seek(append(slices.Clone(prefix), 0xFF)); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var rec messageRecord
			if err := it.Item().Value(func(v []byte) error { return msgpack.Unmarshal(v, &rec) }); err != nil {
				return err
			}
			author, ok := authors[rec.UserID]
			if !ok {
				var err error
				if author, err = loadUser(txn, rec.UserID); err != nil {
					return err
				}
				authors[rec.UserID] = author
			}
			out = append(out, domain.Message{
				ID:        domain.MessageID(rec.ID),
				UUID:      rec.UUID,
				RoomID:    room,
				Author:    author,
				Body:      rec.Body,
				CreatedAt: time.Unix(0, rec.CreatedAt).UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, persistErr("recent messages", err)
	}
	slices.Reverse(out)
	return out, nil
}
