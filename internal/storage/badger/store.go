// Package badger implements core.Store on an embedded badger key-value store.
//
// Key layout:
//
//	tenant:ext:{external_id}            -> tenant id
//	tenant:id:{id}                      -> tenantRecord
//	user:ext:{tenant}:{external_id}     -> user id
//	user:email:{tenant}:{email}         -> user id
//	user:id:{id}                        -> userRecord
//	room:name:{name}                    -> room id
//	room:uuid:{uuid}                    -> room id
//	room:id:{id}                        -> roomRecord
//	member:{room}:{user}                -> joined at
//	msg:{room}:{unix_nano_padded}:{uuid} -> messageRecord
//
// Ids are zero padded to 19 digits so that prefix scans sort numerically.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	seqBandwidth = 100
	maxRetries   = 16
)

var _ core.Store = (*Store)(nil)

type Store struct {
	db      *badger.DB
	tenants *badger.Sequence
	users   *badger.Sequence
	rooms   *badger.Sequence
	msgs    *badger.Sequence
}

// Open opens (or creates) the badger directory at path.
func Open(path string) (*Store, error) {
	return open(badger.DefaultOptions(path))
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts.WithLogger(zerologAdapter{}))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s := &Store{db: db}
	for key, dst := range map[string]**badger.Sequence{
		"seq:tenant": &s.tenants,
		"seq:user":   &s.users,
		"seq:room":   &s.rooms,
		"seq:msg":    &s.msgs,
	} {
		seq, err := db.GetSequence([]byte(key), seqBandwidth)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open sequence %s: %w", key, err)
		}
		*dst = seq
	}
	log.Info().Str("module", "storage.badger").Str("dir", opts.Dir).Bool("in_memory", opts.InMemory).Msg("store opened")
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var errs []error
	for _, seq := range []*badger.Sequence{s.tenants, s.users, s.rooms, s.msgs} {
		if seq != nil {
			errs = append(errs, seq.Release())
		}
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

type tenantRecord struct {
	UUID       uuid.UUID `msgpack:"uuid"`
	ExternalID string    `msgpack:"ext"`
	Name       string    `msgpack:"name"`
	CreatedAt  int64     `msgpack:"created"`
}

type userRecord struct {
	UUID       uuid.UUID `msgpack:"uuid"`
	TenantID   int64     `msgpack:"tenant"`
	ExternalID string    `msgpack:"ext"`
	FirstName  string    `msgpack:"first"`
	LastName   string    `msgpack:"last"`
	Email      string    `msgpack:"email"`
	IsExpert   bool      `msgpack:"expert"`
	CreatedAt  int64     `msgpack:"created"`
}

type roomRecord struct {
	UUID          uuid.UUID `msgpack:"uuid"`
	Name          string    `msgpack:"name"`
	IsCourseGroup bool      `msgpack:"course"`
	CreatedAt     int64     `msgpack:"created"`
	ModifiedAt    int64     `msgpack:"modified"`
}

type messageRecord struct {
	ID        int64     `msgpack:"id"`
	UUID      uuid.UUID `msgpack:"uuid"`
	UserID    int64     `msgpack:"user"`
	Body      string    `msgpack:"body"`
	CreatedAt int64     `msgpack:"created"`
}

func idKey(prefix string, id int64) []byte { return fmt.Appendf(nil, "%s:id:%019d", prefix, id) }

func encodeID(id int64) []byte { return binary.BigEndian.AppendUint64(nil, uint64(id)) }

func decodeID(b []byte) int64 { return int64(binary.BigEndian.Uint64(b)) }

func persistErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

// update runs fn in a read-write transaction, retrying optimistic conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for range maxRetries {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		log.Debug().Str("module", "storage.badger").Msg("txn conflict, retrying")
	}
	return badger.ErrConflict
}

func (s *Store) nextID(seq *badger.Sequence) (int64, error) {
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// ids start at 1; 0 is reserved for the anonymous identity
	return int64(n) + 1, nil
}

func getID(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	var id int64
	err = item.Value(func(v []byte) error {
		id = decodeID(v)
		return nil
	})
	return id, err
}

func getRecord(txn *badger.Txn, key []byte, dst any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(v []byte) error { return msgpack.Unmarshal(v, dst) })
}

func setRecord(txn *badger.Txn, key []byte, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

func toTenant(id int64, r tenantRecord) domain.Tenant {
	return domain.Tenant{
		ID:         domain.TenantID(id),
		UUID:       r.UUID,
		ExternalID: r.ExternalID,
		Name:       r.Name,
		CreatedAt:  time.Unix(0, r.CreatedAt).UTC(),
	}
}

func loadTenant(txn *badger.Txn, id int64) (domain.Tenant, error) {
	var rec tenantRecord
	if err := getRecord(txn, idKey("tenant", id), &rec); err != nil {
		return domain.Tenant{}, err
	}
	return toTenant(id, rec), nil
}

func (s *Store) GetOrCreateTenant(ctx context.Context, ref domain.TenantRef) (domain.Tenant, error) {
	extKey := []byte("tenant:ext:" + ref.ExternalID)
	var out domain.Tenant
	err := s.update(ctx, func(txn *badger.Txn) error {
		id, err := getID(txn, extKey)
		if err == nil {
			out, err = loadTenant(txn, id)
			return err
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if id, err = s.nextID(s.tenants); err != nil {
			return err
		}
		rec := tenantRecord{UUID: uuid.New(), ExternalID: ref.ExternalID, Name: ref.Name, CreatedAt: time.Now().UTC().UnixNano()}
		if err := txn.Set(extKey, encodeID(id)); err != nil {
			return err
		}
		if err := setRecord(txn, idKey("tenant", id), rec); err != nil {
			return err
		}
		out = toTenant(id, rec)
		return nil
	})
	if err != nil {
		return domain.Tenant{}, persistErr("get or create tenant", err)
	}
	return out, nil
}

func loadUser(txn *badger.Txn, id int64) (domain.User, error) {
	var rec userRecord
	if err := getRecord(txn, idKey("user", id), &rec); err != nil {
		return domain.User{}, err
	}
	tenant, err := loadTenant(txn, rec.TenantID)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:         domain.UserID(id),
		UUID:       rec.UUID,
		Tenant:     tenant,
		ExternalID: rec.ExternalID,
		FirstName:  rec.FirstName,
		LastName:   rec.LastName,
		Email:      rec.Email,
		IsExpert:   rec.IsExpert,
		CreatedAt:  time.Unix(0, rec.CreatedAt).UTC(),
	}, nil
}

func (s *Store) GetOrCreateUser(ctx context.Context, tenant domain.Tenant, p domain.UserProfile) (domain.User, error) {
	extKey := fmt.Appendf(nil, "user:ext:%019d:%s", tenant.ID, p.ExternalID)
	emailKey := fmt.Appendf(nil, "user:email:%019d:%s", tenant.ID, p.Email)
	var out domain.User
	err := s.update(ctx, func(txn *badger.Txn) error {
		id, err := getID(txn, extKey)
		if err == nil {
			out, err = loadUser(txn, id)
			return err
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if _, err := getID(txn, emailKey); err == nil {
			return domain.ErrConflict
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if id, err = s.nextID(s.users); err != nil {
			return err
		}
		rec := userRecord{
			UUID:       uuid.New(),
			TenantID:   int64(tenant.ID),
			ExternalID: p.ExternalID,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			Email:      p.Email,
			CreatedAt:  time.Now().UTC().UnixNano(),
		}
		for _, k := range [][]byte{extKey, emailKey} {
			if err := txn.Set(k, encodeID(id)); err != nil {
				return err
			}
		}
		if err := setRecord(txn, idKey("user", id), rec); err != nil {
			return err
		}
		out, err = loadUser(txn, id)
		return err
	})
	if err != nil {
		return domain.User{}, persistErr("get or create user", err)
	}
	return out, nil
}

func toRoom(id int64, r roomRecord) domain.Room {
	return domain.Room{
		ID:            domain.RoomID(id),
		UUID:          r.UUID,
		Name:          domain.RoomName(r.Name),
		IsCourseGroup: r.IsCourseGroup,
		CreatedAt:     time.Unix(0, r.CreatedAt).UTC(),
		ModifiedAt:    time.Unix(0, r.ModifiedAt).UTC(),
	}
}

func loadRoom(txn *badger.Txn, id int64) (domain.Room, error) {
	var rec roomRecord
	if err := getRecord(txn, idKey("room", id), &rec); err != nil {
		return domain.Room{}, err
	}
	return toRoom(id, rec), nil
}

func (s *Store) RoomByUUID(_ context.Context, id uuid.UUID) (domain.Room, error) {
	var out domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		rid, err := getID(txn, []byte("room:uuid:"+id.String()))
		if err != nil {
			return err
		}
		out, err = loadRoom(txn, rid)
		return err
	})
	if err != nil {
		return domain.Room{}, persistErr("room by uuid", err)
	}
	return out, nil
}

func (s *Store) FindRoomByName(_ context.Context, names ...domain.RoomName) (domain.Room, error) {
	var (
		out   domain.Room
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, n := range names {
			rid, err := getID(txn, []byte("room:name:"+string(n)))
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if found && domain.RoomID(rid) >= out.ID {
				continue
			}
			if out, err = loadRoom(txn, rid); err != nil {
				return err
			}
			found = true
		}
		if !found {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return domain.Room{}, persistErr("find room by name", err)
	}
	return out, nil
}

func memberKey(room domain.RoomID, user domain.UserID) []byte {
	return fmt.Appendf(nil, "member:%019d:%019d", room, user)
}

func addMembers(txn *badger.Txn, room domain.RoomID, users []domain.UserID) error {
	now := encodeID(time.Now().UTC().UnixNano())
	for _, u := range users {
		k := memberKey(room, u)
		if _, err := txn.Get(k); err == nil {
			continue
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(k, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateRoom(ctx context.Context, spec domain.RoomSpec) (domain.Room, error) {
	nameKey := []byte("room:name:" + string(spec.Name))
	var out domain.Room
	err := s.update(ctx, func(txn *badger.Txn) error {
		id, err := getID(txn, nameKey)
		switch {
		case err == nil:
			if out, err = loadRoom(txn, id); err != nil {
				return err
			}
		case errors.Is(err, domain.ErrNotFound):
			if id, err = s.nextID(s.rooms); err != nil {
				return err
			}
			now := time.Now().UTC().UnixNano()
			rec := roomRecord{UUID: uuid.New(), Name: string(spec.Name), IsCourseGroup: spec.IsCourseGroup, CreatedAt: now, ModifiedAt: now}
			if err := txn.Set(nameKey, encodeID(id)); err != nil {
				return err
			}
			if err := txn.Set([]byte("room:uuid:"+rec.UUID.String()), encodeID(id)); err != nil {
				return err
			}
			if err := setRecord(txn, idKey("room", id), rec); err != nil {
				return err
			}
			out = toRoom(id, rec)
		default:
			return err
		}
		return addMembers(txn, out.ID, spec.Members)
	})
	if err != nil {
		return domain.Room{}, persistErr("create room", err)
	}
	return out, nil
}

func (s *Store) AddRoomMembers(ctx context.Context, room domain.RoomID, users ...domain.UserID) error {
	if len(users) == 0 {
		return nil
	}
	err := s.update(ctx, func(txn *badger.Txn) error { return addMembers(txn, room, users) })
	if err != nil {
		return persistErr("add room members", err)
	}
	return nil
}

func (s *Store) IsRoomMember(_ context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	var ok bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(room, user))
		switch {
		case err == nil:
			ok = true
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return false, persistErr("is room member", err)
	}
	return ok, nil
}
