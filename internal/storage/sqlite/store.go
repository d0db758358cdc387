// Package sqlite is the default durable implementation of core.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/domain"
	"github.com/dkeye/chat/internal/storage/sqlite/migrations"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

var _ core.Store = (*Store)(nil)

// Store provides SQLite-backed chat persistence.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := path +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Str("module", "storage.sqlite").Str("path", path).Msg("store opened")
	return &Store{db: db}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nowNano() int64 { return time.Now().UTC().UnixNano() }

func fromNano(v int64) time.Time { return time.Unix(0, v).UTC() }

// persistErr tags err with domain.ErrPersistence unless it is already a lookup miss or a conflict.
func persistErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) GetOrCreateTenant(ctx context.Context, ref domain.TenantRef) (domain.Tenant, error) {
	var t domain.Tenant
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO tenants (uuid, external_id, name, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (external_id) DO NOTHING`,
			uuid.NewString(), ref.ExternalID, ref.Name, nowNano(),
		); err != nil {
			return err
		}
		var err error
		t, err = scanTenant(tx.QueryRowContext(ctx,
			`SELECT id, uuid, external_id, name, created_at FROM tenants WHERE external_id = ?`, ref.ExternalID))
		return err
	})
	if err != nil {
		return domain.Tenant{}, persistErr("get or create tenant", err)
	}
	return t, nil
}

func scanTenant(row *sql.Row) (domain.Tenant, error) {
	var (
		t       domain.Tenant
		id      string
		created int64
	)
	if err := row.Scan(&t.ID, &id, &t.ExternalID, &t.Name, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tenant{}, domain.ErrNotFound
		}
		return domain.Tenant{}, err
	}
	t.UUID = uuid.MustParse(id)
	t.CreatedAt = fromNano(created)
	return t, nil
}

const selectUser = `
SELECT u.id, u.uuid, u.external_id, u.first_name, u.last_name, u.email, u.is_expert, u.created_at,
       t.id, t.uuid, t.external_id, t.name, t.created_at
FROM users u JOIN tenants t ON t.id = u.tenant_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner, extra ...any) (domain.User, error) {
	var (
		u                  domain.User
		uid, tid           string
		uCreated, tCreated int64
	)
	dest := append([]any{
		&u.ID, &uid, &u.ExternalID, &u.FirstName, &u.LastName, &u.Email, &u.IsExpert, &uCreated,
		&u.Tenant.ID, &tid, &u.Tenant.ExternalID, &u.Tenant.Name, &tCreated,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	u.UUID = uuid.MustParse(uid)
	u.CreatedAt = fromNano(uCreated)
	u.Tenant.UUID = uuid.MustParse(tid)
	u.Tenant.CreatedAt = fromNano(tCreated)
	return u, nil
}

func (s *Store) GetOrCreateUser(ctx context.Context, tenant domain.Tenant, p domain.UserProfile) (domain.User, error) {
	var u domain.User
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO users (uuid, tenant_id, external_id, first_name, last_name, email, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`,
			uuid.NewString(), tenant.ID, p.ExternalID, p.FirstName, p.LastName, p.Email, nowNano(),
		); err != nil {
			return err
		}
		var err error
		u, err = scanUser(tx.QueryRowContext(ctx,
			selectUser+` WHERE u.tenant_id = ? AND u.external_id = ?`, tenant.ID, p.ExternalID))
		if errors.Is(err, domain.ErrNotFound) {
			// the insert was skipped on the (tenant, email) key
			return domain.ErrConflict
		}
		return err
	})
	if err != nil {
		return domain.User{}, persistErr("get or create user", err)
	}
	return u, nil
}

const selectRoom = `SELECT id, uuid, name, is_course_group, created_at, modified_at FROM rooms`

func scanRoom(row scanner) (domain.Room, error) {
	var (
		r                 domain.Room
		id                string
		created, modified int64
	)
	if err := row.Scan(&r.ID, &id, &r.Name, &r.IsCourseGroup, &created, &modified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Room{}, domain.ErrNotFound
		}
		return domain.Room{}, err
	}
	r.UUID = uuid.MustParse(id)
	r.CreatedAt = fromNano(created)
	r.ModifiedAt = fromNano(modified)
	return r, nil
}

func (s *Store) RoomByUUID(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	r, err := scanRoom(s.db.QueryRowContext(ctx, selectRoom+` WHERE uuid = ?`, id.String()))
	if err != nil {
		return domain.Room{}, persistErr("room by uuid", err)
	}
	return r, nil
}

func (s *Store) FindRoomByName(ctx context.Context, names ...domain.RoomName) (domain.Room, error) {
	if len(names) == 0 {
		return domain.Room{}, fmt.Errorf("find room by name: %w", domain.ErrNotFound)
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = string(n)
	}
	q := selectRoom + ` WHERE name IN (?` + strings.Repeat(",?", len(names)-1) + `) ORDER BY id LIMIT 1`
	r, err := scanRoom(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		return domain.Room{}, persistErr("find room by name", err)
	}
	return r, nil
}

func (s *Store) CreateRoom(ctx context.Context, spec domain.RoomSpec) (domain.Room, error) {
	var r domain.Room
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := nowNano()
		if _, err := tx.ExecContext(ctx, `
INSERT INTO rooms (uuid, name, is_course_group, created_at, modified_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (name) DO NOTHING`,
			uuid.NewString(), string(spec.Name), spec.IsCourseGroup, now, now,
		); err != nil {
			return err
		}
		var err error
		if r, err = scanRoom(tx.QueryRowContext(ctx, selectRoom+` WHERE name = ?`, string(spec.Name))); err != nil {
			return err
		}
		return addMembers(ctx, tx, r.ID, spec.Members)
	})
	if err != nil {
		return domain.Room{}, persistErr("create room", err)
	}
	return r, nil
}

func addMembers(ctx context.Context, tx *sql.Tx, room domain.RoomID, users []domain.UserID) error {
	now := nowNano()
	for _, u := range users {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO room_members (room_id, user_id, joined_at) VALUES (?, ?, ?)
ON CONFLICT (room_id, user_id) DO NOTHING`, room, u, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AddRoomMembers(ctx context.Context, room domain.RoomID, users ...domain.UserID) error {
	if len(users) == 0 {
		return nil
	}
	if err := s.inTx(ctx, func(tx *sql.Tx) error { return addMembers(ctx, tx, room, users) }); err != nil {
		return persistErr("add room members", err)
	}
	return nil
}

func (s *Store) IsRoomMember(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?`, room, user).Scan(&found)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, persistErr("is room member", err)
	}
	return true, nil
}

func (s *Store) CreateMessage(ctx context.Context, room domain.Room, author domain.User, body string) (domain.Message, error) {
	m := domain.Message{
		UUID:      uuid.New(),
		RoomID:    room.ID,
		Author:    author,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO messages (uuid, room_id, user_id, content, created_at)
VALUES (?, ?, ?, ?, ?)`,
		m.UUID.String(), room.ID, author.ID, body, m.CreatedAt.UnixNano(),
	)
	if err != nil {
		return domain.Message{}, persistErr("create message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Message{}, persistErr("create message", err)
	}
	m.ID = domain.MessageID(id)
	return m, nil
}

func (s *Store) RecentMessages(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT u.id, u.uuid, u.external_id, u.first_name, u.last_name, u.email, u.is_expert, u.created_at,
       t.id, t.uuid, t.external_id, t.name, t.created_at,
       m.id, m.uuid, m.content, m.created_at
FROM messages m
JOIN users u ON u.id = m.user_id
JOIN tenants t ON t.id = u.tenant_id
WHERE m.room_id = ?
ORDER BY m.created_at DESC, m.id DESC
LIMIT ?`, room, limit)
	if err != nil {
		return nil, persistErr("recent messages", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m       domain.Message
			mid     string
			created int64
		)
		author, err := scanUser(rows, &m.ID, &mid, &m.Body, &created)
		if err != nil {
			return nil, persistErr("recent messages", err)
		}
		m.Author = author
		m.RoomID = room
		m.UUID = uuid.MustParse(mid)
		m.CreatedAt = fromNano(created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("recent messages", err)
	}
	slices.Reverse(out)
	return out, nil
}
