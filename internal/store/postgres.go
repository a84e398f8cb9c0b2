package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// Postgres implements Store on database/sql with the pgx driver.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// mapErr folds driver errors into the package sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return ErrNotFound
		case pgUniqueViolation:
			return ErrDuplicate
		}
	}
	return err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- Directory ----

func (p *Postgres) UserName(ctx context.Context, userID int64) (string, error) {
	var name string
	err := p.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = $1`, userID).Scan(&name)
	return name, mapErr(err)
}

func (p *Postgres) ActivityTitle(ctx context.Context, activityID int64) (string, error) {
	var title string
	err := p.db.QueryRowContext(ctx, `SELECT title FROM activities WHERE id = $1`, activityID).Scan(&title)
	return title, mapErr(err)
}

func (p *Postgres) ActivityCreator(ctx context.Context, activityID int64) (int64, error) {
	var creator sql.NullInt64
	err := p.db.QueryRowContext(ctx, `SELECT creator_id FROM activities WHERE id = $1`, activityID).Scan(&creator)
	return creator.Int64, mapErr(err)
}

// ---- Matches ----

const matchColumns = `id, user1_id, user2_id, status, created_at, last_message_at, compatibility_score`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*Match, error) {
	m := &Match{}
	var last sql.NullTime
	var score sql.NullFloat64
	if err := row.Scan(&m.ID, &m.User1ID, &m.User2ID, &m.Status, &m.CreatedAt, &last, &score); err != nil {
		return nil, err
	}
	if last.Valid {
		m.LastMessageAt = &last.Time
	}
	if score.Valid {
		m.CompatibilityScore = &score.Float64
	}
	return m, nil
}

func (p *Postgres) CreateMatch(ctx context.Context, user1, user2 int64, score *float64) (*Match, bool, error) {
	var created bool
	var match *Match
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		var s sql.NullFloat64
		if score != nil {
			s = sql.NullFloat64{Float64: *score, Valid: true}
		}
		row := tx.QueryRowContext(ctx, `
			INSERT INTO matches (user1_id, user2_id, compatibility_score)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
			RETURNING `+matchColumns, user1, user2, s)
		m, err := scanMatch(row)
		if err == nil {
			match, created = m, true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		lo, hi := orderedPair(user1, user2)
		m, err = scanMatch(tx.QueryRowContext(ctx, `
			SELECT `+matchColumns+` FROM matches
			WHERE LEAST(user1_id, user2_id) = $1 AND GREATEST(user1_id, user2_id) = $2`, lo, hi))
		if err != nil {
			return err
		}
		match = m
		return nil
	})
	if err != nil {
		return nil, false, mapErr(err)
	}
	return match, created, nil
}

func (p *Postgres) GetMatch(ctx context.Context, matchID int64) (*Match, error) {
	m, err := scanMatch(p.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, matchID))
	return m, mapErr(err)
}

func (p *Postgres) ListActiveMatches(ctx context.Context, userID int64) ([]*Match, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE status = 'ACTIVE' AND (user1_id = $1 OR user2_id = $1)
		ORDER BY COALESCE(last_message_at, created_at) DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) SetMatchStatus(ctx context.Context, matchID int64, status MatchStatus) error {
	res, err := p.db.ExecContext(ctx, `UPDATE matches SET status = $2 WHERE id = $1`, matchID, status)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (p *Postgres) AppendDirectMessage(ctx context.Context, msg *DirectMessage) error {
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		// The row lock serialises senders of one match so timestamps stay
		// strictly increasing.
		var last sql.NullTime
		if err := tx.QueryRowContext(ctx,
			`SELECT last_message_at FROM matches WHERE id = $1 FOR UPDATE`, msg.MatchID).Scan(&last); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO direct_messages (match_id, sender_id, content, media_url, media_type, sent_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''),
				GREATEST(clock_timestamp(), COALESCE($6::timestamptz + interval '1 microsecond', clock_timestamp())))
			RETURNING id, sent_at`,
			msg.MatchID, msg.SenderID, msg.Content, msg.MediaURL, msg.MediaType, last,
		).Scan(&msg.ID, &msg.Timestamp)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE matches SET last_message_at = $2 WHERE id = $1`, msg.MatchID, msg.Timestamp)
		return err
	})
	if err != nil {
		return mapErr(err)
	}
	msg.IsRead = false
	msg.ReadAt = nil
	return nil
}

func (p *Postgres) ListDirectMessages(ctx context.Context, matchID int64) ([]*DirectMessage, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, match_id, sender_id, content, COALESCE(media_url, ''), COALESCE(media_type, ''),
			sent_at, is_read, read_at
		FROM direct_messages
		WHERE match_id = $1
		ORDER BY sent_at ASC, id ASC`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DirectMessage
	for rows.Next() {
		m := &DirectMessage{}
		var readAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.MatchID, &m.SenderID, &m.Content, &m.MediaURL, &m.MediaType,
			&m.Timestamp, &m.IsRead, &readAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			m.ReadAt = &readAt.Time
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkDirectMessagesRead(ctx context.Context, matchID, readerID int64, at time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE direct_messages SET is_read = true, read_at = $3
		WHERE match_id = $1 AND sender_id <> $2 AND is_read = false`, matchID, readerID, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *Postgres) CountUnread(ctx context.Context, matchID, userID int64) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT count(*) FROM direct_messages
		WHERE match_id = $1 AND sender_id <> $2 AND is_read = false`, matchID, userID).Scan(&n)
	return n, err
}

// ---- Rooms ----

func (p *Postgres) CreateRoom(ctx context.Context, activityID, ownerID int64, announcement string) (*Room, error) {
	room := &Room{ActivityID: activityID}
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO rooms (activity_id) VALUES ($1) RETURNING id, created_at`, activityID,
		).Scan(&room.ID, &room.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memberships (room_id, user_id, role) VALUES ($1, $2, 'OWNER')`, room.ID, ownerID); err != nil {
			return err
		}
		return insertSystemMessage(ctx, tx, room.ID, announcement)
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return room, nil
}

func insertSystemMessage(ctx context.Context, tx *sql.Tx, roomID int64, content string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO group_messages (room_id, sender_id, content, system_message) VALUES ($1, NULL, $2, true)`,
		roomID, content)
	return err
}

func (p *Postgres) GetRoom(ctx context.Context, roomID int64) (*Room, error) {
	r := &Room{}
	err := p.db.QueryRowContext(ctx,
		`SELECT id, activity_id, created_at FROM rooms WHERE id = $1`, roomID).Scan(&r.ID, &r.ActivityID, &r.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

func (p *Postgres) GetRoomByActivity(ctx context.Context, activityID int64) (*Room, error) {
	r := &Room{}
	err := p.db.QueryRowContext(ctx,
		`SELECT id, activity_id, created_at FROM rooms WHERE activity_id = $1`, activityID).Scan(&r.ID, &r.ActivityID, &r.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

// DeleteRoomByActivity relies on ON DELETE CASCADE for memberships and messages.
func (p *Postgres) DeleteRoomByActivity(ctx context.Context, activityID int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM rooms WHERE activity_id = $1`, activityID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (p *Postgres) AddMember(ctx context.Context, roomID, userID int64, announcement string) (bool, error) {
	var added bool
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO memberships (room_id, user_id, role) VALUES ($1, $2, 'MEMBER')
			ON CONFLICT (room_id, user_id) DO NOTHING
			RETURNING id`, roomID, userID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		added = true
		return insertSystemMessage(ctx, tx, roomID, announcement)
	})
	if err != nil {
		return false, mapErr(err)
	}
	return added, nil
}

func (p *Postgres) RemoveMember(ctx context.Context, roomID, userID int64, announcement string) error {
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE room_id = $1 AND user_id = $2`, roomID, userID)
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}
		return insertSystemMessage(ctx, tx, roomID, announcement)
	})
	return mapErr(err)
}

const membershipColumns = `id, room_id, user_id, role, joined_at`

func scanMembership(row rowScanner) (*Membership, error) {
	m := &Membership{}
	if err := row.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Postgres) GetMembership(ctx context.Context, roomID, userID int64) (*Membership, error) {
	m, err := scanMembership(p.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE room_id = $1 AND user_id = $2`, roomID, userID))
	return m, mapErr(err)
}

func (p *Postgres) listMemberships(ctx context.Context, query string, arg int64) ([]*Membership, error) {
	rows, err := p.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) ListMembers(ctx context.Context, roomID int64) ([]*Membership, error) {
	return p.listMemberships(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE room_id = $1 ORDER BY id`, roomID)
}

func (p *Postgres) ListMembershipsForUser(ctx context.Context, userID int64) ([]*Membership, error) {
	return p.listMemberships(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 ORDER BY room_id DESC`, userID)
}

func (p *Postgres) AppendGroupMessage(ctx context.Context, msg *GroupMessage) error {
	var sender sql.NullInt64
	if msg.SenderID != nil {
		sender = sql.NullInt64{Int64: *msg.SenderID, Valid: true}
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO group_messages (room_id, sender_id, content, system_message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, sent_at`, msg.RoomID, sender, msg.Content, msg.SystemMessage,
	).Scan(&msg.ID, &msg.Timestamp)
	return mapErr(err)
}

func (p *Postgres) ListGroupMessages(ctx context.Context, roomID int64) ([]*GroupMessage, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, content, system_message, sent_at
		FROM group_messages
		WHERE room_id = $1
		ORDER BY sent_at ASC, id ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*GroupMessage
	for rows.Next() {
		m := &GroupMessage{}
		var sender sql.NullInt64
		if err := rows.Scan(&m.ID, &m.RoomID, &sender, &m.Content, &m.SystemMessage, &m.Timestamp); err != nil {
			return nil, err
		}
		if sender.Valid {
			id := sender.Int64
			m.SenderID = &id
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---- Notifications ----

const notificationColumns = `id, user_id, type, title, message, COALESCE(related_id, 0), COALESCE(related_type, ''), is_read, created_at`

func scanNotification(row rowScanner) (*Notification, error) {
	n := &Notification{}
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.RelatedID, &n.RelatedType,
		&n.IsRead, &n.CreatedAt); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Postgres) CreateNotification(ctx context.Context, n *Notification) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, type, title, message, related_id, related_type)
		VALUES ($1, $2, $3, $4, NULLIF($5::bigint, 0), NULLIF($6, ''))
		RETURNING id, created_at`,
		n.UserID, n.Type, n.Title, n.Message, n.RelatedID, n.RelatedType,
	).Scan(&n.ID, &n.CreatedAt)
	return mapErr(err)
}

func (p *Postgres) GetNotification(ctx context.Context, id int64) (*Notification, error) {
	n, err := scanNotification(p.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	return n, mapErr(err)
}

func (p *Postgres) ListNotifications(ctx context.Context, userID int64, unreadOnly bool) ([]*Notification, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR is_read = false)
		ORDER BY created_at DESC, id DESC`, userID, unreadOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *Postgres) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND is_read = false`, userID).Scan(&n)
	return n, err
}

func (p *Postgres) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE notifications SET is_read = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (p *Postgres) MarkAllNotificationsRead(ctx context.Context, userID int64) (int, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = true WHERE user_id = $1 AND is_read = false`, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *Postgres) DeleteNotification(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (p *Postgres) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ Store = (*Postgres)(nil)
