package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sessionColumns = `id, user_id, token_jti, refresh_token_jti, expires_at, refresh_expires_at,
	is_revoked, created_at, updated_at FROM sessions`

// SessionLedger records which issued tokens are still usable.
//
// A session row holds the jti of the current access token and of the
// paired refresh token. The access token is live only while its row is
// unrevoked and unexpired.
type SessionLedger struct {
	db dbtx
}

// Open inserts a new session. A user may hold any number of sessions.
func (l *SessionLedger) Open(ctx context.Context, userID, accessJTI, refreshJTI string, expiresAt, refreshExpiresAt time.Time) (*Session, error) {
	now := formatTime(time.Now())
	s := &Session{
		ID:               "ses-" + uuid.NewString(),
		UserID:           userID,
		TokenJTI:         accessJTI,
		RefreshTokenJTI:  refreshJTI,
		ExpiresAt:        parseTime(formatTime(expiresAt)),
		RefreshExpiresAt: parseTime(formatTime(refreshExpiresAt)),
		CreatedAt:        parseTime(now),
		UpdatedAt:        parseTime(now),
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, token_jti, refresh_token_jti, expires_at, refresh_expires_at,
		                       is_revoked, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		s.ID, s.UserID, s.TokenJTI, nullString(s.RefreshTokenJTI),
		formatTime(expiresAt), formatTime(refreshExpiresAt), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict.withCause(err)
		}
		return nil, fmt.Errorf("opening session: %w", err)
	}
	return s, nil
}

// Rotate moves the unrevoked session holding (userID, oldRefreshJTI) onto
// a new access/refresh pair in a single conditional UPDATE. Of two
// concurrent rotations with the same refresh token only one matches the
// row; the other gets ErrSessionNotFound, as does any later replay.
func (l *SessionLedger) Rotate(ctx context.Context, userID, oldRefreshJTI, newAccessJTI, newRefreshJTI string, newExpiresAt time.Time) (*Session, error) {
	result, err := l.db.ExecContext(ctx,
		`UPDATE sessions
		 SET token_jti = ?, refresh_token_jti = ?, expires_at = ?, updated_at = ?
		 WHERE user_id = ? AND refresh_token_jti = ? AND is_revoked = 0`,
		newAccessJTI, newRefreshJTI, formatTime(newExpiresAt), formatTime(time.Now()),
		userID, oldRefreshJTI,
	)
	if err != nil {
		return nil, fmt.Errorf("rotating session: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return nil, ErrSessionNotFound
	}

	return l.FindByAccessJTI(ctx, newAccessJTI)
}

// RevokeByAccessJTI revokes the session holding jti. Unknown or already
// revoked sessions are a no-op.
func (l *SessionLedger) RevokeByAccessJTI(ctx context.Context, jti string) (bool, error) {
	result, err := l.db.ExecContext(ctx,
		`UPDATE sessions SET is_revoked = 1, updated_at = ? WHERE token_jti = ? AND is_revoked = 0`,
		formatTime(time.Now()), jti,
	)
	if err != nil {
		return false, fmt.Errorf("revoking session: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return rows > 0, nil
}

// RevokeAllForUser revokes every unrevoked session of a user and returns
// how many were revoked.
func (l *SessionLedger) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		`UPDATE sessions SET is_revoked = 1, updated_at = ? WHERE user_id = ? AND is_revoked = 0`,
		formatTime(time.Now()), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("revoking sessions for user: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return rows, nil
}

// FindByAccessJTI returns the session holding jti in any state.
func (l *SessionLedger) FindByAccessJTI(ctx context.Context, jti string) (*Session, error) {
	return scanSessionFrom(l.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" WHERE token_jti = ?", jti))
}

// FindLive returns the session holding jti only if it is unrevoked and
// unexpired at now.
func (l *SessionLedger) FindLive(ctx context.Context, jti string, now time.Time) (*Session, error) {
	return scanSessionFrom(l.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" WHERE token_jti = ? AND is_revoked = 0 AND expires_at > ?",
		jti, formatTime(now),
	))
}

// ListLiveByUser returns a user's live sessions, newest first.
func (l *SessionLedger) ListLiveByUser(ctx context.Context, userID string, now time.Time) ([]Session, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+sessionColumns+` WHERE user_id = ? AND is_revoked = 0 AND expires_at > ?
		 ORDER BY created_at DESC, id ASC`,
		userID, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSessionFrom(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// CountLive returns the number of live sessions across all users.
func (l *SessionLedger) CountLive(ctx context.Context, now time.Time) (int, error) {
	var count int
	if err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE is_revoked = 0 AND expires_at > ?", formatTime(now),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return count, nil
}

// DeleteExpired removes sessions whose refresh window closed before now.
// Rows still inside their refresh window stay, revoked or not.
func (l *SessionLedger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE refresh_expires_at <= ?", formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

func scanSessionFrom(s scanner) (*Session, error) {
	var sess Session
	var refreshJTI sql.NullString
	var revoked int
	var expiresAt, refreshExpiresAt, createdAt, updatedAt string

	err := s.Scan(&sess.ID, &sess.UserID, &sess.TokenJTI, &refreshJTI, &expiresAt,
		&refreshExpiresAt, &revoked, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	sess.RefreshTokenJTI = refreshJTI.String
	sess.IsRevoked = revoked != 0
	sess.ExpiresAt = parseTime(expiresAt)
	sess.RefreshExpiresAt = parseTime(refreshExpiresAt)
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)

	return &sess, nil
}
