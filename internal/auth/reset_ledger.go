package auth

import (
	"context"
	"fmt"
	"time"
)

// ResetLedger remembers redeemed password reset tokens so each can be
// used once.
type ResetLedger struct {
	db dbtx
}

// Redeem marks jti as used. A second redemption of the same jti fails with
// ErrInvalidOrExpiredResetToken.
func (l *ResetLedger) Redeem(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO password_reset_redemptions (jti, user_id, expires_at, redeemed_at)
		 VALUES (?, ?, ?, ?)`,
		jti, userID, formatTime(expiresAt), formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrInvalidOrExpiredResetToken
		}
		return fmt.Errorf("redeeming reset token: %w", err)
	}
	return nil
}

// DeleteExpired drops redemptions whose token can no longer verify anyway.
func (l *ResetLedger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		"DELETE FROM password_reset_redemptions WHERE expires_at <= ?", formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired reset redemptions: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}
