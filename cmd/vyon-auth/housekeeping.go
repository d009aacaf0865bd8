package main

import (
	"context"
	"time"

	"github.com/vyon/auth-service/internal/infrastructure/influxdb"
	"github.com/vyon/auth-service/internal/infrastructure/logging"
)

// ledgerJanitor is the part of auth.Service the janitor drives.
type ledgerJanitor interface {
	PurgeExpired(ctx context.Context) (sessions, redemptions int64, err error)
	CountLiveSessions(ctx context.Context) (int, error)
}

// sessionStatsWriter receives one point per janitor run.
type sessionStatsWriter interface {
	WriteSessionStats(live, purgedSessions, purgedRedemptions int64)
}

// statsSink returns client as a sessionStatsWriter, or nil when InfluxDB
// is disabled. A nil *influxdb.Client must not become a non-nil interface.
func statsSink(client *influxdb.Client) sessionStatsWriter {
	if client == nil {
		return nil
	}
	return client
}

// runJanitor purges sessions past their refresh window and expired reset
// redemptions every interval until ctx is cancelled. A non-positive
// interval disables it.
func runJanitor(ctx context.Context, interval time.Duration, ledger ledgerJanitor, stats sessionStatsWriter, log *logging.Logger) {
	if interval <= 0 {
		log.Info("session housekeeping disabled")
		return
	}

	log.Info("session housekeeping started", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, ledger, stats, log)
		}
	}
}

// sweep runs one purge pass.
func sweep(ctx context.Context, ledger ledgerJanitor, stats sessionStatsWriter, log *logging.Logger) {
	sessions, redemptions, err := ledger.PurgeExpired(ctx)
	if err != nil {
		log.Error("session purge failed", "error", err)
		return
	}

	live, err := ledger.CountLiveSessions(ctx)
	if err != nil {
		log.Error("counting live sessions failed", "error", err)
		return
	}

	if sessions > 0 || redemptions > 0 {
		log.Info("expired sessions purged",
			"sessions", sessions,
			"redemptions", redemptions,
			"live", live,
		)
	}
	if stats != nil {
		stats.WriteSessionStats(int64(live), sessions, redemptions)
	}
}
