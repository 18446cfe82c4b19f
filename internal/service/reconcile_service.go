package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/pkg/clock"
	appErrors "github.com/scantrack/attendance-api/pkg/errors"
)

type reconcileSessionStore interface {
	ListActiveForDate(ctx context.Context, date time.Time) ([]models.Session, error)
	SetStatus(ctx context.Context, id string, status models.SessionStatus) (bool, error)
}

type reconcileLedger interface {
	ListStudentIDsBySession(ctx context.Context, sessionID string) ([]string, error)
	BulkInsertIgnoringConflicts(ctx context.Context, records []models.AttendanceRecord) (int, error)
}

type reconcileRoster interface {
	ListAdmissionNumbers(ctx context.Context, class, section string) ([]string, error)
}

type reconcileMetrics interface {
	RecordReconcile(absentMarked int)
}

// ReconcileService fills in absence records for ended sessions and moves them
// to completed. Every trigger (sweep, lazy read, manual) funnels into the same
// idempotent pass, so calling it repeatedly or concurrently converges on the
// same ledger state.
type ReconcileService struct {
	sessions reconcileSessionStore
	ledger   reconcileLedger
	roster   reconcileRoster
	clk      clock.Clock
	metrics  reconcileMetrics
	logger   *zap.Logger
}

// NewReconcileService constructs the reconciliation engine.
func NewReconcileService(sessions reconcileSessionStore, ledger reconcileLedger, roster reconcileRoster, clk clock.Clock, metrics reconcileMetrics, logger *zap.Logger) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{sessions: sessions, ledger: ledger, roster: roster, clk: clk, metrics: metrics, logger: logger}
}

// Reconcile sweeps today's active sessions and closes every one whose end
// time has passed.
func (s *ReconcileService) Reconcile(ctx context.Context) (*models.ReconcileReport, error) {
	now := s.clk.Now()
	active, err := s.sessions.ListActiveForDate(ctx, civilDate(now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active sessions")
	}

	report := &models.ReconcileReport{}
	for i := range active {
		session := &active[i]
		end, err := boundaryInstant(session, session.EndTime, now)
		if err != nil {
			s.logger.Warn("skipping session with invalid end time", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		if !now.After(end) {
			continue
		}
		report.SessionsProcessed++
		absent, completed, err := s.ReconcileSession(ctx, session, now)
		if err != nil {
			// Leave it for the next pass; reconciliation is at-least-once.
			s.logger.Warn("session reconcile failed", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		report.AbsentMarked += absent
		if completed {
			report.SessionsCompleted++
		}
	}
	return report, nil
}

// ReconcileSession computes the absentee set for one session, bulk-inserts
// absence records and transitions the session to completed. Conflicting rows
// (a concurrent pass, a racing scan) are skipped silently.
func (s *ReconcileService) ReconcileSession(ctx context.Context, session *models.Session, now time.Time) (int, bool, error) {
	if session.Status == models.SessionStatusCompleted {
		return 0, false, nil
	}

	scanned, err := s.ledger.ListStudentIDsBySession(ctx, session.ID)
	if err != nil {
		return 0, false, err
	}
	scannedSet := make(map[string]struct{}, len(scanned))
	for _, id := range scanned {
		scannedSet[id] = struct{}{}
	}

	roster, err := s.roster.ListAdmissionNumbers(ctx, session.Class, session.Section)
	if err != nil {
		return 0, false, err
	}

	records := make([]models.AttendanceRecord, 0, len(roster))
	for _, id := range roster {
		if _, ok := scannedSet[id]; ok {
			continue
		}
		records = append(records, models.AttendanceRecord{
			StudentID: id,
			SessionID: session.ID,
			Date:      session.Date,
			Status:    models.AttendanceStatusAbsent,
			ScanTime:  now,
			MarkedBy:  session.CreatedBy,
		})
	}

	absentMarked := 0
	if len(records) > 0 {
		absentMarked, err = s.ledger.BulkInsertIgnoringConflicts(ctx, records)
		if err != nil {
			return 0, false, err
		}
	}

	completed, err := s.sessions.SetStatus(ctx, session.ID, models.SessionStatusCompleted)
	if err != nil {
		return absentMarked, false, err
	}
	session.Status = models.SessionStatusCompleted

	if s.metrics != nil {
		s.metrics.RecordReconcile(absentMarked)
	}
	s.logger.Info("session reconciled",
		zap.String("session_id", session.ID),
		zap.Int("absent_marked", absentMarked),
		zap.Bool("completed_now", completed))
	return absentMarked, completed, nil
}
