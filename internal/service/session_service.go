package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/pkg/clock"
	"github.com/scantrack/attendance-api/pkg/config"
	appErrors "github.com/scantrack/attendance-api/pkg/errors"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	SetStatus(ctx context.Context, id string, status models.SessionStatus) (bool, error)
	ListActiveForDate(ctx context.Context, date time.Time) ([]models.Session, error)
	FindScannableForDate(ctx context.Context, date time.Time) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
}

type sessionReconciler interface {
	ReconcileSession(ctx context.Context, session *models.Session, now time.Time) (absentMarked int, completed bool, err error)
}

// SessionService governs the scheduled → active → completed lifecycle and the
// timing predicates attached to it.
type SessionService struct {
	repo       sessionStore
	reconciler sessionReconciler
	clk        clock.Clock
	cfg        config.AttendanceConfig
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSessionService constructs the session service. The reconciler may be
// attached after construction to break the mutual dependency at wiring time.
func NewSessionService(repo sessionStore, clk clock.Clock, cfg config.AttendanceConfig, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, clk: clk, cfg: cfg, validator: validate, logger: logger}
}

// SetReconciler attaches the reconciliation engine used for lazy closes.
func (s *SessionService) SetReconciler(r sessionReconciler) {
	s.reconciler = r
}

// CreateSessionRequest describes the session creation payload.
type CreateSessionRequest struct {
	Class       string `json:"class"`
	Section     string `json:"section"`
	Date        string `json:"date" validate:"required"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	StartActive bool   `json:"start_active"`
}

// Create validates and stores a new session.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest, claims *models.JWTClaims) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	now := s.clk.Now()
	date, err := time.ParseInLocation("2006-01-02", req.Date, now.Location())
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	start, err := clock.AtTimeOfDay(date, req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start time, expected HH:MM")
	}
	end, err := clock.AtTimeOfDay(date, req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end time, expected HH:MM")
	}
	if !start.Before(end) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}

	status := models.SessionStatusScheduled
	if req.StartActive {
		status = models.SessionStatusActive
	}
	session := &models.Session{
		Class:     req.Class,
		Section:   req.Section,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    status,
		CreatedBy: claims.UserID,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("date", req.Date),
		zap.String("status", string(status)))
	return session, nil
}

// Get returns a session, lazily reconciling it when its end time has passed.
// Reading an overdue session is itself enough to close it; no timer needed.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	now := s.clk.Now()
	if session.Status != models.SessionStatusCompleted && s.reconciler != nil {
		end, err := s.EndInstant(session, now)
		if err == nil && now.After(end) {
			if _, completed, rerr := s.reconciler.ReconcileSession(ctx, session, now); rerr != nil {
				s.logger.Warn("lazy reconcile failed", zap.String("session_id", session.ID), zap.Error(rerr))
			} else if completed {
				session.Status = models.SessionStatusCompleted
			}
		}
	}
	return session, nil
}

// List returns sessions matching the filter.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Activate moves a scheduled session to active. No-op when already active;
// rejected once completed.
func (s *SessionService) Activate(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	if !session.Status.CanTransitionTo(models.SessionStatusActive) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "completed sessions cannot be reactivated")
	}
	if _, err := s.repo.SetStatus(ctx, session.ID, models.SessionStatusActive); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate session")
	}
	session.Status = models.SessionStatusActive
	return session, nil
}

// ForceComplete runs reconciliation for one session immediately, regardless
// of its end time. Idempotent; completing a completed session is a no-op.
func (s *SessionService) ForceComplete(ctx context.Context, id string) (*models.ReconcileReport, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	report := &models.ReconcileReport{}
	if session.Status == models.SessionStatusCompleted {
		return report, nil
	}
	if s.reconciler == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "reconciler not configured")
	}
	absent, completed, err := s.reconciler.ReconcileSession(ctx, session, s.clk.Now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete session")
	}
	report.SessionsProcessed = 1
	report.AbsentMarked = absent
	if completed {
		report.SessionsCompleted = 1
	}
	return report, nil
}

// ResolveForScan locates the session a scan applies to. Without an explicit
// id the earliest-starting open session for today wins.
func (s *SessionService) ResolveForScan(ctx context.Context, sessionID string, now time.Time) (*models.Session, error) {
	if sessionID != "" {
		session, err := s.repo.GetByID(ctx, sessionID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
		}
		if session == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return session, nil
	}
	session, err := s.repo.FindScannableForDate(ctx, civilDate(now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find active session")
	}
	if session == nil {
		return nil, appErrors.Clone(appErrors.ErrNoActiveSession, "")
	}
	return session, nil
}

// EnsureScanEligible applies the eligibility predicate for a scan at now.
// A scan arriving after the end time closes the session as a side effect.
func (s *SessionService) EnsureScanEligible(ctx context.Context, session *models.Session, student *models.Student, now time.Time) error {
	if session.Status == models.SessionStatusCompleted {
		return appErrors.Clone(appErrors.ErrSessionEnded, "")
	}
	if !clock.SameCivilDay(session.Date, now) {
		return appErrors.Clone(appErrors.ErrWrongDay, "")
	}
	start, err := s.StartInstant(session, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid session start time")
	}
	end, err := s.EndInstant(session, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid session end time")
	}
	if now.Before(start.Add(-s.cfg.StartBuffer)) {
		return appErrors.Clone(appErrors.ErrNotStarted, "session starts at "+session.StartTime)
	}
	if now.After(end) {
		if s.reconciler != nil {
			if _, _, err := s.reconciler.ReconcileSession(ctx, session, now); err != nil {
				s.logger.Warn("close-on-scan reconcile failed", zap.String("session_id", session.ID), zap.Error(err))
			}
		}
		return appErrors.Clone(appErrors.ErrSessionEnded, "")
	}
	if !session.InScope(student) {
		return appErrors.Clone(appErrors.ErrOutOfScope, "")
	}
	return nil
}

// MarkActive flips a scheduled session to active after its first accepted
// scan. Idempotent under races with other scans.
func (s *SessionService) MarkActive(ctx context.Context, session *models.Session) error {
	if session.Status != models.SessionStatusScheduled {
		return nil
	}
	if _, err := s.repo.SetStatus(ctx, session.ID, models.SessionStatusActive); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate session")
	}
	session.Status = models.SessionStatusActive
	return nil
}

// StartInstant resolves the session's start as an instant in now's location.
func (s *SessionService) StartInstant(session *models.Session, now time.Time) (time.Time, error) {
	return boundaryInstant(session, session.StartTime, now)
}

// EndInstant resolves the session's end as an instant in now's location.
func (s *SessionService) EndInstant(session *models.Session, now time.Time) (time.Time, error) {
	return boundaryInstant(session, session.EndTime, now)
}

// boundaryInstant pairs the session's own civil date with an HH:MM boundary.
// The session date may have been stored in a different location than the
// school clock, so only its calendar components are used.
func boundaryInstant(session *models.Session, hhmm string, now time.Time) (time.Time, error) {
	y, m, d := session.Date.Date()
	anchored := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return clock.AtTimeOfDay(anchored, hhmm)
}

func civilDate(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
