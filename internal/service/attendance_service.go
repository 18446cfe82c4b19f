package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/internal/repository"
	"github.com/scantrack/attendance-api/pkg/clock"
	"github.com/scantrack/attendance-api/pkg/config"
	appErrors "github.com/scantrack/attendance-api/pkg/errors"
)

type attendanceLedger interface {
	Find(ctx context.Context, studentID, sessionID string) (*models.AttendanceRecord, error)
	GetByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	Insert(ctx context.Context, record *models.AttendanceRecord) error
	UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, reason *string, scanTime time.Time, markedBy string) error
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRow, error)
	SummaryBySession(ctx context.Context, sessionID string) (*models.SessionSummary, error)
}

type rosterReader interface {
	Get(ctx context.Context, admissionNumber string) (*models.Student, error)
}

type sessionGateway interface {
	ResolveForScan(ctx context.Context, sessionID string, now time.Time) (*models.Session, error)
	EnsureScanEligible(ctx context.Context, session *models.Session, student *models.Student, now time.Time) error
	MarkActive(ctx context.Context, session *models.Session) error
	EndInstant(session *models.Session, now time.Time) (time.Time, error)
	Get(ctx context.Context, id string) (*models.Session, error)
}

type auditWriter interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type scanMetrics interface {
	RecordScan(status models.AttendanceStatus)
}

// AttendanceService classifies scans and governs post-close mutations of the
// attendance ledger.
type AttendanceService struct {
	ledger    attendanceLedger
	roster    rosterReader
	sessions  sessionGateway
	audit     auditWriter
	cache     summaryCache
	metrics   scanMetrics
	clk       clock.Clock
	cfg       config.AttendanceConfig
	cacheCfg  config.CacheConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(ledger attendanceLedger, roster rosterReader, sessions sessionGateway, audit auditWriter, cache summaryCache, metrics scanMetrics, clk clock.Clock, cfg config.AttendanceConfig, cacheCfg config.CacheConfig, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{
		ledger:    ledger,
		roster:    roster,
		sessions:  sessions,
		audit:     audit,
		cache:     cache,
		metrics:   metrics,
		clk:       clk,
		cfg:       cfg,
		cacheCfg:  cacheCfg,
		validator: validate,
		logger:    logger,
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// ScanRequest identifies the student and, optionally, the target session.
type ScanRequest struct {
	AdmissionNumber string `json:"admission_number" validate:"required"`
	SessionID       string `json:"session_id"`
}

// ScanResult reports the classification outcome of a scan.
type ScanResult struct {
	Status  models.AttendanceStatus  `json:"status"`
	Record  *models.AttendanceRecord `json:"record"`
	Student *models.Student          `json:"student"`
}

// MarkScan classifies a scan event as present or late and records it. The
// ledger's uniqueness constraint is the only synchronisation: of two racing
// scans for the same student exactly one insert wins, the other observes
// AlreadyMarked.
func (s *AttendanceService) MarkScan(ctx context.Context, req ScanRequest, claims *models.JWTClaims) (*ScanResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan payload")
	}
	now := s.clk.Now()

	student, err := s.roster.Get(ctx, req.AdmissionNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "")
	}

	session, err := s.sessions.ResolveForScan(ctx, req.SessionID, now)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.EnsureScanEligible(ctx, session, student, now); err != nil {
		return nil, err
	}

	existing, err := s.ledger.Find(ctx, student.AdmissionNumber, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing record")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrAlreadyMarked, "")
	}

	status := models.AttendanceStatusPresent
	startInstant, err := boundaryInstant(session, session.StartTime, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid session start time")
	}
	// Boundary is inclusive: a scan at exactly start+grace is still present.
	if now.After(startInstant.Add(s.cfg.LateGrace)) {
		status = models.AttendanceStatusLate
	}

	record := &models.AttendanceRecord{
		StudentID: student.AdmissionNumber,
		SessionID: session.ID,
		Date:      session.Date,
		Status:    status,
		ScanTime:  now,
		MarkedBy:  claims.UserID,
	}
	if err := s.ledger.Insert(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateRecord) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyMarked, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}

	if err := s.sessions.MarkActive(ctx, session); err != nil {
		s.logger.Warn("failed to activate session after scan", zap.String("session_id", session.ID), zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RecordScan(status)
	}
	s.invalidateSummary(ctx, session.ID)
	return &ScanResult{Status: status, Record: record, Student: student}, nil
}

// ExcuseRequest carries the optional reason for excusing an absence.
type ExcuseRequest struct {
	Reason *string `json:"reason"`
}

// MarkExcused converts an absence to excused within the bounded grace window
// after session end. This is the only path allowed to make that flip.
func (s *AttendanceService) MarkExcused(ctx context.Context, recordID string, req ExcuseRequest, claims *models.JWTClaims) (*models.AttendanceRecord, error) {
	now := s.clk.Now()

	record, err := s.ledger.GetByID(ctx, recordID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if record == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	if record.Status != models.AttendanceStatusAbsent {
		return nil, appErrors.Clone(appErrors.ErrNotAbsent, "")
	}

	session, err := s.sessions.Get(ctx, record.SessionID)
	if err != nil {
		return nil, err
	}
	end, err := s.sessions.EndInstant(session, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid session end time")
	}
	// The window starts at session end, not at absence detection, so staff
	// cannot excuse arbitrarily old sessions.
	if now.After(end.Add(s.cfg.ExcuseGrace)) {
		return nil, appErrors.Clone(appErrors.ErrWindowExpired, "")
	}

	if err := s.ledger.UpdateStatus(ctx, record.ID, models.AttendanceStatusExcused, req.Reason, now, claims.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark excused")
	}

	previous := string(models.AttendanceStatusAbsent)
	reason := ""
	if req.Reason != nil {
		reason = *req.Reason
	}
	if err := s.audit.Create(ctx, &models.AuditLog{
		Action:         models.AuditActionMarkExcused,
		StudentID:      record.StudentID,
		SessionID:      record.SessionID,
		PreviousStatus: &previous,
		NewStatus:      string(models.AttendanceStatusExcused),
		PerformedBy:    claims.UserID,
		Reason:         reason,
	}); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("record_id", record.ID), zap.Error(err))
	}

	record.Status = models.AttendanceStatusExcused
	record.Reason = req.Reason
	record.ScanTime = now
	s.invalidateSummary(ctx, record.SessionID)
	return record, nil
}

// OverrideRequest is the manual admin correction payload.
type OverrideRequest struct {
	AdmissionNumber string  `json:"admission_number" validate:"required"`
	SessionID       string  `json:"session_id" validate:"required"`
	Status          string  `json:"status" validate:"required,attendance_status"`
	Reason          *string `json:"reason"`
}

// Override lets an admin set any status for a (student, session) pair,
// inserting or updating as needed, with an audit trail entry either way.
func (s *AttendanceService) Override(ctx context.Context, req OverrideRequest, claims *models.JWTClaims) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	now := s.clk.Now()
	status := models.AttendanceStatus(strings.ToLower(req.Status))

	session, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	student, err := s.roster.Get(ctx, req.AdmissionNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "")
	}

	existing, err := s.ledger.Find(ctx, req.AdmissionNumber, req.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing record")
	}

	reason := "Manual attendance override"
	if req.Reason != nil && *req.Reason != "" {
		reason = *req.Reason
	}

	entry := &models.AuditLog{
		StudentID:   req.AdmissionNumber,
		SessionID:   req.SessionID,
		NewStatus:   string(status),
		PerformedBy: claims.UserID,
		Reason:      reason,
	}

	var record *models.AttendanceRecord
	if existing != nil {
		previous := string(existing.Status)
		entry.Action = models.AuditActionManualOverride
		entry.PreviousStatus = &previous
		if err := s.ledger.UpdateStatus(ctx, existing.ID, status, req.Reason, now, claims.UserID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
		}
		existing.Status = status
		existing.Reason = req.Reason
		existing.ScanTime = now
		record = existing
	} else {
		entry.Action = models.AuditActionManualAttendance
		record = &models.AttendanceRecord{
			StudentID: req.AdmissionNumber,
			SessionID: req.SessionID,
			Date:      session.Date,
			Status:    status,
			ScanTime:  now,
			MarkedBy:  claims.UserID,
			Reason:    req.Reason,
		}
		if err := s.ledger.Insert(ctx, record); err != nil {
			if errors.Is(err, repository.ErrDuplicateRecord) {
				return nil, appErrors.Clone(appErrors.ErrAlreadyMarked, "")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
		}
	}

	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("session_id", req.SessionID), zap.Error(err))
	}
	s.invalidateSummary(ctx, req.SessionID)
	return record, nil
}

// ListBySession returns the full register for one session.
func (s *AttendanceService) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRow, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.ledger.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list session attendance")
	}
	return rows, nil
}

// SessionSummary returns per-status counts for one session, cached briefly.
func (s *AttendanceService) SessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, bool, error) {
	key := summaryCacheKey(sessionID)
	if s.cacheCfg.Enabled && s.cache != nil {
		var cached models.SessionSummary
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, true, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("summary cache read failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, false, err
	}
	summary, err := s.ledger.SummaryBySession(ctx, sessionID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise session")
	}
	if s.cacheCfg.Enabled && s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.cacheCfg.SummaryTTL); err != nil {
			s.logger.Warn("summary cache write failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return summary, false, nil
}

func (s *AttendanceService) invalidateSummary(ctx context.Context, sessionID string) {
	if !s.cacheCfg.Enabled || s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, summaryCacheKey(sessionID)); err != nil {
		s.logger.Warn("summary cache invalidation failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func summaryCacheKey(sessionID string) string {
	return "attendance:summary:" + sessionID
}
