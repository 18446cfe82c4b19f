package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/pkg/clock"
	"github.com/scantrack/attendance-api/pkg/config"
	appErrors "github.com/scantrack/attendance-api/pkg/errors"
)

var karachi = time.FixedZone("PKT", 5*60*60)

func attendanceTestConfig() config.AttendanceConfig {
	return config.AttendanceConfig{
		Timezone:    "Asia/Karachi",
		StartBuffer: 5 * time.Minute,
		LateGrace:   10 * time.Minute,
		ExcuseGrace: 10 * time.Minute,
	}
}

func testSession(status models.SessionStatus) *models.Session {
	return &models.Session{
		ID:        "sess-1",
		Class:     "10",
		Section:   "A",
		Date:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime: "08:00",
		EndTime:   "09:00",
		Status:    status,
		CreatedBy: "admin-1",
	}
}

func testStudent() *models.Student {
	return &models.Student{AdmissionNumber: "ADM-001", FullName: "Ayesha Khan", Class: "10", Section: "A"}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Email: "admin@school.test", Role: models.RoleAdmin}
}

type mockSessionStore struct {
	sessions   map[string]*models.Session
	scannable  *models.Session
	active     []models.Session
	setStatus  []models.SessionStatus
	created    []*models.Session
	statusErr  error
	changedSet bool
}

func (m *mockSessionStore) Create(ctx context.Context, session *models.Session) error {
	session.ID = "generated"
	m.created = append(m.created, session)
	return nil
}

func (m *mockSessionStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	if s, ok := m.sessions[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (m *mockSessionStore) SetStatus(ctx context.Context, id string, status models.SessionStatus) (bool, error) {
	if m.statusErr != nil {
		return false, m.statusErr
	}
	m.setStatus = append(m.setStatus, status)
	if s, ok := m.sessions[id]; ok {
		if s.Status == models.SessionStatusCompleted || s.Status == status {
			return false, nil
		}
		s.Status = status
		return true, nil
	}
	return m.changedSet, nil
}

func (m *mockSessionStore) ListActiveForDate(ctx context.Context, date time.Time) ([]models.Session, error) {
	return m.active, nil
}

func (m *mockSessionStore) FindScannableForDate(ctx context.Context, date time.Time) (*models.Session, error) {
	return m.scannable, nil
}

func (m *mockSessionStore) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	return m.active, len(m.active), nil
}

type mockReconciler struct {
	calls  int
	absent int
	err    error
}

func (m *mockReconciler) ReconcileSession(ctx context.Context, session *models.Session, now time.Time) (int, bool, error) {
	m.calls++
	if m.err != nil {
		return 0, false, m.err
	}
	session.Status = models.SessionStatusCompleted
	return m.absent, true, nil
}

func newSessionService(store *mockSessionStore, now time.Time) (*SessionService, *mockReconciler) {
	svc := NewSessionService(store, clock.Fixed{Instant: now}, attendanceTestConfig(), nil, nil)
	rec := &mockReconciler{}
	svc.SetReconciler(rec)
	return svc, rec
}

func TestSessionServiceCreate(t *testing.T) {
	store := &mockSessionStore{}
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, karachi)
	svc, _ := newSessionService(store, now)

	session, err := svc.Create(context.Background(), CreateSessionRequest{
		Class:     "10",
		Section:   "A",
		Date:      "2026-03-10",
		StartTime: "08:00",
		EndTime:   "09:00",
	}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusScheduled, session.Status)
	assert.Equal(t, "admin-1", session.CreatedBy)
	require.Len(t, store.created, 1)
}

func TestSessionServiceCreateStartActive(t *testing.T) {
	store := &mockSessionStore{}
	svc, _ := newSessionService(store, time.Date(2026, 3, 10, 7, 0, 0, 0, karachi))

	session, err := svc.Create(context.Background(), CreateSessionRequest{
		Date:        "2026-03-10",
		StartTime:   "08:00",
		EndTime:     "09:00",
		StartActive: true,
	}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)
}

func TestSessionServiceCreateRejectsInvertedTimes(t *testing.T) {
	store := &mockSessionStore{}
	svc, _ := newSessionService(store, time.Date(2026, 3, 10, 7, 0, 0, 0, karachi))

	_, err := svc.Create(context.Background(), CreateSessionRequest{
		Date:      "2026-03-10",
		StartTime: "09:00",
		EndTime:   "08:00",
	}, adminClaims())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSessionServiceActivate(t *testing.T) {
	session := testSession(models.SessionStatusScheduled)
	store := &mockSessionStore{sessions: map[string]*models.Session{"sess-1": session}}
	svc, _ := newSessionService(store, time.Date(2026, 3, 10, 8, 0, 0, 0, karachi))

	activated, err := svc.Activate(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, activated.Status)
}

func TestSessionServiceActivateCompletedRejected(t *testing.T) {
	session := testSession(models.SessionStatusCompleted)
	store := &mockSessionStore{sessions: map[string]*models.Session{"sess-1": session}}
	svc, _ := newSessionService(store, time.Date(2026, 3, 10, 8, 0, 0, 0, karachi))

	_, err := svc.Activate(context.Background(), "sess-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestSessionServiceGetLazilyReconcilesOverdue(t *testing.T) {
	session := testSession(models.SessionStatusActive)
	store := &mockSessionStore{sessions: map[string]*models.Session{"sess-1": session}}
	// One minute past the end time.
	svc, rec := newSessionService(store, time.Date(2026, 3, 10, 9, 1, 0, 0, karachi))

	got, err := svc.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
}

func TestSessionServiceGetLeavesRunningSessionAlone(t *testing.T) {
	session := testSession(models.SessionStatusActive)
	store := &mockSessionStore{sessions: map[string]*models.Session{"sess-1": session}}
	svc, rec := newSessionService(store, time.Date(2026, 3, 10, 8, 30, 0, 0, karachi))

	got, err := svc.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.calls)
	assert.Equal(t, models.SessionStatusActive, got.Status)
}

func TestSessionServiceForceCompleteIdempotent(t *testing.T) {
	session := testSession(models.SessionStatusCompleted)
	store := &mockSessionStore{sessions: map[string]*models.Session{"sess-1": session}}
	svc, rec := newSessionService(store, time.Date(2026, 3, 10, 8, 30, 0, 0, karachi))

	report, err := svc.ForceComplete(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.calls)
	assert.Equal(t, 0, report.SessionsCompleted)
	assert.Equal(t, 0, report.AbsentMarked)
}

func TestSessionServiceForceCompleteBeforeEnd(t *testing.T) {
	session := testSession(models.SessionStatusActive)
	store := &mockSessionStore{sessions: map[string]*models.Session{"sess-1": session}}
	svc, rec := newSessionService(store, time.Date(2026, 3, 10, 8, 30, 0, 0, karachi))
	rec.absent = 4

	report, err := svc.ForceComplete(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, 1, report.SessionsCompleted)
	assert.Equal(t, 4, report.AbsentMarked)
}

func TestSessionServiceForceCompleteWithoutReconciler(t *testing.T) {
	session := testSession(models.SessionStatusActive)
	store := &mockSessionStore{sessions: map[string]*models.Session{"sess-1": session}}
	svc := NewSessionService(store, clock.Fixed{Instant: time.Date(2026, 3, 10, 8, 30, 0, 0, karachi)}, attendanceTestConfig(), nil, nil)

	_, err := svc.ForceComplete(context.Background(), "sess-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestSessionServiceResolveForScanPrefersExplicitID(t *testing.T) {
	session := testSession(models.SessionStatusActive)
	store := &mockSessionStore{sessions: map[string]*models.Session{"sess-1": session}}
	svc, _ := newSessionService(store, time.Date(2026, 3, 10, 8, 30, 0, 0, karachi))

	got, err := svc.ResolveForScan(context.Background(), "sess-1", svc.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)
}

func TestSessionServiceResolveForScanFallsBackToToday(t *testing.T) {
	session := testSession(models.SessionStatusScheduled)
	store := &mockSessionStore{scannable: session}
	svc, _ := newSessionService(store, time.Date(2026, 3, 10, 8, 30, 0, 0, karachi))

	got, err := svc.ResolveForScan(context.Background(), "", svc.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)
}

func TestSessionServiceResolveForScanNoSession(t *testing.T) {
	store := &mockSessionStore{}
	svc, _ := newSessionService(store, time.Date(2026, 3, 10, 8, 30, 0, 0, karachi))

	_, err := svc.ResolveForScan(context.Background(), "", svc.clk.Now())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNoActiveSession))
}

func TestEnsureScanEligibleWrongDay(t *testing.T) {
	store := &mockSessionStore{}
	now := time.Date(2026, 3, 11, 8, 30, 0, 0, karachi)
	svc, _ := newSessionService(store, now)

	err := svc.EnsureScanEligible(context.Background(), testSession(models.SessionStatusActive), testStudent(), now)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrWrongDay))
}

func TestEnsureScanEligibleStartBuffer(t *testing.T) {
	store := &mockSessionStore{}
	session := testSession(models.SessionStatusScheduled)
	svc, _ := newSessionService(store, time.Time{})

	// One second before the buffer opens.
	early := time.Date(2026, 3, 10, 7, 54, 59, 0, karachi)
	err := svc.EnsureScanEligible(context.Background(), session, testStudent(), early)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotStarted))

	// Exactly at start minus buffer.
	onBuffer := time.Date(2026, 3, 10, 7, 55, 0, 0, karachi)
	err = svc.EnsureScanEligible(context.Background(), session, testStudent(), onBuffer)
	require.NoError(t, err)
}

func TestEnsureScanEligibleAfterEndClosesSession(t *testing.T) {
	session := testSession(models.SessionStatusActive)
	store := &mockSessionStore{sessions: map[string]*models.Session{"sess-1": session}}
	now := time.Date(2026, 3, 10, 9, 0, 1, 0, karachi)
	svc, rec := newSessionService(store, now)

	err := svc.EnsureScanEligible(context.Background(), session, testStudent(), now)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionEnded))
	assert.Equal(t, 1, rec.calls)
}

func TestEnsureScanEligibleExactlyAtEndAccepted(t *testing.T) {
	session := testSession(models.SessionStatusActive)
	store := &mockSessionStore{}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, karachi)
	svc, rec := newSessionService(store, now)

	err := svc.EnsureScanEligible(context.Background(), session, testStudent(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.calls)
}

func TestEnsureScanEligibleOutOfScope(t *testing.T) {
	session := testSession(models.SessionStatusActive)
	store := &mockSessionStore{}
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, karachi)
	svc, _ := newSessionService(store, now)

	outsider := &models.Student{AdmissionNumber: "ADM-002", Class: "9", Section: "B"}
	err := svc.EnsureScanEligible(context.Background(), session, outsider, now)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrOutOfScope))
}

func TestEnsureScanEligibleUnscopedSessionAcceptsAnyStudent(t *testing.T) {
	session := testSession(models.SessionStatusActive)
	session.Class = ""
	session.Section = ""
	store := &mockSessionStore{}
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, karachi)
	svc, _ := newSessionService(store, now)

	outsider := &models.Student{AdmissionNumber: "ADM-002", Class: "9", Section: "B"}
	err := svc.EnsureScanEligible(context.Background(), session, outsider, now)
	require.NoError(t, err)
}

func TestEnsureScanEligibleCompletedSession(t *testing.T) {
	session := testSession(models.SessionStatusCompleted)
	store := &mockSessionStore{}
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, karachi)
	svc, _ := newSessionService(store, now)

	err := svc.EnsureScanEligible(context.Background(), session, testStudent(), now)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionEnded))
}

func TestMarkActiveOnlyFromScheduled(t *testing.T) {
	session := testSession(models.SessionStatusScheduled)
	store := &mockSessionStore{sessions: map[string]*models.Session{"sess-1": session}}
	svc, _ := newSessionService(store, time.Date(2026, 3, 10, 8, 0, 0, 0, karachi))

	require.NoError(t, svc.MarkActive(context.Background(), session))
	assert.Equal(t, models.SessionStatusActive, session.Status)
	require.Len(t, store.setStatus, 1)

	// Already active: no further status writes.
	require.NoError(t, svc.MarkActive(context.Background(), session))
	assert.Len(t, store.setStatus, 1)
}
