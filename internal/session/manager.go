package session

import (
	"context"
	"errors"
	"sort"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSessionActive is returned when a subject already has a running
	// session. One subject, one stream.
	ErrSessionActive = errors.New("subject already has an active session")
	// ErrNoSession is returned when no session exists for a subject.
	ErrNoSession = errors.New("no active session for subject")
)

// Manager tracks active sessions keyed by subject and enforces at most one
// per subject.
type Manager struct {
	sessions *hashmap.Map[string, *Session]
	logger   *logrus.Logger
}

// NewManager creates an empty session registry.
func NewManager(logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		sessions: hashmap.New[string, *Session](),
		logger:   logger,
	}
}

// Start registers and starts s. Registration happens first so two concurrent
// starts for the same subject cannot both win; a failed start unregisters.
func (m *Manager) Start(ctx context.Context, s *Session) error {
	subject := s.SubjectID()
	if subject == "" {
		return ErrMissingSubject
	}
	if !m.sessions.Insert(subject, s) {
		return ErrSessionActive
	}
	if err := s.Start(ctx); err != nil {
		m.sessions.Del(subject)
		return err
	}
	m.logger.WithFields(logrus.Fields{
		"subject": subject,
		"session": s.ID(),
	}).Info("Session registered")
	return nil
}

// Stop stops and unregisters the subject's session.
func (m *Manager) Stop(subjectID string) error {
	s, ok := m.sessions.Get(subjectID)
	if !ok {
		return ErrNoSession
	}
	s.Stop()
	m.sessions.Del(subjectID)
	m.logger.WithField("subject", subjectID).Info("Session unregistered")
	return nil
}

// Get returns the subject's active session, if any.
func (m *Manager) Get(subjectID string) (*Session, bool) {
	return m.sessions.Get(subjectID)
}

// Active lists subjects with a running session, sorted for stable output.
func (m *Manager) Active() []string {
	var subjects []string
	m.sessions.Range(func(subject string, _ *Session) bool {
		subjects = append(subjects, subject)
		return true
	})
	sort.Strings(subjects)
	return subjects
}

// StopAll stops every active session.
func (m *Manager) StopAll() {
	for _, subject := range m.Active() {
		_ = m.Stop(subject)
	}
}
