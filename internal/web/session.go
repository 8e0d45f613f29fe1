package web

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/a3tai/pdf-playground/internal/workflow"
)

const (
	sessionCookie = "pdf_playground_session"

	// DefaultSessionTTL is how long an idle browser session is kept.
	DefaultSessionTTL = 30 * time.Minute
)

// session is one browser's front-end: its shell and the tab-open and alert
// requests waiting for the next page render.
type session struct {
	id       string
	shell    *workflow.Shell
	events   *workflow.EventQueue
	lastSeen time.Time
}

type sessionStore struct {
	api    workflow.API
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionStore(api workflow.API, ttl time.Duration, logger *logrus.Logger) *sessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &sessionStore{
		api:      api,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// get returns the session named by the request cookie, creating one and
// setting the cookie when there is none.
func (st *sessionStore) get(w http.ResponseWriter, r *http.Request) *session {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	st.expireLocked(now)

	if c, err := r.Cookie(sessionCookie); err == nil {
		if s, ok := st.sessions[c.Value]; ok {
			s.lastSeen = now
			return s
		}
	}

	events := &workflow.EventQueue{}
	s := &session{
		id:     uuid.NewString(),
		events: events,
		shell: workflow.NewShell(st.api, events,
			workflow.WithLinks(proxyLink),
			workflow.WithLogger(st.logger),
		),
		lastSeen: now,
	}
	st.sessions[s.id] = s
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	st.logger.WithField("session", s.id).Debug("Session created")
	return s
}

func (st *sessionStore) expireLocked(now time.Time) {
	for id, s := range st.sessions {
		if now.Sub(s.lastSeen) > st.ttl {
			s.shell.Clear()
			delete(st.sessions, id)
			st.logger.WithField("session", id).Debug("Session expired")
		}
	}
}

func (st *sessionStore) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// proxyLink points downloads at this server rather than the backend.
func proxyLink(id string) string {
	return "/download/" + url.PathEscape(id)
}
