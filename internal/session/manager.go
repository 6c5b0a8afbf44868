package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/goombaio/namegenerator"

	"agentdeck/internal/transcript"
)

var generator = namegenerator.NewNameGenerator(time.Now().UnixNano())

// Info describes one coding session.
type Info struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	WorktreePath   string    `json:"worktree_path"`
	RepositoryPath string    `json:"repository_path"`
	RepositoryName string    `json:"repository_name"`
	ProviderID     string    `json:"provider_id"`
	ModelID        string    `json:"model_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session routes every transcript mutation for one agent session through a
// single goroutine, so the accumulator never sees concurrent writers.
// Snapshot requests travel through the same queue, which serializes reads
// with writes without locking the engine.
type Session struct {
	Info Info

	acc      *transcript.Accumulator
	requests chan request
	done     chan struct{}
	once     sync.Once
}

type request struct {
	// apply
	messageID string
	role      transcript.Role
	parentID  string
	part      *transcript.Part

	// snapshot
	snapshot chan []transcript.ProjectedTurn
}

func newSession(info Info) *Session {
	s := &Session{
		Info: info,
		acc: transcript.NewAccumulator(func(d transcript.Diagnostic) {
			slog.Warn("transcript diagnostic", "session_id", info.ID, "code", d.Code,
				"message_id", d.MessageID, "part_id", d.PartID, "detail", d.Detail)
		}),
		requests: make(chan request, 64),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	for req := range s.requests {
		if req.snapshot != nil {
			turns := transcript.GroupTurns(s.acc.Messages())
			req.snapshot <- transcript.ProjectTurns(turns)
			continue
		}
		s.acc.ApplyPart(req.messageID, req.role, *req.part)
		if req.parentID != "" {
			s.acc.Attach(req.messageID, req.parentID)
		}
	}
	close(s.done)
}

// Apply queues one part for the given message. parentID may be empty when
// the upstream envelope carries no turn linkage.
func (s *Session) Apply(messageID string, role transcript.Role, parentID string, part transcript.Part) {
	s.requests <- request{messageID: messageID, role: role, parentID: parentID, part: &part}
}

// ApplyUserPrompt records a locally-entered user prompt as its own message
// with a client-generated id, and returns that id.
func (s *Session) ApplyUserPrompt(text string) string {
	messageID := "usr_" + uuid.NewString()
	s.Apply(messageID, transcript.RoleUser, "", transcript.Part{
		ID:   "prt_" + uuid.NewString(),
		Type: transcript.PartText,
		Text: text,
		Time: &transcript.TimeRange{Start: time.Now().UnixMilli()},
	})
	return messageID
}

// Snapshot returns the projected transcript as of all previously queued
// applications. Safe at any point, including mid-stream.
func (s *Session) Snapshot() []transcript.ProjectedTurn {
	reply := make(chan []transcript.ProjectedTurn, 1)
	s.requests <- request{snapshot: reply}
	return <-reply
}

func (s *Session) close() {
	s.once.Do(func() {
		close(s.requests)
	})
	<-s.done
}

// Manager is the session registry. Sessions are fully independent and their
// apply loops run in parallel with each other.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    Store
}

func NewManager(store Store) *Manager {
	return &Manager{
		sessions: make(map[string]*Session, 16),
		store:    store,
	}
}

// GenerateName returns a human-friendly session display name.
func GenerateName() string {
	return generator.Generate()
}

// Open registers a session and starts its apply loop. An existing session
// with the same id is returned unchanged.
func (m *Manager) Open(info Info) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, exists := m.sessions[info.ID]; exists {
		return s
	}
	if info.Name == "" {
		info.Name = GenerateName()
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now()
	}
	s := newSession(info)
	m.sessions[info.ID] = s
	slog.Info("session opened", "session_id", info.ID, "name", info.Name)
	return s
}

// Get returns the session for id, if registered.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Persist writes the session's current projected transcript through the
// store collaborator.
func (m *Manager) Persist(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return nil
	}
	return m.store.Save(id, s.Snapshot())
}

// Close persists a final snapshot, stops the apply loop, and retires the
// session from the active set. Accumulated state is not deleted elsewhere;
// it simply leaves the working set with its owner.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	err := m.store.Save(id, s.Snapshot())
	s.close()
	slog.Info("session closed", "session_id", id)
	return err
}

// CloseAll shuts down every active session, for process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range sessions {
		if err := m.store.Save(id, s.Snapshot()); err != nil {
			slog.Error("failed to persist session on shutdown", "session_id", id, "error", err)
		}
		s.close()
	}
	slog.Info("all sessions closed", "count", len(sessions))
}
