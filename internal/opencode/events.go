package opencode

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/sst/opencode-sdk-go"

	"agentdeck/internal/transcript"
)

// Sink receives decoded parts from the event stream. Satisfied by
// session.Session.
type Sink interface {
	Apply(messageID string, role transcript.Role, parentID string, part transcript.Part)
}

// Listeners tracks one event-stream goroutine per session so a session is
// never drained twice and all of them can be stopped on shutdown.
type Listeners struct {
	client *Client

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewListeners(client *Client) *Listeners {
	return &Listeners{
		client: client,
		active: make(map[string]context.CancelFunc),
	}
}

// Spawn starts a listener for the session unless one is already running.
// Returns true when a new listener was started.
func (l *Listeners) Spawn(ctx context.Context, wg *sync.WaitGroup, sessionID, worktreePath string, sink Sink, onIdle func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.active[sessionID]; exists {
		return false
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	wg.Add(1)
	l.active[sessionID] = cancel

	go l.listen(listenerCtx, wg, sessionID, worktreePath, sink, onIdle)
	slog.Debug("spawned session event listener", "session_id", sessionID)
	return true
}

// Stop cancels the listener for one session.
func (l *Listeners) Stop(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancel, exists := l.active[sessionID]; exists {
		cancel()
		delete(l.active, sessionID)
		slog.Debug("stopped session event listener", "session_id", sessionID)
	}
}

// StopAll cancels every listener, for process shutdown.
func (l *Listeners) StopAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for sessionID, cancel := range l.active {
		cancel()
		slog.Debug("stopped session event listener", "session_id", sessionID)
	}
	l.active = make(map[string]context.CancelFunc)
	slog.Info("stopped all event listeners")
}

func (l *Listeners) remove(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, sessionID)
}

// messageEnvelope is the slice of message.updated we care about: the role
// and parent linkage that parts themselves do not carry.
type messageEnvelope struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	ParentID string `json:"parentID"`
}

func (l *Listeners) listen(ctx context.Context, wg *sync.WaitGroup, sessionID, worktreePath string, sink Sink, onIdle func()) {
	defer func() {
		wg.Done()
		slog.Debug("event listener released", "session_id", sessionID)
	}()

	// Envelope facts arrive on message.updated, parts on
	// message.part.updated. Remember the former to label the latter.
	roles := make(map[string]transcript.Role)
	parents := make(map[string]string)

	stream := l.client.sdk.Event.ListStreaming(ctx, opencode.EventListParams{
		Directory: opencode.F(worktreePath),
	})

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case opencode.EventListResponseTypeServerConnected:
			slog.Debug("event stream connected", "session_id", sessionID)

		case opencode.EventListResponseTypeMessageUpdated:
			eventData := serializeEvent[struct {
				Info messageEnvelope `json:"info"`
			}](&event)
			if eventData == nil {
				continue
			}
			info := eventData.Info
			if info.ID == "" {
				continue
			}
			if info.Role == "user" {
				roles[info.ID] = transcript.RoleUser
			} else {
				roles[info.ID] = transcript.RoleAssistant
			}
			if info.ParentID != "" {
				parents[info.ID] = info.ParentID
			}

		case opencode.EventListResponseTypeMessagePartUpdated:
			eventData := serializeEvent[struct {
				Part transcript.Part `json:"part"`
			}](&event)
			if eventData == nil {
				slog.Error("failed to serialize message part updated event", "session_id", sessionID)
				continue
			}
			part := eventData.Part
			if part.SessionID != "" && part.SessionID != sessionID {
				continue
			}

			role, known := roles[part.MessageID]
			if !known {
				role = transcript.RoleAssistant
			}
			sink.Apply(part.MessageID, role, parents[part.MessageID], part)
			slog.Debug("applied part", "session_id", sessionID, "message_id", part.MessageID,
				"part_id", part.ID, "part_type", part.Type)

		case opencode.EventListResponseTypeSessionIdle:
			eventData := serializeEvent[struct {
				SessionID string `json:"sessionId"`
			}](&event)
			if eventData == nil {
				slog.Error("failed to serialize session idle event", "session_id", sessionID)
				continue
			}
			if eventData.SessionID != "" && eventData.SessionID != sessionID {
				continue
			}

			slog.Debug("session idle", "session_id", sessionID)
			if onIdle != nil {
				onIdle()
			}
			l.remove(sessionID)
			return
		}
	}

	if err := stream.Err(); err != nil {
		slog.Error("error in opencode event stream", "session_id", sessionID, "error", err)
	}
	l.remove(sessionID)
	slog.Debug("opencode event listener stopped", "session_id", sessionID)
}

func serializeEvent[T any](event *opencode.EventListResponse) *T {
	var data T
	if err := json.Unmarshal([]byte(event.JSON.Properties.Raw()), &data); err != nil {
		slog.Error("failed to serialize event to json", "error", err)
		return nil
	}
	return &data
}
