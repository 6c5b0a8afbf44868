package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"agentdeck/internal/config"
	"agentdeck/internal/opencode"
	"agentdeck/internal/session"
	"agentdeck/internal/transcript"
	"agentdeck/internal/workspace"
)

// Relay is the Discord front end. Each coding session gets its own thread;
// the relay forwards prompts into the agent and streams transcript updates
// back into the thread.
type Relay struct {
	cfg        *config.Config
	sessions   *session.Manager
	workspaces *workspace.Manager
	agent      *opencode.Client
	listeners  *opencode.Listeners

	discord *discordgo.Session
	ctx     context.Context
	wg      *sync.WaitGroup

	mu      sync.Mutex
	threads map[string]*threadState
}

// threadState binds one Discord thread to one agent session, plus the
// status-message cursor used for streaming edits.
type threadState struct {
	sessionID            string
	userID               string
	lastStatusMessageID  string
	statusMessageContent string
}

func New(cfg *config.Config, sessions *session.Manager, workspaces *workspace.Manager, agent *opencode.Client, listeners *opencode.Listeners) *Relay {
	return &Relay{
		cfg:        cfg,
		sessions:   sessions,
		workspaces: workspaces,
		agent:      agent,
		listeners:  listeners,
		threads:    make(map[string]*threadState),
	}
}

// Run connects to Discord and blocks until ctx is canceled.
func (r *Relay) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	r.ctx = ctx
	r.wg = wg

	if r.cfg.BotToken == "" {
		slog.Error("bot_token is not set in config.toml")
		return
	}

	discordSession, err := discordgo.New("Bot " + r.cfg.BotToken)
	if err != nil {
		slog.Error("error creating Discord session", "error", err)
		return
	}
	r.discord = discordSession

	r.discord.AddHandler(r.interactionHandlers)
	r.discord.AddHandler(r.messageHandler)
	r.discord.Identify.Intents = discordgo.IntentsGuildMessages

	if err := r.discord.Open(); err != nil {
		slog.Error("error opening connection", "error", err)
		return
	}
	slog.Info("discord bot started", "user", r.discord.State.User.Username)

	if err := r.registerCommands(); err != nil {
		slog.Error("error registering commands", "error", err)
		return
	}

	<-ctx.Done()

	r.listeners.StopAll()
	r.discord.Close()
	slog.Info("discord bot stopped")
}

func (r *Relay) registerCommands() error {
	var repositoryChoices []*discordgo.ApplicationCommandOptionChoice
	var modelChoices []*discordgo.ApplicationCommandOptionChoice
	for i, repository := range r.cfg.Repositories {
		repositoryChoices = append(repositoryChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  repository.Name,
			Value: i,
		})
	}
	for i, model := range r.cfg.Models {
		modelChoices = append(modelChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  fmt.Sprintf("%s/%s", model.ProviderID, model.ModelID),
			Value: i,
		})
	}

	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "ping",
			Description: "Will reply you back",
		},
		{
			Name:        "session",
			Description: "Start a coding session in a new thread",
			Type:        discordgo.ChatApplicationCommand,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "repository",
					Description: "Select repository",
					Type:        discordgo.ApplicationCommandOptionInteger,
					Required:    true,
					Choices:     repositoryChoices,
				},
				{
					Name:        "model",
					Description: "Select model",
					Type:        discordgo.ApplicationCommandOptionInteger,
					Required:    true,
					Choices:     modelChoices,
				},
			},
		},
		{
			Name:        "commit",
			Description: "Commit and push the session's changes",
		},
		{
			Name:        "diff",
			Description: "Show uncommitted changes in the session worktree",
		},
		{
			Name:        "transcript",
			Description: "Replay the session transcript",
		},
	}

	for _, command := range commands {
		if _, err := r.discord.ApplicationCommandCreate(r.discord.State.User.ID, "", command); err != nil {
			return err
		}
	}
	slog.Info("slash commands registered successfully")
	return nil
}

func (r *Relay) interactionHandlers(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.ApplicationCommandData().Name {
	case "ping":
		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: "Pong!"},
		})
	case "session":
		r.handleSessionCommand(s, i)
	case "commit":
		r.handleCommitCommand(s, i)
	case "diff":
		r.handleDiffCommand(s, i)
	case "transcript":
		r.handleTranscriptCommand(s, i)
	}
}

func (r *Relay) thread(threadID string) *threadState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threads[threadID]
}

func respondEdit(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})
}

func (r *Relay) handleSessionCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		slog.Error("failed to respond to interaction", "error", err)
		return
	}

	var repositoryIndex, modelIndex int
	for _, option := range i.ApplicationCommandData().Options {
		switch option.Name {
		case "repository":
			repositoryIndex = int(option.IntValue())
		case "model":
			modelIndex = int(option.IntValue())
		}
	}
	if repositoryIndex >= len(r.cfg.Repositories) || modelIndex >= len(r.cfg.Models) {
		respondEdit(s, i, "Invalid repository or model selection")
		return
	}
	repository := r.cfg.Repositories[repositoryIndex]
	model := r.cfg.Models[modelIndex]

	name := session.GenerateName()
	thread, err := s.ThreadStart(
		i.ChannelID,
		fmt.Sprintf("Agent: %s", name),
		discordgo.ChannelTypeGuildPublicThread,
		1440, // 24 hours
	)
	if err != nil {
		slog.Error("failed to create thread", "error", err)
		respondEdit(s, i, "Failed to create thread")
		return
	}

	worktreePath, err := r.workspaces.Create(repository.Path, thread.ID, thread.ID)
	if err != nil {
		slog.Error("failed to create worktree", "error", err)
		respondEdit(s, i, "Failed to create worktree")
		return
	}

	sessionID, err := r.agent.NewSession(context.Background(), worktreePath)
	if err != nil {
		slog.Error("failed to create agent session", "error", err)
		respondEdit(s, i, "Failed to create agent session")
		return
	}

	r.sessions.Open(session.Info{
		ID:             sessionID,
		Name:           name,
		WorktreePath:   worktreePath,
		RepositoryPath: repository.Path,
		RepositoryName: repository.Name,
		ProviderID:     model.ProviderID,
		ModelID:        model.ModelID,
	})

	var userID string
	if i.Member != nil && i.Member.User != nil {
		userID = i.Member.User.ID
	}
	r.mu.Lock()
	r.threads[thread.ID] = &threadState{sessionID: sessionID, userID: userID}
	r.mu.Unlock()

	welcome := fmt.Sprintf("```\nSession Started\nRepository: %s\nModel: %s/%s\nSession ID: %s\n```",
		repository.Name, model.ProviderID, model.ModelID, sessionID)
	s.ChannelMessageSend(thread.ID, welcome)

	respondEdit(s, i, fmt.Sprintf("Session created! Check the thread: %s", thread.Mention()))
	slog.Info("session thread created", "thread_id", thread.ID, "session_id", sessionID, "repository", repository.Name)
}

func (r *Relay) messageHandler(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}

	isMentioned := false
	for _, mention := range m.Mentions {
		if mention.ID == s.State.User.ID {
			isMentioned = true
			break
		}
	}
	if !isMentioned {
		return
	}

	channel, err := s.Channel(m.ChannelID)
	if err != nil {
		slog.Error("failed to get channel info", "channel_id", m.ChannelID, "error", err)
		return
	}
	if channel.Type != discordgo.ChannelTypeGuildPublicThread && channel.Type != discordgo.ChannelTypeGuildPrivateThread {
		s.ChannelMessageSend(m.ChannelID, "Mention the bot inside a session thread.")
		return
	}

	threadID := m.ChannelID
	state := r.thread(threadID)
	if state == nil {
		s.ChannelMessageSend(m.ChannelID, "No session found for this thread. Start one with `/session`.")
		return
	}
	sess, ok := r.sessions.Get(state.sessionID)
	if !ok {
		s.ChannelMessageSend(m.ChannelID, "Session is no longer active. Start a new one with `/session`.")
		return
	}

	content := m.Content
	for _, mention := range m.Mentions {
		if mention.ID == s.State.User.ID {
			content = strings.ReplaceAll(content, fmt.Sprintf("<@%s>", mention.ID), "")
			content = strings.ReplaceAll(content, fmt.Sprintf("<@!%s>", mention.ID), "")
		}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		s.ChannelMessageSend(m.ChannelID, "Please provide a message for the agent.")
		return
	}

	r.listeners.Spawn(r.ctx, r.wg, state.sessionID, sess.Info.WorktreePath,
		&observingSink{session: sess, relay: r, threadID: threadID},
		func() { r.onIdle(threadID, state.sessionID) })

	sess.ApplyUserPrompt(content)
	s.ChannelTyping(m.ChannelID)

	err = r.agent.Prompt(context.Background(), state.sessionID, sess.Info.WorktreePath,
		sess.Info.ProviderID, sess.Info.ModelID, content)
	if err != nil {
		slog.Error("failed to send prompt", "thread_id", threadID, "error", err)
		s.ChannelMessageSend(m.ChannelID, "Failed to send message to the agent.")
	}
}

// observingSink applies each part to the transcript engine, then mirrors
// finished parts into the thread as streaming status updates.
type observingSink struct {
	session  *session.Session
	relay    *Relay
	threadID string
}

func (o *observingSink) Apply(messageID string, role transcript.Role, parentID string, part transcript.Part) {
	o.session.Apply(messageID, role, parentID, part)
	if role == transcript.RoleAssistant {
		o.relay.streamUpdate(o.threadID, part)
	}
}

// streamUpdate posts a finished part into the thread. Tool parts wait for a
// terminal state; text and reasoning wait for their end timestamp.
func (r *Relay) streamUpdate(threadID string, part transcript.Part) {
	switch part.Type {
	case transcript.PartTool:
		if part.State == nil || part.Tool == "" {
			return
		}
		if !part.State.Status.Terminal() {
			return
		}
		update := fmt.Sprintf("Tool: %s [%s]", part.Tool, part.State.Status)
		if part.State.Error != "" {
			update += "\n" + part.State.Error
		}
		r.updateStatusMessage(threadID, formatBlockquote(update))
	case transcript.PartReasoning:
		if part.Text == "" || part.Time == nil || part.Time.End == nil {
			return
		}
		r.updateStatusMessage(threadID, formatBlockquote("*"+part.Text+"*"))
	case transcript.PartText:
		if part.Text == "" || part.Time == nil || part.Time.End == nil {
			return
		}
		for _, chunk := range chunkMessage(removeExcessiveNewLine(part.Text), maxMessageLength) {
			r.send(threadID, chunk)
		}
	}
}

func (r *Relay) onIdle(threadID, sessionID string) {
	r.updateStatusMessage(threadID, "Task completed!")

	if err := r.sessions.Persist(sessionID); err != nil {
		slog.Error("failed to persist session", "session_id", sessionID, "error", err)
	}

	if sess, ok := r.sessions.Get(sessionID); ok {
		turns := sess.Snapshot()
		if len(turns) > 0 {
			if footer := renderMeta(turns[len(turns)-1].Meta); footer != "" {
				r.send(threadID, footer)
			}
		}
	}

	state := r.thread(threadID)
	if state != nil && state.userID != "" {
		r.send(threadID, fmt.Sprintf("<@%s> Task completed!", state.userID))
	}

	// A fresh status message starts on the next prompt.
	r.mu.Lock()
	if state != nil {
		state.lastStatusMessageID = ""
		state.statusMessageContent = ""
	}
	r.mu.Unlock()
}

func (r *Relay) send(threadID, message string) {
	if r.discord == nil {
		slog.Error("discord session not available", "thread_id", threadID)
		return
	}
	if _, err := r.discord.ChannelMessageSend(threadID, message); err != nil {
		slog.Error("failed to send message to discord", "thread_id", threadID, "error", err)
	}
}

func (r *Relay) edit(threadID, messageID, newContent string) error {
	if r.discord == nil {
		return fmt.Errorf("discord session not available")
	}
	if _, err := r.discord.ChannelMessageEdit(threadID, messageID, newContent); err != nil {
		slog.Error("failed to edit message on discord", "thread_id", threadID, "message_id", messageID, "error", err)
		return err
	}
	return nil
}

// updateStatusMessage appends a status line to the thread's rolling status
// message, starting a continuation message when the current one fills up.
func (r *Relay) updateStatusMessage(threadID, statusUpdate string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.threads[threadID]
	if !exists {
		slog.Error("thread not found for status update", "thread_id", threadID)
		return
	}

	newContent := state.statusMessageContent + "\n" + statusUpdate
	if len(newContent) > maxMessageLength {
		if state.lastStatusMessageID != "" {
			r.edit(threadID, state.lastStatusMessageID, state.statusMessageContent+"\n...continued below...")
		}
		continuation := "Working (continued)...\n" + statusUpdate
		msg, err := r.discord.ChannelMessageSend(threadID, continuation)
		if err != nil {
			slog.Error("failed to create continuation status message", "thread_id", threadID, "error", err)
			return
		}
		state.lastStatusMessageID = msg.ID
		state.statusMessageContent = continuation
		return
	}

	if state.lastStatusMessageID == "" {
		initial := "Working...\n" + statusUpdate
		msg, err := r.discord.ChannelMessageSend(threadID, initial)
		if err != nil {
			slog.Error("failed to create status message", "thread_id", threadID, "error", err)
			return
		}
		state.lastStatusMessageID = msg.ID
		state.statusMessageContent = initial
		return
	}

	state.statusMessageContent = newContent
	if err := r.edit(threadID, state.lastStatusMessageID, newContent); err != nil {
		slog.Error("failed to update status message", "thread_id", threadID, "error", err)
	}
}

func (r *Relay) sessionForInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) (*session.Session, bool) {
	state := r.thread(i.ChannelID)
	if state == nil {
		respondEdit(s, i, "No session found for this thread. Start one with `/session`.")
		return nil, false
	}
	sess, ok := r.sessions.Get(state.sessionID)
	if !ok {
		respondEdit(s, i, "Session is no longer active.")
		return nil, false
	}
	return sess, true
}

func (r *Relay) handleCommitCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		slog.Error("failed to defer commit interaction", "error", err)
		return
	}

	sess, ok := r.sessionForInteraction(s, i)
	if !ok {
		return
	}
	worktreePath := sess.Info.WorktreePath

	status, err := r.workspaces.GetStatus(worktreePath)
	if err != nil {
		slog.Error("failed to check git status", "session_id", sess.Info.ID, "error", err)
		respondEdit(s, i, "Failed to check worktree status.")
		return
	}
	if status.IsClean {
		respondEdit(s, i, "No changes to commit.")
		return
	}

	instruction := "Generate a git commit message in conventional commit format. " +
		"The first line should be in the format 'type(scope): description'. " +
		"Follow with a bullet-point list of key changes made in the session. Keep the entire message concise."
	summary, err := r.agent.Summarize(context.Background(), sess.Info.ID, worktreePath,
		sess.Info.ProviderID, sess.Info.ModelID, instruction)
	if err != nil {
		slog.Error("failed to generate commit summary", "session_id", sess.Info.ID, "error", err)
		respondEdit(s, i, "Failed to generate commit summary.")
		return
	}
	if summary == "" {
		summary = "Changes made during session"
	}

	if err := r.workspaces.StageAll(worktreePath); err != nil {
		slog.Error("failed to stage changes", "session_id", sess.Info.ID, "error", err)
		respondEdit(s, i, "Failed to stage changes.")
		return
	}
	commitHash, err := r.workspaces.Commit(worktreePath, summary)
	if err != nil {
		slog.Error("failed to create commit", "session_id", sess.Info.ID, "error", err)
		respondEdit(s, i, "Failed to commit changes.")
		return
	}

	branch, err := r.workspaces.CurrentBranch(worktreePath)
	if err != nil {
		slog.Error("failed to get current branch", "session_id", sess.Info.ID, "error", err)
		branch = "main"
	}
	if err := r.workspaces.Push(worktreePath, branch); err != nil {
		slog.Error("failed to push changes", "session_id", sess.Info.ID, "error", err)
		respondEdit(s, i, fmt.Sprintf("Committed %s but push failed.", commitHash[:8]))
		return
	}

	r.send(i.ChannelID, fmt.Sprintf("**Commit & Push Successful**\n\n**Summary:** %s\n**Hash:** %s\n**Branch:** %s",
		summary, commitHash, branch))
	respondEdit(s, i, "Commit completed successfully!")
	slog.Info("commit completed", "session_id", sess.Info.ID, "commit_hash", commitHash, "branch", branch)
}

func (r *Relay) handleDiffCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		slog.Error("failed to defer diff interaction", "error", err)
		return
	}

	sess, ok := r.sessionForInteraction(s, i)
	if !ok {
		return
	}

	diff, err := r.workspaces.Diff(sess.Info.WorktreePath)
	if err != nil {
		slog.Error("failed to generate diff", "session_id", sess.Info.ID, "error", err)
		respondEdit(s, i, "Failed to generate diff.")
		return
	}

	respondEdit(s, i, "Diff generated:")
	for _, chunk := range chunkMessage(diff, maxMessageLength) {
		r.send(i.ChannelID, "```diff\n"+chunk+"\n```")
	}
}

func (r *Relay) handleTranscriptCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		slog.Error("failed to defer transcript interaction", "error", err)
		return
	}

	sess, ok := r.sessionForInteraction(s, i)
	if !ok {
		return
	}

	respondEdit(s, i, fmt.Sprintf("Transcript for session %s:", sess.Info.Name))
	for _, chunk := range RenderTranscript(sess.Snapshot()) {
		r.send(i.ChannelID, chunk)
	}
}
