package genie

import (
	"context"
	"fmt"
	"time"
)

// Message statuses the service reports. Anything outside the terminal pair
// (the service has used PENDING, RUNNING, EXECUTING_QUERY and others) counts
// as still in flight.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Session identifies the conversation a caller is currently driving.
// It is explicit state passed in and out of lifecycle calls; there is no
// process-wide current conversation.
type Session struct {
	SpaceID        string
	ConversationID string
	MessageID      string
}

// Message is one turn of a Genie conversation as returned by the service.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Status         string       `json:"status"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments"`
}

// Terminal reports whether the message status can no longer change.
func (m *Message) Terminal() bool {
	return m.Status == StatusCompleted || m.Status == StatusFailed
}

type startConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type followUpResponse struct {
	MessageID string `json:"message_id"`
}

// StartConversation sends the first prompt into a space. The service is the
// source of truth for conversation creation: no idempotency key is sent, so
// a retry after a transient failure may create a duplicate conversation.
func (c *Client) StartConversation(ctx context.Context, spaceID, content string) (Session, error) {
	var resp startConversationResponse
	path := fmt.Sprintf("/spaces/%s/start-conversation", spaceID)
	if err := c.do(ctx, "POST", path, map[string]string{"content": content}, &resp); err != nil {
		return Session{}, err
	}
	return Session{
		SpaceID:        spaceID,
		ConversationID: resp.ConversationID,
		MessageID:      resp.MessageID,
	}, nil
}

// SendFollowUp sends another prompt on an existing conversation and returns
// the id of the new message, which becomes the current one for polling.
func (c *Client) SendFollowUp(ctx context.Context, spaceID, conversationID, content string) (string, error) {
	var resp followUpResponse
	path := fmt.Sprintf("/spaces/%s/conversations/%s/messages", spaceID, conversationID)
	if err := c.do(ctx, "POST", path, map[string]string{"content": content}, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// Poll fetches the message until its status is terminal, sleeping the poll
// interval between fetches. It never returns a non-terminal message: the
// outcome is a COMPLETED or FAILED message, a *TimeoutError once the poll
// budget is spent, a transport error, or ctx's error if cancelled mid-sleep.
// Callers must not poll the same message concurrently; a poll that timed out
// may simply be issued again.
func (c *Client) Poll(ctx context.Context, spaceID, conversationID, messageID string) (*Message, error) {
	path := fmt.Sprintf("/spaces/%s/conversations/%s/messages/%s", spaceID, conversationID, messageID)
	begin := c.now()

	for {
		if elapsed := c.now().Sub(begin); elapsed >= c.pollTimeout {
			return nil, &TimeoutError{Elapsed: elapsed}
		}

		var msg Message
		if err := c.do(ctx, "GET", path, nil, &msg); err != nil {
			return nil, err
		}
		if msg.Terminal() {
			return &msg, nil
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}
}

// HistoryEntry links a prompt to the conversation turn it produced.
// Entries are immutable; retrieval order is insertion order.
type HistoryEntry struct {
	Prompt         string
	ConversationID string
	MessageID      string
	SpaceID        string
	User           string
	Timestamp      time.Time
}

// Recorder is the append-only sink for exchanged prompts. Implementations
// must tolerate concurrent appends from independent sessions.
type Recorder interface {
	Record(ctx context.Context, e HistoryEntry) error
}

// Conversation drives one multi-turn exchange for a single user session.
// Not safe for concurrent use; each session owns its own instance. The
// embedded Session is updated in place as turns are sent.
type Conversation struct {
	Session

	client   *Client
	recorder Recorder // optional
	user     string
}

// NewConversation creates a session-scoped driver. Pass an existing Session
// through ResumeConversation to continue a conversation from a prior turn.
func NewConversation(client *Client, recorder Recorder, user string) *Conversation {
	return &Conversation{client: client, recorder: recorder, user: user}
}

// ResumeConversation creates a driver positioned on an existing conversation.
func ResumeConversation(client *Client, recorder Recorder, user string, s Session) *Conversation {
	cv := NewConversation(client, recorder, user)
	cv.Session = s
	return cv
}

// Start opens a new conversation with the given prompt and records a history
// entry. It does not wait for the answer; call Await for that.
func (cv *Conversation) Start(ctx context.Context, spaceID, prompt string) error {
	s, err := cv.client.StartConversation(ctx, spaceID, prompt)
	if err != nil {
		return err
	}
	cv.Session = s
	return cv.record(ctx, prompt)
}

// FollowUp sends another prompt on the current conversation. The returned
// message id becomes the session's current message.
func (cv *Conversation) FollowUp(ctx context.Context, prompt string) error {
	if cv.ConversationID == "" {
		return fmt.Errorf("no conversation in progress")
	}
	msgID, err := cv.client.SendFollowUp(ctx, cv.SpaceID, cv.ConversationID, prompt)
	if err != nil {
		return err
	}
	cv.MessageID = msgID
	return cv.record(ctx, prompt)
}

// Await polls the session's current message to a terminal status.
func (cv *Conversation) Await(ctx context.Context) (*Message, error) {
	return cv.client.Poll(ctx, cv.SpaceID, cv.ConversationID, cv.MessageID)
}

func (cv *Conversation) record(ctx context.Context, prompt string) error {
	if cv.recorder == nil {
		return nil
	}
	return cv.recorder.Record(ctx, HistoryEntry{
		Prompt:         prompt,
		ConversationID: cv.ConversationID,
		MessageID:      cv.MessageID,
		SpaceID:        cv.SpaceID,
		User:           cv.user,
		Timestamp:      time.Now().UTC(),
	})
}
