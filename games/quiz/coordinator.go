/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

const maxNameLength = 100

// Role is fixed when a channel attaches.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Participant is one attached channel, addressed as {code}/{name}.
type Participant struct {
	Code      string
	Name      string
	Role      Role
	SessionID uint
	PlayerID  uint // zero for the host
	Channel   Channel

	detached atomic.Bool
}

type Options struct {
	Store       *Store
	HostSecret  []byte
	TicketTTL   time.Duration
	IdleTimeout time.Duration
	Logf        func(format string, args ...any)
}

// HostTicket is returned when a session is started. Ticket admits any
// channel that presents it as host until it expires, so a host can
// reconnect.
type HostTicket struct {
	Session *GameSession `json:"session"`
	Ticket  string       `json:"host_ticket"`
}

func (p *Participant) target() target {
	return target{id: p.SessionID, code: p.Code}
}

// progress describes session for the log; only an active session has a
// current question.
func progress(session *GameSession, total int) string {
	if session.Status != StatusActive {
		return string(session.Status)
	}

	return fmt.Sprintf("%s (question %d of %d)", session.Status, session.CurrentQuestion+1, total)
}

// Coordinator owns membership, transitions and scoring for every live
// session in the process.
type Coordinator struct {
	store    *Store
	registry *Registry
	dispatch *Dispatcher
	tickets  *Tickets
	hubs     *hubs
	logf     func(format string, args ...any)
	now      func() time.Time
}

func New(opts Options) *Coordinator {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	registry := NewRegistry()

	return &Coordinator{
		store:    opts.Store,
		registry: registry,
		dispatch: NewDispatcher(registry, logf),
		tickets:  NewTickets(opts.HostSecret, opts.TicketTTL),
		hubs:     newHubs(opts.IdleTimeout),
		logf:     logf,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Close stops every hub. Attached channels are left to their owners.
func (c *Coordinator) Close() {
	c.hubs.close()
}

func (c *Coordinator) Store() *Store {
	return c.store
}

func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// StartSession opens a waiting session for quizID and issues its host
// ticket.
func (c *Coordinator) StartSession(ctx context.Context, quizID uint) (*HostTicket, error) {
	session, err := c.store.CreateSession(ctx, quizID)
	if err != nil {
		return nil, err
	}

	ticket, err := c.tickets.Issue(session, c.now())
	if err != nil {
		return nil, err
	}

	c.logf("GAMES: Created game %s for quiz %d", session.Code, quizID)

	return &HostTicket{
		Session: session,
		Ticket:  ticket,
	}, nil
}

func (c *Coordinator) Session(ctx context.Context, code string) (*GameSession, error) {
	return c.store.SessionByCode(ctx, code)
}

func (c *Coordinator) Players(ctx context.Context, code string) ([]Player, error) {
	session, err := c.store.SessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	return c.store.Players(ctx, session.ID)
}

// Join registers a new player name in a waiting session.
func (c *Coordinator) Join(ctx context.Context, code, name string) (*Player, error) {
	if strings.TrimSpace(name) == "" {
		return nil, validationFailed("player name must not be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, validationFailed("player name must be at most %d characters", maxNameLength)
	}

	player, err := c.store.AddPlayer(ctx, code, name)
	if err != nil {
		return nil, err
	}

	c.logf("GAMES: Player %q joined %s", name, code)

	return player, nil
}

// Attach admits ch to code. A non-empty ticket must be the session's host
// ticket; otherwise name must be a player who already joined.
func (c *Coordinator) Attach(ctx context.Context, code, name, ticket string, ch Channel) (*Participant, error) {
	session, err := c.store.SessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	p := &Participant{
		Code:      code,
		Name:      name,
		Role:      RolePlayer,
		SessionID: session.ID,
		Channel:   ch,
	}

	if ticket != "" {
		if err := c.tickets.Verify(ticket, session); err != nil {
			return nil, err
		}
		p.Role = RoleHost
	} else {
		player, err := c.store.PlayerByName(ctx, session.ID, name)
		if err != nil {
			return nil, err
		}
		p.PlayerID = player.ID

		if err := c.store.SetConnected(ctx, player.ID, true); err != nil {
			return nil, err
		}
	}

	count, err := c.store.CountPlayers(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	_ = ch.Send(SessionInfo{
		SessionCode:     code,
		Status:          session.Status,
		Role:            p.Role,
		PlayerCount:     count,
		CurrentQuestion: session.CurrentQuestion,
	})

	c.registry.Join(roomOf(session.ID), ch)
	c.logf("GAMES: %s %q attached to %s", p.Role, name, code)

	if p.Role == RolePlayer {
		c.dispatch.PlayerJoined(targetOf(session), name, count)
	}

	return p, nil
}

// Detach removes p from its session. Only the first call has an effect.
func (c *Coordinator) Detach(ctx context.Context, p *Participant) {
	if !p.detached.CompareAndSwap(false, true) {
		return
	}

	c.registry.Leave(roomOf(p.SessionID), p.Channel)
	c.logf("GAMES: %s %q detached from %s", p.Role, p.Name, p.Code)

	if p.Role != RolePlayer {
		return
	}

	if err := c.store.SetConnected(ctx, p.PlayerID, false); err != nil {
		c.logf("GAMES: Marking %q disconnected in %s failed: %v", p.Name, p.Code, err)
	}

	c.dispatch.PlayerLeft(p.target(), p.Name)
}

// Handle applies one inbound message from p.
func (c *Coordinator) Handle(ctx context.Context, p *Participant, msg Inbound) error {
	switch msg.(type) {
	case StartGame:
		if p.Role != RoleHost {
			return forbidden("only the host can start the game")
		}
		return c.Start(ctx, p.Code)
	case NextQuestion:
		if p.Role != RoleHost {
			return forbidden("only the host can advance the game")
		}
		return c.Advance(ctx, p.Code)
	case AnswerSubmitted:
		c.dispatch.AnswerReceived(p.target(), p.Name)
		return nil
	default:
		return validationFailed("unsupported message %T", msg)
	}
}

// Start moves a waiting session to its first question.
func (c *Coordinator) Start(ctx context.Context, code string) error {
	return c.transition(ctx, code, func(g *GameSession, _ []Question) error {
		return g.start(c.now())
	})
}

// Advance moves an active session to its next question, or finishes it.
func (c *Coordinator) Advance(ctx context.Context, code string) error {
	return c.transition(ctx, code, func(g *GameSession, questions []Question) error {
		return g.advance(len(questions), c.now())
	})
}

func (c *Coordinator) transition(ctx context.Context, code string, step func(*GameSession, []Question) error) error {
	return c.hubs.do(ctx, code, func(ctx context.Context) error {
		session, questions, err := c.store.Transition(ctx, code, step)
		if err != nil {
			return err
		}

		c.logf("GAMES: Game %s is %s", code, progress(session, len(questions)))
		c.dispatch.Transition(session, questions)

		return nil
	})
}

// Submit scores one answer and acknowledges it to the session.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) (*Score, error) {
	score, player, err := c.store.RecordScore(ctx, sub)
	if err != nil {
		return nil, err
	}

	c.logf("GAMES: %q scored %d on question %d in %s", player.Name, score.Points, score.QuestionID, sub.Code)
	c.dispatch.AnswerReceived(target{id: score.GameSessionID, code: sub.Code}, player.Name)

	return score, nil
}

func (c *Coordinator) Leaderboard(ctx context.Context, code string) (*Leaderboard, error) {
	return c.store.Leaderboard(ctx, code)
}

// DeleteSession removes the session with its players and scores and
// closes every channel still attached to it.
func (c *Coordinator) DeleteSession(ctx context.Context, code string) error {
	session, err := c.store.DeleteSession(ctx, code)
	if err != nil {
		return err
	}

	c.registry.CloseAll(roomOf(session.ID))
	c.logf("GAMES: Deleted game %s", code)

	return nil
}
