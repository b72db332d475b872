package quiz

import "strconv"

// target addresses the room of one session. The code is what channels
// see; the id keeps a finished session's room apart from a newer session
// that drew the same code.
type target struct {
	id   uint
	code string
}

func targetOf(session *GameSession) target {
	return target{id: session.ID, code: session.Code}
}

func roomOf(sessionID uint) string {
	return strconv.FormatUint(uint64(sessionID), 10)
}

func (t target) room() string {
	return roomOf(t.id)
}

// Dispatcher turns session events into broadcasts. It never touches
// session state and never retries.
type Dispatcher struct {
	registry *Registry
	logf     func(format string, args ...any)
}

func NewDispatcher(registry *Registry, logf func(format string, args ...any)) *Dispatcher {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	return &Dispatcher{
		registry: registry,
		logf:     logf,
	}
}

func (d *Dispatcher) send(t target, msg Outbound) int {
	n := d.registry.Broadcast(t.room(), msg)
	d.logf("GAMES: Sent %s to %d channel(s) in %s", msg.MessageType(), n, t.code)

	return n
}

// Transition announces the state a session has just moved into: the
// current question while active, the end of the game once finished.
func (d *Dispatcher) Transition(session *GameSession, questions []Question) int {
	switch session.Status {
	case StatusActive:
		i := session.CurrentQuestion
		if i < 0 || i >= len(questions) {
			return 0
		}
		return d.QuestionStart(targetOf(session), questions[i], i, len(questions))
	case StatusFinished:
		return d.GameFinished(targetOf(session))
	default:
		return 0
	}
}

// QuestionStart announces the question at zero-based index.
func (d *Dispatcher) QuestionStart(t target, q Question, index, total int) int {
	return d.send(t, QuestionStart{
		Question:       viewQuestion(q),
		QuestionNumber: index + 1,
		TotalQuestions: total,
	})
}

func (d *Dispatcher) GameFinished(t target) int {
	return d.send(t, GameFinished{SessionCode: t.code})
}

func (d *Dispatcher) PlayerJoined(t target, name string, count int) int {
	return d.send(t, PlayerJoined{PlayerName: name, PlayerCount: count})
}

func (d *Dispatcher) PlayerLeft(t target, name string) int {
	return d.send(t, PlayerLeft{PlayerName: name})
}

func (d *Dispatcher) AnswerReceived(t target, name string) int {
	return d.send(t, AnswerReceived{PlayerName: name})
}
