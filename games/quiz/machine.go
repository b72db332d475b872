package quiz

import "time"

// start moves a waiting session to its first question.
func (g *GameSession) start(now time.Time) error {
	if g.Status != StatusWaiting {
		return invalidState("game %s cannot start while %s", g.Code, g.Status)
	}

	g.Status = StatusActive
	g.StartedAt = &now
	g.CurrentQuestion = 0

	return nil
}

// advance moves an active session to the next of total questions,
// finishing it once the pointer runs past the last one.
func (g *GameSession) advance(total int, now time.Time) error {
	if g.Status != StatusActive {
		return invalidState("game %s cannot advance while %s", g.Code, g.Status)
	}

	g.CurrentQuestion++

	if g.CurrentQuestion >= total {
		g.Status = StatusFinished
		g.FinishedAt = &now
	}

	return nil
}

// acceptsAnswers reports whether submissions may be scored.
func (g *GameSession) acceptsAnswers() bool {
	return g.Status == StatusActive
}
