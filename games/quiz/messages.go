package quiz

import (
	"encoding/json"
	"fmt"
)

// Inbound is a control message read from a channel. The set of
// implementations is closed: StartGame, NextQuestion, AnswerSubmitted.
type Inbound interface {
	inbound()
}

type StartGame struct{}

type NextQuestion struct{}

// AnswerSubmitted is an informational relay; scoring happens through
// Coordinator.Submit. PlayerName is decoded but ignored: the relay always
// names the participant of the sending channel.
type AnswerSubmitted struct {
	PlayerName string `json:"player_name,omitempty"`
}

func (StartGame) inbound()       {}
func (NextQuestion) inbound()    {}
func (AnswerSubmitted) inbound() {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeInbound parses {"type": ..., "data": {...}}.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, validationFailed("malformed message: %v", err)
	}

	switch env.Type {
	case "start_game":
		return StartGame{}, nil
	case "next_question":
		return NextQuestion{}, nil
	case "answer_submitted":
		var msg AnswerSubmitted
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &msg); err != nil {
				return nil, validationFailed("malformed answer_submitted: %v", err)
			}
		}
		return msg, nil
	case "":
		return nil, validationFailed("message has no type")
	default:
		return nil, validationFailed("unknown message type %q", env.Type)
	}
}

// Outbound is a message sent from the coordinator to channels.
type Outbound interface {
	MessageType() string
}

type PlayerJoined struct {
	PlayerName  string `json:"player_name"`
	PlayerCount int    `json:"player_count"`
}

type PlayerLeft struct {
	PlayerName string `json:"player_name"`
}

// AnswerView is an answer as players see it, without the correct flag.
type AnswerView struct {
	ID    uint   `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

type QuestionView struct {
	ID        uint         `json:"id"`
	Text      string       `json:"text"`
	TimeLimit int          `json:"time_limit"`
	Answers   []AnswerView `json:"answers"`
}

type QuestionStart struct {
	Question       QuestionView `json:"question"`
	QuestionNumber int          `json:"question_number"`
	TotalQuestions int          `json:"total_questions"`
}

type GameFinished struct {
	SessionCode string `json:"session_code"`
}

type AnswerReceived struct {
	PlayerName string `json:"player_name"`
}

// SessionInfo is sent to a single channel right after it attaches.
type SessionInfo struct {
	SessionCode     string `json:"session_code"`
	Status          Status `json:"status"`
	Role            Role   `json:"role"`
	PlayerCount     int    `json:"player_count"`
	CurrentQuestion int    `json:"current_question"`
}

// ErrorMessage reports a failure to the channel that caused it.
type ErrorMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (PlayerJoined) MessageType() string   { return "player_joined" }
func (PlayerLeft) MessageType() string     { return "player_left" }
func (QuestionStart) MessageType() string  { return "question_start" }
func (GameFinished) MessageType() string   { return "game_finished" }
func (AnswerReceived) MessageType() string { return "answer_received" }
func (SessionInfo) MessageType() string    { return "session_info" }
func (ErrorMessage) MessageType() string   { return "error" }

// Wire wraps msg in its {"type", "data"} envelope, ready for encoding.
func Wire(msg Outbound) any {
	return struct {
		Type string   `json:"type"`
		Data Outbound `json:"data"`
	}{
		Type: msg.MessageType(),
		Data: msg,
	}
}

// EncodeOutbound renders msg as JSON.
func EncodeOutbound(msg Outbound) ([]byte, error) {
	out, err := json.Marshal(Wire(msg))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), err)
	}
	return out, nil
}

func errorMessage(err error) ErrorMessage {
	return ErrorMessage{
		Kind:    KindOf(err).String(),
		Message: err.Error(),
	}
}

func viewQuestion(q Question) QuestionView {
	answers := make([]AnswerView, 0, len(q.Answers))
	for _, a := range q.Answers {
		answers = append(answers, AnswerView{
			ID:    a.ID,
			Text:  a.Text,
			Order: a.Position,
		})
	}

	return QuestionView{
		ID:        q.ID,
		Text:      q.Text,
		TimeLimit: q.TimeLimit,
		Answers:   answers,
	}
}
