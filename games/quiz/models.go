package quiz

import "time"

// Status is the lifecycle state of a GameSession.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

type Quiz struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Questions   []Question `json:"questions"`
}

type Question struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	QuizID    uint     `gorm:"index;not null" json:"quiz_id"`
	Text      string   `gorm:"type:text;not null" json:"text"`
	TimeLimit int      `gorm:"not null" json:"time_limit"` // seconds
	Position  int      `gorm:"not null" json:"order"`
	Answers   []Answer `json:"answers"`
}

type Answer struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	QuestionID uint   `gorm:"index;not null" json:"question_id"`
	Text       string `gorm:"size:500;not null" json:"text"`
	IsCorrect  bool   `gorm:"not null" json:"is_correct"`
	Position   int    `gorm:"not null" json:"order"`
}

// GameSession is one run of a quiz, addressed by its 6-digit code.
// CurrentQuestion is only meaningful while Status is active.
type GameSession struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	QuizID          uint       `gorm:"index;not null" json:"quiz_id"`
	Code            string     `gorm:"size:6;index;not null" json:"game_code"`
	Status          Status     `gorm:"size:20;not null" json:"status"`
	CurrentQuestion int        `gorm:"not null" json:"current_question"`
	StartedAt       *time.Time `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

type Player struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	GameSessionID uint      `gorm:"not null;uniqueIndex:idx_players_session_name" json:"-"`
	Name          string    `gorm:"size:100;not null;uniqueIndex:idx_players_session_name" json:"player_name"`
	Connected     bool      `gorm:"not null" json:"is_connected"`
	JoinedAt      time.Time `json:"joined_at"`
}

// Score is one recorded submission. The unique index is what keeps a
// player from scoring the same question twice.
type Score struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	GameSessionID uint      `gorm:"not null;uniqueIndex:idx_scores_once" json:"-"`
	PlayerID      uint      `gorm:"not null;uniqueIndex:idx_scores_once" json:"player_id"`
	QuestionID    uint      `gorm:"not null;uniqueIndex:idx_scores_once" json:"question_id"`
	AnswerID      *uint     `json:"answer_id"`
	IsCorrect     bool      `gorm:"not null" json:"is_correct"`
	Points        int       `gorm:"not null" json:"points"`
	ElapsedMS     int64     `gorm:"not null" json:"elapsed_ms"`
	AnsweredAt    time.Time `json:"answered_at"`
}

// QuizSummary is a quiz without its questions, for listings.
type QuizSummary struct {
	ID            uint      `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
	QuestionCount int       `json:"question_count"`
}

type LeaderboardEntry struct {
	PlayerID       uint   `json:"player_id"`
	PlayerName     string `json:"player_name"`
	TotalScore     int    `json:"total_score"`
	CorrectAnswers int    `json:"correct_answers"`
	Rank           int    `json:"rank"`
}

type Leaderboard struct {
	Entries        []LeaderboardEntry `json:"entries"`
	TotalQuestions int                `json:"total_questions"`
}
