package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/go-playground/validator.v9"
	"gorm.io/gorm"
)

const (
	defaultTimeLimit = 30
	maxListLimit     = 100
)

type AnswerInput struct {
	Text      string `json:"text" validate:"required,max=500"`
	IsCorrect bool   `json:"is_correct"`
}

type QuestionInput struct {
	Text      string        `json:"text" validate:"required"`
	TimeLimit int           `json:"time_limit" validate:"omitempty,min=5,max=120"`
	Answers   []AnswerInput `json:"answers" validate:"min=2,max=4,dive"`
}

// QuizInput is the authoring payload for creating or replacing a quiz.
type QuizInput struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description"`
	Questions   []QuestionInput `json:"questions" validate:"min=1,dive"`
}

var validate = validator.New()

// Validate checks field bounds and that every question has exactly one
// correct answer.
func (in *QuizInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		var fields validator.ValidationErrors
		if !errors.As(err, &fields) {
			return validationFailed("%v", err)
		}

		problems := make([]string, 0, len(fields))
		for _, fe := range fields {
			problem := fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
			if fe.Param() != "" {
				problem += "=" + fe.Param()
			}
			problems = append(problems, problem)
		}

		return validationFailed("invalid quiz: %s", strings.Join(problems, "; "))
	}

	for i, q := range in.Questions {
		correct := 0
		for _, a := range q.Answers {
			if a.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return validationFailed("question %d (%q) must have exactly 1 correct answer, not %d", i+1, q.Text, correct)
		}
	}

	return nil
}

func insertQuestions(tx *gorm.DB, quizID uint, inputs []QuestionInput) error {
	for i, in := range inputs {
		limit := in.TimeLimit
		if limit == 0 {
			limit = defaultTimeLimit
		}

		question := Question{
			QuizID:    quizID,
			Text:      in.Text,
			TimeLimit: limit,
			Position:  i,
		}
		if err := tx.Create(&question).Error; err != nil {
			return err
		}

		answers := make([]Answer, 0, len(in.Answers))
		for j, a := range in.Answers {
			answers = append(answers, Answer{
				QuestionID: question.ID,
				Text:       a.Text,
				IsCorrect:  a.IsCorrect,
				Position:   j,
			})
		}
		if err := tx.Create(&answers).Error; err != nil {
			return err
		}
	}

	return nil
}

func deleteQuestions(tx *gorm.DB, quizID uint) error {
	ids := tx.Model(&Question{}).Select("id").Where("quiz_id = ?", quizID)

	if err := tx.Where("question_id IN (?)", ids).Delete(&Answer{}).Error; err != nil {
		return err
	}

	return tx.Where("quiz_id = ?", quizID).Delete(&Question{}).Error
}

func takeQuiz(tx *gorm.DB, id uint) (*Quiz, error) {
	var quiz Quiz

	err := tx.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position, id")
		}).
		Preload("Questions.Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position, id")
		}).
		Take(&quiz, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("quiz %d not found", id)
	}
	if err != nil {
		return nil, err
	}

	return &quiz, nil
}

// guardLive rejects changes to a quiz that a waiting or active session
// is playing.
func guardLive(tx *gorm.DB, quizID uint) error {
	var live int64

	err := tx.Model(&GameSession{}).
		Where("quiz_id = ? AND status <> ?", quizID, StatusFinished).
		Count(&live).Error
	if err != nil {
		return err
	}
	if live > 0 {
		return conflict("quiz %d is used by %d unfinished session(s)", quizID, live)
	}

	return nil
}

// guardPlayed rejects replacing the questions of a quiz that any session
// has used, so finished games keep the questions their scores point at.
func guardPlayed(tx *gorm.DB, quizID uint) error {
	var played int64

	err := tx.Model(&GameSession{}).Where("quiz_id = ?", quizID).Count(&played).Error
	if err != nil {
		return err
	}
	if played > 0 {
		return conflict("quiz %d has been played by %d session(s)", quizID, played)
	}

	return nil
}

// CreateQuiz stores a quiz with all its questions and answers, or nothing.
func (s *Store) CreateQuiz(ctx context.Context, in QuizInput) (*Quiz, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var quiz *Quiz

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created := Quiz{
			Title:       in.Title,
			Description: in.Description,
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}

		if err := insertQuestions(tx, created.ID, in.Questions); err != nil {
			return err
		}

		var err error
		quiz, err = takeQuiz(tx, created.ID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return quiz, nil
}

// UpdateQuiz replaces the metadata and every question of quiz id. Quizzes
// that a session has used are frozen.
func (s *Store) UpdateQuiz(ctx context.Context, id uint, in QuizInput) (*Quiz, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var quiz *Quiz

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := takeQuiz(tx, id); err != nil {
			return err
		}

		if err := guardPlayed(tx, id); err != nil {
			return err
		}

		err := tx.Model(&Quiz{}).Where("id = ?", id).Updates(map[string]any{
			"title":       in.Title,
			"description": in.Description,
			"updated_at":  s.now(),
		}).Error
		if err != nil {
			return err
		}

		if err := deleteQuestions(tx, id); err != nil {
			return err
		}

		if err := insertQuestions(tx, id, in.Questions); err != nil {
			return err
		}

		quiz, err = takeQuiz(tx, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	return quiz, nil
}

func (s *Store) Quiz(ctx context.Context, id uint) (*Quiz, error) {
	return takeQuiz(s.db.WithContext(ctx), id)
}

// ListQuizzes pages through quizzes by id, limit capped at 100.
func (s *Store) ListQuizzes(ctx context.Context, offset, limit int) ([]QuizSummary, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	db := s.db.WithContext(ctx)

	var quizzes []Quiz
	if err := db.Order("id").Offset(offset).Limit(limit).Find(&quizzes).Error; err != nil {
		return nil, err
	}

	summaries := make([]QuizSummary, 0, len(quizzes))
	if len(quizzes) == 0 {
		return summaries, nil
	}

	ids := make([]uint, 0, len(quizzes))
	for _, q := range quizzes {
		ids = append(ids, q.ID)
	}

	var counts []struct {
		QuizID uint
		N      int
	}
	err := db.Model(&Question{}).
		Select("quiz_id, count(*) AS n").
		Where("quiz_id IN ?", ids).
		Group("quiz_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	byQuiz := make(map[uint]int, len(counts))
	for _, c := range counts {
		byQuiz[c.QuizID] = c.N
	}

	for _, q := range quizzes {
		summaries = append(summaries, QuizSummary{
			ID:            q.ID,
			Title:         q.Title,
			Description:   q.Description,
			CreatedAt:     q.CreatedAt,
			QuestionCount: byQuiz[q.ID],
		})
	}

	return summaries, nil
}

// DeleteQuiz removes a quiz, its questions and answers, and every finished
// session that played it.
func (s *Store) DeleteQuiz(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := takeQuiz(tx, id); err != nil {
			return err
		}

		if err := guardLive(tx, id); err != nil {
			return err
		}

		var sessions []GameSession
		if err := tx.Where("quiz_id = ?", id).Find(&sessions).Error; err != nil {
			return err
		}
		for _, session := range sessions {
			if err := deleteSession(tx, session.ID); err != nil {
				return err
			}
		}

		if err := deleteQuestions(tx, id); err != nil {
			return err
		}

		return tx.Delete(&Quiz{}, id).Error
	})
}
