/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"context"
	"errors"
	"sort"

	"gorm.io/gorm"
)

const (
	maxPoints  = 1000
	latePoints = 100
)

// Submission is one authoritative answer from a player.
type Submission struct {
	Code       string `json:"game_code"`
	PlayerID   uint   `json:"player_id"`
	QuestionID uint   `json:"question_id"`
	AnswerID   uint   `json:"answer_id"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// Points decays linearly from 1000 at zero elapsed time towards 0 at the
// question's limit. Correct answers at or past the limit still earn 100.
func Points(correct bool, timeLimit int, elapsedMS int64) int {
	if !correct {
		return 0
	}

	if elapsedMS < 0 {
		elapsedMS = 0
	}

	limitMS := int64(timeLimit) * 1000
	if elapsedMS >= limitMS {
		return latePoints
	}

	return int(maxPoints * (limitMS - elapsedMS) / limitMS)
}

// RecordScore validates sub and stores its Score, returning it with the
// submitting player. The duplicate check and the insert share one
// transaction; the unique index on (session, player, question) catches
// whatever races past the check.
func (s *Store) RecordScore(ctx context.Context, sub Submission) (*Score, *Player, error) {
	if sub.ElapsedMS < 0 {
		return nil, nil, validationFailed("elapsed time must not be negative")
	}

	var (
		score  Score
		player Player
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := sessionByCode(forShare(tx), sub.Code)
		if err != nil {
			return err
		}

		if !session.acceptsAnswers() {
			return invalidState("game %s is not active", sub.Code)
		}

		err = tx.Where("id = ? AND game_session_id = ?", sub.PlayerID, session.ID).Take(&player).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("player %d not found in game %s", sub.PlayerID, sub.Code)
		}
		if err != nil {
			return err
		}

		var prior int64
		err = tx.Model(&Score{}).
			Where("game_session_id = ? AND player_id = ? AND question_id = ?", session.ID, player.ID, sub.QuestionID).
			Count(&prior).Error
		if err != nil {
			return err
		}
		if prior > 0 {
			return conflict("question %d already answered", sub.QuestionID)
		}

		var answer Answer
		err = tx.Take(&answer, sub.AnswerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("answer %d not found", sub.AnswerID)
		}
		if err != nil {
			return err
		}

		var question Question
		err = tx.Take(&question, sub.QuestionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("question %d not found", sub.QuestionID)
		}
		if err != nil {
			return err
		}

		if question.QuizID != session.QuizID {
			return notFound("question %d is not part of game %s", question.ID, sub.Code)
		}
		if answer.QuestionID != question.ID {
			return validationFailed("answer %d does not belong to question %d", answer.ID, question.ID)
		}

		answerID := answer.ID
		score = Score{
			GameSessionID: session.ID,
			PlayerID:      player.ID,
			QuestionID:    question.ID,
			AnswerID:      &answerID,
			IsCorrect:     answer.IsCorrect,
			Points:        Points(answer.IsCorrect, question.TimeLimit, sub.ElapsedMS),
			ElapsedMS:     sub.ElapsedMS,
			AnsweredAt:    s.now(),
		}
		if err := tx.Create(&score).Error; err != nil {
			if isDuplicate(err) {
				return conflict("question %d already answered", sub.QuestionID)
			}
			return err
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return &score, &player, nil
}

// Leaderboard ranks every player of the session by total points. Ties
// keep join order (ascending player id); ranks run 1..n without gaps.
func (s *Store) Leaderboard(ctx context.Context, code string) (*Leaderboard, error) {
	db := s.db.WithContext(ctx)

	session, err := sessionByCode(db, code)
	if err != nil {
		return nil, err
	}

	var players []Player
	if err := db.Where("game_session_id = ?", session.ID).Order("id").Find(&players).Error; err != nil {
		return nil, err
	}

	var scores []Score
	if err := db.Where("game_session_id = ?", session.ID).Find(&scores).Error; err != nil {
		return nil, err
	}

	var total int64
	if err := db.Model(&Question{}).Where("quiz_id = ?", session.QuizID).Count(&total).Error; err != nil {
		return nil, err
	}

	return rank(players, scores, int(total)), nil
}

// rank expects players in ascending id order.
func rank(players []Player, scores []Score, totalQuestions int) *Leaderboard {
	entries := make([]LeaderboardEntry, 0, len(players))
	index := make(map[uint]int, len(players))

	for _, p := range players {
		index[p.ID] = len(entries)
		entries = append(entries, LeaderboardEntry{
			PlayerID:   p.ID,
			PlayerName: p.Name,
		})
	}

	for _, sc := range scores {
		i, ok := index[sc.PlayerID]
		if !ok {
			continue
		}
		entries[i].TotalScore += sc.Points
		if sc.IsCorrect {
			entries[i].CorrectAnswers++
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalScore > entries[j].TotalScore
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}

	return &Leaderboard{
		Entries:        entries,
		TotalQuestions: totalQuestions,
	}
}
