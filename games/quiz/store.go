/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	codeLength   = 6
	codeAttempts = 32
)

// Store is the system of record for quizzes, sessions, players and scores.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

type printf func(format string, args ...any)

func (p printf) Printf(format string, args ...any) { p(format, args...) }

// Open connects to the named driver ("sqlite" or "postgres") and migrates
// the schema. A nil logf silences the query logger.
func Open(driver, dsn string, logf func(format string, args ...any)) (*Store, error) {
	var dialector gorm.Dialector

	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	gormLogger := logger.Discard
	if logf != nil {
		gormLogger = logger.New(printf(logf), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows one writer; a single connection makes transactions
		// queue instead of failing with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}

	return NewStore(db)
}

// NewStore wraps an existing gorm handle and migrates the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	err := db.AutoMigrate(&Quiz{}, &Question{}, &Answer{}, &GameSession{}, &Player{}, &Score{})
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// randomCode returns a uniformly distributed string of decimal digits.
func randomCode(n int) (string, error) {
	const digits = "0123456789"
	const max = byte(255 - (256 % len(digits)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, digits[int(b)%len(digits)])
				if len(out) == n {
					break
				}
			}
		}
	}

	return string(out), nil
}

// CreateSession opens a waiting session for quizID under a fresh code
// that no other unfinished session holds.
func (s *Store) CreateSession(ctx context.Context, quizID uint) (*GameSession, error) {
	var session GameSession

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var quiz Quiz
		if err := tx.Take(&quiz, quizID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("quiz %d not found", quizID)
			}
			return err
		}

		var questions int64
		if err := tx.Model(&Question{}).Where("quiz_id = ?", quizID).Count(&questions).Error; err != nil {
			return err
		}
		if questions == 0 {
			return validationFailed("quiz %d has no questions", quizID)
		}

		for range codeAttempts {
			code, err := randomCode(codeLength)
			if err != nil {
				return err
			}

			var taken int64
			err = tx.Model(&GameSession{}).
				Where("code = ? AND status <> ?", code, StatusFinished).
				Count(&taken).Error
			if err != nil {
				return err
			}
			if taken > 0 {
				continue
			}

			session = GameSession{
				QuizID: quizID,
				Code:   code,
				Status: StatusWaiting,
			}
			return tx.Create(&session).Error
		}

		return conflict("no free session code after %d attempts", codeAttempts)
	})
	if err != nil {
		return nil, err
	}

	return &session, nil
}

func sessionByCode(tx *gorm.DB, code string) (*GameSession, error) {
	var session GameSession

	// Codes are reused once a session finishes; the newest one is live.
	err := tx.Where("code = ?", code).Order("id DESC").Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("game %s not found", code)
	}
	if err != nil {
		return nil, err
	}

	return &session, nil
}

// forShare read-locks the rows tx selects where the engine has row locks.
// A Transition's UPDATE then waits for the caller to commit, and the
// caller's read waits for a committed Transition. sqlite runs on a single
// connection and needs neither.
func forShare(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}

	return tx.Clauses(clause.Locking{Strength: "SHARE"})
}

func (s *Store) SessionByCode(ctx context.Context, code string) (*GameSession, error) {
	return sessionByCode(s.db.WithContext(ctx), code)
}

func questionsOf(tx *gorm.DB, quizID uint) ([]Question, error) {
	var questions []Question

	err := tx.Where("quiz_id = ?", quizID).
		Order("position, id").
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position, id")
		}).
		Find(&questions).Error
	if err != nil {
		return nil, err
	}

	return questions, nil
}

// Questions lists a quiz's questions in play order, answers included.
func (s *Store) Questions(ctx context.Context, quizID uint) ([]Question, error) {
	return questionsOf(s.db.WithContext(ctx), quizID)
}

// Transition applies step to the session addressed by code and persists
// the result only if nobody changed status or question pointer meanwhile.
func (s *Store) Transition(ctx context.Context, code string, step func(*GameSession, []Question) error) (*GameSession, []Question, error) {
	var (
		session   *GameSession
		questions []Question
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error

		session, err = sessionByCode(tx, code)
		if err != nil {
			return err
		}

		questions, err = questionsOf(tx, session.QuizID)
		if err != nil {
			return err
		}

		before := *session
		if err := step(session, questions); err != nil {
			return err
		}

		res := tx.Model(&GameSession{}).
			Where("id = ? AND status = ? AND current_question = ?", before.ID, before.Status, before.CurrentQuestion).
			Updates(map[string]any{
				"status":           session.Status,
				"current_question": session.CurrentQuestion,
				"started_at":       session.StartedAt,
				"finished_at":      session.FinishedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("game %s changed concurrently", code)
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return session, questions, nil
}

// AddPlayer registers name in the waiting session addressed by code.
func (s *Store) AddPlayer(ctx context.Context, code, name string) (*Player, error) {
	var player Player

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := sessionByCode(forShare(tx), code)
		if err != nil {
			return err
		}

		if session.Status != StatusWaiting {
			return invalidState("game %s is %s and no longer accepts players", code, session.Status)
		}

		var taken int64
		err = tx.Model(&Player{}).
			Where("game_session_id = ? AND name = ?", session.ID, name).
			Count(&taken).Error
		if err != nil {
			return err
		}
		if taken > 0 {
			return conflict("name %q is already in use", name)
		}

		player = Player{
			GameSessionID: session.ID,
			Name:          name,
			JoinedAt:      s.now(),
		}
		if err := tx.Create(&player).Error; err != nil {
			if isDuplicate(err) {
				return conflict("name %q is already in use", name)
			}
			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &player, nil
}

func (s *Store) PlayerByName(ctx context.Context, sessionID uint, name string) (*Player, error) {
	var player Player

	err := s.db.WithContext(ctx).
		Where("game_session_id = ? AND name = ?", sessionID, name).
		Take(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("player %q not found", name)
	}
	if err != nil {
		return nil, err
	}

	return &player, nil
}

// Players lists a session's players in join order.
func (s *Store) Players(ctx context.Context, sessionID uint) ([]Player, error) {
	var players []Player

	err := s.db.WithContext(ctx).
		Where("game_session_id = ?", sessionID).
		Order("id").
		Find(&players).Error
	if err != nil {
		return nil, err
	}

	return players, nil
}

func (s *Store) CountPlayers(ctx context.Context, sessionID uint) (int, error) {
	var n int64

	err := s.db.WithContext(ctx).Model(&Player{}).Where("game_session_id = ?", sessionID).Count(&n).Error

	return int(n), err
}

func (s *Store) SetConnected(ctx context.Context, playerID uint, connected bool) error {
	return s.db.WithContext(ctx).
		Model(&Player{}).
		Where("id = ?", playerID).
		Update("connected", connected).Error
}

func deleteSession(tx *gorm.DB, sessionID uint) error {
	if err := tx.Where("game_session_id = ?", sessionID).Delete(&Score{}).Error; err != nil {
		return err
	}
	if err := tx.Where("game_session_id = ?", sessionID).Delete(&Player{}).Error; err != nil {
		return err
	}
	return tx.Delete(&GameSession{}, sessionID).Error
}

// DeleteSession removes the session addressed by code together with its
// players and their scores, and returns what it removed.
func (s *Store) DeleteSession(ctx context.Context, code string) (*GameSession, error) {
	var session *GameSession

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error

		session, err = sessionByCode(tx, code)
		if err != nil {
			return err
		}

		return deleteSession(tx, session.ID)
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}
