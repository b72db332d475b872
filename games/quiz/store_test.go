package quiz

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func countRows(t *testing.T, s *Store, model any) int64 {
	t.Helper()

	var n int64
	if err := s.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}

	return n
}

func TestCreateQuizRejectsInvalidInput(t *testing.T) {
	mutate := map[string]func(*QuizInput){
		"no correct answer": func(in *QuizInput) {
			in.Questions[1].Answers[0].IsCorrect = false
		},
		"two correct answers": func(in *QuizInput) {
			in.Questions[1].Answers[1].IsCorrect = true
		},
		"one answer": func(in *QuizInput) {
			in.Questions[0].Answers = in.Questions[0].Answers[:1]
		},
		"five answers": func(in *QuizInput) {
			for range 3 {
				in.Questions[0].Answers = append(in.Questions[0].Answers, AnswerInput{Text: "filler"})
			}
		},
		"time limit too short": func(in *QuizInput) {
			in.Questions[0].TimeLimit = 4
		},
		"time limit too long": func(in *QuizInput) {
			in.Questions[0].TimeLimit = 121
		},
		"no questions": func(in *QuizInput) {
			in.Questions = nil
		},
		"no title": func(in *QuizInput) {
			in.Title = ""
		},
		"empty answer text": func(in *QuizInput) {
			in.Questions[0].Answers[1].Text = ""
		},
	}

	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t)

			in := twoQuestionQuiz()
			fn(&in)

			_, err := s.CreateQuiz(context.Background(), in)
			wantKind(t, err, KindValidationFailed)

			for _, model := range []any{&Quiz{}, &Question{}, &Answer{}} {
				if n := countRows(t, s, model); n != 0 {
					t.Errorf("%T rows = %d after rejected create", model, n)
				}
			}
		})
	}
}

var errDiskFull = errors.New("disk full")

// failAnswerBatch makes the nth answer batch inserted on s fail.
func failAnswerBatch(t *testing.T, s *Store, nth int) {
	t.Helper()

	batches := 0
	err := s.db.Callback().Create().Before("gorm:create").Register("quizbox:fail_answers", func(db *gorm.DB) {
		if _, ok := db.Statement.Dest.(*[]Answer); !ok {
			return
		}
		batches++
		if batches == nth {
			_ = db.AddError(errDiskFull)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateQuizRollsBackOnWriteFailure(t *testing.T) {
	s := newTestStore(t)
	failAnswerBatch(t, s, 2)

	_, err := s.CreateQuiz(context.Background(), twoQuestionQuiz())
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("create = %v, want the injected failure", err)
	}

	for _, model := range []any{&Quiz{}, &Question{}, &Answer{}} {
		if n := countRows(t, s, model); n != 0 {
			t.Errorf("%T rows = %d after failed create", model, n)
		}
	}
}

func TestUpdateQuizRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := createQuiz(t, s, twoQuestionQuiz())

	failAnswerBatch(t, s, 1)

	in := twoQuestionQuiz()
	in.Title = "Replaced"
	_, err := s.UpdateQuiz(ctx, q.ID, in)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("update = %v, want the injected failure", err)
	}

	got, err := s.Quiz(ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != q.Title || len(got.Questions) != 2 {
		t.Fatalf("quiz after failed update = %+v", got)
	}
	for i, question := range got.Questions {
		if question.ID != q.Questions[i].ID || len(question.Answers) != 2 {
			t.Errorf("question %d = %+v, want original", i, question)
		}
	}
	if n := countRows(t, s, &Answer{}); n != 4 {
		t.Errorf("answers = %d, want 4", n)
	}
}

func TestUpdateQuizFrozenOncePlayed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := createQuiz(t, s, twoQuestionQuiz())

	session, err := s.CreateSession(ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.db.Model(&GameSession{}).Where("id = ?", session.ID).Update("status", StatusFinished).Error; err != nil {
		t.Fatal(err)
	}

	_, err = s.UpdateQuiz(ctx, q.ID, twoQuestionQuiz())
	wantKind(t, err, KindConflict)

	got, err := s.Quiz(ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Questions[0].ID != q.Questions[0].ID {
		t.Error("questions of a played quiz were replaced")
	}
}

func TestSessionReadsTakeShareLock(t *testing.T) {
	pg, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 user=quizbox dbname=quizbox sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatal(err)
	}

	read := func(tx *gorm.DB) *gorm.DB {
		var session GameSession
		return forShare(tx).Where("code = ?", "123456").Take(&session)
	}

	if sql := pg.ToSQL(read); !strings.Contains(sql, "FOR SHARE") {
		t.Errorf("postgres read = %s, want FOR SHARE", sql)
	}

	if sql := newTestStore(t).db.ToSQL(read); strings.Contains(sql, "FOR") {
		t.Errorf("sqlite read = %s, want no locking clause", sql)
	}
}

func TestCreateQuizOrdersAndDefaults(t *testing.T) {
	s := newTestStore(t)

	in := twoQuestionQuiz()
	in.Questions[1].TimeLimit = 0

	q := createQuiz(t, s, in)

	if len(q.Questions) != 2 {
		t.Fatalf("questions = %d", len(q.Questions))
	}
	for i, question := range q.Questions {
		if question.Position != i {
			t.Errorf("question %d position = %d", i, question.Position)
		}
		for j, a := range question.Answers {
			if a.Position != j {
				t.Errorf("answer %d/%d position = %d", i, j, a.Position)
			}
		}
	}
	if q.Questions[1].TimeLimit != defaultTimeLimit {
		t.Errorf("default time limit = %d", q.Questions[1].TimeLimit)
	}

	list, err := s.ListQuizzes(context.Background(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].QuestionCount != 2 {
		t.Errorf("list = %+v", list)
	}
}

func TestUpdateQuizReplacesQuestions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := createQuiz(t, s, twoQuestionQuiz())

	in := twoQuestionQuiz()
	in.Title = "Just France"
	in.Questions = in.Questions[:1]

	updated, err := s.UpdateQuiz(ctx, q.ID, in)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Just France" || len(updated.Questions) != 1 {
		t.Errorf("updated = %+v", updated)
	}
	if n := countRows(t, s, &Answer{}); n != 2 {
		t.Errorf("answers = %d, want 2", n)
	}

	bad := twoQuestionQuiz()
	bad.Questions[0].Answers[1].IsCorrect = true
	_, err = s.UpdateQuiz(ctx, q.ID, bad)
	wantKind(t, err, KindValidationFailed)

	_, err = s.UpdateQuiz(ctx, 999, twoQuestionQuiz())
	wantKind(t, err, KindNotFound)
}

func TestQuizChangesBlockedWhileLive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := createQuiz(t, s, twoQuestionQuiz())

	if _, err := s.CreateSession(ctx, q.ID); err != nil {
		t.Fatal(err)
	}

	_, err := s.UpdateQuiz(ctx, q.ID, twoQuestionQuiz())
	wantKind(t, err, KindConflict)

	wantKind(t, s.DeleteQuiz(ctx, q.ID), KindConflict)
}

func TestDeleteQuizCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := createQuiz(t, s, twoQuestionQuiz())
	keep := createQuiz(t, s, twoQuestionQuiz())

	session, err := s.CreateSession(ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddPlayer(ctx, session.Code, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.db.Model(&GameSession{}).Where("id = ?", session.ID).Update("status", StatusFinished).Error; err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteQuiz(ctx, q.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Quiz(ctx, q.ID); KindOf(err) != KindNotFound {
		t.Errorf("deleted quiz lookup: %v", err)
	}
	if n := countRows(t, s, &Question{}); n != 2 {
		t.Errorf("questions = %d, want the other quiz's 2", n)
	}
	if n := countRows(t, s, &Answer{}); n != 4 {
		t.Errorf("answers = %d, want 4", n)
	}
	if n := countRows(t, s, &GameSession{}); n != 0 {
		t.Errorf("sessions = %d", n)
	}
	if n := countRows(t, s, &Player{}); n != 0 {
		t.Errorf("players = %d", n)
	}
	if _, err := s.Quiz(ctx, keep.ID); err != nil {
		t.Errorf("other quiz: %v", err)
	}

	wantKind(t, s.DeleteQuiz(ctx, q.ID), KindNotFound)
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := createQuiz(t, s, twoQuestionQuiz())

	session, err := s.CreateSession(ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^[0-9]{6}$`).MatchString(session.Code) {
		t.Errorf("code %q is not 6 digits", session.Code)
	}
	if session.Status != StatusWaiting {
		t.Errorf("status = %s", session.Status)
	}

	_, err = s.CreateSession(ctx, 999)
	wantKind(t, err, KindNotFound)

	empty := Quiz{Title: "empty"}
	if err := s.db.Create(&empty).Error; err != nil {
		t.Fatal(err)
	}
	_, err = s.CreateSession(ctx, empty.ID)
	wantKind(t, err, KindValidationFailed)
}

func TestDeleteSessionCascades(t *testing.T) {
	ctx := context.Background()
	co := newTestCoordinator(t)
	s := co.Store()
	q, session, player := activeGame(t, co)

	_, err := co.Submit(ctx, Submission{
		Code:       session.Code,
		PlayerID:   player.ID,
		QuestionID: q.Questions[0].ID,
		AnswerID:   q.Questions[0].Answers[0].ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	ch := &fakeChannel{}
	if _, err := co.Attach(ctx, session.Code, "alice", "", ch); err != nil {
		t.Fatal(err)
	}

	if err := co.DeleteSession(ctx, session.Code); err != nil {
		t.Fatal(err)
	}

	for _, model := range []any{&GameSession{}, &Player{}, &Score{}} {
		if n := countRows(t, s, model); n != 0 {
			t.Errorf("%T rows = %d", model, n)
		}
	}
	if n := countRows(t, s, &Question{}); n != 2 {
		t.Errorf("questions = %d, quiz must survive", n)
	}
	if !ch.isClosed() {
		t.Error("attached channel left open")
	}
	if co.Registry().Members(roomOf(session.ID)) != 0 {
		t.Error("registry still holds channels")
	}
}

func TestIsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	q := createQuiz(t, s, twoQuestionQuiz())

	session, err := s.CreateSession(ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}

	err = s.db.Create(&Player{GameSessionID: session.ID, Name: "dup"}).Error
	if err != nil {
		t.Fatal(err)
	}
	err = s.db.Create(&Player{GameSessionID: session.ID, Name: "dup"}).Error
	if !isDuplicate(err) {
		t.Fatalf("second insert error %v not classified as duplicate", err)
	}
}
