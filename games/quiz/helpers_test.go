package quiz

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open("sqlite", ":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()

	co := New(Options{
		Store:      newTestStore(t),
		HostSecret: []byte("test-secret"),
	})
	t.Cleanup(co.Close)

	return co
}

// twoQuestionQuiz has a 30 second and a 10 second question; the first
// answer of each is correct.
func twoQuestionQuiz() QuizInput {
	return QuizInput{
		Title:       "Capitals",
		Description: "European capitals",
		Questions: []QuestionInput{
			{
				Text:      "Capital of France?",
				TimeLimit: 30,
				Answers: []AnswerInput{
					{Text: "Paris", IsCorrect: true},
					{Text: "Lyon"},
				},
			},
			{
				Text:      "Capital of Italy?",
				TimeLimit: 10,
				Answers: []AnswerInput{
					{Text: "Rome", IsCorrect: true},
					{Text: "Milan"},
				},
			},
		},
	}
}

func createQuiz(t *testing.T, s *Store, in QuizInput) *Quiz {
	t.Helper()

	q, err := s.CreateQuiz(context.Background(), in)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	return q
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

var errRefused = errors.New("refused")

// fakeChannel records everything sent to it.
type fakeChannel struct {
	mu     sync.Mutex
	name   string
	msgs   []Outbound
	refuse bool
	closed bool
}

func (f *fakeChannel) Send(msg Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refuse || f.closed {
		return errRefused
	}
	f.msgs = append(f.msgs, msg)

	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

func (f *fakeChannel) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.MessageType())
	}

	return out
}

func (f *fakeChannel) last() Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.msgs) == 0 {
		return nil
	}

	return f.msgs[len(f.msgs)-1]
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}
