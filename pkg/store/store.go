// Package store keeps questions and answers in memory.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/langell/chainOverflow/pkg/types"
)

// ErrNotFound is returned when a question does not exist
var ErrNotFound = errors.New("question not found")

// FeedSize is the number of questions returned by Feed
const FeedSize = 20

// Store is a concurrency safe record store. Ids start at 1 and are never
// reused.
type Store struct {
	mu        sync.RWMutex
	questions map[int64]types.Question
	answers   map[int64][]types.Answer
	lastQ     int64
	lastA     int64
	now       func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		questions: make(map[int64]types.Question),
		answers:   make(map[int64][]types.Answer),
		now:       time.Now,
	}
}

// CreateQuestion stores a new question and returns it
func (s *Store) CreateQuestion(nq types.NewQuestion) types.Question {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	s.lastQ++

	q := types.Question{
		ID:        s.lastQ,
		Title:     nq.Title,
		Content:   nq.Content,
		Tags:      nq.Tags,
		Author:    nq.Author,
		Bounty:    nq.Bounty,
		IPFSHash:  fmt.Sprintf("QmServerMockHash%d", now),
		Timestamp: now,
	}
	s.questions[q.ID] = q

	return q
}

// CreateAnswer stores a new answer. The question is not required to exist.
func (s *Store) CreateAnswer(na types.NewAnswer) types.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	s.lastA++

	a := types.Answer{
		ID:         s.lastA,
		QuestionID: na.QuestionID,
		Content:    na.Content,
		Author:     na.Author,
		IPFSHash:   fmt.Sprintf("QmServerAnswerHash%d", now),
		Timestamp:  now,
	}
	s.answers[a.QuestionID] = append(s.answers[a.QuestionID], a)

	return a
}

// Question returns a question with its answers, oldest answer first
func (s *Store) Question(id int64) (types.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questions[id]
	if !ok {
		return types.Question{}, ErrNotFound
	}
	q.Answers = s.answersFor(id)

	return q, nil
}

// Feed returns the newest questions with their answers
func (s *Store) Feed() []types.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Question, 0, len(s.questions))
	for _, q := range s.questions {
		out = append(out, q)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID > out[j].ID
	})

	if len(out) > FeedSize {
		out = out[:FeedSize]
	}
	for i := range out {
		out[i].Answers = s.answersFor(out[i].ID)
	}

	return out
}

// Search matches term against titles and content, case insensitively, and
// orders the hits by votes. Answers are not included.
func (s *Store) Search(term string) []types.Question {
	out := []types.Question{}

	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return out
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, q := range s.questions {
		if strings.Contains(strings.ToLower(q.Title), term) || strings.Contains(strings.ToLower(q.Content), term) {
			out = append(out, q)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].ID < out[j].ID
	})

	return out
}

// answersFor copies the answers of a question. Callers hold the lock.
func (s *Store) answersFor(id int64) []types.Answer {
	src := s.answers[id]
	out := make([]types.Answer, len(src))
	copy(out, src)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})

	return out
}
