package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/langell/chainOverflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newClockedStore returns a store whose clock advances one millisecond per
// read.
func newClockedStore() *Store {
	s := New()
	t := time.UnixMilli(1700000000000)
	s.now = func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
	return s
}

func TestCreateQuestion(t *testing.T) {
	s := newClockedStore()

	q := s.CreateQuestion(types.NewQuestion{Title: "t", Content: "c", Tags: "go", Author: "me", Bounty: "10"})

	assert.Equal(t, int64(1), q.ID)
	assert.Equal(t, fmt.Sprintf("QmServerMockHash%d", q.Timestamp), q.IPFSHash)
	assert.Zero(t, q.Votes)

	got, err := s.Question(q.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)
	assert.Equal(t, "10", got.Bounty)
	assert.Empty(t, got.Answers)
	assert.NotNil(t, got.Answers)
}

func TestCreateAnswer(t *testing.T) {
	s := newClockedStore()
	q := s.CreateQuestion(types.NewQuestion{Title: "t", Content: "c"})

	a1 := s.CreateAnswer(types.NewAnswer{QuestionID: q.ID, Content: "first"})
	a2 := s.CreateAnswer(types.NewAnswer{QuestionID: q.ID, Content: "second"})

	assert.Equal(t, int64(1), a1.ID)
	assert.Equal(t, int64(2), a2.ID)
	assert.Equal(t, fmt.Sprintf("QmServerAnswerHash%d", a1.Timestamp), a1.IPFSHash)
	assert.False(t, a1.IsAccepted)

	got, err := s.Question(q.ID)
	require.NoError(t, err)
	require.Len(t, got.Answers, 2)
	assert.Equal(t, "first", got.Answers[0].Content)
	assert.Equal(t, "second", got.Answers[1].Content)
}

func TestCreateAnswerForMissingQuestion(t *testing.T) {
	s := New()

	a := s.CreateAnswer(types.NewAnswer{QuestionID: 99, Content: "orphan"})
	assert.Equal(t, int64(99), a.QuestionID)

	_, err := s.Question(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeed(t *testing.T) {
	s := newClockedStore()
	for i := 0; i < FeedSize+5; i++ {
		s.CreateQuestion(types.NewQuestion{Title: fmt.Sprintf("q%d", i+1), Content: "c"})
	}
	s.CreateAnswer(types.NewAnswer{QuestionID: 25, Content: "a"})

	feed := s.Feed()

	require.Len(t, feed, FeedSize)
	assert.Equal(t, int64(25), feed[0].ID)
	assert.Equal(t, int64(6), feed[FeedSize-1].ID)
	require.Len(t, feed[0].Answers, 1)
	assert.Empty(t, feed[1].Answers)
}

func TestFeedEmpty(t *testing.T) {
	feed := New().Feed()
	assert.NotNil(t, feed)
	assert.Empty(t, feed)
}

func TestSearch(t *testing.T) {
	s := New()
	s.Seed()

	hits := s.Search("REACT")
	require.Len(t, hits, 1)
	assert.Equal(t, "React Zustand vs Context API for global state?", hits[0].Title)

	// Matches content as well as title, ordered by votes
	hits = s.Search("a")
	require.Len(t, hits, 3)
	assert.Equal(t, 15, hits[0].Votes)
	assert.Equal(t, 12, hits[1].Votes)
	assert.Equal(t, 8, hits[2].Votes)

	assert.Empty(t, s.Search("nothing matches this"))
	assert.NotNil(t, s.Search(""))
	assert.Empty(t, s.Search("  "))
}

func TestSeed(t *testing.T) {
	s := New()
	assert.Equal(t, 3, s.Seed())

	q, err := s.Question(1)
	require.NoError(t, err)
	assert.Equal(t, "QmX402Guide", q.IPFSHash)
	require.Len(t, q.Answers, 2)
	assert.True(t, q.Answers[0].IsAccepted)
	assert.Equal(t, "lbolt_expert", q.Answers[0].Author)

	// Ids continue after the seed
	next := s.CreateQuestion(types.NewQuestion{Title: "t", Content: "c"})
	assert.Equal(t, int64(4), next.ID)
}

func TestConcurrentWrites(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := s.CreateQuestion(types.NewQuestion{Title: "t", Content: "c"})
			s.CreateAnswer(types.NewAnswer{QuestionID: q.ID, Content: "a"})
			s.Feed()
		}()
	}
	wg.Wait()

	assert.Len(t, s.Search("t"), 50)
}
