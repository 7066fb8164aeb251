package store

import "github.com/langell/chainOverflow/pkg/types"

type seedAnswer struct {
	content  string
	author   string
	ipfsHash string
	votes    int
	accepted bool
}

type seedQuestion struct {
	question types.Question
	answers  []seedAnswer
}

var seedData = []seedQuestion{
	{
		question: types.Question{
			Title:    "How to integrate x402 with Express?",
			Content:  "I am looking for a complete guide on implementing the x402 payment protocol in an Express.js backend.",
			Tags:     "x402,express,javascript",
			Author:   "satoshiman",
			IPFSHash: "QmX402Guide",
			Bounty:   "1000",
			Votes:    15,
		},
		answers: []seedAnswer{
			{
				content:  "The best way is to use the @x402/express middleware directly. It handles the 402 challenge automatically.",
				author:   "lbolt_expert",
				ipfsHash: "QmAnswer1",
				votes:    5,
				accepted: true,
			},
			{
				content:  "Make sure your frontend can handle the 402 status code and present a payment UI to the user.",
				author:   "ux_guru",
				ipfsHash: "QmAnswer2",
				votes:    2,
			},
		},
	},
	{
		question: types.Question{
			Title:    "Best practices for IPFS content pinning?",
			Content:  "What are the pros and cons of using Pinata vs hosting your own IPFS node for a decentralized application?",
			Tags:     "ipfs,storage,web3",
			Author:   "ipfs_explorer",
			IPFSHash: "QmIPFSBestPractices",
			Bounty:   "500",
			Votes:    8,
		},
	},
	{
		question: types.Question{
			Title:    "React Zustand vs Context API for global state?",
			Content:  "When should I choose Zustand over the built-in React Context API for managing global state in a high-performance app?",
			Tags:     "react,state-management,zustand",
			Author:   "frontend_ninja",
			IPFSHash: "QmZustandVsContext",
			Bounty:   "250",
			Votes:    12,
		},
	},
}

// Seed loads the sample questions and answers. It returns the number of
// questions added.
func (s *Store) Seed() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()

	for _, sq := range seedData {
		s.lastQ++
		q := sq.question
		q.ID = s.lastQ
		q.Timestamp = now
		s.questions[q.ID] = q

		for _, sa := range sq.answers {
			s.lastA++
			s.answers[q.ID] = append(s.answers[q.ID], types.Answer{
				ID:         s.lastA,
				QuestionID: q.ID,
				Content:    sa.content,
				Author:     sa.author,
				IPFSHash:   sa.ipfsHash,
				Votes:      sa.votes,
				IsAccepted: sa.accepted,
				Timestamp:  now,
			})
		}
	}

	return len(seedData)
}
