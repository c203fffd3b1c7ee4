package leaderboard

import "math/rand"

const (
	skipMaxLevel = 32
	skipP        = 0.25
)

// skipList is an indexable skip list: every forward link carries the number
// of nodes it jumps over, which gives rank lookups in O(log n).
type skipList struct {
	head   *skipNode
	level  int
	length int
	rnd    *rand.Rand
}

type skipNode struct {
	userID string
	score  int
	next   []*skipNode
	span   []int
}

func newSkipList(seed int64) *skipList {
	return &skipList{
		head:  &skipNode{next: make([]*skipNode, skipMaxLevel), span: make([]int, skipMaxLevel)},
		level: 1,
		rnd:   rand.New(rand.NewSource(seed)),
	}
}

// before reports whether a sorts ahead of (score, userID).
func (n *skipNode) before(score int, userID string) bool {
	if n.score != score {
		return n.score > score
	}
	return n.userID < userID
}

func (s *skipList) randomLevel() int {
	lvl := 1
	for lvl < skipMaxLevel && s.rnd.Float64() < skipP {
		lvl++
	}
	return lvl
}

func (s *skipList) insert(score int, userID string) {
	var update [skipMaxLevel]*skipNode
	var rank [skipMaxLevel]int

	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		if i < s.level-1 {
			rank[i] = rank[i+1]
		}
		for x.next[i] != nil && x.next[i].before(score, userID) {
			rank[i] += x.span[i]
			x = x.next[i]
		}
		update[i] = x
	}

	lvl := s.randomLevel()
	if lvl > s.level {
		for i := s.level; i < lvl; i++ {
			rank[i] = 0
			update[i] = s.head
			s.head.span[i] = s.length
		}
		s.level = lvl
	}

	n := &skipNode{userID: userID, score: score, next: make([]*skipNode, lvl), span: make([]int, lvl)}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
		n.span[i] = update[i].span[i] - (rank[0] - rank[i])
		update[i].span[i] = rank[0] - rank[i] + 1
	}
	for i := lvl; i < s.level; i++ {
		update[i].span[i]++
	}
	s.length++
}

func (s *skipList) remove(score int, userID string) bool {
	var update [skipMaxLevel]*skipNode

	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		for x.next[i] != nil && x.next[i].before(score, userID) {
			x = x.next[i]
		}
		update[i] = x
	}
	x = x.next[0]
	if x == nil || x.score != score || x.userID != userID {
		return false
	}

	for i := 0; i < s.level; i++ {
		if update[i].next[i] == x {
			update[i].span[i] += x.span[i] - 1
			update[i].next[i] = x.next[i]
		} else {
			update[i].span[i]--
		}
	}
	for s.level > 1 && s.head.next[s.level-1] == nil {
		s.level--
	}
	s.length--
	return true
}

// rank returns the 1-based position of (score, userID), or 0.
func (s *skipList) rank(score int, userID string) int {
	traversed := 0
	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		for x.next[i] != nil && (x.next[i].before(score, userID) ||
			(x.next[i].score == score && x.next[i].userID == userID)) {
			traversed += x.span[i]
			x = x.next[i]
		}
		if x != s.head && x.userID == userID {
			return traversed
		}
	}
	return 0
}

// byRank returns the node at 1-based position r.
func (s *skipList) byRank(r int) *skipNode {
	if r < 1 || r > s.length {
		return nil
	}
	traversed := 0
	x := s.head
	for i := s.level - 1; i >= 0; i-- {
		for x.next[i] != nil && traversed+x.span[i] <= r {
			traversed += x.span[i]
			x = x.next[i]
		}
		if traversed == r {
			return x
		}
	}
	return nil
}
