package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"contest_judge/internal/domain/model"
	"contest_judge/internal/domain/repository/repotest"
)

func TestSkipListOrderAndRank(t *testing.T) {
	s := newSkipList(1)
	s.insert(50, "carol")
	s.insert(100, "bob")
	s.insert(100, "alice")
	s.insert(10, "dave")

	want := []string{"alice", "bob", "carol", "dave"}
	for i, user := range want {
		n := s.byRank(i + 1)
		if n == nil || n.userID != user {
			t.Fatalf("byRank(%d) = %v, want %s", i+1, n, user)
		}
	}
	if got := s.rank(50, "carol"); got != 3 {
		t.Errorf("rank(carol) = %d, want 3", got)
	}
	if got := s.rank(50, "nobody"); got != 0 {
		t.Errorf("rank(nobody) = %d, want 0", got)
	}

	if !s.remove(100, "alice") {
		t.Fatal("remove(alice) = false")
	}
	if s.remove(100, "alice") {
		t.Fatal("second remove(alice) = true")
	}
	if got := s.rank(10, "dave"); got != 3 {
		t.Errorf("rank(dave) after remove = %d, want 3", got)
	}
	if s.length != 3 {
		t.Errorf("length = %d, want 3", s.length)
	}
}

func TestSkipListManyEntries(t *testing.T) {
	s := newSkipList(42)
	const n = 500
	for i := 0; i < n; i++ {
		s.insert(i%37, fmt.Sprintf("user-%04d", i))
	}
	prev := s.byRank(1)
	for r := 2; r <= n; r++ {
		cur := s.byRank(r)
		if cur == nil {
			t.Fatalf("byRank(%d) = nil", r)
		}
		if !prev.before(cur.score, cur.userID) {
			t.Fatalf("rank %d out of order: %d/%s then %d/%s", r, prev.score, prev.userID, cur.score, cur.userID)
		}
		if got := s.rank(cur.score, cur.userID); got != r {
			t.Fatalf("rank(%s) = %d, want %d", cur.userID, got, r)
		}
		prev = cur
	}
}

func TestMemoryCacheUpsertKeepsBest(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	mustUpsert := func(user string, score int) {
		t.Helper()
		if err := c.Upsert(ctx, model.LeaderboardEntry{ContestID: "c1", UserID: user, Score: score}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	mustUpsert("alice", 60)
	mustUpsert("bob", 85)
	mustUpsert("alice", 40) // lower, ignored
	mustUpsert("carol", 85)

	top, err := c.Top(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	want := []struct {
		user  string
		score int
	}{{"bob", 85}, {"carol", 85}, {"alice", 60}}
	if len(top) != len(want) {
		t.Fatalf("Top returned %d entries, want %d", len(top), len(want))
	}
	for i, w := range want {
		if top[i].UserID != w.user || top[i].Score != w.score || top[i].Position != i+1 {
			t.Errorf("top[%d] = %+v, want %s/%d at %d", i, top[i], w.user, w.score, i+1)
		}
	}

	e, ok, err := c.Position(ctx, "c1", "alice")
	if err != nil || !ok || e.Position != 3 {
		t.Errorf("Position(alice) = %+v, %v, %v", e, ok, err)
	}
	if _, ok, _ := c.Position(ctx, "c1", "zed"); ok {
		t.Error("Position(zed) reported ranked")
	}
	if n, _ := c.Size(ctx, "c1"); n != 3 {
		t.Errorf("Size = %d, want 3", n)
	}

	mustUpsert("alice", 90)
	if e, _, _ := c.Position(ctx, "c1", "alice"); e.Position != 1 || e.Score != 90 {
		t.Errorf("alice after raise = %+v", e)
	}
}

func TestMemoryCacheRebuild(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	_ = c.Upsert(ctx, model.LeaderboardEntry{ContestID: "c1", UserID: "stale", Score: 1000})

	err := c.Rebuild(ctx, "c1", []model.LeaderboardEntry{
		{UserID: "a", Score: 10},
		{UserID: "b", Score: 20},
	})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	top, _ := c.Top(ctx, "c1", 5)
	if len(top) != 2 || top[0].UserID != "b" || top[1].UserID != "a" {
		t.Fatalf("Top after rebuild = %+v", top)
	}
	if _, ok, _ := c.Position(ctx, "c1", "stale"); ok {
		t.Error("stale entry survived rebuild")
	}
}

func TestMemoryCacheConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for s := 0; s <= 100; s += 10 {
				_ = c.Upsert(ctx, model.LeaderboardEntry{ContestID: "c1", UserID: fmt.Sprintf("u%02d", i), Score: s})
			}
		}(i)
	}
	wg.Wait()

	top, _ := c.Top(ctx, "c1", 100)
	if len(top) != 50 {
		t.Fatalf("got %d entries, want 50", len(top))
	}
	for _, e := range top {
		if e.Score != 100 {
			t.Fatalf("%s score = %d, want 100", e.UserID, e.Score)
		}
	}
}

var contestStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func contestSub(id, user, problem string, status model.SubmissionStatus, score, ordinal int, after time.Duration) model.Submission {
	contestID := "c1"
	return model.Submission{
		ID:             id,
		UserID:         user,
		ProblemID:      problem,
		ContestID:      &contestID,
		Status:         status,
		Score:          score,
		AttemptOrdinal: ordinal,
		CreatedAt:      contestStart.Add(after),
	}
}

func TestComputeRanks(t *testing.T) {
	contest := &model.Contest{ID: "c1", StartTime: contestStart, EndTime: contestStart.Add(3 * time.Hour)}
	subs := []model.Submission{
		contestSub("s1", "alice", "p1", model.StatusWrongAnswer, 60, 1, 5*time.Minute),
		contestSub("s2", "alice", "p1", model.StatusAccepted, 85, 2, 10*time.Minute),
		contestSub("s3", "bob", "p1", model.StatusAccepted, 100, 1, 3*time.Minute),
		contestSub("s4", "carol", "p1", model.StatusSystemError, 0, 1, time.Minute),
		contestSub("s5", "carol", "p1", model.StatusAccepted, 100, 2, 12*time.Minute),
		contestSub("s6", "dave", "p1", model.StatusWrongAnswer, 40, 1, 20*time.Minute),
		contestSub("s7", "dave", "p1", model.StatusPending, 0, 2, 21*time.Minute),
		contestSub("s8", "erin", "p1", model.StatusAccepted, 100, 1, 20*time.Second),
	}

	ranks := ComputeRanks(contest, subs, contestStart.Add(time.Hour))

	type row struct {
		user            string
		points, solve   int
		penalty, solved int
	}
	want := []row{
		{"erin", 100, 1, 0, 1}, // under a minute rounds up to 1
		{"bob", 100, 3, 0, 1},
		{"carol", 100, 12, 0, 1}, // system errors carry no penalty
		{"alice", 85, 10, 20, 1},
		{"dave", 40, 0, 0, 0}, // unsolved, no penalty
	}
	if len(ranks) != len(want) {
		t.Fatalf("got %d ranks, want %d: %+v", len(ranks), len(want), ranks)
	}
	for i, w := range want {
		r := ranks[i]
		if r.UserID != w.user || r.TotalPoints != w.points || r.SolveMinutes != w.solve ||
			r.PenaltyMinutes != w.penalty || r.SolvedCount != w.solved || r.Rank != i+1 {
			t.Errorf("ranks[%d] = %+v, want %+v at rank %d", i, r, w, i+1)
		}
	}
}

func TestComputeRanksIgnoresAttemptsAfterAccept(t *testing.T) {
	contest := &model.Contest{ID: "c1", StartTime: contestStart}
	subs := []model.Submission{
		contestSub("s1", "alice", "p1", model.StatusAccepted, 100, 1, 4*time.Minute),
		contestSub("s2", "alice", "p1", model.StatusWrongAnswer, 20, 2, 6*time.Minute),
		contestSub("s3", "alice", "p2", model.StatusTimeLimitExceeded, 0, 1, 7*time.Minute),
		contestSub("s4", "alice", "p2", model.StatusAccepted, 70, 2, 30*time.Minute),
	}
	ranks := ComputeRanks(contest, subs, contestStart)
	if len(ranks) != 1 {
		t.Fatalf("got %d ranks", len(ranks))
	}
	r := ranks[0]
	if r.TotalPoints != 170 || r.SolveMinutes != 34 || r.PenaltyMinutes != 20 || r.SolvedCount != 2 {
		t.Errorf("rank = %+v", r)
	}
}

func TestComputeRanksFollowsAttemptOrder(t *testing.T) {
	contest := &model.Contest{ID: "c1", StartTime: contestStart}
	// The second attempt carries an earlier timestamp than the first.
	subs := []model.Submission{
		contestSub("s2", "alice", "p1", model.StatusAccepted, 85, 2, 9*time.Minute),
		contestSub("s1", "alice", "p1", model.StatusWrongAnswer, 60, 1, 9*time.Minute+time.Second),
	}
	ranks := ComputeRanks(contest, subs, contestStart)
	if len(ranks) != 1 {
		t.Fatalf("got %d ranks", len(ranks))
	}
	if r := ranks[0]; r.TotalPoints != 85 || r.PenaltyMinutes != PenaltyMinutesPerWrong || r.SolveMinutes != 9 {
		t.Errorf("rank = %+v, want the wrong first attempt penalised", r)
	}
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []model.LeaderboardSnapshot
	userRanks []model.RankInfo
}

func (p *recordingPublisher) PublishLeaderboard(contestID string, snap model.LeaderboardSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snap)
}

func (p *recordingPublisher) PublishUserRank(contestID, userID string, info model.RankInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userRanks = append(p.userRanks, info)
}

func newTestEngine(store *repotest.Store, cache Cache, pub Publisher, topN int) *Engine {
	return NewEngine(Config{
		Submissions: store,
		Contests:    store,
		Tx:          store,
		Cache:       cache,
		Publisher:   pub,
		TopN:        topN,
		Now:         func() time.Time { return contestStart.Add(time.Hour) },
	})
}

func seedContest(store *repotest.Store) {
	store.AddContest(model.Contest{ID: "c1", StartTime: contestStart, EndTime: contestStart.Add(3 * time.Hour)})
	store.PutSubmission(contestSub("s1", "alice", "p1", model.StatusWrongAnswer, 60, 1, 5*time.Minute))
	store.PutSubmission(contestSub("s2", "alice", "p1", model.StatusAccepted, 85, 2, 10*time.Minute))
	store.PutSubmission(contestSub("s3", "bob", "p1", model.StatusAccepted, 100, 1, 3*time.Minute))
	store.PutSubmission(contestSub("s4", "carol", "p1", model.StatusWrongAnswer, 20, 1, 4*time.Minute))
}

func TestEngineOnScored(t *testing.T) {
	ctx := context.Background()
	store := repotest.New()
	seedContest(store)
	cache := NewMemoryCache()
	pub := &recordingPublisher{}
	e := newTestEngine(store, cache, pub, 2)

	if err := e.OnScored(ctx, "c1", "alice"); err != nil {
		t.Fatalf("OnScored: %v", err)
	}

	ranks := store.Ranks["c1"]
	if len(ranks) != 3 || ranks[0].UserID != "bob" || ranks[1].UserID != "alice" || ranks[2].UserID != "carol" {
		t.Fatalf("persisted ranks = %+v", ranks)
	}

	// The cache only had alice before the sync, so it must have been rebuilt.
	if n, _ := cache.Size(ctx, "c1"); n != 3 {
		t.Errorf("cache size = %d, want 3", n)
	}
	if entry, ok, _ := cache.Position(ctx, "c1", "alice"); !ok || entry.Score != 85 || entry.Position != 2 {
		t.Errorf("cache alice = %+v, %v", entry, ok)
	}

	if len(pub.snapshots) != 1 {
		t.Fatalf("published %d snapshots, want 1", len(pub.snapshots))
	}
	snap := pub.snapshots[0]
	if len(snap.Top) != 2 || snap.Participants != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(pub.userRanks) != 1 {
		t.Fatalf("published %d user ranks, want 1", len(pub.userRanks))
	}
	if info := pub.userRanks[0]; info.UserID != "alice" || info.Rank != 2 || info.Participants != 3 || info.PenaltyMinutes != 20 {
		t.Errorf("user rank = %+v", info)
	}
}

// gatedCache blocks the first Top call until released and records alice's
// cached score after every write.
type gatedCache struct {
	*MemoryCache
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu          sync.Mutex
	aliceScores []int
}

func newGatedCache() *gatedCache {
	return &gatedCache{
		MemoryCache: NewMemoryCache(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (c *gatedCache) Top(ctx context.Context, contestID string, k int) ([]model.LeaderboardEntry, error) {
	c.once.Do(func() {
		close(c.entered)
		<-c.release
	})
	return c.MemoryCache.Top(ctx, contestID, k)
}

func (c *gatedCache) record(ctx context.Context) {
	if e, ok, _ := c.MemoryCache.Position(ctx, "c1", "alice"); ok {
		c.mu.Lock()
		c.aliceScores = append(c.aliceScores, e.Score)
		c.mu.Unlock()
	}
}

func (c *gatedCache) Upsert(ctx context.Context, e model.LeaderboardEntry) error {
	err := c.MemoryCache.Upsert(ctx, e)
	c.record(ctx)
	return err
}

func (c *gatedCache) Rebuild(ctx context.Context, contestID string, entries []model.LeaderboardEntry) error {
	err := c.MemoryCache.Rebuild(ctx, contestID, entries)
	c.record(ctx)
	return err
}

func TestEngineOverlappingSyncsKeepNewestStandings(t *testing.T) {
	ctx := context.Background()
	store := repotest.New()
	store.AddContest(model.Contest{ID: "c1", StartTime: contestStart, EndTime: contestStart.Add(3 * time.Hour)})
	store.PutSubmission(contestSub("s1", "alice", "p1", model.StatusWrongAnswer, 60, 1, 5*time.Minute))
	store.PutSubmission(contestSub("s3", "bob", "p1", model.StatusAccepted, 100, 1, 3*time.Minute))
	cache := newGatedCache()
	pub := &recordingPublisher{}
	e := newTestEngine(store, cache, pub, 10)

	// The first sync computes alice=60 and stalls while reconciling.
	first := make(chan error, 1)
	go func() { first <- e.Sync(ctx, "c1", "") }()
	<-cache.entered

	// A better result lands and its update starts while the first sync is
	// still in flight.
	store.PutSubmission(contestSub("s2", "alice", "p1", model.StatusAccepted, 85, 2, 10*time.Minute))
	second := make(chan error, 1)
	go func() { second <- e.OnScored(ctx, "c1", "alice") }()

	time.Sleep(20 * time.Millisecond)
	if entry, ok, _ := cache.MemoryCache.Position(ctx, "c1", "alice"); ok && entry.Score == 85 {
		t.Error("second update ran while the first sync held the contest")
	}

	close(cache.release)
	if err := <-first; err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second sync: %v", err)
	}

	rank, err := store.GetContestRank(ctx, "c1", "alice")
	if err != nil || rank.TotalPoints != 85 {
		t.Fatalf("durable alice = %+v, %v", rank, err)
	}
	if entry, ok, _ := cache.Position(ctx, "c1", "alice"); !ok || entry.Score != 85 {
		t.Errorf("cached alice = %+v, %v, want 85", entry, ok)
	}

	cache.mu.Lock()
	scores := append([]int(nil), cache.aliceScores...)
	cache.mu.Unlock()
	for i := 1; i < len(scores); i++ {
		if scores[i] < scores[i-1] {
			t.Fatalf("cached alice score went down: %v", scores)
		}
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.snapshots) != 2 {
		t.Fatalf("published %d snapshots, want 2", len(pub.snapshots))
	}
	last := pub.snapshots[len(pub.snapshots)-1]
	var published int
	for _, r := range last.Top {
		if r.UserID == "alice" {
			published = r.TotalPoints
		}
	}
	if published != 85 {
		t.Errorf("last published alice = %d, want 85", published)
	}
}

func TestEngineSyncFailureLeavesRanksAlone(t *testing.T) {
	ctx := context.Background()
	store := repotest.New()
	seedContest(store)
	store.Ranks["c1"] = []model.ContestRank{{ContestID: "c1", UserID: "old", Rank: 1}}
	store.FailReplaceRanks = errors.New("disk full")
	pub := &recordingPublisher{}
	e := newTestEngine(store, NewMemoryCache(), pub, 10)

	if err := e.Sync(ctx, "c1", "alice"); err == nil {
		t.Fatal("Sync succeeded with failing rank store")
	}
	if got := store.Ranks["c1"]; len(got) != 1 || got[0].UserID != "old" {
		t.Errorf("ranks changed on failure: %+v", got)
	}
	if len(pub.snapshots) != 0 || len(pub.userRanks) != 0 {
		t.Error("published after failed sync")
	}
}

func TestEngineSyncUnknownContest(t *testing.T) {
	store := repotest.New()
	e := newTestEngine(store, NewMemoryCache(), nil, 10)
	if err := e.Sync(context.Background(), "missing", ""); err == nil {
		t.Fatal("Sync of unknown contest succeeded")
	}
}

func TestEngineRebuild(t *testing.T) {
	ctx := context.Background()
	store := repotest.New()
	seedContest(store)
	cache := NewMemoryCache()
	_ = cache.Upsert(ctx, model.LeaderboardEntry{ContestID: "c1", UserID: "ghost", Score: 999})
	e := newTestEngine(store, cache, nil, 10)

	ranks, err := e.Rebuild(ctx, "c1")
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(ranks) != 3 {
		t.Fatalf("got %d ranks", len(ranks))
	}
	if _, ok, _ := cache.Position(ctx, "c1", "ghost"); ok {
		t.Error("ghost entry survived rebuild")
	}
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("c1/alice")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
	if k.size() != 0 {
		t.Errorf("keyed mutex holds %d keys after release", k.size())
	}
}
