package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"contest_judge/internal/domain/model"
	"contest_judge/internal/platform/logging"
	"contest_judge/internal/platform/observability"

	"github.com/sirupsen/logrus"
)

const (
	EventLeaderboard = "leaderboard"
	EventRank        = "rank"
)

// Event is what subscribers receive. Rank events carry the user they are
// addressed to and are delivered to that user's connections only.
type Event struct {
	Type        string                     `json:"type"`
	ContestID   string                     `json:"contest_id"`
	UserID      string                     `json:"user_id,omitempty"`
	Leaderboard *model.LeaderboardSnapshot `json:"leaderboard,omitempty"`
	Rank        *model.RankInfo            `json:"rank,omitempty"`
}

// Subscriber is one live connection. Send must not block; it reports false
// when the message was dropped.
type Subscriber interface {
	ID() string
	UserID() string
	Send(msg []byte) bool
}

// Relay fans events out to every instance, this one included.
type Relay interface {
	Publish(ctx context.Context, ev Event) error
	Run(ctx context.Context, deliver func(Event)) error
}

// Hub tracks subscriptions per contest and delivers events to them.
type Hub struct {
	mu       sync.RWMutex
	contests map[string]map[string]Subscriber
	relay    Relay
}

func NewHub() *Hub {
	return &Hub{contests: make(map[string]map[string]Subscriber)}
}

// UseRelay routes publishes through r. Call before RunRelay and before any
// publish.
func (h *Hub) UseRelay(r Relay) { h.relay = r }

// RunRelay delivers relayed events until ctx is done.
func (h *Hub) RunRelay(ctx context.Context) error {
	if h.relay == nil {
		<-ctx.Done()
		return nil
	}
	return h.relay.Run(ctx, h.Deliver)
}

func (h *Hub) Subscribe(contestID string, s Subscriber) {
	h.mu.Lock()
	subs, ok := h.contests[contestID]
	if !ok {
		subs = make(map[string]Subscriber)
		h.contests[contestID] = subs
	}
	subs[s.ID()] = s
	h.mu.Unlock()

	observability.Default.IncCounter("ws_subscriptions_total", nil, 1)
}

func (h *Hub) Unsubscribe(contestID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.contests[contestID]
	if !ok {
		return
	}
	delete(subs, s.ID())
	if len(subs) == 0 {
		delete(h.contests, contestID)
	}
}

// Subscribers returns the number of subscriptions for contestID.
func (h *Hub) Subscribers(contestID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.contests[contestID])
}

func (h *Hub) PublishLeaderboard(contestID string, snap model.LeaderboardSnapshot) {
	h.publish(Event{Type: EventLeaderboard, ContestID: contestID, Leaderboard: &snap})
}

func (h *Hub) PublishUserRank(contestID, userID string, info model.RankInfo) {
	h.publish(Event{Type: EventRank, ContestID: contestID, UserID: userID, Rank: &info})
}

func (h *Hub) publish(ev Event) {
	if h.relay == nil {
		h.Deliver(ev)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.relay.Publish(ctx, ev); err != nil {
		logging.BoardLog.WithError(err).WithField("contest_id", ev.ContestID).
			Warn("relay publish failed, delivering locally only")
		h.Deliver(ev)
	}
}

// Deliver sends ev to the matching local subscribers.
func (h *Hub) Deliver(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logging.BoardLog.WithError(err).Error("encode event")
		return
	}

	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.contests[ev.ContestID]))
	for _, s := range h.contests[ev.ContestID] {
		if ev.Type == EventRank && s.UserID() != ev.UserID {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, s := range targets {
		if !s.Send(msg) {
			dropped++
		}
	}
	if dropped > 0 {
		observability.Default.IncCounter("ws_messages_dropped_total", map[string]string{"type": ev.Type}, float64(dropped))
		logging.BoardLog.WithFields(logrus.Fields{
			"contest_id": ev.ContestID,
			"type":       ev.Type,
			"dropped":    dropped,
		}).Debug("slow subscribers skipped")
	}
	observability.Default.IncCounter("ws_messages_sent_total", map[string]string{"type": ev.Type}, float64(len(targets)-dropped))
}
