// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/flashbid/pkg/cache"
	"github.com/luxfi/flashbid/pkg/kv"
	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/model"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []any
	closed   bool
	writeErr error
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.messages = append(f.messages, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestConnectReplacesExisting(t *testing.T) {
	require := require.New(t)

	hub := NewHub(log.NoLog, nil)
	first := &fakeConn{}
	second := &fakeConn{}

	hub.Connect("c1", "u1", first)
	hub.Connect("c1", "u1", second)

	require.True(first.isClosed())
	require.False(second.isClosed())
	require.Equal(1, hub.RoomSize("c1"))

	require.True(hub.SendToUser("c1", "u1", "hello"))
	require.Equal(0, first.count())
	require.Equal(1, second.count())
}

func TestDisconnectIgnoresStaleConn(t *testing.T) {
	require := require.New(t)

	hub := NewHub(log.NoLog, nil)
	old := &fakeConn{}
	fresh := &fakeConn{}

	hub.Connect("c1", "u1", old)
	hub.Connect("c1", "u1", fresh)

	// The reader goroutine of the displaced connection must not evict the
	// replacement.
	hub.Disconnect("c1", "u1", old)
	require.Equal(1, hub.RoomSize("c1"))

	hub.Disconnect("c1", "u1", fresh)
	require.Equal(0, hub.RoomSize("c1"))
	require.Empty(hub.ActiveCampaigns())
}

func TestSendToUserMissingConnection(t *testing.T) {
	require := require.New(t)

	hub := NewHub(log.NoLog, nil)
	require.False(hub.SendToUser("c1", "u1", "hello"))
}

func TestSendToUserDropsFailedConnection(t *testing.T) {
	require := require.New(t)

	hub := NewHub(log.NoLog, nil)
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	hub.Connect("c1", "u1", conn)

	require.False(hub.SendToUser("c1", "u1", "hello"))
	require.Equal(0, hub.RoomSize("c1"))
	require.True(conn.isClosed())
}

func TestBroadcastFansOutAndPrunes(t *testing.T) {
	require := require.New(t)

	hub := NewHub(log.NoLog, nil)
	good1 := &fakeConn{}
	good2 := &fakeConn{}
	bad := &fakeConn{writeErr: errors.New("reset")}

	hub.Connect("c1", "u1", good1)
	hub.Connect("c1", "u2", good2)
	hub.Connect("c1", "u3", bad)
	hub.Connect("c2", "u4", &fakeConn{})

	sent := hub.Broadcast("c1", "snapshot")
	require.Equal(2, sent)
	require.Equal(1, good1.count())
	require.Equal(1, good2.count())
	require.Equal(2, hub.RoomSize("c1"))
	require.True(bad.isClosed())

	// Other rooms are untouched.
	require.Equal(1, hub.RoomSize("c2"))
}

func TestCloseAll(t *testing.T) {
	require := require.New(t)

	hub := NewHub(log.NoLog, nil)
	a := &fakeConn{}
	b := &fakeConn{}
	hub.Connect("c1", "u1", a)
	hub.Connect("c2", "u2", b)

	hub.CloseAll()
	require.True(a.isClosed())
	require.True(b.isClosed())
	require.Empty(hub.ActiveCampaigns())
}

type fakeRanking struct {
	entries []kv.RankEntry
	stats   kv.Stats
	calls   int
	k       int
}

func (f *fakeRanking) Leaderboard(_ context.Context, _ string, k int) ([]kv.RankEntry, kv.Stats, error) {
	f.calls++
	f.k = k
	return f.entries, f.stats, nil
}

type fakeCampaigns struct {
	view *cache.CampaignView
}

func (f *fakeCampaigns) Get(_ context.Context, _ uuid.UUID) (*cache.CampaignView, error) {
	return f.view, nil
}

func TestBroadcastOneComposesSnapshot(t *testing.T) {
	require := require.New(t)

	hub := NewHub(log.NoLog, nil)
	conn := &fakeConn{}
	campaignID := uuid.New()
	hub.Connect(campaignID.String(), "u1", conn)

	top := 1500.5
	kth := 900.25
	ranking := &fakeRanking{
		entries: []kv.RankEntry{
			{Rank: 1, UserID: "u1", Username: "alice", Score: top, Price: 1200},
		},
		stats: kv.Stats{TotalParticipants: 42, MaxScore: &top, MinWinningScore: &kth},
	}
	campaigns := &fakeCampaigns{view: &cache.CampaignView{
		CampaignID: campaignID,
		Quota:      10,
		StartTime:  time.Now().Add(-time.Minute),
		EndTime:    time.Now().Add(time.Minute),
		Status:     model.CampaignActive,
	}}

	b := NewBroadcaster(hub, ranking, campaigns, log.NoLog, nil)
	require.NoError(b.broadcastOne(context.Background(), campaignID.String()))
	require.Equal(10, ranking.k)
	require.Equal(1, conn.count())

	event, ok := conn.messages[0].(Event)
	require.True(ok)
	require.Equal("ranking_update", event.Event)

	data, ok := event.Data.(RankingUpdateData)
	require.True(ok)
	require.Equal(campaignID.String(), data.CampaignID)
	require.Equal(int64(42), data.TotalParticipants)
	require.Len(data.TopK, 1)
	require.Equal("alice", data.TopK[0].Username)
	require.NotNil(data.MinWinningScore)
	require.InDelta(kth, *data.MinWinningScore, 1e-9)
}

func TestTickSkipsEmptyHub(t *testing.T) {
	require := require.New(t)

	ranking := &fakeRanking{}
	b := NewBroadcaster(NewHub(log.NoLog, nil), ranking, &fakeCampaigns{}, log.NoLog, nil)
	b.tick(context.Background())
	require.Zero(ranking.calls)
}
