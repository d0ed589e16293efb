// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ws

import (
	"time"

	"github.com/luxfi/flashbid/pkg/kv"
)

// Event is the envelope for every push message.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// RankingUpdateData is the periodic leaderboard snapshot sent to every
// subscriber of a campaign room.
type RankingUpdateData struct {
	CampaignID        string         `json:"campaign_id"`
	TopK              []kv.RankEntry `json:"top_k"`
	TotalParticipants int64          `json:"total_participants"`
	MinWinningScore   *float64       `json:"min_winning_score"`
	MaxScore          *float64       `json:"max_score"`
	Timestamp         time.Time      `json:"timestamp"`
}

// BidAcceptedData acknowledges a single accepted bid to its submitter.
type BidAcceptedData struct {
	BidID         string    `json:"bid_id"`
	CampaignID    string    `json:"campaign_id"`
	Price         float64   `json:"price"`
	Score         float64   `json:"score"`
	Rank          int       `json:"rank"`
	TimeElapsedMs int64     `json:"time_elapsed_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// CampaignEndedData tells a subscriber the campaign settled and whether they
// won. The final fields are nil for losers.
type CampaignEndedData struct {
	CampaignID string   `json:"campaign_id"`
	IsWinner   bool     `json:"is_winner"`
	FinalRank  *int     `json:"final_rank"`
	FinalScore *float64 `json:"final_score"`
	FinalPrice *float64 `json:"final_price"`
}

// NewRankingUpdate wraps a leaderboard snapshot in its envelope.
func NewRankingUpdate(data RankingUpdateData) Event {
	return Event{Event: "ranking_update", Data: data}
}

// NewBidAccepted wraps a bid acknowledgement in its envelope.
func NewBidAccepted(data BidAcceptedData) Event {
	return Event{Event: "bid_accepted", Data: data}
}

// NewCampaignEnded wraps a settlement notification in its envelope.
func NewCampaignEnded(data CampaignEndedData) Event {
	return Event{Event: "campaign_ended", Data: data}
}
