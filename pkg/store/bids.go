// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/luxfi/flashbid/pkg/model"
)

const bidColumns = `bid_id, campaign_id, user_id, product_id, price, score, time_elapsed_ms, bid_number, created_at`

func scanBid(row pgx.Row) (*model.Bid, error) {
	var b model.Bid
	err := row.Scan(&b.BidID, &b.CampaignID, &b.UserID, &b.ProductID,
		&b.Price, &b.Score, &b.TimeElapsedMs, &b.BidNumber, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan bid: %w", err)
	}
	return &b, nil
}

// UpsertBid is the single atomic statement behind bid acceptance. The unique
// (campaign_id, user_id) constraint turns the insert into an update that
// overwrites price/score/elapsed and bumps bid_number; concurrent submissions
// by the same user are serialised by Postgres and can never produce a second
// row. The resulting row is returned.
func (s *Store) UpsertBid(ctx context.Context, campaignID, userID, productID uuid.UUID, price, bidScore decimal.Decimal, elapsedMs int64) (*model.Bid, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO bids (bid_id, campaign_id, user_id, product_id, price, score, time_elapsed_ms, bid_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		ON CONFLICT ON CONSTRAINT uq_bids_campaign_user DO UPDATE SET
			price = EXCLUDED.price,
			score = EXCLUDED.score,
			time_elapsed_ms = EXCLUDED.time_elapsed_ms,
			bid_number = bids.bid_number + 1
		RETURNING `+bidColumns,
		uuid.New(), campaignID, userID, productID, price, bidScore, elapsedMs)

	b, err := scanBid(row)
	if err != nil {
		return nil, fmt.Errorf("store: upsert bid %s/%s: %w", campaignID, userID, err)
	}
	return b, nil
}

// BidFor returns the single stored bid for (campaign, user).
func (s *Store) BidFor(ctx context.Context, campaignID, userID uuid.UUID) (*model.Bid, error) {
	return scanBid(s.pool.QueryRow(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE campaign_id = $1 AND user_id = $2`,
		campaignID, userID))
}

// BidsFor returns all bids for a campaign restricted to the given users.
func (s *Store) BidsFor(ctx context.Context, campaignID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]*model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE campaign_id = $1 AND user_id = ANY($2)`,
		campaignID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("store: bids for %s: %w", campaignID, err)
	}
	defer rows.Close()

	bids := make(map[uuid.UUID]*model.Bid, len(userIDs))
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids[b.UserID] = b
	}
	return bids, rows.Err()
}

// CampaignBidCount counts accepted bid rows in a campaign.
func (s *Store) CampaignBidCount(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM bids WHERE campaign_id = $1`, campaignID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: bid count %s: %w", campaignID, err)
	}
	return n, nil
}

// MaxBidPrice is the durable fallback for the cached max-price cell.
// ok=false when the campaign has no bids.
func (s *Store) MaxBidPrice(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, bool, error) {
	var p *decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT max(price) FROM bids WHERE campaign_id = $1`, campaignID).Scan(&p)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("store: max bid price %s: %w", campaignID, err)
	}
	if p == nil {
		return decimal.Zero, false, nil
	}
	return *p, true, nil
}
