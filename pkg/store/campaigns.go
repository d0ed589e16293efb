// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/luxfi/flashbid/pkg/model"
)

const campaignColumns = `campaign_id, product_id, start_time, end_time, alpha, beta, gamma, quota, status, created_at`

func scanCampaign(row pgx.Row) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(&c.CampaignID, &c.ProductID, &c.StartTime, &c.EndTime,
		&c.Alpha, &c.Beta, &c.Gamma, &c.Quota, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan campaign: %w", err)
	}
	return &c, nil
}

// CreateCampaign inserts a campaign. Quota must already carry the stock
// snapshot taken by the caller.
func (s *Store) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	if c.CampaignID == uuid.Nil {
		c.CampaignID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.CampaignPending
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO campaigns (campaign_id, product_id, start_time, end_time, alpha, beta, gamma, quota, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		c.CampaignID, c.ProductID, c.StartTime, c.EndTime,
		c.Alpha, c.Beta, c.Gamma, c.Quota, c.Status)
	if err := row.Scan(&c.CreatedAt); err != nil {
		return fmt.Errorf("store: create campaign: %w", err)
	}
	return nil
}

// CampaignByID fetches a campaign row.
func (s *Store) CampaignByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	return scanCampaign(s.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE campaign_id = $1`, id))
}

// CampaignWithProduct fetches a campaign joined with its product in one query.
func (s *Store) CampaignWithProduct(ctx context.Context, id uuid.UUID) (*model.Campaign, *model.Product, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT c.campaign_id, c.product_id, c.start_time, c.end_time,
		       c.alpha, c.beta, c.gamma, c.quota, c.status, c.created_at,
		       p.product_id, p.name, p.stock, p.min_price, p.version, p.created_at
		FROM campaigns c
		JOIN products p ON p.product_id = c.product_id
		WHERE c.campaign_id = $1`, id)

	var c model.Campaign
	var p model.Product
	err := row.Scan(&c.CampaignID, &c.ProductID, &c.StartTime, &c.EndTime,
		&c.Alpha, &c.Beta, &c.Gamma, &c.Quota, &c.Status, &c.CreatedAt,
		&p.ProductID, &p.Name, &p.Stock, &p.MinPrice, &p.Version, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: campaign with product %s: %w", id, err)
	}
	return &c, &p, nil
}

// Campaigns lists campaigns newest-first with the total count.
func (s *Store) Campaigns(ctx context.Context, skip, limit int) ([]*model.Campaign, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM campaigns`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count campaigns: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns ORDER BY start_time DESC OFFSET $1 LIMIT $2`,
		skip, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

// CampaignsDueForSettlement returns campaigns whose window has closed but
// whose status has not yet flipped to ended.
func (s *Store) CampaignsDueForSettlement(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE status <> $1 AND end_time < $2`,
		model.CampaignEnded, now)
	if err != nil {
		return nil, fmt.Errorf("store: due campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// MarkCampaignEnded flips the durable status to ended.
func (s *Store) MarkCampaignEnded(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = $1 WHERE campaign_id = $2`,
		model.CampaignEnded, id)
	if err != nil {
		return fmt.Errorf("store: mark campaign ended %s: %w", id, err)
	}
	return nil
}
