// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/luxfi/flashbid/pkg/model"
)

const orderColumns = `order_id, campaign_id, user_id, product_id, final_price, final_score, final_rank, status, created_at`

// ErrDuplicateOrder means an order already exists for (campaign, user).
var ErrDuplicateOrder = errors.New("store: duplicate order")

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.OrderID, &o.CampaignID, &o.UserID, &o.ProductID,
		&o.FinalPrice, &o.FinalScore, &o.FinalRank, &o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan order: %w", err)
	}
	return &o, nil
}

// CreateOrder inserts a confirmed order. The unique (campaign, user)
// constraint makes settlement idempotent at the row level.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.OrderID == uuid.Nil {
		o.OrderID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO orders (order_id, campaign_id, user_id, product_id, final_price, final_score, final_rank, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		o.OrderID, o.CampaignID, o.UserID, o.ProductID,
		o.FinalPrice, o.FinalScore, o.FinalRank, o.Status)

	if err := row.Scan(&o.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("store: create order: %w", err)
	}
	return nil
}

// OrderFor fetches the order one user holds in one campaign, ErrNotFound
// when none exists.
func (s *Store) OrderFor(ctx context.Context, campaignID, userID uuid.UUID) (*model.Order, error) {
	return scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE campaign_id = $1 AND user_id = $2`,
		campaignID, userID))
}

// OrdersByUser lists a user's orders newest-first with the total count.
func (s *Store) OrdersByUser(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*model.Order, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count orders: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3`,
		userID, skip, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("store: orders by user: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

// OrdersByCampaign lists every order of a campaign in rank order.
func (s *Store) OrdersByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE campaign_id = $1 ORDER BY final_rank ASC`,
		campaignID)
	if err != nil {
		return nil, fmt.Errorf("store: orders by campaign: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
