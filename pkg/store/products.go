// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/luxfi/flashbid/pkg/model"
)

const productColumns = `product_id, name, stock, min_price, version, created_at`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ProductID, &p.Name, &p.Stock, &p.MinPrice, &p.Version, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan product: %w", err)
	}
	return &p, nil
}

// CreateProduct inserts a product row.
func (s *Store) CreateProduct(ctx context.Context, p *model.Product) error {
	if p.ProductID == uuid.Nil {
		p.ProductID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO products (product_id, name, stock, min_price, version)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING version, created_at`,
		p.ProductID, p.Name, p.Stock, p.MinPrice)
	if err := row.Scan(&p.Version, &p.CreatedAt); err != nil {
		return fmt.Errorf("store: create product: %w", err)
	}
	return nil
}

// ProductByID fetches a product row.
func (s *Store) ProductByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return scanProduct(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE product_id = $1`, id))
}

// Products lists products with pagination.
func (s *Store) Products(ctx context.Context, skip, limit int) ([]*model.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC OFFSET $1 LIMIT $2`,
		skip, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list products: %w", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// DecrementStockGuarded performs the durable half of the four-layer
// protection in one transaction: a SELECT ... FOR UPDATE row lock followed by
// a version-checked decrement. Returns ErrInsufficientStock when the locked
// row has no stock and ErrVersionConflict when the optimistic update loses.
func (s *Store) DecrementStockGuarded(ctx context.Context, productID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var stock int
	var version int64
	err = tx.QueryRow(ctx,
		`SELECT stock, version FROM products WHERE product_id = $1 FOR UPDATE`,
		productID).Scan(&stock, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: lock product %s: %w", productID, err)
	}
	if stock < 1 {
		return ErrInsufficientStock
	}

	tag, err := tx.Exec(ctx, `
		UPDATE products
		SET stock = stock - 1, version = version + 1
		WHERE product_id = $1 AND version = $2 AND stock >= 1`,
		productID, version)
	if err != nil {
		return fmt.Errorf("store: decrement product %s: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit decrement %s: %w", productID, err)
	}
	return nil
}

// IncrementStockGuarded hands one unit back after a decrement whose dependent
// write failed. The version bump keeps concurrent optimistic updates honest.
func (s *Store) IncrementStockGuarded(ctx context.Context, productID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products
		SET stock = stock + 1, version = version + 1
		WHERE product_id = $1`,
		productID)
	if err != nil {
		return fmt.Errorf("store: increment product %s: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
