// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package model defines the durable entities of the flash-sale engine.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User statuses.
const (
	UserActive   = "active"
	UserDisabled = "disabled"
)

// Campaign statuses. Pending and active are derived from the clock; ended is
// written durably by settlement.
const (
	CampaignPending = "pending"
	CampaignActive  = "active"
	CampaignEnded   = "ended"
)

// Order statuses.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
)

// User is a registered bidder. Weight is assigned at creation and never
// changes afterwards.
type User struct {
	UserID       uuid.UUID
	Email        string
	Username     string
	PasswordHash string
	Weight       decimal.Decimal
	Status       string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Active reports whether the user may authenticate and bid.
func (u *User) Active() bool { return u.Status == UserActive }

// Product is the item being sold. Version backs the optimistic lock on stock
// updates.
type Product struct {
	ProductID uuid.UUID
	Name      string
	Stock     int
	MinPrice  decimal.Decimal
	Version   int64
	CreatedAt time.Time
}

// Campaign is a bounded sale event for one product. Quota snapshots the
// product stock at creation and is the K used for winner selection even after
// settlement drains the live stock.
type Campaign struct {
	CampaignID uuid.UUID
	ProductID  uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	Alpha      decimal.Decimal
	Beta       decimal.Decimal
	Gamma      decimal.Decimal
	Quota      int
	Status     string
	CreatedAt  time.Time
}

// StatusAt derives the clock-based status. A durably ended campaign stays
// ended regardless of the clock.
func (c *Campaign) StatusAt(now time.Time) string {
	if c.Status == CampaignEnded {
		return CampaignEnded
	}
	switch {
	case now.Before(c.StartTime):
		return CampaignPending
	case now.Before(c.EndTime):
		return CampaignActive
	default:
		return CampaignEnded
	}
}

// Bid is a user's latest accepted offer in one campaign. At most one row
// exists per (campaign, user); BidNumber counts how many acceptances the row
// has absorbed.
type Bid struct {
	BidID         uuid.UUID
	CampaignID    uuid.UUID
	UserID        uuid.UUID
	ProductID     uuid.UUID
	Price         decimal.Decimal
	Score         decimal.Decimal
	TimeElapsedMs int64
	BidNumber     int
	CreatedAt     time.Time
}

// Order is a confirmed winning slot materialised at settlement.
type Order struct {
	OrderID    uuid.UUID
	CampaignID uuid.UUID
	UserID     uuid.UUID
	ProductID  uuid.UUID
	FinalPrice decimal.Decimal
	FinalScore decimal.Decimal
	FinalRank  int
	Status     string
	CreatedAt  time.Time
}
