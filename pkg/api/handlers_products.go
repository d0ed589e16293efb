// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/model"
)

type createProductRequest struct {
	Name     string          `json:"name" binding:"required"`
	Stock    int             `json:"stock" binding:"required,gt=0"`
	MinPrice decimal.Decimal `json:"min_price" binding:"required"`
}

type productResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Stock     int       `json:"stock"`
	MinPrice  string    `json:"min_price"`
	CreatedAt time.Time `json:"created_at"`
}

func newProductResponse(p *model.Product) productResponse {
	return productResponse{
		ProductID: p.ProductID,
		Name:      p.Name,
		Stock:     p.Stock,
		MinPrice:  p.MinPrice.String(),
		CreatedAt: p.CreatedAt,
	}
}

// pagination reads skip/limit query parameters with sane bounds.
func pagination(c *gin.Context) (skip, limit int) {
	skip, _ = strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return skip, limit
}

func (s *Server) handleListProducts(c *gin.Context) {
	skip, limit := pagination(c)
	products, err := s.db.Products(c.Request.Context(), skip, limit)
	if err != nil {
		storeError(c, err, "Products")
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetProduct(c *gin.Context) {
	id, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		detail(c, http.StatusBadRequest, "Invalid product ID")
		return
	}
	product, err := s.db.ProductByID(c.Request.Context(), id)
	if err != nil {
		storeError(c, err, "Product")
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

// handleCreateProduct stores the product and seeds its Redis stock counter so
// settlement can decrement it later.
func (s *Server) handleCreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	if !req.MinPrice.IsPositive() {
		detail(c, http.StatusBadRequest, "min_price must be positive")
		return
	}

	product := &model.Product{
		Name:     req.Name,
		Stock:    req.Stock,
		MinPrice: req.MinPrice,
	}
	ctx := c.Request.Context()
	if err := s.db.CreateProduct(ctx, product); err != nil {
		storeError(c, err, "Product")
		return
	}
	if err := s.kvs.InitStock(ctx, product.ProductID.String(), product.Stock); err != nil {
		// The durable row is the source of truth; the counter can be
		// re-seeded out of band if Redis was down here.
		s.log.Warn("stock counter init failed",
			log.String("product_id", product.ProductID.String()), log.Error(err))
	}

	c.JSON(http.StatusCreated, newProductResponse(product))
}
