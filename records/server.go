// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mobilizabr/mobiliza/geocoding"
	"golang.org/x/sync/singleflight"
)

// PostalCodeLookup prefills an address from a CEP.
type PostalCodeLookup interface {
	Lookup(ctx context.Context, code string) (*geocoding.PartialAddress, error)
}

// Server exposes address resolution and record registration over HTTP.
type Server struct {
	repo     Repository
	resolver *geocoding.Resolver
	lookup   PostalCodeLookup
	cepGroup singleflight.Group
}

// NewServer creates a server.
func NewServer(repo Repository, resolver *geocoding.Resolver, lookup PostalCodeLookup) *Server {
	log.Printf("📍 Geocoding chain: %v", resolver.Providers())

	return &Server{
		repo:     repo,
		resolver: resolver,
		lookup:   lookup,
	}
}

// Handler returns the router with every API route registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.Default()

	r.GET("/api/cep/:cep", s.lookupPostalCode)
	r.POST("/api/geocode", s.geocode)
	r.GET("/api/records", s.listRecords)
	r.GET("/api/records/:id", s.getRecord)
	r.POST("/api/records", s.createRecord)
	r.POST("/api/records/regeocode", s.regeocode)

	return r
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	return s.Handler().Run(addr)
}

func (s *Server) lookupPostalCode(ctx *gin.Context) {
	cep, ok := geocoding.NormalizePostalCode(ctx.Param("cep"))
	if !ok {
		ctx.Status(http.StatusNoContent)

		return
	}

	// Concurrent form submissions for the same CEP share one upstream call.
	// It outlives any single caller and is bounded by the per source timeout.
	shared := context.WithoutCancel(ctx.Request.Context())
	ch := s.cepGroup.DoChan(cep, func() (any, error) {
		return s.lookup.Lookup(shared, cep)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Request.Context().Done():
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": ctx.Request.Context().Err().Error()})

		return
	}

	if res.Err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": res.Err.Error()})

		return
	}

	addr, _ := res.Val.(*geocoding.PartialAddress)
	if addr == nil {
		ctx.Status(http.StatusNoContent)

		return
	}

	ctx.JSON(http.StatusOK, addr)
}

// resolve answers the request itself when addr can't be resolved.
func (s *Server) resolve(ctx *gin.Context, addr geocoding.Address) (geocoding.Result, bool) {
	res, err := s.resolver.Resolve(ctx.Request.Context(), addr)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return res, false
	}

	if !res.OK() {
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   geocoding.UserMessage,
			"outcome": res.Outcome,
			"reason":  res.Reason,
		})

		return res, false
	}

	return res, true
}

func (s *Server) geocode(ctx *gin.Context) {
	var addr geocoding.Address
	if err := ctx.BindJSON(&addr); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	res, ok := s.resolve(ctx, addr)
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, res)
}

// CreateRecordRequest is the registration form payload.
type CreateRecordRequest struct {
	Kind    Kind              `json:"kind"`
	Name    string            `json:"name"`
	Address geocoding.Address `json:"address"`
}

func (s *Server) createRecord(ctx *gin.Context) {
	var req CreateRecordRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	rec := &Record{
		Kind:    req.Kind,
		Name:    req.Name,
		Address: req.Address,
	}
	rec.sanitize()

	if err := rec.Validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	// Nothing is stored without a coordinate.
	res, ok := s.resolve(ctx, rec.Address)
	if !ok {
		return
	}

	rec.Point = res.Point
	rec.GeocodingProvider = res.Provider

	if err := s.repo.Save(ctx.Request.Context(), rec); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusCreated, rec)
}

func (s *Server) getRecord(ctx *gin.Context) {
	rec, err := s.repo.Get(ctx.Request.Context(), ctx.Param("id"))
	if errors.Is(err, ErrNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

		return
	}

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, rec)
}

func (s *Server) filter(ctx *gin.Context) (Filter, bool) {
	f := Filter{City: ctx.Query("city")}

	if k := ctx.Query("kind"); k != "" {
		kind, err := ParseKind(k)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

			return f, false
		}

		f.Kind = kind
	}

	return f, true
}

func (s *Server) listRecords(ctx *gin.Context) {
	f, ok := s.filter(ctx)
	if !ok {
		return
	}

	recs, err := s.repo.List(ctx.Request.Context(), f)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if recs == nil {
		recs = []*Record{}
	}

	ctx.JSON(http.StatusOK, recs)
}

func (s *Server) regeocode(ctx *gin.Context) {
	provider := ctx.Query("provider")
	if provider == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "provider query parameter is required"})

		return
	}

	f, ok := s.filter(ctx)
	if !ok {
		return
	}

	recs, err := s.repo.List(ctx.Request.Context(), f)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	summary, err := s.resolver.BulkReresolve(ctx.Request.Context(), ToGeocodingRecords(recs), provider, s.repo)

	var unknown *geocoding.ErrUnknownProvider
	if errors.As(err, &unknown) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "available": unknown.Available})

		return
	}

	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "summary": summary})

		return
	}

	ctx.JSON(http.StatusOK, summary)
}
