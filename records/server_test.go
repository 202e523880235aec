// Copyright 2025 The Mobiliza Authors
// SPDX-License-Identifier: Apache-2.0

package records

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mobilizabr/mobiliza/geocoding"
	"github.com/mobilizabr/mobiliza/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepository is an in-memory Repository for handler tests.
type memRepository struct {
	mu      sync.Mutex
	records map[string]*Record
	nextID  int
}

func newMemRepository() *memRepository {
	return &memRepository{records: map[string]*Record{}}
}

func (m *memRepository) CreateSchema() error { return nil }
func (m *memRepository) DB() *sql.DB         { return nil }

func (m *memRepository) Save(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		m.nextID++
		rec.ID = string(rune('a' + m.nextID - 1))
	}

	cp := *rec
	m.records[rec.ID] = &cp

	return nil
}

func (m *memRepository) Get(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *rec

	return &cp, nil
}

func (m *memRepository) List(_ context.Context, f Filter) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Record

	for _, rec := range m.records {
		if f.Kind != "" && rec.Kind != f.Kind {
			continue
		}

		cp := *rec
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *memRepository) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.records), nil
}

func (m *memRepository) Update(_ context.Context, id string, fields geocoding.Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}

	if p, ok := fields[geocoding.FieldPoint].(spatial.Point); ok {
		rec.Point = &p
	}

	if s, ok := fields[geocoding.FieldGeocodingProvider].(string); ok {
		rec.GeocodingProvider = s
	}

	return nil
}

// fixedProvider resolves every address to the same point.
type fixedProvider struct {
	name  string
	point spatial.Point
}

func (p fixedProvider) Name() string { return p.name }

func (p fixedProvider) TryResolve(_ context.Context, _ geocoding.Address) geocoding.Result {
	pt := p.point

	return geocoding.Result{Outcome: geocoding.OutcomeSuccess, Point: &pt, Provider: p.name, Confidence: "high"}
}

// outcomeProvider never succeeds.
type outcomeProvider struct {
	name    string
	outcome geocoding.Outcome
}

func (p outcomeProvider) Name() string { return p.name }

func (p outcomeProvider) TryResolve(_ context.Context, _ geocoding.Address) geocoding.Result {
	return geocoding.Result{Outcome: p.outcome, Provider: p.name, Reason: "nope"}
}

type stubLookup struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	answer  *geocoding.PartialAddress
	err     error
}

func (l *stubLookup) Lookup(ctx context.Context, _ string) (*geocoding.PartialAddress, error) {
	if l.calls.Add(1) == 1 && l.started != nil {
		close(l.started)
	}

	if l.release != nil {
		select {
		case <-l.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return l.answer, l.err
}

var centro = spatial.Point{Lat: -23.5505, Lng: -46.6333}

func setupServerTest(t *testing.T, lookup PostalCodeLookup, providers ...geocoding.Provider) (*gin.Engine, *memRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if len(providers) == 0 {
		providers = []geocoding.Provider{fixedProvider{name: geocoding.ProviderNominatim, point: centro}}
	}

	if lookup == nil {
		lookup = &stubLookup{}
	}

	repo := newMemRepository()
	resolver := geocoding.NewResolver(providers, geocoding.WithBulkDelay(0))

	return NewServer(repo, resolver, lookup).Handler(), repo
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	return w
}

func paulistaAddress() geocoding.Address {
	return geocoding.Address{PostalCode: "01310-100", Street: "Avenida Paulista", Number: "1578", City: "São Paulo", State: "SP"}
}

func TestLookupPostalCodeAPI(t *testing.T) {
	lookup := &stubLookup{answer: &geocoding.PartialAddress{
		PostalCode: "01310100",
		Street:     "Avenida Paulista",
		City:       "São Paulo",
		State:      "SP",
		Source:     geocoding.SourceBrasilAPIV2,
	}}
	router, _ := setupServerTest(t, lookup)

	w := doJSON(router, http.MethodGet, "/api/cep/01310-100", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got geocoding.PartialAddress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, *lookup.answer, got)

	w = doJSON(router, http.MethodGet, "/api/cep/123", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int32(1), lookup.calls.Load(), "invalid codes never reach the lookup")
}

func TestLookupPostalCodeUnknown(t *testing.T) {
	router, _ := setupServerTest(t, &stubLookup{})

	w := doJSON(router, http.MethodGet, "/api/cep/99999999", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestLookupPostalCodeCollapsesConcurrentRequests(t *testing.T) {
	lookup := &stubLookup{
		started: make(chan struct{}),
		release: make(chan struct{}),
		answer:  &geocoding.PartialAddress{PostalCode: "01310100", City: "São Paulo", State: "SP"},
	}
	router, _ := setupServerTest(t, lookup)

	const n = 5

	codes := make([]int, n)

	var wg sync.WaitGroup

	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			codes[i] = doJSON(router, http.MethodGet, "/api/cep/01310100", nil).Code
		}()
	}

	<-lookup.started
	time.Sleep(100 * time.Millisecond)
	close(lookup.release)
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}

	assert.Equal(t, int32(1), lookup.calls.Load())
}

func TestLookupPostalCodeSurvivesCancelledCaller(t *testing.T) {
	lookup := &stubLookup{
		started: make(chan struct{}),
		release: make(chan struct{}),
		answer:  &geocoding.PartialAddress{PostalCode: "01310100", City: "São Paulo", State: "SP"},
	}
	router, _ := setupServerTest(t, lookup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := httptest.NewRecorder()
	firstDone := make(chan struct{})

	go func() {
		defer close(firstDone)

		req := httptest.NewRequest(http.MethodGet, "/api/cep/01310100", nil).WithContext(ctx)
		router.ServeHTTP(first, req)
	}()

	<-lookup.started

	second := httptest.NewRecorder()
	secondDone := make(chan struct{})

	go func() {
		defer close(secondDone)

		router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/cep/01310100", nil))
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-firstDone

	close(lookup.release)
	<-secondDone

	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Equal(t, int32(1), lookup.calls.Load())
}

func TestGeocodeAPI(t *testing.T) {
	router, _ := setupServerTest(t, nil)

	w := doJSON(router, http.MethodPost, "/api/geocode", paulistaAddress())
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Outcome  string        `json:"outcome"`
		Point    spatial.Point `json:"point"`
		Provider string        `json:"provider"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "success", got.Outcome)
	assert.Equal(t, centro, got.Point)
	assert.Equal(t, geocoding.ProviderNominatim, got.Provider)
}

func TestGeocodeAPIFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider geocoding.Provider
		addr     geocoding.Address
		status   int
		outcome  string
	}{
		{
			name:     "validation",
			provider: fixedProvider{name: geocoding.ProviderNominatim, point: centro},
			addr:     geocoding.Address{Street: "Avenida Paulista"},
			status:   http.StatusBadRequest,
		},
		{
			name:     "not found",
			provider: outcomeProvider{name: geocoding.ProviderNominatim, outcome: geocoding.OutcomeNotFound},
			addr:     paulistaAddress(),
			status:   http.StatusUnprocessableEntity,
			outcome:  "not_found",
		},
		{
			name:     "provider error",
			provider: outcomeProvider{name: geocoding.ProviderNominatim, outcome: geocoding.OutcomeProviderError},
			addr:     paulistaAddress(),
			status:   http.StatusUnprocessableEntity,
			outcome:  "provider_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupServerTest(t, nil, tt.provider)

			w := doJSON(router, http.MethodPost, "/api/geocode", tt.addr)
			require.Equal(t, tt.status, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

			if tt.outcome == "" {
				return
			}

			assert.Equal(t, geocoding.UserMessage, body["error"])
			assert.Equal(t, tt.outcome, body["outcome"])
		})
	}
}

func TestCreateRecordAPI(t *testing.T) {
	router, repo := setupServerTest(t, nil)

	w := doJSON(router, http.MethodPost, "/api/records", CreateRecordRequest{
		Kind:    KindCoordinator,
		Name:    "Ana",
		Address: paulistaAddress(),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	stored, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Point)
	assert.Equal(t, centro, *stored.Point)
	assert.Equal(t, geocoding.ProviderNominatim, stored.GeocodingProvider)

	w = doJSON(router, http.MethodGet, "/api/records/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/records/zzz", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRecordAPIRefusesUnresolved(t *testing.T) {
	router, repo := setupServerTest(t, nil, outcomeProvider{name: geocoding.ProviderNominatim, outcome: geocoding.OutcomeNotFound})

	w := doJSON(router, http.MethodPost, "/api/records", CreateRecordRequest{Kind: KindTeam, Name: "Equipe", Address: paulistaAddress()})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(router, http.MethodPost, "/api/records", CreateRecordRequest{Kind: "volunteer", Name: "X", Address: paulistaAddress()})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/records", CreateRecordRequest{Kind: KindTeam, Name: "X"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count, "nothing is stored without a coordinate")
}

func TestRegeocodeAPI(t *testing.T) {
	moved := spatial.Point{Lat: -22.9068, Lng: -43.1729}
	router, repo := setupServerTest(t, nil,
		fixedProvider{name: geocoding.ProviderPostalCode, point: centro},
		fixedProvider{name: geocoding.ProviderNominatim, point: moved},
	)
	ctx := context.Background()

	for _, rec := range []*Record{
		{ID: "1", Kind: KindLeader, Address: paulistaAddress(), Point: &centro},
		{ID: "2", Kind: KindTeam, Address: paulistaAddress(), Point: &centro},
		{ID: "3", Kind: KindLeader, Address: geocoding.Address{State: "SP"}},
	} {
		require.NoError(t, repo.Save(ctx, rec))
	}

	w := doJSON(router, http.MethodPost, "/api/records/regeocode?provider=nominatim&kind=leader", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary geocoding.BulkSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, geocoding.BulkSummary{Total: 2, Refreshed: 1, Skipped: 1}, summary)

	leader, err := repo.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, moved, *leader.Point)

	team, err := repo.Get(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, centro, *team.Point, "other kinds are untouched")
}

func TestRegeocodeAPIErrors(t *testing.T) {
	router, _ := setupServerTest(t, nil)

	w := doJSON(router, http.MethodPost, "/api/records/regeocode", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/records/regeocode?provider=here", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), geocoding.ProviderNominatim)

	w = doJSON(router, http.MethodPost, "/api/records/regeocode?provider=nominatim&kind=volunteer", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRecordsAPI(t *testing.T) {
	router, repo := setupServerTest(t, nil)

	w := doJSON(router, http.MethodGet, "/api/records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	require.NoError(t, repo.Save(context.Background(), &Record{ID: "x", Kind: KindSupporter, Address: paulistaAddress()}))

	w = doJSON(router, http.MethodGet, "/api/records?kind=supporter", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var recs []Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "x", recs[0].ID)
}

func TestToGeocodingRecords(t *testing.T) {
	recs := ToGeocodingRecords([]*Record{{ID: "1", Address: paulistaAddress(), Point: &centro}})
	require.Len(t, recs, 1)
	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, paulistaAddress(), recs[0].Address)
	assert.Equal(t, &centro, recs[0].Point)
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
