// Package usage keeps in-memory API traffic statistics for administrators:
// request counts, error rates and latency per route and per entity.
package usage

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nursebridge/nursebridge/internal/platform/auth"
)

const defaultCapacity = 50000

// Request is one served API request.
type Request struct {
	Timestamp  time.Time
	Method     string
	Route      string // echo route template, e.g. /api/v1/visits/:id
	Entity     string // first segment after /api/v1/, e.g. visits
	UserID     string
	StatusCode int
	Duration   time.Duration
}

func (r Request) failed() bool { return r.StatusCode >= 400 }

type counter struct {
	requests int64
	errors   int64
	duration time.Duration
	statuses map[int]int64
}

func (c *counter) add(r Request) {
	c.requests++
	if r.failed() {
		c.errors++
	}
	c.duration += r.Duration
	if c.statuses == nil {
		c.statuses = make(map[int]int64)
	}
	c.statuses[r.StatusCode]++
}

func (c *counter) errorRate() float64 {
	if c.requests == 0 {
		return 0
	}
	return float64(c.errors) / float64(c.requests)
}

func (c *counter) avg() time.Duration {
	if c.requests == 0 {
		return 0
	}
	return c.duration / time.Duration(c.requests)
}

// RouteSummary aggregates one route.
type RouteSummary struct {
	Route         string        `json:"route"`
	TotalRequests int64         `json:"total_requests"`
	ErrorRate     float64       `json:"error_rate"`
	AvgLatency    time.Duration `json:"avg_latency"`
	P95Latency    time.Duration `json:"p95_latency"`
	Statuses      map[int]int64 `json:"statuses"`
}

// EntitySummary breaks one entity's traffic down by method.
type EntitySummary struct {
	Entity  string `json:"entity"`
	Reads   int64  `json:"reads"`
	Creates int64  `json:"creates"`
	Updates int64  `json:"updates"`
	Deletes int64  `json:"deletes"`
	Total   int64  `json:"total"`
}

// Overview is the headline view.
type Overview struct {
	TotalRequests int64           `json:"total_requests"`
	TotalErrors   int64           `json:"total_errors"`
	ErrorRate     float64         `json:"error_rate"`
	AvgLatency    time.Duration   `json:"avg_latency"`
	ActiveUsers   int             `json:"active_users"`
	TopRoutes     []*RouteSummary `json:"top_routes"`
	Since         time.Time       `json:"since"`
}

// Bucket is one interval of the time series.
type Bucket struct {
	Start      time.Time     `json:"start"`
	Requests   int64         `json:"requests"`
	Errors     int64         `json:"errors"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// Tracker aggregates requests. Totals and per-route counters cover the
// whole process lifetime; latency percentiles and the time series use the
// most recent requests held in a fixed-size ring.
type Tracker struct {
	mu       sync.RWMutex
	ring     []Request
	next     int
	full     bool
	total    counter
	routes   map[string]*counter
	entities map[string]*EntitySummary
	users    map[string]struct{}
	since    time.Time
}

// NewTracker keeps the last capacity requests; zero or less uses a default.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Tracker{
		ring:     make([]Request, capacity),
		routes:   make(map[string]*counter),
		entities: make(map[string]*EntitySummary),
		users:    make(map[string]struct{}),
		since:    time.Now().UTC(),
	}
}

// Record adds a request to every counter.
func (t *Tracker) Record(r Request) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ring[t.next] = r
	t.next++
	if t.next == len(t.ring) {
		t.next = 0
		t.full = true
	}

	t.total.add(r)
	rc, ok := t.routes[r.Route]
	if !ok {
		rc = &counter{}
		t.routes[r.Route] = rc
	}
	rc.add(r)

	if r.UserID != "" {
		t.users[r.UserID] = struct{}{}
	}

	if r.Entity != "" {
		es, ok := t.entities[r.Entity]
		if !ok {
			es = &EntitySummary{Entity: r.Entity}
			t.entities[r.Entity] = es
		}
		switch r.Method {
		case http.MethodGet:
			es.Reads++
		case http.MethodPost:
			es.Creates++
		case http.MethodPut, http.MethodPatch:
			es.Updates++
		case http.MethodDelete:
			es.Deletes++
		}
		es.Total++
	}
}

// recent returns the ring contents oldest first. Callers hold mu.
func (t *Tracker) recent() []Request {
	if !t.full {
		return t.ring[:t.next]
	}
	out := make([]Request, 0, len(t.ring))
	out = append(out, t.ring[t.next:]...)
	return append(out, t.ring[:t.next]...)
}

func (t *Tracker) p95(route string) time.Duration {
	var ds []time.Duration
	for _, r := range t.recent() {
		if r.Route == route {
			ds = append(ds, r.Duration)
		}
	}
	if len(ds) == 0 {
		return 0
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
	idx := int(float64(len(ds)) * 0.95)
	if idx >= len(ds) {
		idx = len(ds) - 1
	}
	return ds[idx]
}

func (t *Tracker) routeSummary(route string, c *counter) *RouteSummary {
	statuses := make(map[int]int64, len(c.statuses))
	for k, v := range c.statuses {
		statuses[k] = v
	}
	return &RouteSummary{
		Route:         route,
		TotalRequests: c.requests,
		ErrorRate:     c.errorRate(),
		AvgLatency:    c.avg(),
		P95Latency:    t.p95(route),
		Statuses:      statuses,
	}
}

// Route returns the summary of one route, or nil if it has not been hit.
func (t *Tracker) Route(route string) *RouteSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.routes[route]
	if !ok {
		return nil
	}
	return t.routeSummary(route, c)
}

// TopRoutes returns up to limit routes by request count.
func (t *Tracker) TopRoutes(limit int) []*RouteSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.topRoutes(limit)
}

func (t *Tracker) topRoutes(limit int) []*RouteSummary {
	out := make([]*RouteSummary, 0, len(t.routes))
	for route, c := range t.routes {
		out = append(out, t.routeSummary(route, c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalRequests != out[j].TotalRequests {
			return out[i].TotalRequests > out[j].TotalRequests
		}
		return out[i].Route < out[j].Route
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Entities returns per-entity method breakdowns, busiest first.
func (t *Tracker) Entities() []EntitySummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]EntitySummary, 0, len(t.entities))
	for _, es := range t.entities {
		out = append(out, *es)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Entity < out[j].Entity
	})
	return out
}

func (t *Tracker) Overview() *Overview {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Overview{
		TotalRequests: t.total.requests,
		TotalErrors:   t.total.errors,
		ErrorRate:     t.total.errorRate(),
		AvgLatency:    t.total.avg(),
		ActiveUsers:   len(t.users),
		TopRoutes:     t.topRoutes(5),
		Since:         t.since,
	}
}

// TimeSeries buckets the recent requests of the last window into interval
// slots ending at now.
func (t *Tracker) TimeSeries(now time.Time, interval, window time.Duration) []Bucket {
	if interval <= 0 || window < interval {
		return []Bucket{}
	}
	n := int(window / interval)
	start := now.Add(-time.Duration(n) * interval)
	buckets := make([]Bucket, n)
	durations := make([]time.Duration, n)
	for i := range buckets {
		buckets[i].Start = start.Add(time.Duration(i) * interval)
	}

	t.mu.RLock()
	for _, r := range t.recent() {
		if r.Timestamp.Before(start) || !r.Timestamp.Before(now) {
			continue
		}
		i := int(r.Timestamp.Sub(start) / interval)
		buckets[i].Requests++
		if r.failed() {
			buckets[i].Errors++
		}
		durations[i] += r.Duration
	}
	t.mu.RUnlock()

	for i := range buckets {
		if buckets[i].Requests > 0 {
			buckets[i].AvgLatency = durations[i] / time.Duration(buckets[i].Requests)
		}
	}
	return buckets
}

// entityOf returns the first segment after /api/v1/.
func entityOf(path string) string {
	const prefix = "/api/v1/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := path[len(prefix):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// Middleware records every request that matched a route.
func Middleware(t *Tracker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			t.Record(Request{
				Timestamp:  start.UTC(),
				Method:     c.Request().Method,
				Route:      route,
				Entity:     entityOf(c.Request().URL.Path),
				UserID:     auth.UserIDFromContext(c.Request().Context()),
				StatusCode: status,
				Duration:   time.Since(start),
			})
			return err
		}
	}
}

// Handler serves the statistics to administrators.
type Handler struct {
	tracker *Tracker
	now     func() time.Time
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker, now: func() time.Time { return time.Now().UTC() }}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/usage", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.Overview)
	g.GET("/routes", h.Routes)
	g.GET("/entities", h.Entities)
	g.GET("/timeseries", h.TimeSeries)
}

func (h *Handler) Overview(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tracker.Overview())
}

// Routes lists the busiest routes, or one route when ?route= is given.
func (h *Handler) Routes(c echo.Context) error {
	if route := c.QueryParam("route"); route != "" {
		s := h.tracker.Route(route)
		if s == nil {
			return echo.NewHTTPError(http.StatusNotFound, "no traffic recorded for route")
		}
		return c.JSON(http.StatusOK, s)
	}
	limit := 20
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 {
		limit = l
	}
	return c.JSON(http.StatusOK, h.tracker.TopRoutes(limit))
}

func (h *Handler) Entities(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tracker.Entities())
}

// TimeSeries accepts ?interval= and ?window= as Go durations or whole days
// ("7d"), defaulting to one-minute buckets over the last hour.
func (h *Handler) TimeSeries(c echo.Context) error {
	interval, err := parseDuration(c.QueryParam("interval"), time.Minute)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid interval")
	}
	window, err := parseDuration(c.QueryParam("window"), time.Hour)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid window")
	}
	if interval <= 0 || window < interval || window/interval > 10000 {
		return echo.NewHTTPError(http.StatusBadRequest, "window must cover between 1 and 10000 intervals")
	}
	return c.JSON(http.StatusOK, h.tracker.TimeSeries(h.now(), interval, window))
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
