// Package clustering groups alerts into per-location incidents and keeps
// camera priority scores in step with alert volume. Every mutation of the
// alert history, the cluster set and camera priorities goes through Engine.
package clustering

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/clock"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/storage"
)

const (
	DefaultHistoryCap        = 500
	DefaultCorrelationWindow = 120 * time.Second

	priorityBump = 20
	maxPriority  = 100
)

var (
	ErrAlertNotFound   = errors.New("alert not found")
	ErrClusterNotFound = errors.New("cluster not found")
)

// SourceToucher adjusts camera sources by logical name.
type SourceToucher interface {
	Touch(name string, mutate func(*models.CameraSource)) bool
}

type Persister interface {
	Schedule(key string, v any)
}

type Publisher interface {
	Enqueue(models.Event)
}

type Options struct {
	HistoryCap        int
	CorrelationWindow time.Duration
	Clock             clock.Clock
	Sources           SourceToucher
	Writer            Persister
	Publisher         Publisher
}

type Engine struct {
	mu        sync.Mutex
	history   []*models.Alert
	byID      map[string]*models.Alert
	clusterOf map[string]string
	clusters  map[string]*models.AlertCluster
	order     []string
	// active indexes ACTIVE cluster ids by location.
	active map[string][]string

	historyCap int
	window     time.Duration
	clock      clock.Clock
	sources    SourceToucher
	writer     Persister
	publisher  Publisher
}

func New(opts Options) *Engine {
	e := &Engine{
		byID:       make(map[string]*models.Alert),
		clusterOf:  make(map[string]string),
		clusters:   make(map[string]*models.AlertCluster),
		active:     make(map[string][]string),
		historyCap: opts.HistoryCap,
		window:     opts.CorrelationWindow,
		clock:      opts.Clock,
		sources:    opts.Sources,
		writer:     opts.Writer,
		publisher:  opts.Publisher,
	}
	if e.historyCap <= 0 {
		e.historyCap = DefaultHistoryCap
	}
	if e.window <= 0 {
		e.window = DefaultCorrelationWindow
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	return e
}

// Ingest records alert and returns the id of the cluster it joined. The
// engine keeps its own copy; later changes to alert are not observed.
// An alert evicted from the history also leaves its cluster's member list.
func (e *Engine) Ingest(alert *models.Alert) string {
	a := alert.Clone()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = e.clock.Now()
	}

	e.mu.Lock()

	e.history = append([]*models.Alert{a}, e.history...)
	e.byID[a.ID] = a
	if len(e.history) > e.historyCap {
		for _, old := range e.history[e.historyCap:] {
			e.evictLocked(old.ID)
		}
		clear(e.history[e.historyCap:])
		e.history = e.history[:e.historyCap]
	}

	if e.sources != nil {
		e.sources.Touch(a.Location, func(s *models.CameraSource) {
			s.ActiveAlerts++
			s.PriorityScore = min(maxPriority, s.PriorityScore+priorityBump)
			s.LastActivity = a.Timestamp
		})
	}

	c := e.correlateLocked(a)
	if c != nil {
		c.Alerts = append([]*models.Alert{a}, c.Alerts...)
		if a.Timestamp.After(c.LastUpdate) {
			c.LastUpdate = a.Timestamp
		}
		c.Severity = models.MaxSeverity(c.Severity, a.Severity)
	} else {
		c = &models.AlertCluster{
			ID:          uuid.NewString(),
			Location:    a.Location,
			Title:       titleFor(a.ThreatType),
			Status:      models.ClusterActive,
			Severity:    a.Severity,
			Alerts:      []*models.Alert{a},
			FirstUpdate: a.Timestamp,
			LastUpdate:  a.Timestamp,
		}
		e.clusters[c.ID] = c
		e.order = append(e.order, c.ID)
		e.active[c.Location] = append(e.active[c.Location], c.ID)
	}
	c.AlertCount++
	e.clusterOf[a.ID] = c.ID
	clusterID := c.ID

	published := a.Clone()
	e.mu.Unlock()

	e.persist()
	e.publish(models.Event{
		Type:      models.EventAlertCreated,
		Key:       published.Location,
		ClusterID: clusterID,
		Alert:     published,
		Time:      published.Timestamp,
	})
	return clusterID
}

// evictLocked forgets an alert that fell off the history.
func (e *Engine) evictLocked(id string) {
	delete(e.byID, id)
	cid, ok := e.clusterOf[id]
	if !ok {
		return
	}
	delete(e.clusterOf, id)
	c := e.clusters[cid]
	// The oldest member sits at the tail.
	for i := len(c.Alerts) - 1; i >= 0; i-- {
		if c.Alerts[i].ID == id {
			c.Alerts = slices.Delete(c.Alerts, i, i+1)
			return
		}
	}
}

// correlateLocked finds the most recently updated active cluster at the
// alert's location that is still inside the correlation window.
func (e *Engine) correlateLocked(a *models.Alert) *models.AlertCluster {
	var best *models.AlertCluster
	for _, id := range e.active[a.Location] {
		c := e.clusters[id]
		if a.Timestamp.Sub(c.LastUpdate) >= e.window {
			continue
		}
		if best == nil || c.LastUpdate.After(best.LastUpdate) {
			best = c
		}
	}
	return best
}

// Resolve marks a cluster RESOLVED. Resolving an already resolved cluster
// is a no-op.
func (e *Engine) Resolve(clusterID string) error {
	e.mu.Lock()
	c, ok := e.clusters[clusterID]
	if !ok {
		e.mu.Unlock()
		return ErrClusterNotFound
	}
	if c.Status == models.ClusterResolved {
		e.mu.Unlock()
		return nil
	}
	now := e.clock.Now()
	c.Status = models.ClusterResolved
	c.ResolvedAt = &now
	location := c.Location
	e.active[location] = slices.DeleteFunc(e.active[location], func(id string) bool { return id == clusterID })
	if len(e.active[location]) == 0 {
		delete(e.active, location)
	}
	e.mu.Unlock()

	e.persist()
	e.publish(models.Event{
		Type:      models.EventClusterResolved,
		Key:       location,
		ClusterID: clusterID,
		Time:      now,
	})
	return nil
}

// Verify labels an alert as a confirmed threat.
func (e *Engine) Verify(alertID, actor, note string) (*models.Alert, error) {
	return e.mutateAlert(alertID, func(a *models.Alert, now time.Time) {
		a.Classification = models.ClassificationVerified
		a.Audit(models.AuditVerified, actor, now, note)
	})
}

// Dismiss labels an alert as a false positive.
func (e *Engine) Dismiss(alertID, actor, note string) (*models.Alert, error) {
	return e.mutateAlert(alertID, func(a *models.Alert, now time.Time) {
		a.Classification = models.ClassificationFalsePositive
		a.Audit(models.AuditDismissed, actor, now, note)
	})
}

func (e *Engine) Annotate(alertID, actor, note string) (*models.Alert, error) {
	return e.mutateAlert(alertID, func(a *models.Alert, now time.Time) {
		a.Annotations = append(a.Annotations, note)
		a.Audit(models.AuditAnnotated, actor, now, note)
	})
}

func (e *Engine) Pin(alertID, actor string, pinned bool) (*models.Alert, error) {
	return e.mutateAlert(alertID, func(a *models.Alert, now time.Time) {
		a.Pinned = pinned
		action := models.AuditPinned
		if !pinned {
			action = models.AuditUnpinned
		}
		a.Audit(action, actor, now, "")
	})
}

func (e *Engine) mutateAlert(alertID string, fn func(*models.Alert, time.Time)) (*models.Alert, error) {
	e.mu.Lock()
	a := e.findAlertLocked(alertID)
	if a == nil {
		e.mu.Unlock()
		return nil, ErrAlertNotFound
	}
	fn(a, e.clock.Now())
	out := a.Clone()
	e.mu.Unlock()

	e.persist()
	return out, nil
}

func (e *Engine) findAlertLocked(id string) *models.Alert {
	return e.byID[id]
}

// Alert returns an alert still held in the history.
func (e *Engine) Alert(id string) (*models.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a := e.findAlertLocked(id)
	if a == nil {
		return nil, ErrAlertNotFound
	}
	return a.Clone(), nil
}

// Alerts returns up to limit alerts from the history, most recent first.
// A non-positive limit returns the whole history.
func (e *Engine) Alerts(limit int) []*models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.history)
	if limit > 0 && limit < n {
		n = limit
	}
	return lo.Map(e.history[:n], func(a *models.Alert, _ int) *models.Alert { return a.Clone() })
}

// Recent returns the latest n alerts raised at location.
func (e *Engine) Recent(location string, n int) []*models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.Alert, 0, n)
	for _, a := range e.history {
		if len(out) == n {
			break
		}
		if a.Location == location {
			out = append(out, a.Clone())
		}
	}
	return out
}

func (e *Engine) Cluster(id string) (*models.AlertCluster, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.clusters[id]
	if !ok {
		return nil, ErrClusterNotFound
	}
	return c.Clone(), nil
}

// Clusters returns clusters ordered by last update, newest first.
func (e *Engine) Clusters(activeOnly bool) []*models.AlertCluster {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.AlertCluster, 0, len(e.order))
	for _, id := range e.order {
		c := e.clusters[id]
		if activeOnly && c.Status != models.ClusterActive {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastUpdate.After(out[j].LastUpdate) })
	return out
}

// clusterRecord is the persisted form of a cluster. Members are stored by
// id and rebuilt from the alert history on restore.
type clusterRecord struct {
	models.AlertCluster
	MemberIDs []string `json:"member_ids"`
}

type alertsSnapshot struct{ e *Engine }

func (s alertsSnapshot) Snapshot() any {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return lo.Map(s.e.history, func(a *models.Alert, _ int) *models.Alert { return a.Clone() })
}

type clustersSnapshot struct{ e *Engine }

func (s clustersSnapshot) Snapshot() any {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return lo.Map(s.e.order, func(id string, _ int) clusterRecord {
		c := s.e.clusters[id]
		rec := clusterRecord{
			AlertCluster: *c,
			MemberIDs:    lo.Map(c.Alerts, func(a *models.Alert, _ int) string { return a.ID }),
		}
		rec.Alerts = nil
		if c.ResolvedAt != nil {
			t := *c.ResolvedAt
			rec.ResolvedAt = &t
		}
		return rec
	})
}

// persist hands the writer lazy snapshots; they are built when it flushes,
// so frequent mutations coalesce into one copy of the state.
func (e *Engine) persist() {
	if e.writer == nil {
		return
	}
	e.writer.Schedule(storage.KeyAlerts, alertsSnapshot{e})
	e.writer.Schedule(storage.KeyClusters, clustersSnapshot{e})
}

func (e *Engine) publish(ev models.Event) {
	if e.publisher != nil {
		e.publisher.Enqueue(ev)
	}
}

// titleFor turns a threat classification such as "ARMED_INTRUDER" into a
// cluster title "Armed Intruder".
func titleFor(threatType string) string {
	words := strings.FieldsFunc(threatType, func(r rune) bool { return r == '_' || r == ' ' || r == '-' })
	if len(words) == 0 {
		return "Unclassified Activity"
	}
	for i, w := range words {
		w = strings.ToLower(w)
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
