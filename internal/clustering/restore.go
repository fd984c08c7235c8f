package clustering

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
	"github.com/Capitan-Parrot/sentinel-fusion/internal/storage"
)

// Restore loads persisted alerts and clusters, replacing the engine state.
// Cluster members are rebuilt from the restored history, so members and
// history share the same records.
func (e *Engine) Restore(ctx context.Context, store storage.Store) error {
	var alerts []*models.Alert
	if _, err := store.Load(ctx, storage.KeyAlerts, &alerts); err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}
	var records []clusterRecord
	if _, err := store.Load(ctx, storage.KeyClusters, &records); err != nil {
		return fmt.Errorf("load clusters: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(alerts) > e.historyCap {
		alerts = alerts[:e.historyCap]
	}
	e.history = alerts
	e.byID = make(map[string]*models.Alert, len(alerts))
	for _, a := range alerts {
		e.byID[a.ID] = a
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].FirstUpdate.Before(records[j].FirstUpdate) })
	e.clusters = make(map[string]*models.AlertCluster, len(records))
	e.clusterOf = make(map[string]string, len(alerts))
	e.active = make(map[string][]string)
	e.order = e.order[:0]
	for _, rec := range records {
		c := rec.AlertCluster
		ids := rec.MemberIDs
		if len(ids) == 0 {
			// Older records embedded the member alerts.
			ids = lo.Map(c.Alerts, func(a *models.Alert, _ int) string { return a.ID })
		}
		if c.AlertCount < len(ids) {
			c.AlertCount = len(ids)
		}
		c.Alerts = make([]*models.Alert, 0, len(ids))
		for _, id := range ids {
			a, ok := e.byID[id]
			if !ok {
				continue
			}
			if _, taken := e.clusterOf[id]; taken {
				continue
			}
			c.Alerts = append(c.Alerts, a)
			e.clusterOf[id] = c.ID
		}

		e.clusters[c.ID] = &c
		e.order = append(e.order, c.ID)
		if c.Status == models.ClusterActive {
			e.active[c.Location] = append(e.active[c.Location], c.ID)
		}
	}
	return nil
}
