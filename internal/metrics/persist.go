package metrics

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
	"github.com/roelfdiedericks/clawkeeper/internal/paths"
)

const (
	saveInterval  = 5 * time.Minute
	pruneMaxAge   = 7 * 24 * time.Hour
	dbFileName    = "metrics.db"
	dbOpenOptions = "?_busy_timeout=5000"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS metrics (
	path       TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// initPersistence opens the metrics DB, loads persisted data, prunes stale entries,
// and starts a background save ticker. Degrades to in-memory if anything fails.
func (m *Manager) initPersistence() {
	dbPath := paths.DataPath(dbFileName)
	if err := paths.EnsureParentDir(dbPath); err != nil {
		L_warn("metrics: persistence disabled, cannot create directory", "error", err)
		return
	}

	db, err := sql.Open("sqlite3", dbPath+dbOpenOptions)
	if err != nil {
		L_warn("metrics: persistence disabled, cannot open database", "error", err)
		return
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		L_warn("metrics: persistence disabled, schema creation failed", "error", err)
		db.Close()
		return
	}

	m.db = db
	m.stopSave = make(chan struct{})

	loaded, err := m.load()
	if err != nil {
		L_warn("metrics: failed to load persisted data", "error", err)
	} else if loaded > 0 {
		L_debug("metrics: loaded persisted data", "count", loaded)
	}

	pruned, err := m.prune()
	if err != nil {
		L_warn("metrics: failed to prune stale data", "error", err)
	} else if pruned > 0 {
		L_debug("metrics: pruned stale metrics", "count", pruned)
	}

	go m.saveLoop()
}

// saveLoop runs periodic saves until stopSave is closed.
func (m *Manager) saveLoop() {
	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.save(); err != nil {
				L_warn("metrics: periodic save failed", "error", err)
			}
		case <-m.stopSave:
			return
		}
	}
}

// Close stops the background save ticker, performs a final save, and closes the DB.
// Safe to call even if persistence was never initialized.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}

	if m.stopSave != nil {
		close(m.stopSave)
		m.stopSave = nil
	}

	if err := m.save(); err != nil {
		L_warn("metrics: final save failed", "error", err)
	}

	err := m.db.Close()
	m.db = nil
	return err
}

// save writes all metrics to the database in a single transaction.
func (m *Manager) save() error {
	if m.db == nil {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT INTO metrics (path, type, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := saveMapEntries(stmt, now, m.timings, TypeTiming, marshalTiming); err != nil {
		return err
	}
	if err := saveMapEntries(stmt, now, m.counters, TypeCounter, marshalCounter); err != nil {
		return err
	}
	if err := saveMapEntries(stmt, now, m.successFail, TypeSuccessFail, marshalSuccessFail); err != nil {
		return err
	}

	return tx.Commit()
}

// saveMapEntries serializes all entries in a metric map and upserts them.
func saveMapEntries[T any](stmt *sql.Stmt, now int64, metrics map[string]*T, metricType MetricType, marshal func(*T) ([]byte, error)) error {
	for path, metric := range metrics {
		data, err := marshal(metric)
		if err != nil {
			L_warn("metrics: failed to marshal metric", "path", path, "type", metricType, "error", err)
			continue
		}
		if _, err := stmt.Exec(path, string(metricType), data, now); err != nil {
			return err
		}
	}
	return nil
}

// load reads all persisted metrics from the database and restores them in memory.
func (m *Manager) load() (int, error) {
	rows, err := m.db.Query("SELECT path, type, data FROM metrics")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for rows.Next() {
		var path, metricType string
		var data []byte
		if err := rows.Scan(&path, &metricType, &data); err != nil {
			L_warn("metrics: failed to scan row", "error", err)
			continue
		}

		if err := m.restoreMetric(path, MetricType(metricType), data); err != nil {
			L_warn("metrics: failed to restore metric", "path", path, "type", metricType, "error", err)
			continue
		}
		count++
	}

	return count, rows.Err()
}

// prune deletes metrics not updated within the retention period.
func (m *Manager) prune() (int, error) {
	cutoff := time.Now().Add(-pruneMaxAge).Unix()
	result, err := m.db.Exec("DELETE FROM metrics WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// restoreMetric deserializes a metric and registers it in the appropriate map and tree.
// Must be called with m.mu held.
func (m *Manager) restoreMetric(path string, metricType MetricType, data []byte) error {
	node := m.getOrCreateNode(path)
	node.Type = metricType

	switch metricType {
	case TypeTiming:
		metric, err := unmarshalTiming(data)
		if err != nil {
			return err
		}
		m.timings[path] = metric
		node.Metric = metric

	case TypeCounter:
		metric, err := unmarshalCounter(data)
		if err != nil {
			return err
		}
		m.counters[path] = metric
		node.Metric = metric

	case TypeSuccessFail:
		metric, err := unmarshalSuccessFail(data)
		if err != nil {
			return err
		}
		m.successFail[path] = metric
		node.Metric = metric
	}

	return nil
}

// ---- Intermediary structs for serialization ----
// These mirror metric fields but are JSON-safe (no mutex, no unexported ring buffers).

type persistTiming struct {
	Count   int64           `json:"count"`
	Total   time.Duration   `json:"total"`
	Min     time.Duration   `json:"min"`
	Max     time.Duration   `json:"max"`
	Last    time.Duration   `json:"last"`
	Samples []time.Duration `json:"samples,omitempty"`
}

type persistCounter struct {
	Value int64     `json:"value"`
	Last  time.Time `json:"last"`
}

type persistSuccessFail struct {
	Success        int64            `json:"success"`
	Failures       int64            `json:"failures"`
	LastSuccess    time.Time        `json:"last_success"`
	LastFailure    time.Time        `json:"last_failure"`
	FailureReasons map[string]int64 `json:"failure_reasons,omitempty"`
}

// ---- Marshal helpers (per-type, no type assertions needed) ----

func marshalTiming(m *TimingMetric) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(persistTiming{
		Count: m.Count, Total: m.Total, Min: m.Min, Max: m.Max, Last: m.Last, Samples: m.samples,
	})
}

func marshalCounter(m *CounterMetric) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(persistCounter{Value: m.Value, Last: m.Last})
}

func marshalSuccessFail(m *SuccessFailMetric) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(persistSuccessFail{
		Success: m.Success, Failures: m.Failures,
		LastSuccess: m.LastSuccess, LastFailure: m.LastFailure, FailureReasons: m.FailureReasons,
	})
}

// ---- Unmarshal helpers ----

func unmarshalTiming(data []byte) (*TimingMetric, error) {
	var p persistTiming
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	samples := p.Samples
	if samples == nil {
		samples = make([]time.Duration, 0, maxSamples)
	}
	return &TimingMetric{
		Count: p.Count, Total: p.Total, Min: p.Min, Max: p.Max, Last: p.Last,
		samples: samples,
	}, nil
}

func unmarshalCounter(data []byte) (*CounterMetric, error) {
	var p persistCounter
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &CounterMetric{Value: p.Value, Last: p.Last}, nil
}

func unmarshalSuccessFail(data []byte) (*SuccessFailMetric, error) {
	var p persistSuccessFail
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	reasons := p.FailureReasons
	if reasons == nil {
		reasons = make(map[string]int64)
	}
	return &SuccessFailMetric{
		Success: p.Success, Failures: p.Failures,
		LastSuccess: p.LastSuccess, LastFailure: p.LastFailure,
		FailureReasons: reasons,
	}, nil
}
