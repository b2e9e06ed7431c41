// Package journal keeps an append-only record of registry membership changes
// and provisioning outcomes in SQLite.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/elasticd/internal/elastic"
	"github.com/mattjoyce/elasticd/internal/log"
	"github.com/mattjoyce/elasticd/internal/plugin"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindPluginLoaded   Kind = "plugin.loaded"
	KindPluginUnloaded Kind = "plugin.unloaded"
	KindProvision      Kind = "agent.provision"
	KindUnmatched      Kind = "agent.unmatched"
)

const (
	// writeTimeout bounds a journal write made from an observer callback.
	writeTimeout = 2 * time.Second
	// timeFormat is fixed width so created_at sorts as text.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// Entry is one journal row.
type Entry struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	PluginID  string          `json:"plugin_id,omitempty"`
	Detail    json.RawMessage `json:"detail"`
	CreatedAt time.Time       `json:"created_at"`
}

// Journal appends entries to the registry_journal table.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ elastic.Observer = (*Journal)(nil)

// New wraps db, which must have been bootstrapped by storage.OpenSQLite.
func New(db *sql.DB) *Journal {
	return &Journal{db: db, logger: log.WithComponent("journal")}
}

// Record appends an entry and returns its ID. detail is stored as JSON.
func (j *Journal) Record(ctx context.Context, kind Kind, pluginID string, detail any) (string, error) {
	if kind == "" {
		return "", fmt.Errorf("kind is empty")
	}

	payload := []byte("{}")
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return "", fmt.Errorf("marshal detail: %w", err)
		}
		payload = b
	}

	var pluginCol any
	if pluginID != "" {
		pluginCol = pluginID
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(timeFormat)
	_, err := j.db.ExecContext(ctx, `
INSERT INTO registry_journal(id, kind, plugin_id, detail, created_at)
VALUES(?, ?, ?, ?, ?);
`, id, string(kind), pluginCol, string(payload), now)
	if err != nil {
		return "", fmt.Errorf("record journal entry: %w", err)
	}
	return id, nil
}

// Recent returns up to limit of the newest entries, oldest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT id, kind, plugin_id, detail, created_at FROM (
  SELECT rowid AS seq, id, kind, plugin_id, detail, created_at
  FROM registry_journal
  ORDER BY rowid DESC
  LIMIT ?
)
ORDER BY seq ASC;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			kind       string
			pluginID   sql.NullString
			detail     string
			createdAtS string
		)
		if err := rows.Scan(&e.ID, &kind, &pluginID, &detail, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Kind = Kind(kind)
		if pluginID.Valid {
			e.PluginID = pluginID.String
		}
		e.Detail = json.RawMessage(detail)
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return out, nil
}

// Prune deletes entries older than retention and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-retention).Format(timeFormat)
	res, err := j.db.ExecContext(ctx, `DELETE FROM registry_journal WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return n, nil
}

type membershipDetail struct {
	Version     string `json:"version,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Path        string `json:"path,omitempty"`
	Total       int    `json:"total"`
}

type provisionDetail struct {
	Resources   []string `json:"resources"`
	Environment string   `json:"environment"`
	Error       string   `json:"error,omitempty"`
}

// PluginRecorded implements elastic.Observer.
func (j *Journal) PluginRecorded(d plugin.Descriptor, total int) {
	j.observe(KindPluginLoaded, d.ID, membershipDetail{
		Version:     d.Version,
		Fingerprint: d.Fingerprint,
		Path:        d.Path,
		Total:       total,
	})
}

// PluginRemoved implements elastic.Observer.
func (j *Journal) PluginRemoved(d plugin.Descriptor, total int) {
	j.observe(KindPluginUnloaded, d.ID, membershipDetail{Version: d.Version, Total: total})
}

// Provisioned implements elastic.Observer. Unmatched requests are journaled
// under their own kind with no plugin.
func (j *Journal) Provisioned(o elastic.Outcome) {
	detail := provisionDetail{Resources: o.Resources, Environment: o.Environment}
	if detail.Resources == nil {
		detail.Resources = []string{}
	}
	if !o.Matched {
		j.observe(KindUnmatched, "", detail)
		return
	}
	if o.Err != nil {
		detail.Error = o.Err.Error()
	}
	j.observe(KindProvision, o.Plugin.ID, detail)
}

func (j *Journal) observe(kind Kind, pluginID string, detail any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := j.Record(ctx, kind, pluginID, detail); err != nil {
		j.logger.Error("failed to write journal entry", "kind", kind, "plugin", pluginID, "error", err)
	}
}
