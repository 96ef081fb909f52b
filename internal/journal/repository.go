// Package journal persists device effect lifecycle events in SQLite so the
// history of instances, handles and patch bindings can be queried after the
// fact.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
)

// timeLayout sorts lexically in time order for UTC timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// ErrInvalidEntry is returned by Create for entries missing required fields.
var ErrInvalidEntry = errors.New("journal: invalid entry")

// Entry is one journaled lifecycle event.
type Entry struct {
	ID         string           `json:"id"`
	Kind       effect.EventKind `json:"kind"`
	InstanceID int32            `json:"instance_id"`
	Device     effect.DeviceKey `json:"device"`
	EffectUUID uuid.UUID        `json:"effect_uuid"`
	EffectName string           `json:"effect_name"`
	PatchID    effect.PatchID   `json:"patch_id,omitempty"`
	ClientID   string           `json:"client_id,omitempty"`
	Handles    int              `json:"handles"`
	Enabled    bool             `json:"enabled"`
	Pinned     bool             `json:"pinned"`
	CreatedAt  time.Time        `json:"created_at"`
}

// EntryFromEvent converts a registry event into a journal entry.
func EntryFromEvent(ev effect.Event) Entry {
	return Entry{
		Kind:       ev.Kind,
		InstanceID: ev.InstanceID,
		Device:     ev.Device,
		EffectUUID: ev.EffectUUID,
		EffectName: ev.EffectName,
		PatchID:    ev.PatchID,
		ClientID:   ev.ClientID,
		Handles:    ev.Handles,
		Enabled:    ev.Enabled,
		Pinned:     ev.Pinned,
		CreatedAt:  ev.Time,
	}
}

// Filter controls which entries List returns. Zero fields do not filter.
type Filter struct {
	Kind       effect.EventKind
	Device     *effect.DeviceKey
	InstanceID int32
	EffectUUID uuid.UUID
	ClientID   string
	Since      time.Time
	Limit      int // default 50, max 500
	Offset     int
}

// ListResult is one page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and queries journal entries.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in the effect_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidEntry)
	}
	if entry.ID == "" {
		entry.ID = "fxe-" + uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO effect_events (id, kind, instance_id, device_type, device_address,
			effect_uuid, effect_name, patch_id, client_id, handles, enabled, pinned, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Kind), entry.InstanceID,
		entry.Device.Type.String(), entry.Device.Address,
		entry.EffectUUID.String(), entry.EffectName,
		int64(entry.PatchID), entry.ClientID, entry.Handles,
		boolToInt(entry.Enabled), boolToInt(entry.Pinned),
		entry.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit // WHERE clause assembly from filter fields
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	filter.Limit = min(filter.Limit, maxLimit)
	filter.Offset = max(filter.Offset, 0)

	var conditions []string
	var args []any

	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Device != nil {
		conditions = append(conditions, "device_type = ? AND device_address = ?")
		args = append(args, filter.Device.Type.String(), filter.Device.Address)
	}
	if filter.InstanceID != 0 {
		conditions = append(conditions, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}
	if filter.EffectUUID != uuid.Nil {
		conditions = append(conditions, "effect_uuid = ?")
		args = append(args, filter.EffectUUID.String())
	}
	if filter.ClientID != "" {
		conditions = append(conditions, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM effect_events " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := `SELECT id, kind, instance_id, device_type, device_address, effect_uuid, effect_name,
		patch_id, client_id, handles, enabled, pinned, created_at
		FROM effect_events ` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?` //nolint:gosec // WHERE built from parameterised conditions
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                         Entry
		kind, deviceType, effUUID string
		createdAt                 string
		patchID                   int64
		enabled, pinned           int
	)
	if err := rows.Scan(&e.ID, &kind, &e.InstanceID, &deviceType, &e.Device.Address,
		&effUUID, &e.EffectName, &patchID, &e.ClientID, &e.Handles,
		&enabled, &pinned, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning journal entry: %w", err)
	}

	e.Kind = effect.EventKind(kind)
	e.PatchID = effect.PatchID(patchID)
	e.Enabled = enabled != 0
	e.Pinned = pinned != 0

	var err error
	if e.Device.Type, err = effect.ParseDeviceType(deviceType); err != nil {
		return Entry{}, fmt.Errorf("journal entry %s: %w", e.ID, err)
	}
	if e.EffectUUID, err = uuid.Parse(effUUID); err != nil {
		return Entry{}, fmt.Errorf("journal entry %s: parsing effect uuid: %w", e.ID, err)
	}
	if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Entry{}, fmt.Errorf("journal entry %s: parsing timestamp %q: %w", e.ID, createdAt, err)
	}
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
