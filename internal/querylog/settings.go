package querylog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Typed admin settings stored alongside the query log. Values are kept as
// text with an explicit type tag so the table stays human-inspectable.
const (
	TypeBool   = "bool"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeJSON   = "json"
	TypeString = "str"
)

// ErrSettingNotFound is returned when a key has never been set.
var ErrSettingNotFound = errors.New("setting not found")

// Setting is one admin-tunable key.
type Setting struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	ValueType   string `json:"value_type"`
	Description string `json:"description"`
	UpdatedAt   string `json:"updated_at"`
	UpdatedBy   int64  `json:"updated_by"`
}

// SetSetting upserts one key with an explicit type tag.
func (s *Store) SetSetting(ctx context.Context, key, value, valueType, description string, updatedBy int64) error {
	switch valueType {
	case TypeBool, TypeInt, TypeFloat, TypeJSON, TypeString:
	default:
		return fmt.Errorf("unknown value_type %q", valueType)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_settings (key, value, value_type, description, updated_at, updated_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			value_type = excluded.value_type,
			description = CASE WHEN excluded.description = '' THEN admin_settings.description ELSE excluded.description END,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		key, value, valueType, description, time.Now().UTC().Format(time.RFC3339), updatedBy,
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// GetSetting reads one key.
func (s *Store) GetSetting(ctx context.Context, key string) (*Setting, error) {
	var st Setting
	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, value_type, description, updated_at, updated_by
		FROM admin_settings WHERE key = ?`, key,
	).Scan(&st.Key, &st.Value, &st.ValueType, &st.Description, &st.UpdatedAt, &st.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSettingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	return &st, nil
}

// GetBool reads a boolean setting, falling back to def when unset.
func (s *Store) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	st, err := s.GetSetting(ctx, key)
	if errors.Is(err, ErrSettingNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	if st.ValueType != TypeBool {
		return def, fmt.Errorf("setting %s is %s, not bool", key, st.ValueType)
	}
	return strconv.ParseBool(st.Value)
}

// GetInt reads an integer setting, falling back to def when unset.
func (s *Store) GetInt(ctx context.Context, key string, def int64) (int64, error) {
	st, err := s.GetSetting(ctx, key)
	if errors.Is(err, ErrSettingNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	if st.ValueType != TypeInt {
		return def, fmt.Errorf("setting %s is %s, not int", key, st.ValueType)
	}
	return strconv.ParseInt(st.Value, 10, 64)
}

// GetJSON decodes a json-typed setting into out.
func (s *Store) GetJSON(ctx context.Context, key string, out interface{}) error {
	st, err := s.GetSetting(ctx, key)
	if err != nil {
		return err
	}
	if st.ValueType != TypeJSON {
		return fmt.Errorf("setting %s is %s, not json", key, st.ValueType)
	}
	return json.Unmarshal([]byte(st.Value), out)
}

// ListSettings returns every stored key ordered by name.
func (s *Store) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, value_type, description, updated_at, updated_by
		FROM admin_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()
	var out []Setting
	for rows.Next() {
		var st Setting
		if err = rows.Scan(&st.Key, &st.Value, &st.ValueType, &st.Description, &st.UpdatedAt, &st.UpdatedBy); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
