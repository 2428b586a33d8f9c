package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// HandledNotificationIDsKey is the setting holding the ids of every message
// the notification synchronizer has already processed.
const HandledNotificationIDsKey = "handledNotificationIDs"

// DismissedNotificationIDsKey is the setting holding dismissed notification
// ids until their mirrored documents are deleted.
const DismissedNotificationIDsKey = "dismissedNotificationIDs"

// SetSetting creates or replaces a setting.
func (db *DB) SetSetting(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetSetting returns a setting value. ok is false when the key is unset.
func (db *DB) GetSetting(key string) (value string, ok bool, err error) {
	err = db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// DeleteSetting removes a setting.
func (db *DB) DeleteSetting(key string) error {
	_, err := db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// HandledNotificationIDs returns the persisted handled message ids.
func (db *DB) HandledNotificationIDs() ([]string, error) {
	return db.idList(HandledNotificationIDsKey)
}

// SaveHandledNotificationIDs replaces the persisted handled message ids.
func (db *DB) SaveHandledNotificationIDs(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return db.setIDList(HandledNotificationIDsKey, ids)
}

// DismissedNotificationIDs returns the ids of dismissed notifications whose
// mirrored documents may still exist remotely.
func (db *DB) DismissedNotificationIDs() ([]string, error) {
	return db.idList(DismissedNotificationIDsKey)
}

// SaveDismissedNotificationIDs replaces the pending dismissed ids. An empty
// list removes the setting.
func (db *DB) SaveDismissedNotificationIDs(ids []string) error {
	if len(ids) == 0 {
		return db.DeleteSetting(DismissedNotificationIDsKey)
	}
	return db.setIDList(DismissedNotificationIDsKey, ids)
}

func (db *DB) idList(key string) ([]string, error) {
	raw, ok, err := db.GetSetting(key)
	if err != nil || !ok {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return ids, nil
}

func (db *DB) setIDList(key string, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return db.SetSetting(key, string(raw))
}
