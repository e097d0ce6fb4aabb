package store

import (
	"database/sql"
	"errors"

	"github.com/televibecode/televibe/internal/errs"
)

func (s *Store) GetUserPreferences(userID string) (*UserPreferences, error) {
	row := s.db.QueryRow(`SELECT user_id, preferred_model_id, preferred_provider, active_session_id,
		notifications_on, tracker_preset_name, tracker_config_json FROM user_preferences WHERE user_id = ?`, userID)

	var p UserPreferences
	var notif int
	err := row.Scan(&p.UserID, &p.PreferredModelID, &p.PreferredProvider, &p.ActiveSessionID,
		&notif, &p.TrackerPresetName, &p.TrackerConfigJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return &UserPreferences{UserID: userID, NotificationsOn: true, TrackerPresetName: "normal"}, nil
	}
	if err != nil {
		return nil, errs.Fatal("store.GetUserPreferences", "scan", err)
	}
	p.NotificationsOn = notif != 0
	return &p, nil
}

// UpsertUserPreferences writes preferences, creating the row on first use.
func (s *Store) UpsertUserPreferences(p UserPreferences) error {
	notif := 0
	if p.NotificationsOn {
		notif = 1
	}
	_, err := s.db.Exec(`INSERT INTO user_preferences
		(user_id, preferred_model_id, preferred_provider, active_session_id, notifications_on, tracker_preset_name, tracker_config_json)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET
			preferred_model_id=excluded.preferred_model_id,
			preferred_provider=excluded.preferred_provider,
			active_session_id=excluded.active_session_id,
			notifications_on=excluded.notifications_on,
			tracker_preset_name=excluded.tracker_preset_name,
			tracker_config_json=excluded.tracker_config_json`,
		p.UserID, p.PreferredModelID, p.PreferredProvider, p.ActiveSessionID, notif, p.TrackerPresetName, p.TrackerConfigJSON)
	if err != nil {
		return errs.Fatal("store.UpsertUserPreferences", "upsert", err)
	}
	return nil
}

// SetActiveSession is the switchActive pure read-side write: updates only
// the per-user active-session preference.
func (s *Store) SetActiveSession(userID, sessionID string) error {
	p, err := s.GetUserPreferences(userID)
	if err != nil {
		return err
	}
	p.ActiveSessionID = sessionID
	return s.UpsertUserPreferences(*p)
}
