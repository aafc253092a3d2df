// interfaces.go: database operations for rehearsal history
package datastore

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	verrors "github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/logger"
)

// Interface abstracts the history store
type Interface interface {
	Open() error
	Close() error
	SaveSession(session *Session, events []FeedbackEvent) error
	GetSession(sessionID string) (Session, error)
	ListSessions(limit, offset int) ([]Session, error)
	DeleteSession(sessionID string) error
	GetStats() (Stats, error)
}

// DataStore implements the shared gorm operations
type DataStore struct {
	DB *gorm.DB
}

// ErrNotFound is returned when a session does not exist
var ErrNotFound = verrors.New(nil).
	Component("datastore").
	Category(verrors.CategoryNotFound).
	Context("error", "session not found").
	Build()

// SaveSession stores a session together with its feedback events
func (ds *DataStore) SaveSession(session *Session, events []FeedbackEvent) error {
	if ds.DB == nil {
		return dbError(fmt.Errorf("database connection is not initialized"), "save_session")
	}

	session.Events = events
	if err := ds.DB.Create(session).Error; err != nil {
		return dbError(err, "save_session")
	}

	GetLogger().Debug("session saved",
		logger.String("session_id", session.SessionID),
		logger.Int("events", len(events)))
	return nil
}

// GetSession loads a session and its events
func (ds *DataStore) GetSession(sessionID string) (Session, error) {
	var s Session
	err := ds.DB.Preload("Events", func(db *gorm.DB) *gorm.DB {
		return db.Order("elapsed_seconds ASC")
	}).Where("session_id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, verrors.New(fmt.Errorf("%w: %s", ErrNotFound, sessionID)).
			Component("datastore").
			Category(verrors.CategoryNotFound).
			Build()
	}
	if err != nil {
		return Session{}, dbError(err, "get_session")
	}
	return s, nil
}

// ListSessions returns sessions newest first without events
func (ds *DataStore) ListSessions(limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	var sessions []Session
	err := ds.DB.Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sessions).Error
	if err != nil {
		return nil, dbError(err, "list_sessions")
	}
	return sessions, nil
}

// DeleteSession removes a session and its events
func (ds *DataStore) DeleteSession(sessionID string) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		var s Session
		if err := tx.Where("session_id = ?", sessionID).First(&s).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return verrors.New(fmt.Errorf("%w: %s", ErrNotFound, sessionID)).
					Component("datastore").
					Category(verrors.CategoryNotFound).
					Build()
			}
			return dbError(err, "delete_session")
		}
		if err := tx.Where("session_ref_id = ?", s.ID).Delete(&FeedbackEvent{}).Error; err != nil {
			return dbError(err, "delete_events")
		}
		if err := tx.Delete(&s).Error; err != nil {
			return dbError(err, "delete_session")
		}
		return nil
	})
}

// GetStats aggregates over all sessions
func (ds *DataStore) GetStats() (Stats, error) {
	var stats Stats
	row := ds.DB.Model(&Session{}).
		Select("COUNT(*), COALESCE(SUM(duration_seconds), 0), " +
			"COALESCE(AVG(CASE WHEN has_accuracy THEN average_accuracy END), 0), " +
			"COALESCE(MAX(CASE WHEN has_accuracy THEN average_accuracy END), 0)").
		Row()
	if err := row.Scan(&stats.Sessions, &stats.TotalSeconds, &stats.AverageAccuracy, &stats.BestAccuracy); err != nil {
		return Stats{}, dbError(err, "get_stats")
	}
	return stats, nil
}

// performAutoMigration creates or updates the schema
func performAutoMigration(db *gorm.DB, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Session{}, &FeedbackEvent{}); err != nil {
		return dbError(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err), "migrate")
	}
	GetLogger().Debug("database initialized",
		logger.String("type", dbType),
		logger.String("path", connectionInfo))
	return nil
}

func dbError(err error, operation string) error {
	return verrors.New(err).
		Component("datastore").
		Category(verrors.CategoryDatabase).
		Context("operation", operation).
		Build()
}

// GetLogger returns the datastore module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}
