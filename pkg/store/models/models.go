// Package models defines the persistent records of the meeting pipeline:
// meetings, wrapped meeting keys, and the append-only revision log.
package models

// AllModels returns all models for database migration.
func AllModels() []interface{} {
	return []interface{}{
		&Meeting{},
		&MeetingKey{},
		&Revision{},
	}
}
