package models

import "errors"

// Domain errors returned by the metadata store.
var (
	ErrMeetingNotFound  = errors.New("meeting not found")
	ErrKeyNotFound      = errors.New("meeting key not found")
	ErrRevisionNotFound = errors.New("revision not found")
	ErrDuplicateMeeting = errors.New("meeting already exists")
)
