package models

import "time"

// ActivityLog records one user action for the admin logs and reports pages.
// IDs are ULIDs so entries sort by creation time without a secondary index.
type ActivityLog struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	UserEmail string    `json:"user_email" db:"user_email"`
	Action    string    `json:"action" db:"action"` // e.g. "file.upload", "access.approve"
	ItemID    string    `json:"item_id,omitempty" db:"item_id"`
	ItemType  ItemType  `json:"item_type,omitempty" db:"item_type"`
	ItemName  string    `json:"item_name,omitempty" db:"item_name"`
	Detail    string    `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LogFilter narrows an activity log listing
type LogFilter struct {
	UserEmail string
	Action    string
	From      *time.Time
	To        *time.Time
	Limit     int
}

// FileActivityReport aggregates activity for one file
type FileActivityReport struct {
	FileID    string        `json:"file_id"`
	FileName  string        `json:"file_name"`
	Views     int           `json:"views"`
	Downloads int           `json:"downloads"`
	Entries   []ActivityLog `json:"entries"`
}

// FileShareReport lists which users hold access to which items
type FileShareReport struct {
	ItemID      string       `json:"item_id"`
	ItemType    ItemType     `json:"item_type"`
	ItemName    string       `json:"item_name"`
	SharedWith  []string     `json:"shared_with"` // requester emails of approved rows
	AccessTypes []AccessType `json:"access_types"`
}
