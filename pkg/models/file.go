package models

import "time"

// Folder represents a folder in the data room
type Folder struct {
	ID          string     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description,omitempty" db:"description"`
	OwnerID     string     `json:"owner_id" db:"owner_id"`
	ParentID    *string    `json:"parent_id,omitempty" db:"parent_id"`
	Color       string     `json:"color,omitempty" db:"color"`
	FileCount   int        `json:"file_count" db:"file_count"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// File represents an uploaded file inside a folder
type File struct {
	ID          string     `json:"id" db:"id"`
	FolderID    string     `json:"folder_id" db:"folder_id"`
	Name        string     `json:"name" db:"name"`
	ContentType string     `json:"content_type,omitempty" db:"content_type"`
	SizeBytes   int64      `json:"size_bytes" db:"size_bytes"`
	StoragePath string     `json:"-" db:"storage_path"` // local disk path, not exposed
	UploadedBy  string     `json:"uploaded_by" db:"uploaded_by"`
	Tags        []string   `json:"tags,omitempty" db:"tags"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Favorite marks a file or folder as a favorite of a user.
// Membership is keyed by (user, item, type); adding twice is a no-op.
type Favorite struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	ItemID    string    `json:"item_id" db:"item_id"`
	ItemType  ItemType  `json:"item_type" db:"item_type"`
	ItemName  string    `json:"item_name" db:"item_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TrashItem is a soft-deleted file or folder awaiting restore or purge
type TrashItem struct {
	ID        string    `json:"id" db:"id"`
	ItemID    string    `json:"item_id" db:"item_id"`
	ItemType  ItemType  `json:"item_type" db:"item_type"`
	ItemName  string    `json:"item_name" db:"item_name"`
	DeletedBy string    `json:"deleted_by" db:"deleted_by"`
	DeletedAt time.Time `json:"deleted_at" db:"deleted_at"`
}

// StorageUsage summarizes consumed storage for the storage page
type StorageUsage struct {
	TotalBytes  int64 `json:"total_bytes"`
	FileCount   int   `json:"file_count"`
	FolderCount int   `json:"folder_count"`
}

// Tag is a user-defined label attachable to files
type Tag struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Color     string    `json:"color,omitempty" db:"color"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
