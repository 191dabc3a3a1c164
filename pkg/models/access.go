package models

import "time"

// AccessType is a capability tag grantable per item
type AccessType string

const (
	AccessView         AccessType = "VIEW"
	AccessDownload     AccessType = "DOWNLOAD"
	AccessUpload       AccessType = "UPLOAD"
	AccessCreateFolder AccessType = "CREATE_FOLDER"
)

// ItemType 标识访问目标是文件还是文件夹
type ItemType string

const (
	ItemFile   ItemType = "file"
	ItemFolder ItemType = "folder"
)

// ValidAccessTypesFor returns the capability tags allowed for an item type.
// Files are only ever viewed or downloaded; write capabilities apply to folders.
func ValidAccessTypesFor(itemType ItemType) []AccessType {
	if itemType == ItemFile {
		return []AccessType{AccessView, AccessDownload}
	}
	return []AccessType{AccessDownload, AccessUpload, AccessCreateFolder}
}

// AccessRequestStatus represents the lifecycle state of an access request
type AccessRequestStatus string

const (
	RequestPending  AccessRequestStatus = "pending"
	RequestApproved AccessRequestStatus = "approved"
	RequestRejected AccessRequestStatus = "rejected"
)

// AccessRequest is a user's request for capabilities on a file or folder.
// Grants are derived from approved rows; revocation removes rows (or one
// access type from a row), there is no separate "revoked" status.
type AccessRequest struct {
	ID             string              `json:"id" db:"id"`
	RequesterID    string              `json:"requester_id" db:"requester_id"`
	RequesterEmail string              `json:"requester_email" db:"requester_email"`
	ItemID         string              `json:"item_id" db:"item_id"`
	ItemType       ItemType            `json:"item_type" db:"item_type"`
	ItemName       string              `json:"item_name" db:"item_name"` // denormalized display label
	AccessTypes    []AccessType        `json:"access_types" db:"access_types"`
	Status         AccessRequestStatus `json:"status" db:"status"`
	RequestedAt    time.Time           `json:"requested_at" db:"requested_at"`
	ApprovedBy     *string             `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt     *time.Time          `json:"approved_at,omitempty" db:"approved_at"`
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
}

// IsPending checks if the request is still awaiting an admin decision
func (r *AccessRequest) IsPending() bool {
	return r.Status == RequestPending
}

// IsApproved checks if the request has been approved
func (r *AccessRequest) IsApproved() bool {
	return r.Status == RequestApproved
}

// HasAccessType checks whether the request carries the given capability tag
func (r *AccessRequest) HasAccessType(t AccessType) bool {
	for _, a := range r.AccessTypes {
		if a == t {
			return true
		}
	}
	return false
}

// AccessCheckResponse is the read view the gate consumes:
// the currently active capabilities for (user, item).
type AccessCheckResponse struct {
	HasAccess   bool         `json:"hasAccess"`
	AccessTypes []AccessType `json:"accessTypes"`
}

// ItemUserAccess lists one user's granted capabilities on an item
type ItemUserAccess struct {
	UserID      string       `json:"user_id"`
	Email       string       `json:"email"`
	Name        string       `json:"name,omitempty"`
	AccessTypes []AccessType `json:"accessTypes"`
	RequestID   string       `json:"request_id"`
}
