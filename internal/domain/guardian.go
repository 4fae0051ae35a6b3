package domain

import "time"

// Модели дашборда управления гардианами. Источник правды: внешний REST API,
// здесь только контракт обмена.

type CredentialStatus string

const (
	CredentialActive  CredentialStatus = "active"
	CredentialPending CredentialStatus = "pending"
	CredentialRevoked CredentialStatus = "revoked"
)

type PermissionLevel string

const (
	PermissionAdmin     PermissionLevel = "admin"
	PermissionModerator PermissionLevel = "moderator"
	PermissionViewer    PermissionLevel = "viewer"
)

// Valid сообщает, является ли уровень одним из трех допустимых.
func (p PermissionLevel) Valid() bool {
	switch p {
	case PermissionAdmin, PermissionModerator, PermissionViewer:
		return true
	}
	return false
}

type ActivityType string

const (
	ActivityChildCreated      ActivityType = "child_created"
	ActivityGuardianAdded     ActivityType = "guardian_added"
	ActivityGuardianRemoved   ActivityType = "guardian_removed"
	ActivityCredentialUpdated ActivityType = "credential_updated"
	ActivityEntityBlocked     ActivityType = "entity_blocked"
	ActivityEntityUnblocked   ActivityType = "entity_unblocked"
)

type Child struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	DID              string           `json:"did"`
	CredentialStatus CredentialStatus `json:"credentialStatus"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

type Guardian struct {
	ID              string          `json:"id"`
	Address         string          `json:"address"`
	Name            string          `json:"name"`
	Email           string          `json:"email,omitempty"`
	PermissionLevel PermissionLevel `json:"permissionLevel"`
	ChildIDs        []string        `json:"childIds"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type ActivityEntry struct {
	ID          string       `json:"id"`
	ChildID     string       `json:"childId"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	Timestamp   time.Time    `json:"timestamp"`
	Actor       string       `json:"actor,omitempty"`
}

type CreateChildRequest struct {
	Name string `json:"name"`
	DID  string `json:"did,omitempty"`
}

type AddGuardianRequest struct {
	Address         string          `json:"address"`
	Name            string          `json:"name"`
	Email           string          `json:"email,omitempty"`
	PermissionLevel PermissionLevel `json:"permissionLevel"`
	ChildID         string          `json:"childId"`
}

type LogActivityRequest struct {
	ChildID     string       `json:"childId"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
}

// APIResponse: конверт ответа внешнего API: {success, data?, error?}
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Notification: push-уведомление для гардиана.
type Notification struct {
	ID        string    `json:"id"`
	ChildID   string    `json:"childId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}
