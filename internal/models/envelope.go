package models

// EventType is the tag on every envelope, both directions of the wire.
type EventType string

// Client -> server event types.
const (
	EventJoinSession      EventType = "JOIN_SESSION"
	EventLeaveSession     EventType = "LEAVE_SESSION"
	EventCreateObject     EventType = "CREATE_OBJECT"
	EventDeleteObject     EventType = "DELETE_OBJECT"
	EventUpdateTransform  EventType = "UPDATE_TRANSFORM"
	EventUpdateProperties EventType = "UPDATE_PROPERTIES"
	EventUpdateName       EventType = "UPDATE_NAME"
	EventSelectObject     EventType = "SELECT_OBJECT"
)

// Server -> client event types.
const (
	EventFullStateSync   EventType = "FULL_STATE_SYNC"
	EventObjectCreated   EventType = "OBJECT_CREATED"
	EventObjectDeleted   EventType = "OBJECT_DELETED"
	EventTransformUpdate EventType = "TRANSFORM_UPDATED"
	EventPropsUpdated    EventType = "PROPERTIES_UPDATED"
	EventNameUpdated     EventType = "NAME_UPDATED"
	EventUserJoined      EventType = "USER_JOINED"
	EventUserLeft        EventType = "USER_LEFT"
	EventUserSelected    EventType = "USER_SELECTED"
	EventError           EventType = "ERROR"
)

// Envelope is the single frame shape carried in both directions over the
// message stream: { event_type, timestamp, source_user_id, payload }.
type Envelope struct {
	EventType    EventType `json:"event_type"`
	Timestamp    int64     `json:"timestamp"`
	SourceUserID string    `json:"source_user_id"`
	Payload      any       `json:"payload"`
}

// ErrorCode enumerates the fixed vocabulary of ERROR frame codes.
type ErrorCode string

const (
	ErrNotJoined          ErrorCode = "NOT_JOINED"
	ErrIdentityMismatch   ErrorCode = "IDENTITY_MISMATCH"
	ErrDuplicateUser      ErrorCode = "DUPLICATE_USER"
	ErrDuplicateObject    ErrorCode = "DUPLICATE_OBJECT"
	ErrUnknownObject      ErrorCode = "UNKNOWN_OBJECT"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrOverloaded         ErrorCode = "OVERLOADED"
	ErrGlobalSessionLimit ErrorCode = "GLOBAL_SESSION_LIMIT"
	ErrSessionFull        ErrorCode = "SESSION_FULL"
	ErrMalformed          ErrorCode = "MALFORMED"
)

// ErrorPayload is the payload of an ERROR frame.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Payload shapes for client -> server commands.

type JoinSessionPayload struct {
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name"`
}

type CreateObjectPayload struct {
	ObjectID     string     `json:"object_id"`
	Name         string     `json:"name"`
	Type         Kind       `json:"type"`
	AssetID      *string    `json:"asset_id,omitempty"`
	AssetLibrary *string    `json:"asset_library,omitempty"`
	Transform    Transform  `json:"transform"`
	Properties   Properties `json:"properties"`
}

type DeleteObjectPayload struct {
	ObjectID string `json:"object_id"`
}

type UpdateTransformPayload struct {
	ObjectID  string    `json:"object_id"`
	Transform Transform `json:"transform"`
}

type UpdatePropertiesPayload struct {
	ObjectID   string     `json:"object_id"`
	Properties Properties `json:"properties"`
}

type UpdateNamePayload struct {
	ObjectID string `json:"object_id"`
	Name     string `json:"name"`
}

type SelectObjectPayload struct {
	ObjectID *string `json:"object_id"`
}

// Payload shapes for server -> client broadcasts.

type FullStateSyncPayload struct {
	SessionID string             `json:"session_id"`
	Objects   map[string]*Object `json:"objects"`
	Users     map[string]*User   `json:"users"`
}

type ObjectCreatedPayload struct {
	Object    *Object `json:"object"`
	CreatedBy string  `json:"created_by"`
}

type ObjectDeletedPayload struct {
	ObjectID  string `json:"object_id"`
	DeletedBy string `json:"deleted_by"`
}

type TransformUpdatedPayload struct {
	ObjectID  string    `json:"object_id"`
	Transform Transform `json:"transform"`
	UpdatedBy string    `json:"updated_by"`
	Timestamp int64     `json:"timestamp"`
}

type PropertiesUpdatedPayload struct {
	ObjectID   string     `json:"object_id"`
	Properties Properties `json:"properties"`
	UpdatedBy  string     `json:"updated_by"`
	Timestamp  int64      `json:"timestamp"`
}

type NameUpdatedPayload struct {
	ObjectID  string `json:"object_id"`
	Name      string `json:"name"`
	UpdatedBy string `json:"updated_by"`
	Timestamp int64  `json:"timestamp"`
}

type UserJoinedPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
}

type UserLeftPayload struct {
	UserID string `json:"user_id"`
}

type UserSelectedPayload struct {
	UserID   string  `json:"user_id"`
	ObjectID *string `json:"object_id"`
}
