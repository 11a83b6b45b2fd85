package collab

import (
	"github.com/collabgraph/server/internal/models"
)

// State is the pure, in-memory canonical state of one session: no I/O,
// no locks, no goroutines. Every mutation goes through one of the
// exported transition methods below, each returning either an accepted
// outcome (with a broadcast payload to fan out) or a typed rejection.
// Only the owning Session Actor calls into State, so no synchronization
// is needed here.
type State struct {
	Objects map[string]*models.Object
	Users   map[string]*models.User
	// SeatsEverJoined is the monotonic count of joins this session has
	// accepted within one process lifetime, used as the seat index for
	// palette color assignment. A user who leaves and rejoins takes a
	// new seat, so their color is not kept across reconnects.
	SeatsEverJoined int
}

// NewState returns an empty Session State.
func NewState() *State {
	return &State{
		Objects: make(map[string]*models.Object),
		Users:   make(map[string]*models.User),
	}
}

// Outcome is the result of a successful state transition: the broadcast
// payload (if any) to fan out to every other user in the session, and
// its wire event type. A nil Broadcast means the transition succeeded
// but produced no fan-out (e.g. an idempotent delete-of-missing).
type Outcome struct {
	EventType models.EventType
	Broadcast any
}

// CreateObject inserts a new object. Rejects DUPLICATE_OBJECT if the id
// already exists, and MALFORMED if kind isn't one of the fixed values or
// asset_id is set on anything other than an asset_ref (the two invariants
// Kind.Valid and the object schema exist to enforce).
func (s *State) CreateObject(p models.CreateObjectPayload, createdBy string, timestampMs int64) (Outcome, error) {
	if _, exists := s.Objects[p.ObjectID]; exists {
		return Outcome{}, reject(models.ErrDuplicateObject, "object %q already exists", p.ObjectID)
	}
	if !p.Type.Valid() {
		return Outcome{}, reject(models.ErrMalformed, "unrecognized object kind %q", p.Type)
	}
	if (p.AssetID != nil) != (p.Type == models.KindAssetRef) {
		return Outcome{}, reject(models.ErrMalformed, "asset_id must be set iff kind is %q", models.KindAssetRef)
	}
	obj := &models.Object{
		ID:            p.ObjectID,
		Name:          p.Name,
		Kind:          p.Type,
		AssetID:       p.AssetID,
		AssetLibrary:  p.AssetLibrary,
		Transform:     p.Transform,
		Properties:    p.Properties,
		CreatedBy:     createdBy,
		CreatedAt:     timestampMs,
		LastUpdatedBy: createdBy,
		LastUpdatedAt: timestampMs,
	}
	s.Objects[obj.ID] = obj
	return Outcome{
		EventType: models.EventObjectCreated,
		Broadcast: models.ObjectCreatedPayload{Object: obj.Clone(), CreatedBy: createdBy},
	}, nil
}

// DeleteObject removes an object. Deleting a non-existent id is a
// success with no state change and no broadcast (idempotent).
func (s *State) DeleteObject(p models.DeleteObjectPayload, deletedBy string) (Outcome, error) {
	if _, exists := s.Objects[p.ObjectID]; !exists {
		return Outcome{}, nil
	}
	delete(s.Objects, p.ObjectID)
	return Outcome{
		EventType: models.EventObjectDeleted,
		Broadcast: models.ObjectDeletedPayload{ObjectID: p.ObjectID, DeletedBy: deletedBy},
	}, nil
}

// UpdateTransform applies the Last-Write-Wins rule uniformly: rejects
// UNKNOWN_OBJECT if the id doesn't exist, discards (no error, no
// broadcast) if timestampMs <= object.LastUpdatedAt, otherwise applies
// and broadcasts.
func (s *State) UpdateTransform(p models.UpdateTransformPayload, updatedBy string, timestampMs int64) (Outcome, error) {
	obj, exists := s.Objects[p.ObjectID]
	if !exists {
		return Outcome{}, reject(models.ErrUnknownObject, "object %q does not exist", p.ObjectID)
	}
	if timestampMs <= obj.LastUpdatedAt {
		return Outcome{}, nil
	}
	obj.Transform = p.Transform
	obj.LastUpdatedBy = updatedBy
	obj.LastUpdatedAt = timestampMs
	return Outcome{
		EventType: models.EventTransformUpdate,
		Broadcast: models.TransformUpdatedPayload{
			ObjectID: p.ObjectID, Transform: p.Transform, UpdatedBy: updatedBy, Timestamp: timestampMs,
		},
	}, nil
}

// UpdateProperties is the LWW-guarded property update.
func (s *State) UpdateProperties(p models.UpdatePropertiesPayload, updatedBy string, timestampMs int64) (Outcome, error) {
	obj, exists := s.Objects[p.ObjectID]
	if !exists {
		return Outcome{}, reject(models.ErrUnknownObject, "object %q does not exist", p.ObjectID)
	}
	if timestampMs <= obj.LastUpdatedAt {
		return Outcome{}, nil
	}
	obj.Properties = p.Properties
	obj.LastUpdatedBy = updatedBy
	obj.LastUpdatedAt = timestampMs
	return Outcome{
		EventType: models.EventPropsUpdated,
		Broadcast: models.PropertiesUpdatedPayload{
			ObjectID: p.ObjectID, Properties: p.Properties, UpdatedBy: updatedBy, Timestamp: timestampMs,
		},
	}, nil
}

// UpdateName is the LWW-guarded rename.
func (s *State) UpdateName(p models.UpdateNamePayload, updatedBy string, timestampMs int64) (Outcome, error) {
	obj, exists := s.Objects[p.ObjectID]
	if !exists {
		return Outcome{}, reject(models.ErrUnknownObject, "object %q does not exist", p.ObjectID)
	}
	if timestampMs <= obj.LastUpdatedAt {
		return Outcome{}, nil
	}
	obj.Name = p.Name
	obj.LastUpdatedBy = updatedBy
	obj.LastUpdatedAt = timestampMs
	return Outcome{
		EventType: models.EventNameUpdated,
		Broadcast: models.NameUpdatedPayload{
			ObjectID: p.ObjectID, Name: p.Name, UpdatedBy: updatedBy, Timestamp: timestampMs,
		},
	}, nil
}

// Join is the presence subsystem's JOIN_SESSION transition. Rejects
// DUPLICATE_USER if userID is already present. Color is assigned
// deterministically from Palette by seat index, which only increases.
func (s *State) Join(userID, displayName string, connectedAt int64) (*models.User, error) {
	if _, exists := s.Users[userID]; exists {
		return nil, reject(models.ErrDuplicateUser, "user %q already joined", userID)
	}
	seat := s.SeatsEverJoined
	s.SeatsEverJoined++
	user := &models.User{
		UserID:      userID,
		DisplayName: displayName,
		ColorRGB:    models.Palette[seat%len(models.Palette)],
		ConnectedAt: connectedAt,
	}
	s.Users[userID] = user
	return user, nil
}

// Leave removes a user from the user map. Selection state on other
// recipients is cleared implicitly by clients on receipt of USER_LEFT.
func (s *State) Leave(userID string) {
	delete(s.Users, userID)
}

// Select sets a user's current selection. Not logged: selection is
// ephemeral and excluded from recoverable state.
func (s *State) Select(userID string, objectID *string) error {
	user, exists := s.Users[userID]
	if !exists {
		return reject(models.ErrNotJoined, "user %q not present", userID)
	}
	user.SelectedObject = objectID
	return nil
}

// FullSync returns a deep-copied snapshot of the current object and
// user maps for a FULL_STATE_SYNC response.
func (s *State) FullSync() (map[string]*models.Object, map[string]*models.User) {
	objs := make(map[string]*models.Object, len(s.Objects))
	for id, o := range s.Objects {
		objs[id] = o.Clone()
	}
	users := make(map[string]*models.User, len(s.Users))
	for id, u := range s.Users {
		users[id] = u.Clone()
	}
	return objs, users
}

// SnapshotObjects returns a deep copy of the object map for durable
// snapshotting; the log store owns the file format.
func (s *State) SnapshotObjects() map[string]*models.Object {
	objs := make(map[string]*models.Object, len(s.Objects))
	for id, o := range s.Objects {
		objs[id] = o.Clone()
	}
	return objs
}
