package models

// Palette is the fixed, ordered set of colors assigned to users on join,
// by seat index modulo len(Palette). Matches the teacher's convention of
// small fixed lookup tables over configurable ones for anything this stable.
var Palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
}

// User is a single connected participant of a Session.
type User struct {
	UserID         string  `json:"user_id"`
	DisplayName    string  `json:"display_name"`
	ColorRGB       string  `json:"color"`
	SelectedObject *string `json:"selected_object"`
	ConnectedAt    int64   `json:"connected_at"`
}

// Clone returns a deep copy so callers cannot mutate canonical state
// through a returned reference.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.SelectedObject != nil {
		sel := *u.SelectedObject
		cp.SelectedObject = &sel
	}
	return &cp
}
