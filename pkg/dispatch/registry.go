package dispatch

import (
	"encoding/json"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/graph"
)

// entry describes one registered command type. newCmd allocates the command
// struct; newResult is nil for void commands.
type entry struct {
	newCmd    func() interface{}
	newResult func() interface{}
}

// Registry is the static command table. It replaces runtime handler
// discovery: every command type is registered at startup, so dispatch is a
// map lookup and unknown types fail fast.
type Registry struct {
	entries map[string]entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a command type. newResult must be nil for void commands.
func (r *Registry) Register(typeID string, newCmd, newResult func() interface{}) {
	r.entries[typeID] = entry{newCmd: newCmd, newResult: newResult}
}

// Known reports whether typeID is registered
func (r *Registry) Known(typeID string) bool {
	_, ok := r.entries[typeID]
	return ok
}

// IsVoid reports whether typeID produces no result bytes
func (r *Registry) IsVoid(typeID string) (bool, error) {
	e, ok := r.entries[typeID]
	if !ok {
		return false, errdefs.New(errdefs.KindUnknownCommandType, "unknown command type %q", typeID)
	}
	return e.newResult == nil, nil
}

// DecodeJSON builds the command struct for typeID from a JSON payload, as
// received on the HTTP surface.
func (r *Registry) DecodeJSON(typeID string, payload []byte) (interface{}, error) {
	e, ok := r.entries[typeID]
	if !ok {
		return nil, errdefs.New(errdefs.KindUnknownCommandType, "unknown command type %q", typeID)
	}
	cmd := e.newCmd()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, cmd); err != nil {
			return nil, errdefs.Wrap(err, errdefs.KindBadCommandPayload, "invalid payload for %s", typeID)
		}
	}
	return cmd, nil
}

// NewResult allocates the result struct for typeID, or nil for void commands
func (r *Registry) NewResult(typeID string) (interface{}, error) {
	e, ok := r.entries[typeID]
	if !ok {
		return nil, errdefs.New(errdefs.KindUnknownCommandType, "unknown command type %q", typeID)
	}
	if e.newResult == nil {
		return nil, nil
	}
	return e.newResult(), nil
}

// DefaultRegistry returns the registry with the full command catalog
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(CmdPing,
		func() interface{} { return &Ping{} },
		func() interface{} { return &PingResult{} })
	r.Register(CmdCreateUser,
		func() interface{} { return &CreateUser{} },
		func() interface{} { return &graph.User{} })
	r.Register(CmdGetUser,
		func() interface{} { return &GetUser{} },
		func() interface{} { return &graph.User{} })
	r.Register(CmdGetUsers,
		func() interface{} { return &GetUsers{} },
		func() interface{} { return &UserList{} })
	r.Register(CmdDeleteUser,
		func() interface{} { return &DeleteUser{} },
		nil)
	r.Register(CmdCreateGroup,
		func() interface{} { return &CreateGroup{} },
		func() interface{} { return &graph.Group{} })
	r.Register(CmdAddUserToGroup,
		func() interface{} { return &AddUserToGroup{} },
		nil)
	r.Register(CmdCreateRole,
		func() interface{} { return &CreateRole{} },
		func() interface{} { return &graph.Role{} })
	r.Register(CmdAssignRole,
		func() interface{} { return &AssignRole{} },
		nil)
	r.Register(CmdGrantPermission,
		func() interface{} { return &GrantPermission{} },
		nil)
	r.Register(CmdCheckAccess,
		func() interface{} { return &CheckAccess{} },
		func() interface{} { return &AccessDecision{} })
	r.Register(CmdSetUserAttribute,
		func() interface{} { return &SetUserAttribute{} },
		nil)
	r.Register(CmdGetUserAttribute,
		func() interface{} { return &GetUserAttribute{} },
		func() interface{} { return &AttributeValue{} })
	return r
}
