package dispatch

import "github.com/JoshuaRamirez/ACS-sub014/pkg/graph"

// Stable command type identifiers. These cross the RPC boundary and are
// part of the wire contract; never renumber or rename them.
const (
	CmdPing             = "Ping"
	CmdCreateUser       = "CreateUser"
	CmdGetUser          = "GetUser"
	CmdGetUsers         = "GetUsers"
	CmdDeleteUser       = "DeleteUser"
	CmdCreateGroup      = "CreateGroup"
	CmdAddUserToGroup   = "AddUserToGroup"
	CmdCreateRole       = "CreateRole"
	CmdAssignRole       = "AssignRole"
	CmdGrantPermission  = "GrantPermission"
	CmdCheckAccess      = "CheckAccess"
	CmdSetUserAttribute = "SetUserAttribute"
	CmdGetUserAttribute = "GetUserAttribute"
)

// Ping is a diagnostic probe; the result identifies the worker that ran it
type Ping struct{}

// PingResult reports the executing worker's identity
type PingResult struct {
	TenantID string `json:"tenantId" msgpack:"tenantId"`
	PID      int    `json:"pid" msgpack:"pid"`
	Port     int    `json:"port" msgpack:"port"`
}

// CreateUser adds a user to the tenant's graph
type CreateUser struct {
	Name string `json:"name" msgpack:"name"`
}

// GetUser fetches one user
type GetUser struct {
	ID int64 `json:"id" msgpack:"id"`
}

// GetUsers lists users in creation order
type GetUsers struct{}

// UserList is the GetUsers result
type UserList struct {
	Users []*graph.User `json:"users" msgpack:"users"`
}

// DeleteUser removes a user (void)
type DeleteUser struct {
	ID int64 `json:"id" msgpack:"id"`
}

// CreateGroup adds a group
type CreateGroup struct {
	Name string `json:"name" msgpack:"name"`
}

// AddUserToGroup records a membership (void)
type AddUserToGroup struct {
	UserID  int64 `json:"userId" msgpack:"userId"`
	GroupID int64 `json:"groupId" msgpack:"groupId"`
}

// CreateRole adds a role
type CreateRole struct {
	Name string `json:"name" msgpack:"name"`
}

// AssignRole links a role to a user or, when GroupID is set, to a group (void)
type AssignRole struct {
	UserID  int64 `json:"userId,omitempty" msgpack:"userId,omitempty"`
	GroupID int64 `json:"groupId,omitempty" msgpack:"groupId,omitempty"`
	RoleID  int64 `json:"roleId" msgpack:"roleId"`
}

// GrantPermission adds a grant to a role (void)
type GrantPermission struct {
	RoleID   int64  `json:"roleId" msgpack:"roleId"`
	Resource string `json:"resource" msgpack:"resource"`
	Action   string `json:"action" msgpack:"action"`
}

// CheckAccess asks whether a user may perform an action on a resource
type CheckAccess struct {
	UserID   int64  `json:"userId" msgpack:"userId"`
	Resource string `json:"resource" msgpack:"resource"`
	Action   string `json:"action" msgpack:"action"`
}

// AccessDecision is the CheckAccess result
type AccessDecision struct {
	Allowed bool `json:"allowed" msgpack:"allowed"`
}

// SetUserAttribute stores a sensitive user attribute; the worker encrypts
// the value before it touches the graph (void).
type SetUserAttribute struct {
	UserID    int64  `json:"userId" msgpack:"userId"`
	FieldName string `json:"fieldName" msgpack:"fieldName"`
	Value     string `json:"value" msgpack:"value"`
}

// GetUserAttribute decrypts and returns a user attribute
type GetUserAttribute struct {
	UserID    int64  `json:"userId" msgpack:"userId"`
	FieldName string `json:"fieldName" msgpack:"fieldName"`
}

// AttributeValue is the GetUserAttribute result
type AttributeValue struct {
	FieldName  string `json:"fieldName" msgpack:"fieldName"`
	Value      string `json:"value" msgpack:"value"`
	KeyVersion string `json:"keyVersion" msgpack:"keyVersion"`
}
