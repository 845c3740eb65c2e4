package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/dispatch"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
)

// handlerFunc executes one decoded command against the graph. It returns
// the encoded result, or nil for void commands.
type handlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (r *Runtime) handlerTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		dispatch.CmdPing:             r.handlePing,
		dispatch.CmdCreateUser:       r.handleCreateUser,
		dispatch.CmdGetUser:          r.handleGetUser,
		dispatch.CmdGetUsers:         r.handleGetUsers,
		dispatch.CmdDeleteUser:       r.handleDeleteUser,
		dispatch.CmdCreateGroup:      r.handleCreateGroup,
		dispatch.CmdAddUserToGroup:   r.handleAddUserToGroup,
		dispatch.CmdCreateRole:       r.handleCreateRole,
		dispatch.CmdAssignRole:       r.handleAssignRole,
		dispatch.CmdGrantPermission:  r.handleGrantPermission,
		dispatch.CmdCheckAccess:      r.handleCheckAccess,
		dispatch.CmdSetUserAttribute: r.handleSetUserAttribute,
		dispatch.CmdGetUserAttribute: r.handleGetUserAttribute,
	}
}

func decode(payload []byte, cmd interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(payload, cmd); err != nil {
		return errdefs.Wrap(err, errdefs.KindBadCommandPayload, "malformed command payload")
	}
	return nil
}

func encode(result interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(result)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.KindInternal, "failed to encode result")
	}
	return data, nil
}

func (r *Runtime) handlePing(_ context.Context, _ []byte) ([]byte, error) {
	return encode(&dispatch.PingResult{
		TenantID: r.tenantID,
		PID:      os.Getpid(),
		Port:     r.port,
	})
}

func (r *Runtime) handleCreateUser(_ context.Context, payload []byte) ([]byte, error) {
	var cmd dispatch.CreateUser
	if err := decode(payload, &cmd); err != nil {
		return nil, err
	}
	u, err := r.graph.CreateUser(cmd.Name)
	if err != nil {
		return nil, err
	}
	return encode(u)
}

func (r *Runtime) handleGetUser(_ context.Context, payload []byte) ([]byte, error) {
	var cmd dispatch.GetUser
	if err := decode(payload, &cmd); err != nil {
		return nil, err
	}
	u, err := r.graph.GetUser(cmd.ID)
	if err != nil {
		return nil, err
	}
	return encode(u)
}

func (r *Runtime) handleGetUsers(_ context.Context, _ []byte) ([]byte, error) {
	return encode(&dispatch.UserList{Users: r.graph.ListUsers()})
}

func (r *Runtime) handleDeleteUser(_ context.Context, payload []byte) ([]byte, error) {
	var cmd dispatch.DeleteUser
	if err := decode(payload, &cmd); err != nil {
		return nil, err
	}
	return nil, r.graph.DeleteUser(cmd.ID)
}

func (r *Runtime) handleCreateGroup(_ context.Context, payload []byte) ([]byte, error) {
	var cmd dispatch.CreateGroup
	if err := decode(payload, &cmd); err != nil {
		return nil, err
	}
	grp, err := r.graph.CreateGroup(cmd.Name)
	if err != nil {
		return nil, err
	}
	return encode(grp)
}

func (r *Runtime) handleAddUserToGroup(_ context.Context, payload []byte) ([]byte, error) {
	var cmd dispatch.AddUserToGroup
	if err := decode(payload, &cmd); err != nil {
		return nil, err
	}
	return nil, r.graph.AddUserToGroup(cmd.UserID, cmd.GroupID)
}

func (r *Runtime) handleCreateRole(_ context.Context, payload []byte) ([]byte, error) {
	var cmd dispatch.CreateRole
	if err := decode(payload, &cmd); err != nil {
		return nil, err
	}
	role, err := r.graph.CreateRole(cmd.Name)
	if err != nil {
		return nil, err
	}
	return encode(role)
}

func (r *Runtime) handleAssignRole(_ context.Context, payload []byte) ([]byte, error) {
	var cmd dispatch.AssignRole
	if err := decode(payload, &cmd); err != nil {
		return nil, err
	}
	switch {
	case cmd.UserID != 0:
		return nil, r.graph.AssignRoleToUser(cmd.UserID, cmd.RoleID)
	case cmd.GroupID != 0:
		return nil, r.graph.AssignRoleToGroup(cmd.GroupID, cmd.RoleID)
	default:
		return nil, errdefs.New(errdefs.KindBadCommandPayload,
			"assign role requires a userId or a groupId")
	}
}

func (r *Runtime) handleGrantPermission(_ context.Context, payload []byte) ([]byte, error) {
	var cmd dispatch.GrantPermission
	if err := decode(payload, &cmd); err != nil {
		return nil, err
	}
	return nil, r.graph.GrantPermission(cmd.RoleID, cmd.Resource, cmd.Action)
}

func (r *Runtime) handleCheckAccess(_ context.Context, payload []byte) ([]byte, error) {
	var cmd dispatch.CheckAccess
	if err := decode(payload, &cmd); err != nil {
		return nil, err
	}
	allowed, err := r.graph.CheckAccess(cmd.UserID, cmd.Resource, cmd.Action)
	if err != nil {
		return nil, err
	}
	return encode(&dispatch.AccessDecision{Allowed: allowed})
}

func (r *Runtime) handleSetUserAttribute(_ context.Context, payload []byte) ([]byte, error) {
	var cmd dispatch.SetUserAttribute
	if err := decode(payload, &cmd); err != nil {
		return nil, err
	}
	if cmd.FieldName == "" {
		return nil, errdefs.New(errdefs.KindBadCommandPayload, "field name is required")
	}
	// The plaintext must not reach the graph; encrypt first.
	field, err := r.engine.EncryptField(cmd.Value, cmd.FieldName, fmt.Sprintf("%d", cmd.UserID), r.tenantID)
	if err != nil {
		return nil, err
	}
	return nil, r.graph.SetUserAttribute(cmd.UserID, field)
}

func (r *Runtime) handleGetUserAttribute(_ context.Context, payload []byte) ([]byte, error) {
	var cmd dispatch.GetUserAttribute
	if err := decode(payload, &cmd); err != nil {
		return nil, err
	}
	field, err := r.graph.GetUserAttribute(cmd.UserID, cmd.FieldName)
	if err != nil {
		return nil, err
	}
	value, err := r.engine.DecryptField(field, r.tenantID)
	if err != nil {
		return nil, err
	}
	return encode(&dispatch.AttributeValue{
		FieldName:  cmd.FieldName,
		Value:      value,
		KeyVersion: field.KeyVersion,
	})
}
