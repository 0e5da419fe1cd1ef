package httpapi

import (
	"net/http"
	"strconv"

	challengeAuth "github.com/MrEthical07/challengeAuth"
	"github.com/MrEthical07/challengeAuth/identity"
)

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

type updateRoleRequest struct {
	Name        string   `json:"name" validate:"required"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

type createPermissionRequest struct {
	Name string `json:"name" validate:"required"`
}

type userRoleRequest struct {
	UserID int64 `json:"userId" validate:"required,gt=0"`
	RoleID int64 `json:"roleId" validate:"required,gt=0"`
}

type userPermissionRequest struct {
	UserID       int64 `json:"userId" validate:"required,gt=0"`
	PermissionID int64 `json:"permissionId" validate:"required,gt=0"`
}

type rolePermissionRequest struct {
	RoleID       int64 `json:"roleId" validate:"required,gt=0"`
	PermissionID int64 `json:"permissionId" validate:"required,gt=0"`
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.engine.ListRoles(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusOK, challengeAuth.CodeOK, map[string]any{"roles": roles})
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !a.decode(w, r, &req) {
		return
	}
	role, err := a.engine.CreateRole(r.Context(), req.Name, req.Permissions)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusCreated, challengeAuth.CodeOK, map[string]any{"role": role})
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if !a.decode(w, r, &req) {
		return
	}
	role, err := a.engine.UpdateRole(r.Context(), id, identity.RoleUpdate{
		Name:        req.Name,
		Permissions: req.Permissions,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusOK, challengeAuth.CodeOK, map[string]any{"role": role})
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.engine.DeleteRole(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusOK, challengeAuth.CodeOK, nil)
}

func (a *API) addRoleToUser(w http.ResponseWriter, r *http.Request) {
	var req userRoleRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.finish(w, r, a.engine.AddRoleToIdentity(r.Context(), req.UserID, req.RoleID))
}

func (a *API) removeRoleFromUser(w http.ResponseWriter, r *http.Request) {
	var req userRoleRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.finish(w, r, a.engine.RemoveRoleFromIdentity(r.Context(), req.UserID, req.RoleID))
}

func (a *API) addPermissionToRole(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.finish(w, r, a.engine.AddPermissionToRole(r.Context(), req.RoleID, req.PermissionID))
}

func (a *API) removePermissionFromRole(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.finish(w, r, a.engine.RemovePermissionFromRole(r.Context(), req.RoleID, req.PermissionID))
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.engine.ListPermissions(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusOK, challengeAuth.CodeOK, map[string]any{"permissions": perms})
}

func (a *API) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if !a.decode(w, r, &req) {
		return
	}
	perm, err := a.engine.CreatePermission(r.Context(), req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusCreated, challengeAuth.CodeOK, map[string]any{"permission": perm})
}

func (a *API) addPermissionToUser(w http.ResponseWriter, r *http.Request) {
	var req userPermissionRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.finish(w, r, a.engine.AddPermissionToIdentity(r.Context(), req.UserID, req.PermissionID))
}

func (a *API) removePermissionFromUser(w http.ResponseWriter, r *http.Request) {
	var req userPermissionRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.finish(w, r, a.engine.RemovePermissionFromIdentity(r.Context(), req.UserID, req.PermissionID))
}

func (a *API) finish(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeCode(w, http.StatusOK, challengeAuth.CodeOK, nil)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeValidation(w, map[string]string{"id": "id must be a positive number"})
		return 0, false
	}
	return id, true
}
