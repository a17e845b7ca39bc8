package auth

import "strings"

// HasRole reports whether the identity holds at least the given role.
func (id Identity) HasRole(min int) bool {
	return id.RoleID >= min
}

// CanManage reports whether the identity may read or modify the account
// identified by userID: its owner or an administrator.
func (id Identity) CanManage(userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	return id.UserID == userID || id.HasRole(RoleAdmin)
}
