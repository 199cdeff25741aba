package domain

// Role is the platform role carried by an authenticated principal.
type Role string

const (
	RoleUser            Role = "user"
	RoleCommunityLeader Role = "community_leader"
	RoleModerator       Role = "moderator"
	RoleAdmin           Role = "admin"
	RoleSuperAdmin      Role = "super_admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleCommunityLeader, RoleModerator, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Privileged roles see every circle and may end any of them.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Elevated roles get a duration range and no open-circle quota.
func (r Role) Elevated() bool {
	return r.Privileged() || r == RoleCommunityLeader || r == RoleModerator
}

// Principal is the identity resolved by the identity provider for one call.
type Principal struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName"`
	Anonymous   bool   `json:"isAnonymous"`
}

// AnonymousDisplayName stands in for the name of a principal who asked to stay anonymous.
const AnonymousDisplayName = "Anonymous"

// PublicName is the name other members see for p.
func (p Principal) PublicName() string {
	if p.Anonymous || p.DisplayName == "" {
		return AnonymousDisplayName
	}
	return p.DisplayName
}
