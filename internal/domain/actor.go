package domain

type Role string

const (
	RoleCustomer        Role = "CUSTOMER"
	RoleLogistics       Role = "LOGISTICS"
	RoleCustomerSupport Role = "CUSTOMER_SUPPORT"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleLogistics || r == RoleCustomerSupport
}

// Actor is the authenticated caller.
type Actor struct {
	ID    string
	Roles []Role
}

func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
