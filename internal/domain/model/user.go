package model

// Roles carried in the bearer token's role claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
