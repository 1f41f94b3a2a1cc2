// Package models holds the records shared by the stores and the auth flows.
package models

import "time"

// Principal is an account known to the identity provider.
type Principal struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash []byte
	CreatedAt    time.Time
	Roles        []string
}

// HasRole reports whether the principal carries the named role.
func (p *Principal) HasRole(name string) bool {
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}
