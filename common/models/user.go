package models

import (
	"fmt"
	"strings"
	"time"
)

// Role governs which workflow actions a wallet may take
type Role string

const (
	RoleClient    Role = "client"
	RoleAnalyst   Role = "analyst"
	RoleCertifier Role = "certifier"
)

// ParseRole validates a role string
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleClient, RoleAnalyst, RoleCertifier:
		return r, nil
	default:
		return "", fmt.Errorf("invalid role: %q", s)
	}
}

// User is a wallet registered with the platform
// Maps to: users table
type User struct {
	ID            int64     `db:"id" json:"id"`
	WalletAddress string    `db:"wallet_address" json:"wallet_address"`
	Role          Role      `db:"role" json:"role"`
	DisplayName   string    `db:"display_name" json:"display_name,omitempty"`
	Email         string    `db:"email" json:"email,omitempty"`
	Reputation    int       `db:"reputation" json:"reputation"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// NormalizeAddress lower-cases a hex wallet address for storage and comparison
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
