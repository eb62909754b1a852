package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/repository"
)

// UserService handles wallet registration and roles
type UserService struct {
	users   repository.UserStore
	isAdmin func(address string) bool
	log     *logger.Logger
}

// NewUserService creates a new user service. isAdmin may be nil.
func NewUserService(users repository.UserStore, isAdmin func(string) bool, log *logger.Logger) *UserService {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &UserService{users: users, isAdmin: isAdmin, log: log}
}

// RegisterUserRequest represents a new wallet registration
type RegisterUserRequest struct {
	Address     string `json:"address"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Register creates a user. Certifiers must be granted by an admin.
func (s *UserService) Register(ctx context.Context, caller string, req *RegisterUserRequest) (*models.User, error) {
	if !common.IsHexAddress(req.Address) {
		return nil, invalid("invalid wallet address %q", req.Address)
	}
	role := models.RoleClient
	if req.Role != "" {
		r, err := models.ParseRole(req.Role)
		if err != nil {
			return nil, invalid("%v", err)
		}
		role = r
	}

	address := models.NormalizeAddress(req.Address)
	if !s.isAdmin(caller) {
		if models.NormalizeAddress(caller) != address {
			return nil, forbidden("wallets can only register themselves")
		}
		if role == models.RoleCertifier {
			return nil, forbidden("certifier role is granted by an admin")
		}
	}

	user := &models.User{
		WalletAddress: address,
		Role:          role,
		DisplayName:   req.DisplayName,
		Email:         req.Email,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.WithAddress(address).Info("user registered", "role", role)
	return user, nil
}

// Get returns a user by address
func (s *UserService) Get(ctx context.Context, address string) (*models.User, error) {
	return s.users.GetByAddress(ctx, address)
}

// UpdateRole changes the role of address. Users may switch between client
// and analyst; only admins grant or revoke certifier.
func (s *UserService) UpdateRole(ctx context.Context, caller, address, role string) (*models.User, error) {
	r, err := models.ParseRole(role)
	if err != nil {
		return nil, invalid("%v", err)
	}

	user, err := s.users.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	if !s.isAdmin(caller) {
		if models.NormalizeAddress(caller) != user.WalletAddress {
			return nil, forbidden("cannot change the role of another wallet")
		}
		if r == models.RoleCertifier || user.Role == models.RoleCertifier {
			return nil, forbidden("certifier role is managed by an admin")
		}
	}

	if user.Role == r {
		return user, nil
	}
	if err := s.users.UpdateRole(ctx, user.WalletAddress, r); err != nil {
		return nil, err
	}

	s.log.WithAddress(user.WalletAddress).Info("user role updated", "from", user.Role, "to", r)
	user.Role = r
	return user, nil
}

// CertifierService handles the certifier directory
type CertifierService struct {
	users *UserService
}

// NewCertifierService creates a new certifier service
func NewCertifierService(users *UserService) *CertifierService {
	return &CertifierService{users: users}
}

// List returns certifiers, highest reputation first
func (s *CertifierService) List(ctx context.Context, limit int) ([]*models.User, error) {
	return s.users.users.ListByRole(ctx, models.RoleCertifier, limit)
}

// Get returns a certifier by address
func (s *CertifierService) Get(ctx context.Context, address string) (*models.User, error) {
	user, err := s.users.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleCertifier {
		return nil, fmt.Errorf("certifier %s: %w", user.WalletAddress, repository.ErrNotFound)
	}
	return user, nil
}

// Register makes address a certifier, creating the user when needed. Only
// admins may call it.
func (s *CertifierService) Register(ctx context.Context, caller string, req *RegisterUserRequest) (*models.User, error) {
	if !s.users.isAdmin(caller) {
		return nil, forbidden("only admins can register certifiers")
	}
	req.Role = string(models.RoleCertifier)

	user, err := s.users.Register(ctx, caller, req)
	if errors.Is(err, repository.ErrConflict) {
		existing, getErr := s.users.Get(ctx, req.Address)
		if getErr != nil {
			return nil, getErr
		}
		if existing.Role == models.RoleCertifier {
			return nil, fmt.Errorf("%s is already a certifier: %w", existing.WalletAddress, repository.ErrConflict)
		}
		return s.users.UpdateRole(ctx, caller, existing.WalletAddress, string(models.RoleCertifier))
	}
	return user, err
}
