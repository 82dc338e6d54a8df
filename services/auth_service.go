package services

import (
	"dm-relay/auth"
	"dm-relay/errors"
	"dm-relay/repositories"
	"fmt"
	"time"
)

type IAuthService interface {
	Register(username, password string) (string, error)
	Login(username, password string) (Session, error)
}

// Session is what a successful login hands back to the client: the
// identity it must announce on its WebSocket connection, plus a token
// for the request/response surface.
type Session struct {
	UserID   string
	Username string
	Token    string
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokenDuration  time.Duration
}

func NewAuthService(repo repositories.IUserRepository, tokenDuration time.Duration) IAuthService {
	return &AuthService{userRepository: repo, tokenDuration: tokenDuration}
}

func (s *AuthService) Register(username, password string) (string, error) {
	valReq := auth.CredentialsRequest{
		Username: username,
		Password: password,
	}

	// 1. Validate business rules (username shape, password complexity)
	// before any expensive cryptographic operation.
	if err := auth.ValidateCredentials(valReq); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// 2. Hash the password using Argon2id. Done here to keep the
	// repository unaware of plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the user with the generated hash.
	userID, err := s.userRepository.CreateUser(username, hashedPassword)
	if err != nil {
		return "", err // Propagates ErrUserAlreadyExists if the name is taken
	}

	return userID, nil
}

func (s *AuthService) Login(username, password string) (Session, error) {
	// 1. Retrieve user by username from storage.
	user, err := s.userRepository.GetUserByName(username)
	if err != nil {
		// Generic error to prevent user enumeration attacks.
		return Session{}, errors.ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash.
	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}

	// 3. Issue the session token.
	token, err := auth.GenerateToken(user.ID, user.Username, s.tokenDuration)
	if err != nil {
		return Session{}, errors.ErrTokenGeneration
	}

	return Session{UserID: user.ID, Username: user.Username, Token: token}, nil
}
