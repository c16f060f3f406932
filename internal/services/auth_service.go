package services

import (
	"fmt"
	"log"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"salonpos/internal/models"
	"salonpos/internal/repositories"
)

// AuthService handles operator authentication. It is deliberately small:
// full staff management lives outside this service, the POS only needs to
// know which employee of which tenant is behind the register.
type AuthService struct {
	employeeRepo repositories.EmployeeRepository
	jwtSecret    []byte
	tokenDurat   time.Duration // Duration for which JWT is valid
}

// NewAuthService creates a new AuthService.
func NewAuthService(employeeRepo repositories.EmployeeRepository, jwtSecret string) *AuthService {
	return &AuthService{
		employeeRepo: employeeRepo,
		jwtSecret:    []byte(jwtSecret),
		tokenDurat:   24 * time.Hour, // Token valid for 24 hours
	}
}

// RegisterEmployee hashes the password and stores the operator account.
func (s *AuthService) RegisterEmployee(employee *models.Employee) error {
	if existing, err := s.employeeRepo.GetByEmail(employee.Email); err == nil && existing != nil {
		return fmt.Errorf("email '%s' already registered", employee.Email)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(employee.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	employee.Password = string(hashedPassword)

	if err := s.employeeRepo.Create(employee); err != nil {
		return fmt.Errorf("failed to register employee: %w", err)
	}
	return nil
}

// Login authenticates an operator and returns a JWT carrying the tenant and
// employee identity the POS routes are scoped by.
func (s *AuthService) Login(email, password string) (string, error) {
	employee, err := s.employeeRepo.GetByEmail(email)
	if err != nil {
		// Do not reveal whether the email exists.
		return "", fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(employee.Password), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"employee_id": employee.ID,
		"tenant_id":   employee.TenantID,
		"name":        employee.Name,
		"exp":         time.Now().Add(s.tokenDurat).Unix(),
		"iat":         time.Now().Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		log.Printf("Token validation error: %v", err)
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
