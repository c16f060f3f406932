package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"salonpos/internal/models"
)

// GORMEmployeeRepository is a GORM implementation of EmployeeRepository.
type GORMEmployeeRepository struct {
	db *gorm.DB
}

// NewGORMEmployeeRepository creates a new instance of GORMEmployeeRepository.
func NewGORMEmployeeRepository(db *gorm.DB) *GORMEmployeeRepository {
	return &GORMEmployeeRepository{
		db: db,
	}
}

// Create creates a new employee in the database.
func (r *GORMEmployeeRepository) Create(employee *models.Employee) error {
	if err := r.db.Create(employee).Error; err != nil {
		return fmt.Errorf("failed to create employee: %w", err)
	}
	return nil
}

// GetByEmail retrieves an employee by their email from the database.
func (r *GORMEmployeeRepository) GetByEmail(email string) (*models.Employee, error) {
	var employee models.Employee
	if err := r.db.First(&employee, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("employee with email %s not found", email)
		}
		return nil, fmt.Errorf("failed to get employee by email %s: %w", email, err)
	}
	return &employee, nil
}

// GetByID retrieves an employee by their ID from the database.
func (r *GORMEmployeeRepository) GetByID(id int64) (*models.Employee, error) {
	var employee models.Employee
	if err := r.db.First(&employee, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("employee with ID %d not found", id)
		}
		return nil, fmt.Errorf("failed to get employee by ID %d: %w", id, err)
	}
	return &employee, nil
}
