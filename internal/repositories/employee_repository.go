package repositories

import "salonpos/internal/models"

// EmployeeRepository defines the interface for operator account access.
type EmployeeRepository interface {
	Create(employee *models.Employee) error
	GetByEmail(email string) (*models.Employee, error)
	GetByID(id int64) (*models.Employee, error)
}
