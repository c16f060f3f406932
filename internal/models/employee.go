package models

// Employee is a salon operator who can log in and run the register.
// Authentication is a narrow contract here; full staff management lives
// outside this service.
type Employee struct {
	ID       int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID string `json:"tenant_id" gorm:"index" validate:"required"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" gorm:"uniqueIndex" validate:"required,email"`
	Password string `gorm:"type:varchar(255)" validate:"required,min=6"` // No json tag for security
	Role     string `json:"role"`
}

// TenantBranding carries the per-tenant receipt configuration. Passed
// explicitly into the encoder and renderers, never read from globals.
type TenantBranding struct {
	TenantID    string `json:"tenant_id" gorm:"primaryKey"`
	SalonName   string `json:"salon_name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	FooterText  string `json:"footer_text"`
	LogoURL     string `json:"logo_url"`
	ColumnWidth int    `json:"column_width"` // thermal printer column width, default 32
}
