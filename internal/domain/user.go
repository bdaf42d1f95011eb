package domain

// User Model
type User struct {
	ID       uint   `gorm:"primaryKey"`                                     // Primary key
	Username string `gorm:"unique;not null"`                                // Unique username
	Password string `gorm:"not null"`                                       // Hashed password
	Wallet   Wallet `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"` // One-to-one relationship with Wallet
}
