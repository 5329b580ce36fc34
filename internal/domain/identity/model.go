package identity

// Credentials are what the login form posts.
type Credentials struct {
	DoctorNumber string `json:"doctor_number" validate:"required"`
	Password     string `json:"password" validate:"required"`
}

// Registration creates a doctor account. It does not log the doctor in.
type Registration struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	DoctorNumber string `json:"doctor_number" validate:"required"`
	Password     string `json:"password" validate:"required"`
}

type AuthStatus struct {
	Authenticated bool `json:"authenticated"`
	DoctorID      int  `json:"doctor_id,omitempty"`
}

type Doctor struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
