package domain

// Doctor is a directory entry maintained by administrators.
type Doctor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Number    int    `json:"number"`
}

// Specialty is a medical specialty offered by the hospital.
type Specialty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Patient is an entry in the administrative patient roster.
// It is independent of registered identities.
type Patient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// SpecialtyCount is the number of doctors practising a specialty.
type SpecialtyCount struct {
	Specialty string `json:"specialty"`
	Doctors   int    `json:"doctors"`
}

// DoctorReport summarises the doctor directory.
type DoctorReport struct {
	TotalDoctors int              `json:"total_doctors"`
	BySpecialty  []SpecialtyCount `json:"by_specialty"`
}
