package domain

// Profile is the medical profile of a patient, keyed by identity.
// Every attribute is free-form text; a missing attribute is an empty string.
type Profile struct {
	IdentityID string `json:"identity_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Role       string `json:"role"`

	NationalID  string `json:"national_id"`
	DateOfBirth string `json:"date_of_birth"`
	Sex         string `json:"sex"`

	Weight    string `json:"weight"`
	Height    string `json:"height"`
	BloodType string `json:"blood_type"`
	Address   string `json:"address"`

	Allergies   string `json:"allergies"`
	Medications string `json:"medications"`
	Condition   string `json:"condition"`

	EmergencyContact EmergencyContact `json:"emergency_contact"`
}

// EmergencyContact is the person to call on behalf of a patient.
type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	BloodType    string `json:"blood_type"`
	Phone        string `json:"phone"`
}
