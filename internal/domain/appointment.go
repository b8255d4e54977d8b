package domain

import "time"

// AppointmentDateLayout is the calendar-day format of Appointment.Date.
const AppointmentDateLayout = "2006-01-02"

// Appointment is a booked visit. Only Date changes after creation.
type Appointment struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Doctor    string    `json:"doctor"`
	Specialty string    `json:"specialty"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}
