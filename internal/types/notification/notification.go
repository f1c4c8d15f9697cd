package notification

import (
	"time"

	"github.com/google/uuid"
)

type DeviceToken struct {
	ID           uuid.UUID `json:"id" db:"id"`
	PatientID    uuid.UUID `json:"patient_id" db:"patient_id"`
	Token        string    `json:"token" db:"token"`
	Platform     string    `json:"platform" db:"platform"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
