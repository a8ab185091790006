package health

import "time"

// Log is one vitals measurement recorded for a target member. The target is
// a denormalized member name under the recorder's namespace, same convention
// as reminders.
type Log struct {
	ID         string `json:"id" gorm:"primaryKey"`
	RecorderID string `json:"recorder_id" gorm:"index"`
	TargetName string `json:"target_name" gorm:"index"`

	Systolic    *int     `json:"systolic,omitempty"`
	Diastolic   *int     `json:"diastolic,omitempty"`
	BloodSugar  *float64 `json:"blood_sugar,omitempty"`
	BloodOxygen *float64 `json:"blood_oxygen,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`

	RecordedAt time.Time `json:"recorded_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName keeps the table aligned with the rename-cascade in the profile
// store.
func (Log) TableName() string { return "health_logs" }

// HasVitals reports whether at least one measurement is present.
func (l *Log) HasVitals() bool {
	return l.Systolic != nil || l.Diastolic != nil || l.BloodSugar != nil ||
		l.BloodOxygen != nil || l.Temperature != nil || l.Weight != nil
}
