package config

import (
	"fmt"
	"os"

	"medbook/internal/models"

	"gopkg.in/yaml.v2"
)

// LoadSchedules reads the doctors' schedules catalog. The file is managed
// by the clinic administrator outside the service.
func LoadSchedules(path string) ([]models.DoctorSchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var catalog struct {
		Doctors []models.DoctorSchedule `yaml:"doctors"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse schedules: %w", err)
	}

	if err := ValidateSchedules(catalog.Doctors); err != nil {
		return nil, err
	}
	return catalog.Doctors, nil
}
