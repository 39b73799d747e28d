package models

import "time"

// DayTemplate is a doctor's working-day configuration for one calendar
// date, materialized from the weekly schedule and overrides. Read-only to
// the engine.
type DayTemplate struct {
	DoctorID     string
	Date         time.Time
	IsActive     bool
	StartTime    string // "09:00:00"
	EndTime      string // "17:00:00"
	BreakStart   string // empty when the day has no break
	BreakEnd     string
	SlotDuration int // minutes
}

// Slot is a derived bookable interval; never persisted on its own.
type Slot struct {
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	State         string     `json:"state"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
}

// DayAvailability is the per-day calendar payload rendered by clients.
type DayAvailability struct {
	AvailableDate string `json:"available_date"`
	IsActive      bool   `json:"is_active"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	BreakStart    string `json:"break_start,omitempty"`
	BreakEnd      string `json:"break_end,omitempty"`
	SlotDuration  int    `json:"slot_duration,omitempty"`
	Slots         []Slot `json:"slots"`
}

// DoctorSlotsRange is the range-query response for a doctor's calendar.
type DoctorSlotsRange struct {
	DoctorID string            `json:"doctor_id"`
	Days     []DayAvailability `json:"days"`
}

// DoctorSchedule is one entry of the externally managed schedules catalog
// (configs/schedules.yaml).
type DoctorSchedule struct {
	DoctorID string             `yaml:"doctor_id"`
	Name     string             `yaml:"name"`
	Fee      int64              `yaml:"fee"`      // minor units
	Currency string             `yaml:"currency"` // ISO 4217
	Weekly   map[string]DayRule `yaml:"weekly"`   // keys: mon..sun
	Override []DateOverride     `yaml:"overrides"`
}

// DayRule describes working hours for a weekday or an override date.
type DayRule struct {
	Inactive    bool   `yaml:"inactive"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	BreakStart  string `yaml:"break_start"`
	BreakEnd    string `yaml:"break_end"`
	SlotMinutes int    `yaml:"slot_minutes"`
}

// DateOverride replaces the weekly rule for a single date.
type DateOverride struct {
	Date string  `yaml:"date"` // "2026-02-06"
	Rule DayRule `yaml:"rule"`
}
