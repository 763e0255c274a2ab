// Package models contains domain models for orthomate.
package models

// Template names a diagnosis category that drives note boilerplate.
type Template string

// GuidelineFlags records which conservative treatments were already tried.
type GuidelineFlags struct {
	PTTried        bool `json:"ptTried"`
	InjectionTried bool `json:"injectionTried"`
}

// NextSteps records the plan items selected for the visit.
type NextSteps struct {
	MRI      bool `json:"mri"`
	Referral bool `json:"referral"`
	Surgery  bool `json:"surgery"`
}

// PatientInfo is display data typed by the clinician. It is never validated
// and never used when composing a note.
type PatientInfo struct {
	Name string `json:"name"`
	DOB  string `json:"dob"`
	MRN  string `json:"mrn"`
}
