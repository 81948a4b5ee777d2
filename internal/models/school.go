package models

import "time"

// SchoolSettings gates the first-run setup.
type SchoolSettings struct {
	Name     string `json:"name"`
	District string `json:"district"`
	IsSetup  bool   `json:"isSetup"`
}

// SchoolAssets holds images used on printed documents as data URLs.
type SchoolAssets struct {
	Logo               string `json:"logo,omitempty"`
	PrincipalSignature string `json:"principalSignature,omitempty"`
	CounselorSignature string `json:"counselorSignature,omitempty"`
	Stamp              string `json:"stamp,omitempty"`
}

// Empty reports whether no image is set.
func (a SchoolAssets) Empty() bool {
	return a.Logo == "" && a.PrincipalSignature == "" && a.CounselorSignature == "" && a.Stamp == ""
}

// Activation records a validated activation key.
type Activation struct {
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint"`
	ActivatedAt time.Time `json:"activatedAt"`
}

// ActivationStatus is returned to the shell on start.
type ActivationStatus struct {
	Activated   bool   `json:"activated"`
	Required    bool   `json:"required"`
	Fingerprint string `json:"fingerprint"`
}
