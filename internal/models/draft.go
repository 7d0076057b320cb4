package models

// Draft is the student's in-progress code for one problem
type Draft struct {
	ProblemID          string `json:"problem_id"`
	Code               string `json:"code"`
	StarterFingerprint string `json:"starter_fingerprint"`
}
