package models

// RewardResponse is returned when an ad view was credited.
type RewardResponse struct {
	Status  string `json:"status" example:"ok"`
	Balance int64  `json:"balance" example:"63"`
}

// RejectionResponse is returned when a ledger rule refused the credit.
type RejectionResponse struct {
	Status string `json:"status" example:"rejected"`
	Reason string `json:"reason" example:"too_soon"`
}

// HealthResponse is the body of the liveness and readiness probes.
type HealthResponse struct {
	Status  string `json:"status" example:"ok"`
	Service string `json:"service" example:"adkamai"`
	Error   string `json:"error,omitempty"`
}
