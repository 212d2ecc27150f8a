package health

type healthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Features  featuresResponse `json:"features"`
}

// featuresResponse is the resolved availability, not the configured flags.
type featuresResponse struct {
	ChangeLog bool `json:"changeLog"`
	Presence  bool `json:"presence"`
}
