package domain

import "time"

// ApiLogEntry is an append-only record of an API call.
type ApiLogEntry struct {
	ID             int64     `json:"id"`
	UserID         *string   `json:"userId,omitempty"`
	RequestedAt    time.Time `json:"requestedAt"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	QueryString    string    `json:"queryString,omitempty"`
	StatusCode     int       `json:"statusCode"`
	ResponseMillis int64     `json:"responseMillis"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	RequestBody    *string   `json:"requestBody,omitempty"`
}
