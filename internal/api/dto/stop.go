package dto

import "time"

type UpdateStopRequest struct {
	Status       string     `json:"status"`
	SkipReason   string     `json:"skip_reason"`
	ServiceNotes string     `json:"service_notes"`
	ArrivalTime  *time.Time `json:"arrival_time,omitempty"`
}

type StopResponse struct {
	StopID                   string     `json:"stop_id"`
	RouteID                  string     `json:"route_id"`
	CustomerID               string     `json:"customer_id"`
	StopOrder                int        `json:"stop_order"`
	Status                   string     `json:"status"`
	EstimatedDurationMinutes int        `json:"estimated_duration_minutes"`
	ActualDurationMinutes    *int       `json:"actual_duration_minutes,omitempty"`
	ActualArrivalTime        *time.Time `json:"actual_arrival_time,omitempty"`
	ActualDepartureTime      *time.Time `json:"actual_departure_time,omitempty"`
	CompletedAt              *time.Time `json:"completed_at,omitempty"`
	ServiceNotes             string     `json:"service_notes,omitempty"`
	SkipReason               string     `json:"skip_reason,omitempty"`
}
