package dto

import "time"

type CreateRouteRequest struct {
	Name        string   `json:"name"`
	DayOfWeek   string   `json:"day_of_week"`
	Date        string   `json:"date"`
	CustomerIDs []string `json:"customer_ids"`
	DriverID    string   `json:"driver_id"`
}

type AddStopRequest struct {
	CustomerID string `json:"customer_id"`
}

type AssignDriverRequest struct {
	DriverID string `json:"driver_id"`
}

type CoordinateResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type RouteResponse struct {
	RouteID                string               `json:"route_id"`
	Name                   string               `json:"name,omitempty"`
	DayOfWeek              string               `json:"day_of_week"`
	Date                   string               `json:"date"`
	Status                 string               `json:"status"`
	DriverID               string               `json:"driver_id,omitempty"`
	DriverName             string               `json:"driver_name,omitempty"`
	TotalDistanceMiles     float64              `json:"total_distance_miles"`
	TotalDurationMinutes   int                  `json:"total_duration_minutes"`
	EstimatedFuelCost      float64              `json:"estimated_fuel_cost"`
	Waypoints              []CoordinateResponse `json:"waypoints,omitempty"`
	StartTime              *time.Time           `json:"start_time,omitempty"`
	EndTime                *time.Time           `json:"end_time,omitempty"`
	AverageDurationMinutes *float64             `json:"average_duration_minutes,omitempty"`
	Stops                  []StopResponse       `json:"stops"`
}

type CompleteRouteResponse struct {
	Route            RouteResponse `json:"route"`
	AlreadyCompleted bool          `json:"already_completed"`
}
