// Package models defines the data records shared across EdgarWatch services.
package models

import "time"

// Company represents a filer tracked by the system. Companies are created on
// first ingest or lookup and never destroyed — deactivation removes them from
// polling without losing filing history.
type Company struct {
	ID           string    `json:"id" badgerhold:"unique"`
	CIK          string    `json:"cik" badgerhold:"index"` // 10-digit zero-padded
	Symbol       string    `json:"symbol" badgerhold:"index"`
	Name         string    `json:"name"`
	SIC          string    `json:"sic"`
	Industry     string    `json:"industry"`
	IsActive     bool      `json:"is_active"`
	LastPolledAt time.Time `json:"last_polled_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
