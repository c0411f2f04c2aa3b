package models

import "time"

type Party struct {
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address"`
	TaxID   string `yaml:"tax_id" json:"tax_id,omitempty"`
	Email   string `yaml:"email" json:"email,omitempty"`
}

type LineItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Total       int64  `json:"total"`
}

// Receipt is the billing record; at most one per rent.
type Receipt struct {
	ID        int64      `json:"id"`
	RentID    int64      `json:"rent_id"`
	Number    string     `json:"number"`
	IssuerID  int64      `json:"issuer_id"`
	TotalCost int64      `json:"total_cost"`
	IssueDate time.Time  `json:"issue_date"`
	Seller    Party      `json:"seller"`
	Buyer     Party      `json:"buyer"`
	Items     []LineItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}
