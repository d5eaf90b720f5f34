package models

import "time"

// OrderByDate is one point of the revenue time series, ordered by date.
type OrderByDate struct {
	Date    string `json:"date"`
	Orders  int    `json:"orders"`
	Revenue string `json:"revenue"`
}

// TopCustomer is one row of the spend leaderboard.
type TopCustomer struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	OrderCount int    `json:"order_count"`
	TotalSpent string `json:"total_spent"`
}

// RecentOrder is one row of the latest-orders table, newest first.
type RecentOrder struct {
	ID             uint64    `json:"id"`
	ShopifyOrderID string    `json:"shopify_order_id"`
	TotalPrice     string    `json:"total_price"`
	Currency       string    `json:"currency"`
	CreatedAt      time.Time `json:"created_at"`
}
