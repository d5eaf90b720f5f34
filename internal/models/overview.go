package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Overview is the KPI aggregate returned by GET /overview. The backend emits
// count and money fields as decimal strings; they are kept as strings here and
// parsed only where math is needed.
type Overview struct {
	TotalCustomers string `json:"total_customers"`
	TotalOrders    string `json:"total_orders"`
	TotalRevenue   string `json:"total_revenue"`
	Currency       string `json:"currency"`
}

// AverageOrderValue returns total revenue divided by total orders, or zero
// when there are no orders or either field does not parse.
func (o Overview) AverageOrderValue() decimal.Decimal {
	orders, err := decimal.NewFromString(strings.TrimSpace(o.TotalOrders))
	if err != nil || orders.IsZero() {
		return decimal.Zero
	}
	revenue, err := decimal.NewFromString(strings.TrimSpace(o.TotalRevenue))
	if err != nil {
		return decimal.Zero
	}
	return revenue.Div(orders)
}
