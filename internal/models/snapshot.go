package models

import "time"

// Snapshot is one consistent view of the dashboard, produced by a full fetch
// cycle. All fields are replaced together; a cycle either applies the whole
// snapshot or leaves the previous one in place. WebhookStatus alone may be
// nil when its endpoint failed while the rest of the cycle succeeded.
type Snapshot struct {
	User         *UserInfo      `json:"user"`
	Overview     *Overview      `json:"overview"`
	OrdersByDate []OrderByDate  `json:"orders_by_date"`
	TopCustomers []TopCustomer  `json:"top_customers"`
	RecentOrders []RecentOrder  `json:"recent_orders"`
	Webhooks     *WebhookStatus `json:"webhooks"`

	UpdatedAt time.Time `json:"updated_at"`
}
