package logkey

// Attribute keys shared by every slog call so log lines can be queried uniformly.
const (
	TraceID = "TRACE ID"
	ERROR   = "ERROR"
	UserID  = "UserID"

	ProductID   = "ProductID"
	CartItemID  = "CartItemID"
	OrderID     = "OrderID"
	OrderNumber = "OrderNumber"
	IntentID    = "PaymentIntentID"
	EventType   = "EventType"
	Status      = "Status"
)
