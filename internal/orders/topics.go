package orders

const (
	TopicOrderCreated         = "order.created"
	TopicOrderStatusChanged   = "order.status.changed"
	TopicPaymentStatusChanged = "payment.status.changed"
	// TopicGatewayCallbacks carries payment gateway results into the reconciler.
	TopicGatewayCallbacks = "payment.gateway.callbacks"
)

// Partition key = order_id so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
