package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Chat
	FieldConnectionID = "connection_id"
	FieldRoom         = "room"
	FieldDisplayName  = "display_name"
	FieldMessageID    = "message_id"

	// Persistence
	FieldMode       = "mode"
	FieldCollection = "collection"
	FieldQueueSize  = "queue_size"
	FieldDriver     = "driver"

	// Service
	FieldService = "service"

	// gRPC
	FieldGRPCMethod = "grpc_method"
	FieldGRPCCode   = "grpc_code"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
