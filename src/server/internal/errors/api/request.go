package api

const (
	BadRequestDataCode   = ErrorCode("bad_request_data")
	PayloadTooLargeCode  = ErrorCode("payload_too_large")
	QueueUnavailableCode = ErrorCode("queue_unavailable")
)
