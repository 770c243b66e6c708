// Package codec implements the DataChannel wire formats: the request and
// response envelopes, the underlying gRPC-Web frames, and the streaming
// envelope used for server-streaming RPCs. All integers are big-endian.
package codec

// StatusCode is a gRPC status code, numerically identical to
// google.golang.org/grpc/codes.Code so callers may cast freely.
type StatusCode = int

const (
	StatusOK                 StatusCode = 0
	StatusCancelled          StatusCode = 1
	StatusUnknown            StatusCode = 2
	StatusInvalidArgument    StatusCode = 3
	StatusDeadlineExceeded   StatusCode = 4
	StatusNotFound           StatusCode = 5
	StatusAlreadyExists      StatusCode = 6
	StatusPermissionDenied   StatusCode = 7
	StatusResourceExhausted  StatusCode = 8
	StatusFailedPrecondition StatusCode = 9
	StatusAborted            StatusCode = 10
	StatusOutOfRange         StatusCode = 11
	StatusUnimplemented      StatusCode = 12
	StatusInternal           StatusCode = 13
	StatusUnavailable        StatusCode = 14
	StatusDataLoss           StatusCode = 15
	StatusUnauthenticated    StatusCode = 16
)

var statusNames = map[StatusCode]string{
	StatusOK:                 "OK",
	StatusCancelled:          "CANCELLED",
	StatusUnknown:            "UNKNOWN",
	StatusInvalidArgument:    "INVALID_ARGUMENT",
	StatusDeadlineExceeded:   "DEADLINE_EXCEEDED",
	StatusNotFound:           "NOT_FOUND",
	StatusAlreadyExists:      "ALREADY_EXISTS",
	StatusPermissionDenied:   "PERMISSION_DENIED",
	StatusResourceExhausted:  "RESOURCE_EXHAUSTED",
	StatusFailedPrecondition: "FAILED_PRECONDITION",
	StatusAborted:            "ABORTED",
	StatusOutOfRange:         "OUT_OF_RANGE",
	StatusUnimplemented:      "UNIMPLEMENTED",
	StatusInternal:           "INTERNAL",
	StatusUnavailable:        "UNAVAILABLE",
	StatusDataLoss:           "DATA_LOSS",
	StatusUnauthenticated:    "UNAUTHENTICATED",
}

// GetStatusName returns the canonical gRPC status name, or "UNKNOWN" for an
// unrecognized code.
func GetStatusName(code StatusCode) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return "UNKNOWN"
}

// GRPCError pairs a status code with a message; handlers return it directly
// to signal a non-OK RPC outcome.
type GRPCError struct {
	Code    StatusCode
	Message string
}

func (e *GRPCError) Error() string {
	return GetStatusName(e.Code) + ": " + e.Message
}
