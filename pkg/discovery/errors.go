package discovery

import (
	"errors"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// transientCodes are S3 error codes worth retrying.
var transientCodes = map[string]bool{
	"SlowDown":            true,
	"InternalError":       true,
	"RequestTimeout":      true,
	"ServiceUnavailable":  true,
	"ThrottlingException": true,
	"Throttling":          true,
}

// IsTransient reports whether an object-store error is worth retrying.
func IsTransient(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if transientCodes[apiErr.ErrorCode()] {
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() >= 500 || respErr.HTTPStatusCode() == 429
	}
	return false
}

// IsAccessDenied reports whether an object-store error is an authorization
// failure.
func IsAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "ExpiredToken", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 403
	}
	return false
}

// IsNotFound reports whether an object-store error means the bucket or key
// does not exist.
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NoSuchKey", "NotFound":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}
