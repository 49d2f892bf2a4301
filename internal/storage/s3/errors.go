package s3

import (
	"errors"
	"net/http"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/objectfs/cloudpath/internal/multipart"
	cperrors "github.com/objectfs/cloudpath/pkg/errors"
)

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func httpStatus(err error) int {
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}

// translateError maps SDK errors onto the cloudpath taxonomy. Typed SDK errors are checked
// first, then smithy API codes, then the HTTP status.
func translateError(err error, scheme, operation, path string) error {
	if err == nil {
		return nil
	}
	code := apiErrorCode(err)
	switch {
	case isErrorType[*s3types.NoSuchKey](err),
		isErrorType[*s3types.NoSuchBucket](err),
		isErrorType[*s3types.NotFound](err),
		code == "NoSuchKey", code == "NoSuchBucket", code == "NotFound",
		httpStatus(err) == http.StatusNotFound:
		return cperrors.NotFound(scheme, path, err).WithOperation(operation)
	case code == "AccessDenied", httpStatus(err) == http.StatusForbidden:
		return cperrors.NewError(cperrors.ErrCodeAccessDenied, "access denied").
			WithPath(scheme, path).WithOperation(operation).WithCause(err)
	case multipart.ProtocolErrorCodes[code]:
		return cperrors.MultipartProtocolViolation(scheme, path, err).WithOperation(operation)
	case isErrorType[*s3types.BucketAlreadyOwnedByYou](err), isErrorType[*s3types.BucketAlreadyExists](err),
		code == "BucketAlreadyOwnedByYou", code == "BucketAlreadyExists":
		return cperrors.DestinationExists(scheme, path).WithCause(err).WithOperation(operation)
	default:
		return cperrors.TransferFailure(scheme, path, operation, err)
	}
}
