package minio

import (
	"net/http"

	"github.com/minio/minio-go/v7"

	"github.com/objectfs/cloudpath/internal/multipart"
	cperrors "github.com/objectfs/cloudpath/pkg/errors"
)

// translateError maps minio-go errors onto the cloudpath taxonomy
func translateError(err error, scheme, operation, path string) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey", resp.Code == "NoSuchBucket", resp.Code == "NotFound",
		resp.StatusCode == http.StatusNotFound:
		return cperrors.NotFound(scheme, path, err).WithOperation(operation)
	case resp.Code == "AccessDenied", resp.StatusCode == http.StatusForbidden:
		return cperrors.NewError(cperrors.ErrCodeAccessDenied, "access denied").
			WithPath(scheme, path).WithOperation(operation).WithCause(err)
	case multipart.ProtocolErrorCodes[resp.Code]:
		return cperrors.MultipartProtocolViolation(scheme, path, err).WithOperation(operation)
	case resp.Code == "BucketAlreadyOwnedByYou", resp.Code == "BucketAlreadyExists":
		return cperrors.DestinationExists(scheme, path).WithCause(err).WithOperation(operation)
	default:
		return cperrors.TransferFailure(scheme, path, operation, err)
	}
}
