package multipart

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"

	cperrors "github.com/objectfs/cloudpath/pkg/errors"
)

// ProtocolErrorCodes are the provider error codes meaning the recorded parts cannot be
// assembled, so the object has to be re-sent whole.
var ProtocolErrorCodes = map[string]bool{
	"EntityTooSmall":   true,
	"InvalidPart":      true,
	"InvalidPartOrder": true,
}

// protocolSubstring is R2's completion message for unequal parts. Matching it is the last
// resort for providers that return no usable error code.
const protocolSubstring = "All non-trailing"

// IsProtocolViolation reports whether a completion failure was a part-size protocol
// violation. Structured codes are checked first: the cloudpath error code, then smithy API
// codes, then minio error responses. The message substring is consulted last.
func IsProtocolViolation(err error) bool {
	if err == nil {
		return false
	}
	if cperrors.HasCode(err, cperrors.ErrCodeMultipartProtocol) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && ProtocolErrorCodes[apiErr.ErrorCode()] {
		return true
	}

	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) && ProtocolErrorCodes[minioErr.Code] {
		return true
	}

	return strings.Contains(err.Error(), protocolSubstring)
}
