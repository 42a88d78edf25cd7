package errors

import "net/http"

// Process exit codes. Success is 0; every failure maps to a distinct non-zero
// value so scripts can branch on the category.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitNotFound    = 3
	ExitRemote      = 4
	ExitRender      = 5
	ExitDump        = 6
	ExitInterrupted = 130
)

// HTTPStatus maps an error code to the status the server responds with.
// Unknown or empty codes are server errors.
func HTTPStatus(code Code) int {
	switch code {
	case ErrCodeNotFound, ErrCodeNoRenderableVersion:
		return http.StatusNotFound
	case ErrCodeInvalidPackage, ErrCodeInvalidVersion, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeRemoteUnavailable, ErrCodeRemoteMalformed:
		return http.StatusBadGateway
	case ErrCodeRemoteTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps an error to the CLI exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch GetCode(err) {
	case ErrCodeInvalidPackage, ErrCodeInvalidVersion, ErrCodeInvalidInput:
		return ExitUsage
	case ErrCodeNotFound, ErrCodeNoRenderableVersion:
		return ExitNotFound
	case ErrCodeRemoteUnavailable, ErrCodeRemoteTimeout, ErrCodeRemoteMalformed:
		return ExitRemote
	case ErrCodeRenderCompile, ErrCodeRenderResource, ErrCodeRenderInternal:
		return ExitRender
	case ErrCodeMissingSection, ErrCodeMalformedRow, ErrCodeDumpIO:
		return ExitDump
	default:
		return ExitFailure
	}
}
