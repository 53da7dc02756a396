package errors

import (
	"fmt"

	"github.com/dl-alexandre/gdmirror/internal/api"
	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
)

// FromResult converts a failed gateway Result into an *utils.AppError.
// It returns nil for successful results.
func FromResult(op string, res api.Result, reqCtx *types.RequestContext) error {
	if res.OK() {
		return nil
	}

	var code string
	var retryable bool

	switch res.Status {
	case 400:
		code = utils.ErrCodeInvalidArgument
	case 401:
		code = utils.ErrCodeAuthExpired
	case 403:
		code = utils.ErrCodePermissionDenied
		switch res.Reason {
		case "storageQuotaExceeded":
			code = utils.ErrCodeQuotaExceeded
		case utils.ReasonRateLimitExceeded, utils.ReasonUserRateLimitExceeded, "sharingRateLimitExceeded":
			code = utils.ErrCodeRateLimited
			retryable = true
		case "dailyLimitExceeded":
			code = utils.ErrCodeRateLimited
		case "insufficientPermissions":
			code = utils.ErrCodeScopeInsufficient
		}
	case 404:
		code = utils.ErrCodeFileNotFound
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 500:
		code = utils.ErrCodeNetworkError
		if res.Reason == utils.ReasonParseError {
			code = utils.ErrCodeParseError
		}
		retryable = true
	case 502, 503, 504:
		code = utils.ErrCodeNetworkError
		retryable = true
		if res.RateLimited() {
			code = utils.ErrCodeRateLimited
		}
	default:
		code = utils.ErrCodeUnknown
		retryable = res.Status >= 500
	}

	msg := fmt.Sprintf("%s failed: %d %s", op, res.Status, res.Reason)
	builder := utils.NewCLIError(code, msg).
		WithHTTPStatus(res.Status).
		WithRetryable(retryable).
		WithContext("op", op)

	if res.Reason != "" && res.Reason != utils.ReasonParseError {
		builder.WithDriveReason(res.Reason)
	}
	if reqCtx != nil {
		builder.WithContext("traceId", reqCtx.TraceID).
			WithContext("requestType", string(reqCtx.RequestType))
		if len(reqCtx.InvolvedFileIDs) > 0 {
			builder.WithContext("fileIds", reqCtx.InvolvedFileIDs)
		}
	}

	switch code {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "run 'gdmirror auth login' to re-authenticate")
	case utils.ErrCodeScopeInsufficient:
		builder.WithContext("suggestedAction", "run 'gdmirror auth login' and grant full Drive access")
	case utils.ErrCodeFileNotFound:
		builder.WithContext("suggestedAction", "verify the file ID is correct and accessible")
	case utils.ErrCodeQuotaExceeded:
		builder.WithContext("suggestedAction", "free up space in Google Drive or upgrade storage")
	case utils.ErrCodeRateLimited:
		builder.WithContext("suggestedAction", "wait before retrying")
	}

	return utils.NewAppError(builder.Build())
}
