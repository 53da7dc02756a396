package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
	"google.golang.org/api/googleapi"
)

// Result is the outcome of one gateway call. Exactly one of two shapes holds:
// a successful call (2xx Status, Node set when the call returns metadata) or
// a failure (Node nil, Status and Reason taken from the Drive error payload).
type Result struct {
	Node   *types.RemoteNode
	Status int
	Reason string
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// RateLimited reports whether Drive rejected the call for quota reasons
// that are expected to clear with time.
func (r Result) RateLimited() bool {
	if r.Status != http.StatusForbidden && r.Status != http.StatusServiceUnavailable {
		return false
	}
	return r.Reason == utils.ReasonRateLimitExceeded || r.Reason == utils.ReasonUserRateLimitExceeded
}

// NotFound reports a lookup that matched nothing.
func (r Result) NotFound() bool {
	return r.Status == http.StatusNotFound
}

func (r Result) String() string {
	if r.OK() {
		if r.Node != nil {
			return fmt.Sprintf("%d %s", r.Status, r.Node.ID)
		}
		return fmt.Sprintf("%d", r.Status)
	}
	return fmt.Sprintf("%d %s", r.Status, r.Reason)
}

func success(node *types.RemoteNode) Result {
	return Result{Node: node, Status: http.StatusOK}
}

func notFound() Result {
	return Result{Status: http.StatusNotFound, Reason: utils.ReasonNotFound}
}

func parseFailure() Result {
	return Result{Status: http.StatusInternalServerError, Reason: utils.ReasonParseError}
}

type errorPayload struct {
	Error struct {
		Code   int `json:"code"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// failure classifies err into a Result. Anything that is not a Drive error
// with a recognisable reason collapses to (500, parseError).
func failure(err error) Result {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return parseFailure()
	}
	if len(gerr.Errors) > 0 && gerr.Errors[0].Reason != "" {
		return Result{Status: gerr.Code, Reason: gerr.Errors[0].Reason}
	}
	return classifyBody([]byte(gerr.Body))
}

func classifyBody(body []byte) Result {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return parseFailure()
	}
	if payload.Error.Code == 0 || len(payload.Error.Errors) == 0 || payload.Error.Errors[0].Reason == "" {
		return parseFailure()
	}
	return Result{Status: payload.Error.Code, Reason: payload.Error.Errors[0].Reason}
}
