// Package assertion classifies execution outcomes against the contract:
// status policy first, then structural conformance of the response body.
package assertion

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/y0f/apiprobe/internal/contract"
	"github.com/y0f/apiprobe/internal/executor"
	"github.com/y0f/apiprobe/internal/run"
)

// Evaluate returns the verdict for one outcome of an operation.
func Evaluate(op *contract.Operation, o *executor.Outcome) run.Verdict {
	if o.Skipped {
		return run.Verdict{Status: run.Skipped, Explanation: o.SkipReason}
	}
	if o.Err != nil {
		return run.Verdict{
			Status:      run.Errored,
			Explanation: fmt.Sprintf("transport error after %d attempt(s): %v", o.Attempts, o.Err),
		}
	}

	code := o.StatusCode
	resp := op.ResponseFor(code)

	if o.Case.ExpectRejection {
		return evalRejection(op, o, resp)
	}

	switch {
	case code >= 500:
		return failed("server error: status %d", code)
	case resp == nil:
		return failed("undeclared status %d (declared: %s)", code, strings.Join(op.DeclaredStatuses(), ", "))
	case resp.Schema == nil || !hasBody(op, code):
		return run.Verdict{Status: run.Passed, Explanation: fmt.Sprintf("status %d declared", code)}
	}
	return evalBody(resp, o)
}

func evalRejection(op *contract.Operation, o *executor.Outcome, resp *contract.Response) run.Verdict {
	code := o.StatusCode
	switch {
	case code >= 500:
		return failed("expected rejection, got server error (status %d)", code)
	case code < 400:
		return failed("expected rejection, got acceptance (status %d)", code)
	case resp != nil && resp.Schema != nil && hasBody(op, code):
		return evalBody(resp, o)
	}
	return run.Verdict{Status: run.Passed, Explanation: fmt.Sprintf("rejected with status %d", code)}
}

// hasBody reports whether a response with code can carry a body.
func hasBody(op *contract.Operation, code int) bool {
	return op.Method != http.MethodHead && code != http.StatusNoContent && code != http.StatusNotModified
}

func evalBody(resp *contract.Response, o *executor.Outcome) run.Verdict {
	if o.Truncated {
		return run.Verdict{
			Status:      run.Errored,
			Explanation: fmt.Sprintf("response body exceeds %d bytes and was truncated; cannot validate", len(o.Body)),
		}
	}
	diff := CheckBody(resp.Schema, resp.ContentType, o.Body)
	if len(diff) == 0 {
		return run.Verdict{Status: run.Passed, Explanation: fmt.Sprintf("status %d, body conforms", o.StatusCode)}
	}
	return run.Verdict{
		Status:      run.Failed,
		Explanation: fmt.Sprintf("status %d, body violates schema (%d mismatch(es))", o.StatusCode, len(diff)),
		Diff:        diff,
	}
}

func failed(format string, args ...any) run.Verdict {
	return run.Verdict{Status: run.Failed, Explanation: fmt.Sprintf(format, args...)}
}
