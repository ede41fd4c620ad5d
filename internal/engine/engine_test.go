package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y0f/apiprobe/internal/contract"
	"github.com/y0f/apiprobe/internal/executor"
	"github.com/y0f/apiprobe/internal/run"
	"github.com/y0f/apiprobe/internal/synth"
)

const itemsContract = `
openapi: 3.0.3
info: {title: Items, version: 1.0.0}
paths:
  /items/{id}:
    get:
      operationId: getItem
      parameters:
        - name: id
          in: path
          required: true
          schema: {type: integer}
      responses:
        '200':
          description: ok
          content:
            application/json:
              schema:
                type: object
                required: [id, name]
                properties:
                  id: {type: integer}
                  name: {type: string}
        '400':
          description: bad request
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// itemsHandler answers 400 for a non-integer id and otherwise renders body
// with the id substituted.
func itemsHandler(body string, delay time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		id := strings.TrimPrefix(r.URL.Path, "/items/")
		if _, err := strconv.Atoi(id); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, body, id)
	})
}

func newEngine() *Engine {
	return New(executor.Config{RetryBackoff: time.Millisecond}, discardLogger())
}

func verdictFor(t *testing.T, r *run.Run, cat synth.Category) run.Verdict {
	t.Helper()
	for _, e := range r.Entries() {
		if e.Case.Category == cat {
			return e.Verdict
		}
	}
	t.Fatalf("no %s entry", cat)
	return run.Verdict{}
}

func TestRunConformantTarget(t *testing.T) {
	srv := httptest.NewServer(itemsHandler(`{"id": %s, "name": "widget"}`, 0))
	defer srv.Close()

	r, err := newEngine().Run(context.Background(), Input{
		Document:    []byte(itemsContract),
		BaseURL:     srv.URL,
		Concurrency: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, run.StatusCompleted, r.Status)
	assert.Equal(t, "Items 1.0.0", r.Contract.Identity())
	require.Len(t, r.Entries(), 2)

	assert.Equal(t, run.Passed, verdictFor(t, r, synth.HappyPath).Status)
	assert.Equal(t, run.Passed, verdictFor(t, r, synth.TypeViolation).Status)

	s := r.Summary()
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.ByCategory[synth.HappyPath].Passed)
}

func TestRunWrongFieldTypeFailsWithDiff(t *testing.T) {
	srv := httptest.NewServer(itemsHandler(`{"id": "%s", "name": "widget"}`, 0))
	defer srv.Close()

	r, err := newEngine().Run(context.Background(), Input{Document: []byte(itemsContract), BaseURL: srv.URL})
	require.NoError(t, err)

	v := verdictFor(t, r, synth.HappyPath)
	assert.Equal(t, run.Failed, v.Status)
	require.NotEmpty(t, v.Diff)
	assert.Equal(t, run.Mismatch{Path: "$.id", Expected: "integer", Actual: "string"}, v.Diff[0])
}

func TestRunTransportFailureIsErrored(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r, err := newEngine().Run(context.Background(), Input{Document: []byte(itemsContract), BaseURL: url})
	require.NoError(t, err)

	for _, e := range r.Entries() {
		assert.Equal(t, run.Errored, e.Verdict.Status, e.Case.Name())
	}
}

func TestRunGlobalTimeoutAborts(t *testing.T) {
	doc := itemsContract + `
  /items:
    get:
      operationId: listItems
      parameters:
        - name: limit
          in: query
          schema: {type: integer, minimum: 1, maximum: 50}
        - name: sort
          in: query
          schema: {type: string, enum: [asc, desc]}
      responses:
        '200': {description: ok}
`
	srv := httptest.NewServer(itemsHandler(`{"id": %s, "name": "slow"}`, 80*time.Millisecond))
	defer srv.Close()

	r, err := newEngine().Run(context.Background(), Input{
		Document:    []byte(doc),
		BaseURL:     srv.URL,
		Concurrency: 1,
		Timeout:     120 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, run.StatusAborted, r.Status)

	c, err := contract.Load([]byte(doc))
	require.NoError(t, err)
	suite := synth.Synthesize(c)

	entries := r.Entries()
	require.Len(t, entries, len(suite.Cases), "no case is left without a verdict")
	skipped := 0
	for _, e := range entries {
		assert.NotEmpty(t, e.Verdict.Status)
		if e.Verdict.Status == run.Skipped {
			skipped++
		}
	}
	assert.Positive(t, skipped)
}

func TestRunRejectsBrokenContract(t *testing.T) {
	r, err := newEngine().Run(context.Background(), Input{Document: []byte(`{"openapi": `), BaseURL: "http://127.0.0.1:1"})
	assert.Nil(t, r)

	var parseErr *contract.ParseError
	assert.True(t, errors.As(err, &parseErr), "got %v", err)
}

func TestRunRejectsUnresolvableTarget(t *testing.T) {
	r, err := newEngine().Run(context.Background(), Input{
		Document: []byte(itemsContract),
		BaseURL:  "http://no-such-host.invalid",
	})
	assert.Nil(t, r)

	var target *executor.TargetError
	assert.True(t, errors.As(err, &target), "got %v", err)
}

func TestRunsAreIsolated(t *testing.T) {
	good := httptest.NewServer(itemsHandler(`{"id": %s, "name": "ok"}`, 0))
	defer good.Close()
	bad := httptest.NewServer(itemsHandler(`{"id": %s}`, 0))
	defer bad.Close()

	eng := newEngine()
	results := make(chan *run.Run, 2)
	for _, target := range []string{good.URL, bad.URL} {
		go func(target string) {
			r, err := eng.Run(context.Background(), Input{Document: []byte(itemsContract), BaseURL: target})
			if err != nil {
				results <- nil
				return
			}
			results <- r
		}(target)
	}

	byTarget := map[string]*run.Run{}
	for i := 0; i < 2; i++ {
		r := <-results
		require.NotNil(t, r)
		byTarget[r.Target] = r
	}
	assert.NotEqual(t, byTarget[good.URL].ID, byTarget[bad.URL].ID)
	assert.Equal(t, run.Passed, verdictFor(t, byTarget[good.URL], synth.HappyPath).Status)
	assert.Equal(t, run.Failed, verdictFor(t, byTarget[bad.URL], synth.HappyPath).Status)
}
