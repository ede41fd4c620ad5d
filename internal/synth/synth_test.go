package synth

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y0f/apiprobe/internal/contract"
)

func load(t *testing.T, doc string) *contract.Contract {
	t.Helper()
	c, err := contract.Load([]byte(doc))
	require.NoError(t, err)
	return c
}

const itemsDoc = `
openapi: 3.0.0
info: {title: items, version: "1"}
paths:
  /items/{id}:
    get:
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: integer
      responses:
        '200':
          description: ok
`

func TestItemsScenario(t *testing.T) {
	suite := Synthesize(load(t, itemsDoc))
	require.Empty(t, suite.Errors)

	assert.Equal(t, 1, suite.Count(HappyPath))
	assert.Equal(t, 0, suite.Count(Boundary))
	assert.Equal(t, 0, suite.Count(RequiredViolation))
	require.Equal(t, 1, suite.Count(TypeViolation))
	require.Len(t, suite.Cases, 2)

	happy := suite.Cases[0]
	id, ok := happy.Lookup(contract.InPath, "id")
	require.True(t, ok)
	assert.IsType(t, int64(0), id)
	assert.False(t, happy.ExpectRejection)

	wrong := suite.Cases[1]
	assert.Equal(t, TypeViolation, wrong.Category)
	v, _ := wrong.Lookup(contract.InPath, "id")
	assert.Equal(t, "abc", v)
	assert.True(t, wrong.ExpectRejection)
	assert.Equal(t, "get_items_id type_violation id wrong_type", wrong.Name())
}

const shopDoc = `
openapi: 3.0.0
info: {title: shop, version: "2"}
paths:
  /orders:
    post:
      operationId: createOrder
      parameters:
        - name: X-Request-Id
          in: header
          required: true
          schema: {type: string, format: uuid}
        - name: dryRun
          in: query
          schema: {type: boolean}
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [sku, quantity]
              properties:
                sku:
                  type: string
                  minLength: 3
                  maxLength: 8
                quantity:
                  type: integer
                  minimum: 1
                  maximum: 10
                priority:
                  type: string
                  enum: [low, high]
                  minLength: 1
                tags:
                  type: array
                  maxItems: 2
                  items: {type: string}
                price:
                  type: number
                  exclusiveMinimum: true
                  minimum: 0
      responses:
        '201': {description: created}
`

func TestCategoriesAndOrdering(t *testing.T) {
	suite := Synthesize(load(t, shopDoc))
	require.Empty(t, suite.Errors)

	var order []Category
	for _, tc := range suite.Cases {
		if len(order) == 0 || order[len(order)-1] != tc.Category {
			order = append(order, tc.Category)
		}
	}
	assert.Equal(t, Categories, order)

	happy := suite.Cases[0]
	require.Len(t, happy.Values, 3, "every parameter is set on the happy path")
	body, _ := happy.Lookup(contract.InBody, "body")
	require.IsType(t, map[string]any{}, body)
	for _, prop := range []string{"sku", "quantity", "priority", "tags", "price"} {
		assert.Contains(t, body.(map[string]any), prop)
	}

	for i := 1; i < len(suite.Cases); i++ {
		assert.Less(t, suite.Cases[i-1].ID, suite.Cases[i].ID)
	}
}

func TestBoundaryProbes(t *testing.T) {
	suite := Synthesize(load(t, shopDoc))

	probes := map[string]*TestCase{}
	for _, tc := range suite.Cases {
		if tc.Category == Boundary {
			probes[tc.Target+" "+tc.Probe] = tc
		}
	}

	sku := func(probe string) string {
		tc := probes["body.sku "+probe]
		require.NotNil(t, tc, probe)
		body, _ := tc.Lookup(contract.InBody, "body")
		return body.(map[string]any)["sku"].(string)
	}
	assert.Len(t, sku("min"), 3)
	assert.Len(t, sku("min-1"), 2)
	assert.Len(t, sku("max"), 8)
	assert.Len(t, sku("max+1"), 9)
	assert.True(t, probes["body.sku max+1"].ExpectRejection)
	assert.False(t, probes["body.sku max"].ExpectRejection)

	quantity := func(probe string) any {
		body, _ := probes["body.quantity "+probe].Lookup(contract.InBody, "body")
		return body.(map[string]any)["quantity"]
	}
	assert.Equal(t, int64(1), quantity("min"))
	assert.Equal(t, int64(0), quantity("min-1"))
	assert.Equal(t, int64(10), quantity("max"))
	assert.Equal(t, int64(11), quantity("max+1"))

	// Enum wins over the length constraint.
	assert.Contains(t, probes, "body.priority first")
	assert.Contains(t, probes, "body.priority last")
	assert.Contains(t, probes, "body.priority outside")
	assert.NotContains(t, probes, "body.priority min")

	assert.Contains(t, probes, "body.tags max")
	assert.Contains(t, probes, "body.tags max+1")
	assert.NotContains(t, probes, "body.tags min")

	body, _ := probes["body.price min"].Lookup(contract.InBody, "body")
	assert.Greater(t, body.(map[string]any)["price"].(float64), 0.0)
	body, _ = probes["body.price min-1"].Lookup(contract.InBody, "body")
	assert.Equal(t, 0.0, body.(map[string]any)["price"])
}

func TestRequiredViolations(t *testing.T) {
	suite := Synthesize(load(t, shopDoc))

	var targets []string
	for _, tc := range suite.Cases {
		if tc.Category != RequiredViolation {
			continue
		}
		targets = append(targets, tc.Target)
		assert.True(t, tc.ExpectRejection)
		switch tc.Target {
		case "X-Request-Id":
			_, ok := tc.Lookup(contract.InHeader, "X-Request-Id")
			assert.False(t, ok)
		case "body":
			_, ok := tc.Lookup(contract.InBody, "body")
			assert.False(t, ok)
		case "body.sku":
			body, _ := tc.Lookup(contract.InBody, "body")
			assert.NotContains(t, body.(map[string]any), "sku")
			assert.Contains(t, body.(map[string]any), "quantity")
		}
	}
	assert.Equal(t, []string{"X-Request-Id", "body", "body.quantity", "body.sku"}, targets)
}

func TestTypeViolations(t *testing.T) {
	suite := Synthesize(load(t, shopDoc))

	got := map[string]any{}
	for _, tc := range suite.Cases {
		if tc.Category != TypeViolation {
			continue
		}
		if tc.Target == "dryRun" {
			got[tc.Target], _ = tc.Lookup(contract.InQuery, "dryRun")
			continue
		}
		body, _ := tc.Lookup(contract.InBody, "body")
		got[tc.Target] = body.(map[string]any)[tc.Target[len("body."):]]
	}

	assert.NotContains(t, got, "X-Request-Id", "string header has no wrong type")
	assert.Equal(t, "abc", got["dryRun"])
	assert.Equal(t, 12345, got["body.sku"])
	assert.Equal(t, "abc", got["body.quantity"])
	assert.Equal(t, "abc", got["body.tags"])
}

func TestSynthesisIsDeterministic(t *testing.T) {
	first := Synthesize(load(t, shopDoc))
	second := Synthesize(load(t, shopDoc))

	require.Len(t, second.Cases, len(first.Cases))
	for i := range first.Cases {
		assert.Equal(t, first.Cases[i].ID, second.Cases[i].ID)
		assert.Equal(t, first.Cases[i].Values, second.Cases[i].Values)
	}
}

func TestExamplesArePreferred(t *testing.T) {
	doc := `
openapi: 3.0.0
info: {title: ex, version: "1"}
paths:
  /search:
    get:
      parameters:
        - name: q
          in: query
          example: kittens
          schema: {type: string}
      responses:
        '200': {description: ok}
`
	suite := Synthesize(load(t, doc))
	v, ok := suite.Cases[0].Lookup(contract.InQuery, "q")
	require.True(t, ok)
	assert.Equal(t, "kittens", v)
}

func TestUnsynthesizableOperationIsSkipped(t *testing.T) {
	doc := `
openapi: 3.0.0
info: {title: bad, version: "1"}
paths:
  /closed:
    post:
      operationId: closed
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              additionalProperties: false
      responses:
        '200': {description: ok}
  /open:
    get:
      operationId: open
      responses:
        '200': {description: ok}
`
	suite := Synthesize(load(t, doc))
	require.Len(t, suite.Errors, 1)
	assert.Equal(t, "closed", suite.Errors[0].OperationID)

	var synthErr *Error
	assert.True(t, errors.As(error(suite.Errors[0]), &synthErr))

	closed := suite.ForOperation("closed")
	require.Len(t, closed, 1)
	assert.NotEmpty(t, closed[0].SkipReason)

	open := suite.ForOperation("open")
	require.Len(t, open, 1)
	assert.Empty(t, open[0].SkipReason)
}

func TestRecursiveSchemas(t *testing.T) {
	doc := `
openapi: 3.0.0
info: {title: tree, version: "1"}
paths:
  /nodes:
    post:
      operationId: optionalCycle
      requestBody:
        content:
          application/json:
            schema: {$ref: '#/components/schemas/Node'}
      responses:
        '200': {description: ok}
  /loops:
    post:
      operationId: requiredCycle
      requestBody:
        content:
          application/json:
            schema: {$ref: '#/components/schemas/Loop'}
      responses:
        '200': {description: ok}
components:
  schemas:
    Node:
      type: object
      required: [name]
      properties:
        name: {type: string}
        child: {$ref: '#/components/schemas/Node'}
    Loop:
      type: object
      required: [next]
      properties:
        next: {$ref: '#/components/schemas/Loop'}
`
	suite := Synthesize(load(t, doc))
	require.Len(t, suite.Errors, 1)
	assert.Equal(t, "requiredCycle", suite.Errors[0].OperationID)
	assert.ErrorIs(t, suite.Errors[0], errCycle)

	body, ok := suite.ForOperation("optionalCycle")[0].Lookup(contract.InBody, "body")
	require.True(t, ok)
	assert.Contains(t, body.(map[string]any), "name")
	assert.NotContains(t, body.(map[string]any), "child")
}

func TestGeneratedFormats(t *testing.T) {
	g := newGenerator("op", "p", HappyPath)
	for _, format := range []string{"uuid", "date", "date-time", "email", "ipv4", "byte"} {
		v, err := g.str(&contract.Schema{Kind: contract.KindPrimitive, Type: contract.TypeString, Format: format})
		require.NoError(t, err)
		assert.NotEmpty(t, v, format)
	}

	v, err := g.str(&contract.Schema{Kind: contract.KindPrimitive, Type: contract.TypeString, Pattern: "^[0-9]+$"})
	require.NoError(t, err)
	assert.Equal(t, "123", v)

	five := 5.0
	n, err := g.integer(&contract.Schema{Kind: contract.KindPrimitive, Type: contract.TypeInteger, MultipleOf: &five})
	require.NoError(t, err)
	assert.Zero(t, n%5)
}

func integerQueryDoc(schema string) string {
	return `
openapi: 3.0.0
info: {title: wide, version: "1"}
paths:
  /items:
    get:
      operationId: listItems
      parameters:
        - name: n
          in: query
          schema: ` + schema + `
      responses:
        '200':
          description: ok
`
}

func boundaryValues(suite *Suite) map[string]any {
	out := map[string]any{}
	for _, tc := range suite.Cases {
		if tc.Category == Boundary {
			v, _ := tc.Lookup(contract.InQuery, "n")
			out[tc.Probe] = v
		}
	}
	return out
}

func TestWideIntegerRange(t *testing.T) {
	var suite *Suite
	require.NotPanics(t, func() {
		suite = Synthesize(load(t, integerQueryDoc(`{type: integer, minimum: -5e18, maximum: 5e18}`)))
	})
	require.Empty(t, suite.Errors)

	n, ok := suite.Cases[0].Lookup(contract.InQuery, "n")
	require.True(t, ok)
	assert.GreaterOrEqual(t, n.(int64), int64(-5e18))
	assert.LessOrEqual(t, n.(int64), int64(5e18))

	probes := boundaryValues(suite)
	assert.Equal(t, int64(-5e18), probes["min"])
	assert.Equal(t, int64(-5e18)-1, probes["min-1"])
	assert.Equal(t, int64(5e18)+1, probes["max+1"])
}

func TestFullInt64Bounds(t *testing.T) {
	suite := Synthesize(load(t, integerQueryDoc(
		`{type: integer, format: int64, minimum: -9223372036854775808, maximum: 9223372036854775807}`)))
	require.Empty(t, suite.Errors)
	assert.Empty(t, suite.Cases[0].SkipReason)

	probes := boundaryValues(suite)
	assert.Equal(t, int64(math.MinInt64), probes["min"])
	assert.Equal(t, int64(math.MaxInt64), probes["max"])
	assert.NotContains(t, probes, "min-1")
	assert.NotContains(t, probes, "max+1")
}

func TestWideNumberRange(t *testing.T) {
	suite := Synthesize(load(t, integerQueryDoc(`{type: number, minimum: -1.7e308, maximum: 1.7e308}`)))
	require.Empty(t, suite.Errors)

	n, _ := suite.Cases[0].Lookup(contract.InQuery, "n")
	f := n.(float64)
	assert.False(t, math.IsInf(f, 0) || math.IsNaN(f), "got %v", f)
}
