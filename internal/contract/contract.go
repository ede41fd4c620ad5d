// Package contract loads OpenAPI 3.x and Swagger 2.0 documents into a
// normalized, fully resolved operation inventory.
package contract

import (
	"sort"
	"strconv"
	"strings"
)

// Location is where a parameter travels in the request.
type Location string

const (
	InPath   Location = "path"
	InQuery  Location = "query"
	InHeader Location = "header"
	InCookie Location = "cookie"
	InBody   Location = "body"
)

// Contract is the immutable result of loading a document.
type Contract struct {
	Title      string
	Version    string
	Digest     string // sha256 of the source bytes, hex
	BasePath   string
	Operations []*Operation
}

// Operation finds an operation by id.
func (c *Contract) Operation(id string) *Operation {
	for _, op := range c.Operations {
		if op.ID == id {
			return op
		}
	}
	return nil
}

// Identity is a short label for reports: "title version".
func (c *Contract) Identity() string {
	if c.Version == "" {
		return c.Title
	}
	return c.Title + " " + c.Version
}

// Operation is one method + path template pair.
type Operation struct {
	ID         string
	Method     string
	Path       string
	Summary    string
	Parameters []*Parameter

	// Responses maps exact status codes; Classes maps the leading digit of
	// "2XX"-style keys; Default is the "default" response.
	Responses map[int]*Response
	Classes   map[int]*Response
	Default   *Response
}

// Key returns "METHOD /path", the label used for coverage matching.
func (o *Operation) Key() string {
	return o.Method + " " + o.Path
}

// Body returns the request body parameter, or nil.
func (o *Operation) Body() *Parameter {
	for _, p := range o.Parameters {
		if p.In == InBody {
			return p
		}
	}
	return nil
}

// Parameter finds a parameter by location and name.
func (o *Operation) Parameter(in Location, name string) *Parameter {
	for _, p := range o.Parameters {
		if p.In == in && p.Name == name {
			return p
		}
	}
	return nil
}

// ResponseFor returns the declared response for status, preferring an
// exact match, then the status class, then default.
func (o *Operation) ResponseFor(status int) *Response {
	if r, ok := o.Responses[status]; ok {
		return r
	}
	if r, ok := o.Classes[status/100]; ok {
		return r
	}
	return o.Default
}

// DeclaredStatuses lists declared status keys in a stable order for messages.
func (o *Operation) DeclaredStatuses() []string {
	var out []string
	codes := make([]int, 0, len(o.Responses))
	for code := range o.Responses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, c := range codes {
		out = append(out, strconv.Itoa(c))
	}
	classes := make([]int, 0, len(o.Classes))
	for c := range o.Classes {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	for _, c := range classes {
		out = append(out, strconv.Itoa(c)+"XX")
	}
	if o.Default != nil {
		out = append(out, "default")
	}
	return out
}

// PathParameterNames extracts the {name} placeholders of a path template.
func PathParameterNames(template string) []string {
	var names []string
	for {
		open := strings.IndexByte(template, '{')
		if open < 0 {
			return names
		}
		end := strings.IndexByte(template[open:], '}')
		if end < 0 {
			return names
		}
		names = append(names, template[open+1:open+end])
		template = template[open+end+1:]
	}
}

// Parameter is a single request input.
type Parameter struct {
	Name        string
	In          Location
	Required    bool
	Schema      *Schema
	ContentType string // body only
	Example     any
	HasExample  bool
}

// Response is one declared response. Schema is nil when the response
// declares no body.
type Response struct {
	Description string
	ContentType string
	Schema      *Schema
}
