package contract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-openapi/jsonpointer"
	"sigs.k8s.io/yaml"
)

// methodOrder fixes the order operations appear in within one path.
var methodOrder = []string{"get", "head", "post", "put", "patch", "delete", "options", "trace"}

// maxRefHops bounds chains of $ref that point at other $refs.
const maxRefHops = 32

type loader struct {
	doc      map[string]any
	v3       bool
	schemas  map[string]*Schema
	consumes []string
	produces []string
	opIDs    map[string]int
}

// Load parses a JSON or YAML contract and resolves every internal reference.
func Load(data []byte) (*Contract, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}

	l := &loader{
		doc:     doc,
		schemas: make(map[string]*Schema),
		opIDs:   make(map[string]int),
	}

	switch {
	case strings.HasPrefix(stringOf(doc["openapi"]), "3."):
		l.v3 = true
	case stringOf(doc["swagger"]) == "2.0":
		l.consumes = stringList(doc["consumes"])
		l.produces = stringList(doc["produces"])
	default:
		return nil, schemaErr("", "document declares neither openapi 3.x nor swagger 2.0")
	}

	sum := sha256.Sum256(data)
	c := &Contract{Digest: hex.EncodeToString(sum[:])}
	if info, ok := doc["info"].(map[string]any); ok {
		c.Title = stringOf(info["title"])
		c.Version = stringOf(info["version"])
	}
	c.BasePath = l.basePath()

	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		return nil, schemaErr("/paths", "paths must be an object")
	}
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, path := range keys {
		ptr := "/paths/" + escapePointer(path)
		item, itemPtr, err := l.deref(paths[path], ptr)
		if err != nil {
			return nil, err
		}
		shared, err := l.parameters(item["parameters"], itemPtr+"/parameters")
		if err != nil {
			return nil, err
		}
		for _, method := range methodOrder {
			raw, ok := item[method]
			if !ok {
				continue
			}
			opNode, ok := raw.(map[string]any)
			if !ok {
				return nil, schemaErr(itemPtr+"/"+method, "operation must be an object")
			}
			op, err := l.operation(path, method, opNode, shared, itemPtr+"/"+method)
			if err != nil {
				return nil, err
			}
			c.Operations = append(c.Operations, op)
		}
	}
	return c, nil
}

func decode(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{Err: errors.New("empty document")}
	}
	raw := trimmed
	if trimmed[0] != '{' {
		converted, err := yaml.YAMLToJSON(trimmed)
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		raw = converted
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ParseError{Err: err}
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, &ParseError{Err: errors.New("document root must be an object")}
	}
	return doc, nil
}

func (l *loader) basePath() string {
	if !l.v3 {
		return strings.TrimRight(stringOf(l.doc["basePath"]), "/")
	}
	servers, _ := l.doc["servers"].([]any)
	if len(servers) == 0 {
		return ""
	}
	server, _ := servers[0].(map[string]any)
	raw := stringOf(server["url"])
	if vars, ok := server["variables"].(map[string]any); ok {
		for name, v := range vars {
			if vm, ok := v.(map[string]any); ok {
				raw = strings.ReplaceAll(raw, "{"+name+"}", stringOf(vm["default"]))
			}
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimRight(u.Path, "/")
}

// resolve looks up an internal reference. Anything that is not a
// same-document JSON pointer is rejected.
func (l *loader) resolve(ref, at string) (any, error) {
	if !strings.HasPrefix(ref, "#/") {
		return nil, &RefError{Ref: ref, Pointer: at, Reason: "only internal references (#/...) are supported"}
	}
	p, err := jsonpointer.New(ref[1:])
	if err != nil {
		return nil, &RefError{Ref: ref, Pointer: at, Reason: err.Error()}
	}
	v, _, err := p.Get(l.doc)
	if err != nil || v == nil {
		return nil, &RefError{Ref: ref, Pointer: at, Reason: "target not found"}
	}
	return v, nil
}

// deref follows $ref chains on non-schema objects (parameters, responses,
// request bodies, path items) and returns the concrete object.
func (l *loader) deref(node any, ptr string) (map[string]any, string, error) {
	for hop := 0; hop < maxRefHops; hop++ {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, ptr, schemaErr(ptr, "expected an object")
		}
		ref, ok := m["$ref"].(string)
		if !ok {
			return m, ptr, nil
		}
		target, err := l.resolve(ref, ptr)
		if err != nil {
			return nil, ptr, err
		}
		node, ptr = target, ref[1:]
	}
	return nil, ptr, &RefError{Ref: ptr, Pointer: ptr, Reason: "reference chain too long or cyclic"}
}

func (l *loader) operation(path, method string, node map[string]any, shared []*Parameter, ptr string) (*Operation, error) {
	op := &Operation{
		ID:        l.operationID(path, method, node),
		Method:    strings.ToUpper(method),
		Path:      path,
		Summary:   stringOf(node["summary"]),
		Responses: make(map[int]*Response),
		Classes:   make(map[int]*Response),
	}

	own, err := l.parameters(node["parameters"], ptr+"/parameters")
	if err != nil {
		return nil, err
	}
	op.Parameters = mergeParameters(shared, own)

	if l.v3 {
		if rb, ok := node["requestBody"]; ok {
			body, err := l.requestBody(rb, ptr+"/requestBody")
			if err != nil {
				return nil, err
			}
			if body != nil {
				op.Parameters = append(op.Parameters, body)
			}
		}
	} else {
		op.Parameters, err = l.foldFormData(op.Parameters, node)
		if err != nil {
			return nil, err
		}
	}

	for _, name := range PathParameterNames(path) {
		p := op.Parameter(InPath, name)
		if p == nil {
			return nil, schemaErr(ptr, "path parameter %q is not declared", name)
		}
		p.Required = true
	}

	responses, ok := node["responses"].(map[string]any)
	if !ok {
		return nil, schemaErr(ptr+"/responses", "responses must be an object")
	}
	for key, raw := range responses {
		rptr := ptr + "/responses/" + escapePointer(key)
		resp, err := l.response(raw, rptr, node)
		if err != nil {
			return nil, err
		}
		switch {
		case key == "default":
			op.Default = resp
		case len(key) == 3 && strings.EqualFold(key[1:], "XX") && key[0] >= '1' && key[0] <= '5':
			op.Classes[int(key[0]-'0')] = resp
		default:
			code, err := strconv.Atoi(key)
			if err != nil || code < 100 || code > 599 {
				return nil, schemaErr(rptr, "invalid response status %q", key)
			}
			op.Responses[code] = resp
		}
	}
	return op, nil
}

func (l *loader) operationID(path, method string, node map[string]any) string {
	id := stringOf(node["operationId"])
	if id == "" {
		id = method + "_" + slug(path)
	}
	l.opIDs[id]++
	if n := l.opIDs[id]; n > 1 {
		id = fmt.Sprintf("%s_%d", id, n)
	}
	return id
}

func slug(path string) string {
	var b strings.Builder
	underscore := false
	for _, r := range path {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	s := strings.TrimSuffix(b.String(), "_")
	if s == "" {
		return "root"
	}
	return s
}

func mergeParameters(shared, own []*Parameter) []*Parameter {
	out := make([]*Parameter, 0, len(shared)+len(own))
	for _, p := range shared {
		overridden := false
		for _, o := range own {
			if o.In == p.In && o.Name == p.Name {
				overridden = true
				break
			}
		}
		if !overridden {
			out = append(out, p)
		}
	}
	return append(out, own...)
}

func (l *loader) parameters(raw any, ptr string) ([]*Parameter, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, schemaErr(ptr, "parameters must be an array")
	}
	var out []*Parameter
	for i, item := range list {
		node, pptr, err := l.deref(item, fmt.Sprintf("%s/%d", ptr, i))
		if err != nil {
			return nil, err
		}
		p, err := l.parameter(node, pptr)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (l *loader) parameter(node map[string]any, ptr string) (*Parameter, error) {
	name := stringOf(node["name"])
	if name == "" {
		return nil, schemaErr(ptr, "parameter has no name")
	}
	p := &Parameter{Name: name, Required: node["required"] == true}

	switch in := stringOf(node["in"]); in {
	case "path", "query", "header", "cookie":
		p.In = Location(in)
	case "body":
		if l.v3 {
			return nil, schemaErr(ptr, "parameter %q: in: body is not valid in openapi 3", name)
		}
		p.In = InBody
		p.ContentType = l.firstConsumes(nil)
	case "formData":
		if l.v3 {
			return nil, schemaErr(ptr, "parameter %q: in: formData is not valid in openapi 3", name)
		}
		p.In = "formData"
	default:
		return nil, schemaErr(ptr, "parameter %q has invalid location %q", name, in)
	}

	var err error
	switch {
	case p.In == InBody:
		raw, ok := node["schema"]
		if !ok {
			return nil, schemaErr(ptr, "parameter %q declares no schema", name)
		}
		p.Schema, err = l.schema(raw, ptr+"/schema")
	case l.v3:
		if raw, ok := node["schema"]; ok {
			p.Schema, err = l.schema(raw, ptr+"/schema")
		} else if content, ok := node["content"].(map[string]any); ok {
			media := pickMedia(content)
			if mm, ok := content[media].(map[string]any); ok && mm["schema"] != nil {
				p.Schema, err = l.schema(mm["schema"], ptr+"/content/"+escapePointer(media)+"/schema")
			}
		}
		if err == nil && p.Schema == nil {
			return nil, schemaErr(ptr, "parameter %q declares no schema", name)
		}
	default:
		if _, ok := node["type"]; !ok {
			return nil, schemaErr(ptr, "parameter %q declares no type", name)
		}
		p.Schema, err = l.schema(node, ptr)
	}
	if err != nil {
		return nil, err
	}

	if ex, ok := node["example"]; ok {
		p.Example, p.HasExample = ex, true
	} else if exs, ok := node["examples"].(map[string]any); ok && len(exs) > 0 {
		keys := make([]string, 0, len(exs))
		for k := range exs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if em, ok := exs[keys[0]].(map[string]any); ok {
			if v, ok := em["value"]; ok {
				p.Example, p.HasExample = v, true
			}
		}
	}
	return p, nil
}

// foldFormData turns swagger 2.0 formData parameters into one object body.
func (l *loader) foldFormData(params []*Parameter, node map[string]any) ([]*Parameter, error) {
	var kept []*Parameter
	form := &Schema{Kind: KindObject, Properties: make(map[string]*Schema)}
	required := false
	for _, p := range params {
		if p.In != "formData" {
			if p.In == InBody {
				p.ContentType = l.firstConsumes(node)
			}
			kept = append(kept, p)
			continue
		}
		form.Properties[p.Name] = p.Schema
		if p.Required {
			form.Required = append(form.Required, p.Name)
			required = true
		}
	}
	if len(form.Properties) == 0 {
		return kept, nil
	}
	contentType := "application/x-www-form-urlencoded"
	for _, ct := range l.opConsumes(node) {
		if ct == "multipart/form-data" {
			contentType = ct
		}
	}
	return append(kept, &Parameter{
		Name:        "body",
		In:          InBody,
		Required:    required,
		Schema:      form,
		ContentType: contentType,
	}), nil
}

func (l *loader) opConsumes(node map[string]any) []string {
	if node != nil {
		if cs := stringList(node["consumes"]); len(cs) > 0 {
			return cs
		}
	}
	return l.consumes
}

func (l *loader) firstConsumes(node map[string]any) string {
	cs := l.opConsumes(node)
	for _, ct := range cs {
		if isJSONMedia(ct) {
			return ct
		}
	}
	if len(cs) > 0 {
		return cs[0]
	}
	return "application/json"
}

func (l *loader) requestBody(raw any, ptr string) (*Parameter, error) {
	node, bptr, err := l.deref(raw, ptr)
	if err != nil {
		return nil, err
	}
	content, _ := node["content"].(map[string]any)
	if len(content) == 0 {
		return nil, nil
	}
	media := pickMedia(content)
	mm, _ := content[media].(map[string]any)
	p := &Parameter{
		Name:        "body",
		In:          InBody,
		Required:    node["required"] == true,
		ContentType: media,
	}
	if mm == nil || mm["schema"] == nil {
		p.Schema = &Schema{Kind: KindPrimitive, Type: TypeAny}
		return p, nil
	}
	p.Schema, err = l.schema(mm["schema"], bptr+"/content/"+escapePointer(media)+"/schema")
	if err != nil {
		return nil, err
	}
	if ex, ok := mm["example"]; ok {
		p.Example, p.HasExample = ex, true
	}
	return p, nil
}

func (l *loader) response(raw any, ptr string, opNode map[string]any) (*Response, error) {
	node, rptr, err := l.deref(raw, ptr)
	if err != nil {
		return nil, err
	}
	r := &Response{Description: stringOf(node["description"])}
	if l.v3 {
		content, _ := node["content"].(map[string]any)
		if len(content) == 0 {
			return r, nil
		}
		media := pickMedia(content)
		r.ContentType = media
		if mm, ok := content[media].(map[string]any); ok && mm["schema"] != nil {
			r.Schema, err = l.schema(mm["schema"], rptr+"/content/"+escapePointer(media)+"/schema")
		}
		return r, err
	}
	if raw, ok := node["schema"]; ok {
		r.Schema, err = l.schema(raw, rptr+"/schema")
		produces := stringList(opNode["produces"])
		if len(produces) == 0 {
			produces = l.produces
		}
		r.ContentType = "application/json"
		if len(produces) > 0 {
			r.ContentType = produces[0]
		}
	}
	return r, err
}

// pickMedia prefers application/json, then any +json type, then the first
// media type in sorted order.
func pickMedia(content map[string]any) string {
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasPrefix(k, "application/json") {
			return k
		}
	}
	for _, k := range keys {
		if isJSONMedia(k) {
			return k
		}
	}
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func isJSONMedia(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.HasPrefix(ct, "application/json") || strings.Contains(ct, "+json")
}

func escapePointer(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func stringList(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
