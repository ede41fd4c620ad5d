package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/y0f/apiprobe/internal/contract"
	"github.com/y0f/apiprobe/internal/synth"
)

// joinTarget returns the URL prefix every case path is appended to. The
// contract base path is only used when the base URL carries no path.
func joinTarget(baseURL, basePath string) (*url.URL, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if u.Path == "" {
		u.Path = strings.TrimRight(basePath, "/")
	}
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func (e *Executor) buildRequest(ctx context.Context, base *url.URL, tc *synth.TestCase) (*http.Request, error) {
	op := tc.Operation
	path := op.Path
	query := url.Values{}
	header := http.Header{}
	var (
		cookies     []*http.Cookie
		body        io.Reader
		contentType string
	)

	for _, v := range tc.Values {
		switch v.In {
		case contract.InPath:
			path = strings.ReplaceAll(path, "{"+v.Name+"}", url.PathEscape(scalar(v.Value)))
		case contract.InQuery:
			for _, s := range list(v.Value) {
				query.Add(v.Name, s)
			}
		case contract.InHeader:
			header.Set(v.Name, strings.Join(list(v.Value), ","))
		case contract.InCookie:
			cookies = append(cookies, &http.Cookie{Name: v.Name, Value: scalar(v.Value)})
		case contract.InBody:
			ct := "application/json"
			if p := op.Body(); p != nil && p.ContentType != "" {
				ct = p.ContentType
			}
			data, finalCT, err := encodeBody(ct, v.Value)
			if err != nil {
				return nil, fmt.Errorf("encode body: %w", err)
			}
			body, contentType = bytes.NewReader(data), finalCT
		}
	}

	u := *base
	u.RawPath = base.EscapedPath() + path
	unescaped, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return nil, fmt.Errorf("build path: %w", err)
	}
	u.Path = unescaped
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, op.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, */*;q=0.5")
	}
	req.Header.Set("User-Agent", "apiprobe")
	return req, nil
}

func encodeBody(contentType string, v any) ([]byte, string, error) {
	media, _, _ := mime.ParseMediaType(contentType)
	switch {
	case media == "application/x-www-form-urlencoded":
		form := url.Values{}
		m, _ := v.(map[string]any)
		for _, k := range sortedKeys(m) {
			for _, s := range list(m[k]) {
				form.Add(k, s)
			}
		}
		return []byte(form.Encode()), contentType, nil
	case media == "multipart/form-data":
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		m, _ := v.(map[string]any)
		for _, k := range sortedKeys(m) {
			for _, s := range list(m[k]) {
				if err := w.WriteField(k, s); err != nil {
					return nil, "", err
				}
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	case strings.HasPrefix(media, "text/"):
		if s, ok := v.(string); ok {
			return []byte(s), contentType, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scalar renders a value the way it travels in a path, header or cookie.
func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// list expands arrays into repeated values.
func list(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{scalar(v)}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, scalar(item))
	}
	return out
}
