package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/y0f/apiprobe/internal/run"
)

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Name     string       `xml:"name,attr,omitempty"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Time     string       `xml:"time,attr,omitempty"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	XMLName   xml.Name    `xml:"testsuite"`
	Name      string      `xml:"name,attr"`
	Tests     int         `xml:"tests,attr"`
	Failures  int         `xml:"failures,attr"`
	Errors    int         `xml:"errors,attr"`
	Skipped   int         `xml:"skipped,attr"`
	Time      string      `xml:"time,attr,omitempty"`
	Timestamp string      `xml:"timestamp,attr,omitempty"`
	Cases     []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr,omitempty"`
	Time      string        `xml:"time,attr,omitempty"`
	Failure   *junitMessage `xml:"failure"`
	Error     *junitMessage `xml:"error"`
	Skipped   *junitMessage `xml:"skipped"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Body    string `xml:",chardata"`
}

// WriteJUnit renders the report with one testsuite per operation.
func WriteJUnit(w io.Writer, r *Report) error {
	doc := junitSuites{
		Name: strings.TrimSpace(r.Contract + " " + r.ContractVersion),
		Time: seconds(r.DurationMs),
	}

	byOp := make(map[string]*junitSuite)
	var order []string
	for _, c := range r.Cases {
		s, ok := byOp[c.Operation]
		if !ok {
			s = &junitSuite{Name: c.Operation}
			if !r.StartedAt.IsZero() {
				s.Timestamp = r.StartedAt.UTC().Format(time.RFC3339)
			}
			byOp[c.Operation] = s
			order = append(order, c.Operation)
		}
		s.Cases = append(s.Cases, junitCaseOf(c))
		s.Tests++
		switch c.Status {
		case run.Failed:
			s.Failures++
		case run.Errored:
			s.Errors++
		case run.Skipped:
			s.Skipped++
		}
	}

	for _, op := range order {
		s := byOp[op]
		var ms int64
		for _, c := range r.Cases {
			if c.Operation == op {
				ms += c.DurationMs
			}
		}
		s.Time = seconds(ms)
		doc.Tests += s.Tests
		doc.Failures += s.Failures
		doc.Errors += s.Errors
		doc.Skipped += s.Skipped
		doc.Suites = append(doc.Suites, *s)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write junit: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode junit: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("write junit: %w", err)
	}
	return nil
}

func junitCaseOf(c Case) junitCase {
	jc := junitCase{
		Name:      c.Name,
		Classname: c.Operation,
		Time:      seconds(c.DurationMs),
	}
	if c.URL != "" {
		jc.SystemOut = fmt.Sprintf("%s %s -> %d", c.Method, c.URL, c.StatusCode)
	}
	switch c.Status {
	case run.Failed:
		jc.Failure = &junitMessage{Message: c.Explanation, Type: "assertion", Body: renderDiff(c.Diff)}
	case run.Errored:
		jc.Error = &junitMessage{Message: c.Explanation, Type: "transport"}
	case run.Skipped:
		jc.Skipped = &junitMessage{Message: c.Explanation}
	}
	return jc
}

func renderDiff(diff []run.Mismatch) string {
	var sb strings.Builder
	for _, m := range diff {
		fmt.Fprintf(&sb, "%s: expected %s, got %s\n", m.Path, m.Expected, m.Actual)
	}
	return sb.String()
}

func seconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}

// Suite is one parsed testsuite element.
type Suite struct {
	Name      string
	Timestamp time.Time
	Duration  time.Duration
	Cases     []SuiteCase
}

type SuiteCase struct {
	Name     string
	Status   run.VerdictStatus
	Message  string
	Duration time.Duration
}

// Counts tallies the suite from its case elements; the suite attributes
// are not trusted.
func (s Suite) Counts() run.Counts {
	var c run.Counts
	for _, tc := range s.Cases {
		c.Add(tc.Status)
	}
	return c
}

// Status is failed when any case failed or errored, passed when every case
// passed, and mixed otherwise.
func (s Suite) Status() string {
	c := s.Counts()
	switch {
	case c.Failed > 0 || c.Errored > 0:
		return "failed"
	case c.Passed == c.Total:
		return "passed"
	default:
		return "mixed"
	}
}

// ParseJUnit reads a testsuites document or a bare testsuite.
func ParseJUnit(rd io.Reader) ([]Suite, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("read junit: %w", err)
	}

	var root struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse junit: %w", err)
	}

	var raw []junitSuite
	switch root.XMLName.Local {
	case "testsuites":
		var doc junitSuites
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse junit: %w", err)
		}
		raw = doc.Suites
	case "testsuite":
		var s junitSuite
		if err := xml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse junit: %w", err)
		}
		raw = []junitSuite{s}
	default:
		return nil, fmt.Errorf("parse junit: unexpected root element <%s>", root.XMLName.Local)
	}

	suites := make([]Suite, 0, len(raw))
	for _, js := range raw {
		s := Suite{Name: js.Name, Duration: parseSeconds(js.Time)}
		if ts, err := time.Parse(time.RFC3339, js.Timestamp); err == nil {
			s.Timestamp = ts
		} else if ts, err := time.Parse("2006-01-02T15:04:05", js.Timestamp); err == nil {
			s.Timestamp = ts.UTC()
		}
		for _, jc := range js.Cases {
			s.Cases = append(s.Cases, suiteCaseOf(jc))
		}
		suites = append(suites, s)
	}
	return suites, nil
}

func suiteCaseOf(jc junitCase) SuiteCase {
	name := jc.Name
	if jc.Classname != "" && !strings.HasPrefix(name, jc.Classname) {
		name = jc.Classname + "." + name
	}
	sc := SuiteCase{Name: name, Status: run.Passed, Duration: parseSeconds(jc.Time)}
	switch {
	case jc.Skipped != nil:
		sc.Status = run.Skipped
		sc.Message = jc.Skipped.text()
	case jc.Error != nil:
		sc.Status = run.Errored
		sc.Message = jc.Error.text()
	case jc.Failure != nil:
		sc.Status = run.Failed
		sc.Message = jc.Failure.text()
	}
	return sc
}

func (m *junitMessage) text() string {
	if m.Message != "" {
		return m.Message
	}
	return strings.TrimSpace(m.Body)
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// FromJUnit turns ingested suites into a report with source junit. Case ids
// are "suite/name", numbered when a suite repeats a name.
func FromJUnit(name string, suites []Suite) *Report {
	rep := &Report{
		RunID:    uuid.NewString(),
		Source:   SourceJUnit,
		Contract: name,
		Status:   run.StatusCompleted,
	}

	var total time.Duration
	seen := make(map[string]int)
	for _, s := range suites {
		if rep.StartedAt.IsZero() || (!s.Timestamp.IsZero() && s.Timestamp.Before(rep.StartedAt)) {
			rep.StartedAt = s.Timestamp
		}
		total += s.Duration
		for _, sc := range s.Cases {
			id := s.Name + "/" + sc.Name
			seen[id]++
			if n := seen[id]; n > 1 {
				id = fmt.Sprintf("%s#%d", id, n)
			}
			rep.Cases = append(rep.Cases, Case{
				ID:          id,
				Name:        sc.Name,
				Operation:   s.Name,
				Status:      sc.Status,
				Explanation: sc.Message,
				DurationMs:  sc.Duration.Milliseconds(),
			})
		}
	}
	if rep.StartedAt.IsZero() {
		rep.StartedAt = time.Now().UTC()
	}
	rep.EndedAt = rep.StartedAt.Add(total)
	rep.DurationMs = total.Milliseconds()
	rep.sortCases()
	rep.Recount()
	return rep
}
