// notice.go encodes Reports as Hoptoad v2 XML notices and decodes them back.

package hoptoad

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Notice protocol constants.
const (
	NoticeVersion   = "2.0"
	NotifierName    = "Go Hoptoad Notifier"
	NotifierVersion = "1.0.0"
	NotifierURL     = "https://github.com/strongdm/hoptoad-notifier"

	// ContentType is the media type of an encoded notice.
	ContentType = "text/xml; charset=utf-8"

	xmlDeclaration = "<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>"
	causedByPrefix = "### CAUSED BY ###: "
)

// cgiVars are the environment tags written to every notice, in order.
var cgiVars = []string{TagDevice, TagPlatformVersion, TagAppVersion}

// Identity is the per-registration data a notice carries besides the Report.
type Identity struct {
	APIKey          string
	EnvironmentName string
}

// EncodeNotice renders r as a complete notice document.
func EncodeNotice(r Report, id Identity) ([]byte, error) {
	if id.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	w := &xmlWriter{}
	w.buf.WriteString(xmlDeclaration)

	w.start("notice")
	w.attr("version", NoticeVersion)
	w.element("api-key", id.APIKey)

	w.start("notifier")
	w.element("name", NotifierName)
	w.element("version", NotifierVersion)
	w.element("url", NotifierURL)
	w.end()

	w.start("error")
	w.element("class", r.ErrorType)
	w.element("message", r.Message)
	w.start("backtrace")
	for _, cause := range r.CausalChain {
		for _, f := range cause.Frames {
			w.start("line")
			w.attr("method", f.Symbol)
			w.attr("file", f.File)
			w.attr("number", formatLine(f.Line))
			w.end()
		}
		if cause.CausedBy != "" {
			w.start("line")
			w.attr("file", causedByPrefix+cause.CausedBy)
			w.attr("number", "")
			w.end()
		}
	}
	w.end() // backtrace
	w.end() // error

	w.start("request")
	w.element("url", r.Request.URL)
	w.element("component", r.Request.Component)
	w.element("action", r.Request.Action)
	w.start("cgi-data")
	for _, key := range cgiVars {
		value, ok := r.Environment[key]
		if !ok || value == "" {
			value = Unknown
		}
		w.start("var")
		w.attr("key", key)
		w.text(value)
		w.end()
	}
	w.end() // cgi-data
	w.end() // request

	w.start("server-environment")
	w.element("environment-name", id.EnvironmentName)
	w.end()

	w.end() // notice

	if len(w.stack) != 0 {
		return nil, fmt.Errorf("encode notice: %d unclosed elements", len(w.stack))
	}
	return w.buf.Bytes(), nil
}

func formatLine(line *int) string {
	if line == nil {
		return ""
	}
	return strconv.Itoa(*line)
}

// xmlWriter is a minimal streaming XML writer. Elements without content are
// written in self-closing form.
type xmlWriter struct {
	buf     bytes.Buffer
	stack   []string
	pending bool // start tag written but not yet terminated
}

func (w *xmlWriter) start(name string) {
	w.terminate()
	w.buf.WriteByte('<')
	w.buf.WriteString(name)
	w.stack = append(w.stack, name)
	w.pending = true
}

func (w *xmlWriter) attr(name, value string) {
	w.buf.WriteByte(' ')
	w.buf.WriteString(name)
	w.buf.WriteString(`="`)
	escape(&w.buf, value)
	w.buf.WriteByte('"')
}

func (w *xmlWriter) text(s string) {
	if s == "" {
		return
	}
	w.terminate()
	escape(&w.buf, s)
}

func (w *xmlWriter) end() {
	name := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	if w.pending {
		w.buf.WriteString("/>")
		w.pending = false
		return
	}
	w.buf.WriteString("</")
	w.buf.WriteString(name)
	w.buf.WriteByte('>')
}

func (w *xmlWriter) element(name, text string) {
	w.start(name)
	w.text(text)
	w.end()
}

func (w *xmlWriter) terminate() {
	if w.pending {
		w.buf.WriteByte('>')
		w.pending = false
	}
}

// escape writes s with XML escaping; invalid characters become U+FFFD.
func escape(buf *bytes.Buffer, s string) {
	// Writes to a bytes.Buffer cannot fail.
	_ = xml.EscapeText(buf, []byte(s))
}

// Wire structures used for decoding.
type xmlNotice struct {
	XMLName  xml.Name `xml:"notice"`
	Version  string   `xml:"version,attr"`
	APIKey   string   `xml:"api-key"`
	Notifier struct {
		Name    string `xml:"name"`
		Version string `xml:"version"`
		URL     string `xml:"url"`
	} `xml:"notifier"`
	Error struct {
		Class   string    `xml:"class"`
		Message string    `xml:"message"`
		Lines   []xmlLine `xml:"backtrace>line"`
	} `xml:"error"`
	Request struct {
		URL       string   `xml:"url"`
		Component string   `xml:"component"`
		Action    string   `xml:"action"`
		Vars      []xmlVar `xml:"cgi-data>var"`
	} `xml:"request"`
	EnvironmentName string `xml:"server-environment>environment-name"`
}

type xmlLine struct {
	Method string `xml:"method,attr"`
	File   string `xml:"file,attr"`
	Number string `xml:"number,attr"`
}

type xmlVar struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// DecodeNotice parses a notice produced by EncodeNotice.
// ID and CapturedAt are not part of the notice and stay zero.
func DecodeNotice(data []byte) (Report, Identity, error) {
	var n xmlNotice
	if err := xml.Unmarshal(data, &n); err != nil {
		return Report{}, Identity{}, fmt.Errorf("decode notice: %w", err)
	}
	if n.Version != NoticeVersion {
		return Report{}, Identity{}, fmt.Errorf("decode notice: unsupported version %q", n.Version)
	}

	r := Report{
		ErrorType: n.Error.Class,
		Message:   n.Error.Message,
		Request: Request{
			URL:       n.Request.URL,
			Component: n.Request.Component,
			Action:    n.Request.Action,
		},
	}

	for _, line := range n.Error.Lines {
		if len(r.CausalChain) == 0 {
			r.CausalChain = append(r.CausalChain, CauseFrame{})
		}
		cur := &r.CausalChain[len(r.CausalChain)-1]

		if desc, ok := strings.CutPrefix(line.File, causedByPrefix); ok && line.Method == "" {
			cur.CausedBy = desc
			r.CausalChain = append(r.CausalChain, CauseFrame{})
			continue
		}

		frame := StackFrame{Symbol: line.Method, File: line.File}
		if line.Number != "" {
			if num, err := strconv.Atoi(line.Number); err == nil {
				frame.Line = Line(num)
			}
		}
		cur.Frames = append(cur.Frames, frame)
	}

	if len(n.Request.Vars) > 0 {
		r.Environment = make(map[string]string, len(n.Request.Vars))
		for _, v := range n.Request.Vars {
			r.Environment[v.Key] = v.Value
		}
	}

	id := Identity{APIKey: n.APIKey, EnvironmentName: n.EnvironmentName}
	return r, id, nil
}
