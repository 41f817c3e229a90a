package hoptoad

import (
	"encoding/xml"
	"errors"
	"strings"
	"testing"
)

func sampleReport() Report {
	return Report{
		ErrorType: "*net.OpError",
		Message:   "[1.4.0] dial tcp: connection refused",
		CausalChain: []CauseFrame{
			{
				Frames: []StackFrame{
					{Symbol: "main.dial", File: "/app/main.go", Line: Line(42)},
					{Symbol: "main.main", File: "/app/main.go", Line: Line(10)},
				},
				CausedBy: "*os.SyscallError: connect: connection refused",
			},
			{
				Frames: []StackFrame{
					{Symbol: "syscall.connect", File: "", Line: nil},
					{Symbol: "net.(*netFD).connect", File: "/go/src/net/fd_unix.go", Line: Line(0)},
				},
			},
		},
		Environment: map[string]string{
			TagDevice:          "ThinkPad X1",
			TagPlatformVersion: "linux 6.1.0",
			TagAppVersion:      "1.4.0",
		},
	}
}

func TestEncodeNotice_RoundTrip(t *testing.T) {
	r := sampleReport()
	data, err := EncodeNotice(r, Identity{APIKey: "abc123", EnvironmentName: "production"})
	if err != nil {
		t.Fatalf("EncodeNotice: %v", err)
	}

	got, id, err := DecodeNotice(data)
	if err != nil {
		t.Fatalf("DecodeNotice: %v\n%s", err, data)
	}

	if id.APIKey != "abc123" || id.EnvironmentName != "production" {
		t.Errorf("identity = %+v", id)
	}
	if got.ErrorType != r.ErrorType {
		t.Errorf("ErrorType = %q, want %q", got.ErrorType, r.ErrorType)
	}
	if got.Message != r.Message {
		t.Errorf("Message = %q, want %q", got.Message, r.Message)
	}

	wantFrames, gotFrames := r.Frames(), got.Frames()
	if len(gotFrames) != len(wantFrames) {
		t.Fatalf("got %d frames, want %d", len(gotFrames), len(wantFrames))
	}
	for i := range wantFrames {
		w, g := wantFrames[i], gotFrames[i]
		if g.Symbol != w.Symbol || g.File != w.File || formatLine(g.Line) != formatLine(w.Line) {
			t.Errorf("frame %d = %+v (line %s), want %+v (line %s)",
				i, g, formatLine(g.Line), w, formatLine(w.Line))
		}
	}

	if len(got.CausalChain) != 2 {
		t.Fatalf("got %d causes, want 2", len(got.CausalChain))
	}
	if got.CausalChain[0].CausedBy != r.CausalChain[0].CausedBy {
		t.Errorf("CausedBy = %q, want %q", got.CausalChain[0].CausedBy, r.CausalChain[0].CausedBy)
	}
	if got.Environment[TagDevice] != "ThinkPad X1" {
		t.Errorf("Device = %q", got.Environment[TagDevice])
	}
	if got.Request != (Request{}) {
		t.Errorf("Request = %+v, want empty", got.Request)
	}
}

func TestEncodeNotice_SingleFrameLayout(t *testing.T) {
	r := Report{
		ErrorType: "*hoptoad.framedError",
		Message:   "[1.0] boom",
		CausalChain: []CauseFrame{{
			Frames: []StackFrame{{Symbol: "Foo.bar", File: "Foo.java", Line: Line(42)}},
		}},
	}
	data, err := EncodeNotice(r, Identity{APIKey: "abc123", EnvironmentName: "production"})
	if err != nil {
		t.Fatalf("EncodeNotice: %v", err)
	}
	doc := string(data)

	for _, want := range []string{
		"<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>",
		`<notice version="2.0">`,
		"<api-key>abc123</api-key>",
		"<name>" + NotifierName + "</name>",
		"<version>" + NotifierVersion + "</version>",
		"<message>[1.0] boom</message>",
		`<backtrace><line method="Foo.bar" file="Foo.java" number="42"/></backtrace>`,
		"<request><url/><component/><action/><cgi-data>",
		`<var key="Device">unknown</var>`,
		`<var key="Platform Version">unknown</var>`,
		`<var key="App Version">unknown</var>`,
		"<server-environment><environment-name>production</environment-name></server-environment>",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("notice missing %q\n%s", want, doc)
		}
	}
	if !strings.HasPrefix(doc, xmlDeclaration+"<notice") {
		t.Errorf("notice does not start with the declaration: %s", doc)
	}
	if !strings.HasSuffix(doc, "</notice>") {
		t.Errorf("notice does not end with </notice>: %s", doc)
	}
}

func TestEncodeNotice_UnknownLineIsEmpty(t *testing.T) {
	r := Report{
		ErrorType:   "x",
		Message:     "[1.0] x",
		CausalChain: []CauseFrame{{Frames: []StackFrame{{Symbol: "a", Line: nil}, {Symbol: "b", Line: Line(0)}}}},
	}
	data, err := EncodeNotice(r, Identity{APIKey: "k"})
	if err != nil {
		t.Fatalf("EncodeNotice: %v", err)
	}
	doc := string(data)
	if !strings.Contains(doc, `<line method="a" file="" number=""/>`) {
		t.Errorf("unknown line not empty:\n%s", doc)
	}
	if !strings.Contains(doc, `<line method="b" file="" number="0"/>`) {
		t.Errorf("line zero not preserved:\n%s", doc)
	}

	got, _, err := DecodeNotice(data)
	if err != nil {
		t.Fatalf("DecodeNotice: %v", err)
	}
	frames := got.Frames()
	if frames[0].Line != nil {
		t.Errorf("unknown line decoded as %d", *frames[0].Line)
	}
	if frames[1].Line == nil || *frames[1].Line != 0 {
		t.Errorf("line zero decoded as %v", frames[1].Line)
	}
}

func TestEncodeNotice_CausedBySeparator(t *testing.T) {
	data, err := EncodeNotice(sampleReport(), Identity{APIKey: "k"})
	if err != nil {
		t.Fatalf("EncodeNotice: %v", err)
	}
	doc := string(data)

	sep := `<line file="### CAUSED BY ###: *os.SyscallError: connect: connection refused" number=""/>`
	i := strings.Index(doc, sep)
	if i < 0 {
		t.Fatalf("separator missing:\n%s", doc)
	}
	if strings.Index(doc, `method="main.main"`) > i {
		t.Error("outer frames must precede the separator")
	}
	if strings.Index(doc, `method="syscall.connect"`) < i {
		t.Error("cause frames must follow the separator")
	}
}

func TestEncodeNotice_EscapesContent(t *testing.T) {
	r := Report{
		ErrorType: "<T>",
		Message:   `[1.0] bad "input" & <tags>` + "\x00",
		CausalChain: []CauseFrame{{Frames: []StackFrame{
			{Symbol: `main.(*T[int]).run"x"`, File: "/a&b.go", Line: Line(1)},
		}}},
		Request: Request{URL: "http://x/?a=1&b=2"},
	}
	data, err := EncodeNotice(r, Identity{APIKey: "k<>"})
	if err != nil {
		t.Fatalf("EncodeNotice: %v", err)
	}

	var parsed struct {
		XMLName xml.Name `xml:"notice"`
	}
	if err := xml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("notice is not well-formed: %v\n%s", err, data)
	}

	got, id, err := DecodeNotice(data)
	if err != nil {
		t.Fatalf("DecodeNotice: %v", err)
	}
	if id.APIKey != "k<>" {
		t.Errorf("APIKey = %q", id.APIKey)
	}
	if got.ErrorType != "<T>" {
		t.Errorf("ErrorType = %q", got.ErrorType)
	}
	if !strings.HasPrefix(got.Message, `[1.0] bad "input" & <tags>`) {
		t.Errorf("Message = %q", got.Message)
	}
	if got.Frames()[0].Symbol != `main.(*T[int]).run"x"` {
		t.Errorf("Symbol = %q", got.Frames()[0].Symbol)
	}
	if got.Request.URL != "http://x/?a=1&b=2" {
		t.Errorf("URL = %q", got.Request.URL)
	}
}

func TestEncodeNotice_OnlyFixedCGIVars(t *testing.T) {
	r := sampleReport()
	r.Environment["Host Name"] = "build-7"
	r.Environment["Memory Bytes"] = "1024"

	data, err := EncodeNotice(r, Identity{APIKey: "k"})
	if err != nil {
		t.Fatalf("EncodeNotice: %v", err)
	}
	if n := strings.Count(string(data), "<var "); n != 3 {
		t.Errorf("got %d cgi vars, want 3\n%s", n, data)
	}
	if strings.Contains(string(data), "build-7") {
		t.Error("extra tags must not be written to the notice")
	}
}

func TestEncodeNotice_MissingAPIKey(t *testing.T) {
	_, err := EncodeNotice(sampleReport(), Identity{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestEncodeNotice_Deterministic(t *testing.T) {
	id := Identity{APIKey: "k", EnvironmentName: "staging"}
	a, err := EncodeNotice(sampleReport(), id)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeNotice(sampleReport(), id)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("encoding the same report twice produced different documents")
	}
}

func TestDecodeNotice_NoBacktrace(t *testing.T) {
	data, err := EncodeNotice(Report{ErrorType: "x", Message: "[1] x"}, Identity{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<backtrace/>") {
		t.Errorf("empty backtrace should self-close:\n%s", data)
	}
	got, _, err := DecodeNotice(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.CausalChain != nil {
		t.Errorf("CausalChain = %+v, want nil", got.CausalChain)
	}
}

func TestDecodeNotice_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"truncated", `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?><notice version="2.0"><api-key>k`},
		{"wrong root", `<error/>`},
		{"wrong version", `<notice version="1.0"/>`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeNotice([]byte(tt.data)); err == nil {
				t.Error("DecodeNotice returned nil error")
			}
		})
	}
}
