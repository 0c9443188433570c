package metadata

import "testing"

func TestClassifyContentJSON(t *testing.T) {
	body := []byte(`{"name":"token"}`)
	fb, synthetic, err := classifyContent("application/json; charset=utf-8", body, "https://example.com/1.json")
	if err != nil {
		t.Fatalf("classifyContent error: %v", err)
	}
	if synthetic {
		t.Fatal("expected a real (non-synthetic) classification")
	}
	if string(fb.json) != string(body) {
		t.Fatalf("json = %q, want %q", string(fb.json), string(body))
	}
	if fb.raw != nil {
		t.Fatalf("raw = %q, want nil on a successful json parse", string(fb.raw))
	}
	if string(fb.source) != string(body) {
		t.Fatalf("source = %q, want the original response body %q", string(fb.source), string(body))
	}
}

func TestClassifyContentInvalidJSONKeepsRaw(t *testing.T) {
	body := []byte(`{not valid json`)
	fb, _, err := classifyContent("application/json", body, "https://example.com/1.json")
	if err != nil {
		t.Fatalf("classifyContent error: %v", err)
	}
	if string(fb.raw) != string(body) {
		t.Fatalf("raw = %q, want the original body %q when json parsing fails", string(fb.raw), string(body))
	}
	if fb.json != nil {
		t.Fatal("expected no parsed json body when parsing fails")
	}
}

func TestClassifyContentTextIsInvalidContent(t *testing.T) {
	_, _, err := classifyContent("text/plain", []byte("hello"), "https://example.com/1.txt")
	if err == nil {
		t.Fatal("expected an error for text/* over HTTP (step 4, unlike step 3's data-url routing, treats it as invalid content)")
	}
}

func TestClassifyContentImageSynthesizesJSONWithNoRaw(t *testing.T) {
	imgBody := []byte{0x89, 0x50, 0x4e, 0x47}
	fb, _, err := classifyContent("image/png", imgBody, "https://example.com/1.png")
	if err != nil {
		t.Fatalf("classifyContent error: %v", err)
	}
	want := `{"image":"https://example.com/1.png"}`
	if string(fb.json) != want {
		t.Fatalf("json = %q, want %q", string(fb.json), want)
	}
	if fb.raw != nil {
		t.Fatalf("raw = %v, want nil for image content (spec §4.7 step 4)", fb.raw)
	}
	if string(fb.source) != string(imgBody) {
		t.Fatalf("source = %v, want the actual image bytes so hashing content-addresses the response, not the synthetic json", fb.source)
	}
}

func TestClassifyContentUnsupported(t *testing.T) {
	_, _, err := classifyContent("application/octet-stream", []byte{0x00, 0x01}, "https://example.com/1.bin")
	if err == nil {
		t.Fatal("expected an error for an unsupported content type")
	}
}

func TestClassifyTransportError(t *testing.T) {
	cases := []struct {
		msg      string
		wantOK   bool
		wantWord string
	}{
		{"dial tcp: lookup example.com: no such host", true, "dns"},
		{"dial tcp 127.0.0.1:80: connect: connection refused", true, "tcp connect"},
		{"read tcp 127.0.0.1:80: connection reset by peer", true, "connection reset"},
		{"unexpected EOF", true, "unexpected EOF"},
		{"some unrelated transport failure", false, ""},
	}
	for _, tc := range cases {
		msg, ok := classifyTransportError(fakeErr(tc.msg))
		if ok != tc.wantOK {
			t.Fatalf("classifyTransportError(%q) ok = %v, want %v", tc.msg, ok, tc.wantOK)
		}
		if ok && msg == "" {
			t.Fatalf("classifyTransportError(%q) returned empty message", tc.msg)
		}
	}
}

type fakeErrType string

func (e fakeErrType) Error() string { return string(e) }

func fakeErr(s string) error { return fakeErrType(s) }
