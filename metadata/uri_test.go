package metadata

import "testing"

// Ported from data_url.rs's UriType::from_str test cases.
func TestClassifyURIArweave(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ar://wEBkrd6fpeOCnimnE0TxYPP8Z9hdiPkQe1RwQNgLszk", "https://arweave.net/wEBkrd6fpeOCnimnE0TxYPP8Z9hdiPkQe1RwQNgLszk"},
		{"ar://f1VFl6RQzco_hF1zsc_MvRYjW8b7B3PDdau0_YZPSZc/500", "https://arweave.net/f1VFl6RQzco_hF1zsc_MvRYjW8b7B3PDdau0_YZPSZc/500"},
		{"ar://f1VFl6RQzco_hF1zsc_MvRYjW8b7B3PDdau0_YZPSZc/500.json", "https://arweave.net/f1VFl6RQzco_hF1zsc_MvRYjW8b7B3PDdau0_YZPSZc/500.json"},
	}
	for _, tc := range cases {
		got, err := classifyURI(tc.in)
		if err != nil {
			t.Fatalf("classifyURI(%q) error: %v", tc.in, err)
		}
		if got.kind != uriKindURL {
			t.Fatalf("classifyURI(%q) kind = %v, want uriKindURL", tc.in, got.kind)
		}
		if got.url != tc.want {
			t.Fatalf("classifyURI(%q).url = %q, want %q", tc.in, got.url, tc.want)
		}
	}
}

func TestClassifyURIJSON(t *testing.T) {
	data := `{"name": "WHO404 NFT#1","external_url":"https://who404.wtf/"}`
	got, err := classifyURI(data)
	if err != nil {
		t.Fatalf("classifyURI error: %v", err)
	}
	if got.kind != uriKindJSON {
		t.Fatalf("kind = %v, want uriKindJSON", got.kind)
	}
	if string(got.json) != data {
		t.Fatalf("json = %q, want %q", string(got.json), data)
	}
}

func TestClassifyURIInvalid(t *testing.T) {
	_, err := classifyURI("1234.json")
	if err == nil {
		t.Fatal("expected an error for a bare relative path that is neither a url, ipfs path, nor json")
	}
}

func TestClassifyURIData(t *testing.T) {
	data := `data:application/json;utf8,{"name":"Good number 1"}`
	got, err := classifyURI(data)
	if err != nil {
		t.Fatalf("classifyURI error: %v", err)
	}
	if got.kind != uriKindData {
		t.Fatalf("kind = %v, want uriKindData", got.kind)
	}
	if got.data != data {
		t.Fatalf("data = %q, want %q", got.data, data)
	}
}

func TestClassifyURIIPFS(t *testing.T) {
	got, err := classifyURI("ipfs://QmdXP2KNU2cuqcJBi6Uaf5bhnu2udmrbtJDfm3dMoewzNu/1193.json")
	if err != nil {
		t.Fatalf("classifyURI error: %v", err)
	}
	if got.kind != uriKindIPFS {
		t.Fatalf("kind = %v, want uriKindIPFS", got.kind)
	}
	if got.ipfs.String() != "QmdXP2KNU2cuqcJBi6Uaf5bhnu2udmrbtJDfm3dMoewzNu/1193.json" {
		t.Fatalf("ipfs path = %q", got.ipfs.String())
	}
}

func TestClassifyURIPlainURL(t *testing.T) {
	got, err := classifyURI("https://api.example.com/metadata/1.json")
	if err != nil {
		t.Fatalf("classifyURI error: %v", err)
	}
	if got.kind != uriKindURL {
		t.Fatalf("kind = %v, want uriKindURL", got.kind)
	}
	if got.url != "https://api.example.com/metadata/1.json" {
		t.Fatalf("url = %q", got.url)
	}
}
