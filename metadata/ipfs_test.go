package metadata

import "testing"

// Ported from ipfs.rs's ipfs_cid_extraction/valid_ipfs_capturing cases.
func TestParseIpfsPath(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantOK  bool
		wantStr string
	}{
		{"cid v1 bare", "bafybeia737e3bpzusnxxn36alotv2fwviezjm44e5rx4fnuvmpfgcfh3ha", true, "bafybeia737e3bpzusnxxn36alotv2fwviezjm44e5rx4fnuvmpfgcfh3ha"},
		{"cid v0 bare", "QmZxdRjNXwCdpMBzSHVTFownBREGxcFnhmw6D7FHomGYCF", true, "QmZxdRjNXwCdpMBzSHVTFownBREGxcFnhmw6D7FHomGYCF"},
		{"ipfs scheme with index", "ipfs://Qmf2AR2YB4H32zL7muveWbs8GHp94udeAv5uZVX5wQ8WDL/2805", true, "Qmf2AR2YB4H32zL7muveWbs8GHp94udeAv5uZVX5wQ8WDL/2805"},
		{"ipfs scheme with json", "ipfs://QmdXP2KNU2cuqcJBi6Uaf5bhnu2udmrbtJDfm3dMoewzNu/1193.json", true, "QmdXP2KNU2cuqcJBi6Uaf5bhnu2udmrbtJDfm3dMoewzNu/1193.json"},
		{"nftstorage domain-embedded cid", "https://bafybeia737e3bpzusnxxn36alotv2fwviezjm44e5rx4fnuvmpfgcfh3ha.ipfs.nftstorage.link/40.json", true, "bafybeia737e3bpzusnxxn36alotv2fwviezjm44e5rx4fnuvmpfgcfh3ha/40.json"},
		{"mypinata gateway path", "https://cryptodesigns.mypinata.cloud/ipfs/Qmd2FrrBfZbzGdF1M2CNGkqxgWkzZK1odkAT82Lr4mbca6/1146.json", true, "Qmd2FrrBfZbzGdF1M2CNGkqxgWkzZK1odkAT82Lr4mbca6/1146.json"},
		{"cloudflare gateway no ext", "https://cloudflare-ipfs.com/ipfs/QmQVHMRMhVGqQH4vPDgxK2Y3rnToQSVbbhbyTq7qnVbgoA", true, "QmQVHMRMhVGqQH4vPDgxK2Y3rnToQSVbbhbyTq7qnVbgoA"},
		{"dweb.link subdomain no ext", "https://QmQVHMRMhVGqQH4vPDgxK2Y3rnToQSVbbhbyTq7qnVbgoA.ipfs.dweb.link", true, "QmQVHMRMhVGqQH4vPDgxK2Y3rnToQSVbbhbyTq7qnVbgoA"},
		{"trailing file", "https://ipfs.io/ipfs/bafybeifj7sronkwlpvtkcguq3rztzmr3lun5zoom63vpl2czqukejqbfky/0.png", true, "bafybeifj7sronkwlpvtkcguq3rztzmr3lun5zoom63vpl2czqukejqbfky/0.png"},
		{"trailing multi-segment path", "https://ipfs.io/ipfs/bafybeig6ccro733era5le55xzezlq6ho7xab24kmxccwpds6igeqsqrrrm/output/mint/762.png", true, "bafybeig6ccro733era5le55xzezlq6ho7xab24kmxccwpds6igeqsqrrrm/output/mint/762.png"},
		{"fleek gateway no ext", "https://ipfs.fleek.co/ipfs/QmZQV5YXKakh7aKqSk3MVARNu8eaxws9KNc6EeStQTYt5w", true, "QmZQV5YXKakh7aKqSk3MVARNu8eaxws9KNc6EeStQTYt5w"},
		{"invalid cid-shaped string", "bVJoZEdFNmFXMWhaMlV2YzNabkszaHRiRHRpWVhObE5qUXNVRWhPTWxwNVFqTmhWMUl3WVVRd2JrMXFhM2RLZVVKdldsZHNibUZJVVRsS2VsVjNUVU5qWjJSdGJHeGtNRXAyWlVRd2JrMURRWGRKUkVrMVRVTkJNVTFFUVc", false, ""},
		{"plain json filename, no cid", "1234.json", false, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path, ok := parseIpfsPath(tc.input)
			if ok != tc.wantOK {
				t.Fatalf("parseIpfsPath(%q) ok = %v, want %v", tc.input, ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if got := path.String(); got != tc.wantStr {
				t.Fatalf("parseIpfsPath(%q).String() = %q, want %q", tc.input, got, tc.wantStr)
			}
		})
	}
}

func TestIpfsPathURL(t *testing.T) {
	path, ok := parseIpfsPath("ipfs://QmdXP2KNU2cuqcJBi6Uaf5bhnu2udmrbtJDfm3dMoewzNu/1193.json")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	want := "https://ipfs.io/ipfs/QmdXP2KNU2cuqcJBi6Uaf5bhnu2udmrbtJDfm3dMoewzNu/1193.json"
	if got := path.URL("https://ipfs.io/ipfs/"); got != want {
		t.Fatalf("URL() = %q, want %q", got, want)
	}
}
