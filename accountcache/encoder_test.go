package accountcache

import "testing"

func TestRecordEncodingRoundTrip(t *testing.T) {
	in := testRecord("h", 42)
	data, err := EncodeRecord(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, version, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if version != recordFormatVersionCurrent || *out != *in {
		t.Fatalf("round trip mismatch: v%d %+v", version, out)
	}
}

func TestDecodeRecordRejectsTruncated(t *testing.T) {
	data, err := EncodeRecord(testRecord("h", 1))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, n := range []int{0, 1, 3, len(data) - 1} {
		if _, _, err := DecodeRecord(data[:n]); err == nil {
			t.Fatalf("expected error for %d bytes", n)
		}
	}
	if _, _, err := DecodeRecord(append(data, 0)); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
}

func TestDecodeTokenRejectsUnknownVersion(t *testing.T) {
	if _, err := DecodeToken([]byte{7}); err == nil {
		t.Fatal("expected version error")
	}
}

func TestScopeKeyNormalises(t *testing.T) {
	a := ScopeKey([]string{"User.Read", "openid", "user.read", " "})
	b := ScopeKey([]string{"OPENID", "User.Read"})
	if a != b || a != "openid user.read" {
		t.Fatalf("unexpected scope keys %q %q", a, b)
	}
}

func FuzzDecodeRecord(f *testing.F) {
	seed, _ := EncodeRecord(testRecord("seed", 1))
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{1, 0xff, 0xff})
	f.Fuzz(func(t *testing.T, data []byte) {
		rec, _, err := DecodeRecord(data)
		if err == nil && rec == nil {
			t.Fatal("nil record without error")
		}
	})
}
