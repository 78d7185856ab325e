package searchindex

import (
	"io"
	"os"
	"testing"
)

func BenchmarkDecodeFixture(b *testing.B) {
	data, err := os.ReadFile("testdata/quspin.js")
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkValidateFixture(b *testing.B) {
	idx, err := DecodeFile("testdata/quspin.js")
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if r := Validate(idx); !r.Valid {
			b.Fatal("fixture failed validation")
		}
	}
}

func BenchmarkEncodeJS(b *testing.B) {
	idx, err := DecodeFile("testdata/quspin.js")
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := Encode(io.Discard, idx, FormatJS); err != nil {
			b.Fatal(err)
		}
	}
}
