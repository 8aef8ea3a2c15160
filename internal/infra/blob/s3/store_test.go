package s3

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"micdash/internal/blob/core"
)

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestListOrdersKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMockForTests()
	for _, k := range []string{"exports/c", "exports/a", "other/b"} {
		if _, err := s.Put(ctx, k, bytes.NewReader([]byte(k)), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := s.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "exports/a" || list[1].Key != "exports/c" || list[0].Size != 9 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	body := []byte("hello\r\nworld")
	framed := []byte(fmt.Sprintf("%x;chunk-signature=abc\r\n%s\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n", len(body), body))
	got, err := decodeAWSChunked(framed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("decoded %q", got)
	}
	if _, err := decodeAWSChunked([]byte("zz\r\n")); err == nil {
		t.Fatal("expected bad size error")
	}
}
