package store

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/jittakal/logaggregator/internal/connpool"
	"github.com/jittakal/logaggregator/pkg/store"
)

func TestWriteReadBatch_RoundTrip(t *testing.T) {
	batch := store.MessageBatch{
		{Category: "orders", Message: []byte("order placed")},
		{Category: "orders", Message: []byte("order shipped")},
		{Category: "clickstream", Message: []byte("")},
	}

	var buf bytes.Buffer
	if err := writeBatch(&buf, batch); err != nil {
		t.Fatalf("writeBatch returned error: %v", err)
	}

	got, err := readBatch(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readBatch returned error: %v", err)
	}

	if len(got) != len(batch) {
		t.Fatalf("readBatch returned %d entries, want %d", len(got), len(batch))
	}
	for i := range batch {
		if got[i].Category != batch[i].Category || string(got[i].Message) != string(batch[i].Message) {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], batch[i])
		}
	}
}

func TestWriteReadBatch_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := writeBatch(&buf, nil); err != nil {
		t.Fatalf("writeBatch returned error: %v", err)
	}

	got, err := readBatch(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readBatch returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("readBatch returned %d entries, want 0", len(got))
	}
}

func TestReadBatch_RejectsOversizedCount(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := make([]byte, 10)
	n := putUvarintForTest(lenBuf, 1<<21)
	buf.Write(lenBuf[:n])

	if _, err := readBatch(bufio.NewReader(&buf)); err == nil {
		t.Fatal("expected an error for a batch count exceeding the limit")
	}
}

func putUvarintForTest(buf []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

func TestWriteReadStatus_RoundTrip(t *testing.T) {
	tests := []wireStatus{wireOK, wireTryAgain, wireErr}

	for _, status := range tests {
		var buf bytes.Buffer
		if err := writeStatus(&buf, status); err != nil {
			t.Fatalf("writeStatus returned error: %v", err)
		}
		got, err := readStatus(&buf)
		if err != nil {
			t.Fatalf("readStatus returned error: %v", err)
		}
		if got != status {
			t.Errorf("readStatus() = %v, want %v", got, status)
		}
	}
}

func TestWireResult(t *testing.T) {
	tests := []struct {
		status wireStatus
		want   connpool.Result
	}{
		{wireOK, connpool.ResultOK},
		{wireTryAgain, connpool.ResultTryAgain},
		{wireErr, connpool.ResultErr},
		{wireStatus(99), connpool.ResultErr},
	}

	for _, tt := range tests {
		if got := wireResult(tt.status); got != tt.want {
			t.Errorf("wireResult(%v) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
