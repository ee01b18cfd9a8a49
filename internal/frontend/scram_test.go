package frontend

import "testing"

func TestSHA256_ProducesConsistentDigests(t *testing.T) {
	gen := SHA256()
	h1 := gen()
	h1.Write([]byte("scram test payload"))
	sum1 := h1.Sum(nil)

	h2 := gen()
	h2.Write([]byte("scram test payload"))
	sum2 := h2.Sum(nil)

	if string(sum1) != string(sum2) {
		t.Error("SHA256 generator produced different digests for identical input")
	}
	if len(sum1) != 32 {
		t.Errorf("SHA256 digest length = %d, want 32", len(sum1))
	}
}

func TestSHA512_ProducesConsistentDigests(t *testing.T) {
	gen := SHA512()
	h1 := gen()
	h1.Write([]byte("scram test payload"))
	sum1 := h1.Sum(nil)

	h2 := gen()
	h2.Write([]byte("scram test payload"))
	sum2 := h2.Sum(nil)

	if string(sum1) != string(sum2) {
		t.Error("SHA512 generator produced different digests for identical input")
	}
	if len(sum1) != 64 {
		t.Errorf("SHA512 digest length = %d, want 64", len(sum1))
	}
}

func TestXDGSCRAMClient_BeginAndStep(t *testing.T) {
	client := &XDGSCRAMClient{HashGeneratorFcn: SHA512()}

	if err := client.Begin("logaggd", "s3cr3t", ""); err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if client.Done() {
		t.Error("Done() = true immediately after Begin, want false")
	}

	if _, err := client.Step(""); err != nil {
		t.Fatalf("Step returned error on the client-first message: %v", err)
	}
}
