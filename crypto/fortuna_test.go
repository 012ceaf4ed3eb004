package crypto

import (
	"bytes"
	"encoding/hex"
	"io"
	"testing"

	"github.com/opd-ai/securestream/limits"
)

func TestFortunaSelfTest(t *testing.T) {
	if err := FortunaSelfTest(); err != nil {
		t.Fatalf("FortunaSelfTest() = %v", err)
	}
}

func TestFortunaKnownAnswers(t *testing.T) {
	seed := make([]byte, 32)
	g := NewFortunaGenerator(seed)

	read := func() string {
		out := make([]byte, 16)
		if _, err := g.Read(out); err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		return hex.EncodeToString(out)
	}

	if got := read(); got != "4bd6ea599d47e3ee9dd911833c29ca22" {
		t.Errorf("first output = %s", got)
	}
	if got := read(); got != "10984d576e6850e505ca9f42a9bfd88a" {
		t.Errorf("second output = %s", got)
	}
	g.Reseed(seed)
	if got := read(); got != "1e12da166bd86dcecde50a8296018de2" {
		t.Errorf("output after reseed = %s", got)
	}
}

func TestFortunaPartialBlock(t *testing.T) {
	g := NewFortunaGenerator(make([]byte, 32))

	out := make([]byte, 40)
	n, err := g.Read(out)
	if err != nil || n != 40 {
		t.Fatalf("Read() = %d, %v", n, err)
	}
	want := "4bd6ea599d47e3ee9dd911833c29ca224473b7db00208f51852c21adad53e31d8287a6d65fbb94d0"
	if got := hex.EncodeToString(out); got != want {
		t.Errorf("40-byte output = %s, want %s", got, want)
	}
}

func TestFortunaRequestCap(t *testing.T) {
	g := NewFortunaGenerator([]byte("cap"))

	out := make([]byte, limits.MaxRandomRequest+100)
	n, err := g.Read(out)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != limits.MaxRandomRequest {
		t.Errorf("Read() returned %d bytes, want %d", n, limits.MaxRandomRequest)
	}

	if _, err := io.ReadFull(g, out); err != nil {
		t.Fatalf("ReadFull failed: %v", err)
	}
}

func TestFortunaRekeysAfterEachRead(t *testing.T) {
	g := NewFortunaGenerator([]byte("rekey"))
	before := g.key

	out := make([]byte, 16)
	_, _ = g.Read(out)

	if g.key == before {
		t.Fatal("generator key unchanged after Read")
	}
	if bytes.Contains(out, g.key[:16]) {
		t.Fatal("new key leaked into output")
	}
}

func TestFortunaDifferentSeedsDiverge(t *testing.T) {
	a := NewFortunaGenerator([]byte("seed-a"))
	b := NewFortunaGenerator([]byte("seed-b"))

	outA := make([]byte, 32)
	outB := make([]byte, 32)
	_, _ = a.Read(outA)
	_, _ = b.Read(outB)

	if bytes.Equal(outA, outB) {
		t.Fatal("different seeds produced identical output")
	}
}

func TestFortunaCounterCarry(t *testing.T) {
	g := &FortunaGenerator{}
	for i := 0; i < 15; i++ {
		g.counter[i] = 0xff
	}
	g.incrementCounter()

	for i := 0; i < 15; i++ {
		if g.counter[i] != 0 {
			t.Fatalf("counter[%d] = %d after carry", i, g.counter[i])
		}
	}
	if g.counter[15] != 1 {
		t.Fatalf("counter[15] = %d, want 1", g.counter[15])
	}
}

func TestFortunaCounterExhaustionPanics(t *testing.T) {
	g := &FortunaGenerator{}
	for i := range g.counter {
		g.counter[i] = 0xff
	}
	defer func() {
		if recover() == nil {
			t.Fatal("counter wrapped without panicking")
		}
	}()
	g.incrementCounter()
}

func TestFortunaReadPanicsAtCounterExhaustion(t *testing.T) {
	g := NewFortunaGenerator([]byte("seed"))
	for i := range g.counter {
		g.counter[i] = 0xff
	}
	g.counter[0] = 0xfe

	defer func() {
		if recover() == nil {
			t.Fatal("Read past the last counter value did not panic")
		}
	}()
	_, _ = g.Read(make([]byte, 16))
}
