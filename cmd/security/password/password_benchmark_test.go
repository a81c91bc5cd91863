package password

import "testing"

func BenchmarkHash_DefaultConfig(b *testing.B) {
	cfg := DefaultConfig()
	pw := "Th1s is a str0ng password!"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cfg.Hash(pw); err != nil {
			b.Fatalf("Hash error: %v", err)
		}
	}
}

func BenchmarkVerify_LegacySHA256(b *testing.B) {
	cfg := DefaultConfig()
	cfg.Scheme = SchemeSHA256
	pw := "Th1s is a str0ng password!"
	h, err := cfg.Hash(pw)
	if err != nil {
		b.Fatalf("Hash error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !cfg.Verify(pw, h) {
			b.Fatalf("Verify failed")
		}
	}
}
