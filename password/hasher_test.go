package password

import (
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func newFastHasher(t *testing.T) *Hasher {
	t.Helper()

	h, err := NewHasher(fastConfig())
	if err != nil {
		t.Fatalf("hasher construction failed: %v", err)
	}
	return h
}

func TestNewHasherRejectsWeakParameters(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"memory", func(c *Config) { c.Memory = 4 * 1024 }},
		{"time", func(c *Config) { c.Time = 0 }},
		{"parallelism", func(c *Config) { c.Parallelism = 0 }},
		{"salt", func(c *Config) { c.SaltLength = 8 }},
		{"key", func(c *Config) { c.KeyLength = 8 }},
	}
	for _, tc := range cases {
		cfg := fastConfig()
		tc.mutate(&cfg)
		if _, err := NewHasher(cfg); err == nil {
			t.Errorf("%s below floor should be rejected", tc.name)
		}
	}
}

func TestHashAndVerify(t *testing.T) {
	h := newFastHasher(t)

	encoded, err := h.Hash("Correct-Horse-42!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected hash format %q", encoded)
	}

	ok, err := h.Verify("Correct-Horse-42!", encoded)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Fatal("correct password rejected")
	}

	ok, err = h.Verify("Wrong-Horse-42!", encoded)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if ok {
		t.Fatal("wrong password accepted")
	}
}

func TestHashIsSalted(t *testing.T) {
	h := newFastHasher(t)

	first, err := h.Hash("Correct-Horse-42!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	second, err := h.Hash("Correct-Horse-42!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if first == second {
		t.Fatal("identical plaintexts must not produce identical hashes")
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := newFastHasher(t)

	cases := []string{
		"",
		"not-a-phc-string",
		"$argon2id$v=19$m=8192,t=1,p=1$short",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=64,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaGhhc2hoYXNoaGFzaA",
	}
	for _, encoded := range cases {
		if _, err := h.Verify("whatever", encoded); err == nil {
			t.Errorf("expected parse error for %q", encoded)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := newFastHasher(t)
	encoded, err := weak.Hash("Correct-Horse-42!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	if needs, err := weak.NeedsRehash(encoded); err != nil || needs {
		t.Fatalf("hash at current parameters should not need rehash: needs=%v err=%v", needs, err)
	}

	cfg := fastConfig()
	cfg.Memory = 16 * 1024
	strong, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("hasher construction failed: %v", err)
	}

	needs, err := strong.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("needs rehash failed: %v", err)
	}
	if !needs {
		t.Fatal("hash below current memory cost should need rehash")
	}

	// Old hashes still verify under the upgraded configuration because the
	// encoded parameters drive recomputation.
	ok, err := strong.Verify("Correct-Horse-42!", encoded)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Fatal("legacy hash should verify under upgraded config")
	}
}

func TestVerifyIsByteExact(t *testing.T) {
	h := newFastHasher(t)

	encoded, err := h.Hash("pässword-Ä-42!")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	if ok, _ := h.Verify("pässword-Ä-42!", encoded); !ok {
		t.Fatal("exact unicode password rejected")
	}
	// A visually close but byte-different string must fail.
	if ok, _ := h.Verify("passwort-A-42!", encoded); ok {
		t.Fatal("byte-different password accepted")
	}
}
