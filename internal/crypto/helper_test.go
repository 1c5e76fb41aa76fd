package crypto

import (
	"sync"
	"testing"
)

// RSA-4096 generation takes seconds; tests share one pair.
var (
	sharedKeyOnce sync.Once
	sharedKey     *KeyPair
	sharedKeyErr  error
)

func testKeyPair(t testing.TB) *KeyPair {
	t.Helper()
	sharedKeyOnce.Do(func() {
		sharedKey, sharedKeyErr = GenerateKeyPair()
	})
	if sharedKeyErr != nil {
		t.Fatalf("GenerateKeyPair() error = %v", sharedKeyErr)
	}
	return &KeyPair{PublicKey: sharedKey.PublicKey, PrivateKey: sharedKey.PrivateKey}
}

const testSecret = "aIB8eCQa19Zv6R1LLFsp7odaPQ+fnLgLzRcJ2TF95gM="

func testWrappingKey(t testing.TB, password, salt string) *WrappingKey {
	t.Helper()
	wk, err := DeriveWrappingKey(testSecret, password, salt)
	if err != nil {
		t.Fatalf("DeriveWrappingKey() error = %v", err)
	}
	return wk
}
