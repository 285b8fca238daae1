package audit

import (
	"os"
	"path/filepath"
	"testing"
)

func benchLedger(b *testing.B, dir string) (*Ledger, *Keys) {
	b.Helper()
	keys, err := LoadOrCreateKeys(filepath.Join(dir, "keys"))
	if err != nil {
		b.Fatal(err)
	}
	l, err := Open(dir, keys, Provenance{PolicyHash: "bench", RulesVersion: "1.0", Version: "0.1.0"})
	if err != nil {
		b.Fatal(err)
	}
	return l, keys
}

func BenchmarkAppend_Single(b *testing.B) {
	l, _ := benchLedger(b, b.TempDir())
	defer l.Close()

	d := Decision{Actor: "agent", Action: ActionAllow, Resource: "/workspace/notes.md"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Append(d)
	}
}

func benchVerify(b *testing.B, n int) {
	b.Helper()
	dir := b.TempDir()
	l, keys := benchLedger(b, dir)
	d := Decision{Actor: "agent", Action: ActionAllow, Resource: "/workspace/notes.md"}
	for i := 0; i < n; i++ {
		if _, err := l.Append(d); err != nil {
			b.Fatal(err)
		}
	}
	l.Close()

	path := filepath.Join(dir, LogFile)
	info, _ := os.Stat(path)
	b.ResetTimer()
	b.SetBytes(info.Size())

	for i := 0; i < b.N; i++ {
		report := Verify(path, keys.Public())
		if !report.Valid {
			b.Fatal("invalid chain:", report.Error)
		}
	}
}

func BenchmarkVerify_1000(b *testing.B) {
	benchVerify(b, 1000)
}

func BenchmarkVerify_10000(b *testing.B) {
	benchVerify(b, 10000)
}
