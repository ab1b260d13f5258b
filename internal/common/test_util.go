package common

import (
	"os"
	"path/filepath"
	"testing"
)

// SampleLog is a small log excerpt reused across engine tests.
// It ends with a line feed; tests that need an unterminated tail strip it.
const SampleLog = `[2024-07-29T00:02:49] User login successful
[2024-07-29T01:07:21] Connection timed out
[2024-07-29T01:11:38] File uploaded successfully
[2024-07-30T00:12:22] Database connection established
[2024-07-30T01:16:57] Error reading configuration
[2024-07-30T02:20:36] Service restarted
[2024-07-30T03:24:47] User logged out
[2024-07-30T04:25:27] Permission denied
[2024-07-30T05:28:56] Cache cleared
[2024-07-30T06:29:23] Backup completed
`

// MakeTestFile writes content into a fresh temporary file and returns its path.
// The file lives in a per-test directory and is removed with it.
func MakeTestFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, content, os.ModePerm); err != nil {
		t.Fatal(err)
	}
	return path
}

// AppendToFile grows an existing file by data, as a log writer would.
func AppendToFile(t *testing.T, path string, data []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, os.ModePerm)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = f.Write(data); err != nil {
		t.Fatal(err)
	}
	if err = f.Close(); err != nil {
		t.Fatal(err)
	}
}

// OverwriteAt replaces len(data) bytes at the given offset in place,
// leaving the file size untouched. Used to simulate in-place edits.
func OverwriteAt(t *testing.T, path string, offset int64, data []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY, os.ModePerm)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = f.WriteAt(data, offset); err != nil {
		t.Fatal(err)
	}
	if err = f.Close(); err != nil {
		t.Fatal(err)
	}
}

// TruncateFile shrinks the file to the given size.
func TruncateFile(t *testing.T, path string, size int64) {
	t.Helper()
	if err := os.Truncate(path, size); err != nil {
		t.Fatal(err)
	}
}
