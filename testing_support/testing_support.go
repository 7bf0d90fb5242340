// Package testing_support provides descriptor-accounting helpers for tests.
// It accepts the testing interface rather than *testing.T so alternative
// runners can use the leak checker too.
package testing_support

import (
	"os"
	"runtime"

	testing "github.com/mitchellh/go-testing-interface"
)

// fdDir returns the open-descriptor directory of this process.
func fdDir() string {
	if runtime.GOOS == "darwin" {
		return "/dev/fd"
	}
	return "/proc/self/fd"
}

// CountOpenDescriptors returns the number of descriptors this process has
// open, excluding the handle used for the enumeration itself.
func CountOpenDescriptors() (int, error) {
	entries, err := os.ReadDir(fdDir())
	if err != nil {
		return 0, err
	}

	// ReadDir holds the directory open while listing, so its own
	// descriptor shows up in the result.
	return len(entries) - 1, nil
}

// RequireNoDescriptorLeak runs fn and fails the test when the process's
// open-descriptor count changed across the call.
func RequireNoDescriptorLeak(t testing.T, fn func()) {
	t.Helper()

	before, err := CountOpenDescriptors()
	if err != nil {
		t.Fatalf("counting descriptors before: %v", err)
	}

	fn()

	after, err := CountOpenDescriptors()
	if err != nil {
		t.Fatalf("counting descriptors after: %v", err)
	}

	if after != before {
		t.Fatalf("descriptor leak: %d open before, %d after", before, after)
	}
}
