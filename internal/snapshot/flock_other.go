//go:build !unix

package snapshot

// fileLock is a no-op where flock(2) is unavailable; the in-process mutex
// still serializes a single process.
type fileLock struct{}

func newFileLock(string) *fileLock {
	return &fileLock{}
}

func (*fileLock) Lock() error {
	return nil
}

func (*fileLock) Unlock() error {
	return nil
}
