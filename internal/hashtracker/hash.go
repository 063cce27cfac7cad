package hashtracker

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// HashBytes returns the hex xxh3 digest of data. It matches HashFile for the
// same bytes.
func HashBytes(data []byte) string {
	return encodeSum(xxh3.Hash(data))
}

func encodeSum(v uint64) string {
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], v)
	return hex.EncodeToString(sum[:])
}

// HashString returns the hex xxh3 digest of s.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// HashFile streams a file through xxh3.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return encodeSum(h.Sum64()), nil
}
