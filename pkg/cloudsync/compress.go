package cloudsync

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/pkg/errors"
)

func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "could not compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "could not compress")
	}
	return buf.Bytes(), nil
}

func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "could not decompress")
	}
	defer func() {
		_ = r.Close()
	}()
	ret, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "could not decompress")
	}
	return ret, nil
}
