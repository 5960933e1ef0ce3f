package boltdb

import "fmt"

// BucketError reports a bucket that could not be created or opened.
type BucketError struct {
	Bucket string
	Err    error
}

func (e BucketError) Error() string {
	return fmt.Sprintf("boltdb: bucket %q: %v", e.Bucket, e.Err)
}

func (e BucketError) Unwrap() error { return e.Err }

// CodecError reports a record that could not be encoded or decoded.
type CodecError struct {
	Op  string
	Err error
}

func (e CodecError) Error() string {
	return fmt.Sprintf("boltdb: %s record: %v", e.Op, e.Err)
}

func (e CodecError) Unwrap() error { return e.Err }
