package upload

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports a request without a usable file. No storage call
// has been made when it is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func (e *ValidationError) UserMessage() string {
	return "Please choose an image file to upload"
}

// StorageWriteError reports a failed write of the original to the upload
// bucket.
type StorageWriteError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("upload %s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

func (e *StorageWriteError) UserMessage() string {
	return fmt.Sprintf("Upload failed: %v", e.Err)
}

// StorageCheckError reports an existence check that failed for a reason other
// than the object being absent.
type StorageCheckError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *StorageCheckError) Error() string {
	return fmt.Sprintf("check %s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *StorageCheckError) Unwrap() error { return e.Err }

func (e *StorageCheckError) UserMessage() string {
	return fmt.Sprintf("Error checking processed image: %v", e.Err)
}

// TimeoutError reports that the processed object did not appear within the
// poll budget.
type TimeoutError struct {
	Key      string
	Waited   time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s (%d checks) waiting for %q", e.Waited, e.Attempts, e.Key)
}

func (e *TimeoutError) UserMessage() string {
	return "Timed out waiting for greyscale image"
}

// LinkError reports a failure to sign an access link.
type LinkError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("sign %s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

func (e *LinkError) UserMessage() string {
	return fmt.Sprintf("Could not create download link: %v", e.Err)
}

// UserMessage returns the one-line text shown to the user for err.
func UserMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return "Something went wrong, please try again"
}
