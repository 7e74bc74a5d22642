// Package upload publishes finished video artifacts to external platforms.
// Failures carry a machine-readable kind so callers can decide between
// retrying, re-rendering, or giving up, instead of parsing error strings.
package upload

import (
	"context"
	"fmt"

	"factmill/manager-go/internal/assemble"
)

// ErrorKind classifies why an upload was rejected or failed.
type ErrorKind string

const (
	// KindDegradedArtifact means the video was built from a fallback tier
	// and is not worth publishing.
	KindDegradedArtifact ErrorKind = "degraded_artifact"
	// KindFileInvalid means the file is missing or below the size floor.
	KindFileInvalid ErrorKind = "file_invalid"
	// KindAuth means credentials are missing or rejected.
	KindAuth ErrorKind = "auth"
	// KindTransport means the platform call itself failed and a retry may
	// succeed.
	KindTransport ErrorKind = "transport"
	// KindResponse means the platform answered but the result could not be
	// interpreted.
	KindResponse ErrorKind = "response"
)

// Error is a structured upload failure.
type Error struct {
	Kind     ErrorKind
	Platform string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload %s: %s: %v", e.Platform, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether resubmitting the same artifact could succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport
}

func newError(platform string, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Platform: platform, Err: err}
}

// Request describes one artifact to publish.
type Request struct {
	Artifact    assemble.Artifact
	Title       string
	Description string
	Tags        []string
}

// Uploader publishes a video and returns the platform-assigned ID.
type Uploader interface {
	Upload(ctx context.Context, req Request) (string, error)
}

// checkArtifact enforces the shared preconditions every platform has:
// never publish a degraded placeholder, never publish a truncated file.
func checkArtifact(platform string, a assemble.Artifact, minBytes int64) *Error {
	if a.Degraded {
		return newError(platform, KindDegradedArtifact,
			fmt.Errorf("artifact built with %q strategy", a.Strategy))
	}
	if a.VideoPath == "" {
		return newError(platform, KindFileInvalid, fmt.Errorf("artifact has no video path"))
	}
	if minBytes > 0 && a.SizeBytes < minBytes {
		return newError(platform, KindFileInvalid,
			fmt.Errorf("video is %d bytes, below the %d byte floor", a.SizeBytes, minBytes))
	}
	return nil
}
