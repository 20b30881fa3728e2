package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Common domain errors
	ErrNotFound                = errors.New("entity not found")
	ErrAlreadyExists           = errors.New("entity already exists")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrInvalidTransition       = errors.New("invalid job status transition")
	ErrCoordinationUnavailable = errors.New("coordination store unavailable")
	ErrMalformedMessage        = errors.New("malformed job message")

	// Persistence errors
	ErrReadDatabaseRow    = errors.New("could not read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")
)

// Processing stages a ProcessingError can originate from.
const (
	StageStorageFetch  = "storage_fetch"
	StageCodec         = "codec"
	StagePackage       = "package"
	StageStorageUpload = "storage_upload"
	StagePipeline      = "pipeline"
)

// MaxDiagnosticLen bounds the collaborator diagnostic kept on a job record.
const MaxDiagnosticLen = 500

// ProcessingError is a failure of one pipeline stage. It is retryable by default.
type ProcessingError struct {
	Stage  string
	Detail string
	Err    error
}

// NewProcessingError builds a ProcessingError, truncating the diagnostic text.
func NewProcessingError(stage string, err error) *ProcessingError {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &ProcessingError{Stage: stage, Detail: Truncate(detail, MaxDiagnosticLen), Err: err}
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Detail)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// CodeFFmpeg is persisted for codec stage failures.
const CodeFFmpeg = "FFMPEG_ERROR"

// Code is the error code persisted on a FAILED job, e.g. STORAGE_FETCH_ERROR.
func (e *ProcessingError) Code() string {
	if e.Stage == StageCodec {
		return CodeFFmpeg
	}
	return strings.ToUpper(e.Stage) + "_ERROR"
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
