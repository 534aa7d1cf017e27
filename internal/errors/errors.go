package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the segmentation worker
 *
 * Input errors are rejected before the pipeline runs and are never retried.
 * External-service errors on the glossary flow are fatal for the document.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrorFileTooLarge      ErrorCode = "FILE_TOO_LARGE"
	ErrorEmptyText         ErrorCode = "EMPTY_TEXT"

	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorExtractionFailed  ErrorCode = "EXTRACTION_FAILED"

	// External reasoning service errors
	ErrorContextInference ErrorCode = "CONTEXT_INFERENCE_FAILED"
	ErrorTermExtraction   ErrorCode = "TERM_EXTRACTION_FAILED"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewUnsupportedFormatError(jobID string, filename string, allowed []string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedFormat,
		Message:   fmt.Sprintf("Unsupported file type: %s", filename),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"filename": filename,
			"allowed":  allowed,
		},
	}
}

func NewFileTooLargeError(jobID string, size, limit int64) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorFileTooLarge,
		Message:   fmt.Sprintf("File is %d bytes, limit is %d bytes", size, limit),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"file_size":  size,
			"size_limit": limit,
		},
	}
}

func NewEmptyTextError(jobID string, filename string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEmptyText,
		Message:   fmt.Sprintf("No text could be extracted from %s", filename),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"filename": filename,
		},
	}
}

func NewExtractionFailedError(jobID string, filename string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorExtractionFailed,
		Message:   fmt.Sprintf("Failed to extract content from %s", filename),
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewContextInferenceError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorContextInference,
		Message:   "Document context could not be inferred",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewTermExtractionError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorTermExtraction,
		Message:   "Glossary terms could not be extracted",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store processing results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// CodeOf returns the code of the first ProcessingError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsInputError reports whether err was caused by the uploaded file itself.
func IsInputError(err error) bool {
	switch CodeOf(err) {
	case ErrorUnsupportedFormat, ErrorFileTooLarge, ErrorEmptyText:
		return true
	}
	return false
}

// Retryable reports whether a failed job is worth re-queueing.
func Retryable(err error) bool {
	return err != nil && !IsInputError(err)
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
