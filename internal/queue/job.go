/**
 * Job payloads shared by both queue backends
 *
 * The API service produces these as JSON. fileBuffer arrives either as a
 * base64 string or as a serialised Node.js Buffer object.
 */

package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adverant/nexus/segment-worker/internal/processor"
)

// TaskTypeSegmentDocument is the asynq task type for segmentation jobs
const TaskTypeSegmentDocument = "segment-document"

// JobPayload contains the actual job data
type JobPayload struct {
	JobID           string                 `json:"jobId"`
	FileName        string                 `json:"filename"`
	FileURL         string                 `json:"fileUrl,omitempty"`
	FileSize        int64                  `json:"fileSize,omitempty"`
	FileBuffer      []byte                 `json:"fileBuffer,omitempty"`
	Variant         string                 `json:"variant,omitempty"`
	SourceLanguage  string                 `json:"sourceLanguage,omitempty"`
	TargetLanguages []string               `json:"targetLanguages,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts fileBuffer as a base64 string or as a Node.js
// Buffer object ({"type": "Buffer", "data": [...]}).
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type alias JobPayload
	aux := &struct {
		FileBuffer json.RawMessage `json:"fileBuffer,omitempty"`
		*alias
	}{
		alias: (*alias)(p),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	buf, err := decodeFileBuffer(aux.FileBuffer)
	if err != nil {
		return err
	}
	p.FileBuffer = buf
	return nil
}

func decodeFileBuffer(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 fileBuffer: %w", err)
		}
		return decoded, nil
	}

	var nodeBuffer struct {
		Type string `json:"type"`
		Data []int  `json:"data"`
	}
	if err := json.Unmarshal(raw, &nodeBuffer); err != nil {
		return nil, fmt.Errorf("fileBuffer must be a base64 string or Buffer object: %w", err)
	}
	if nodeBuffer.Type != "Buffer" {
		return nil, fmt.Errorf("invalid Buffer object format (type %q)", nodeBuffer.Type)
	}

	out := make([]byte, len(nodeBuffer.Data))
	for i, v := range nodeBuffer.Data {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("invalid byte value %d in Buffer data at index %d", v, i)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// ParseJobPayload decodes and checks a queued payload.
func ParseJobPayload(data []byte) (*JobPayload, error) {
	var p JobPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.JobID) == "" {
		return nil, fmt.Errorf("job payload has no jobId")
	}
	if strings.TrimSpace(p.FileName) == "" {
		return nil, fmt.Errorf("job %s has no filename", p.JobID)
	}
	if len(p.FileBuffer) == 0 && p.FileURL == "" {
		return nil, fmt.Errorf("job %s has neither fileBuffer nor fileUrl", p.JobID)
	}
	return &p, nil
}

// Request converts the payload into a processor request.
func (p *JobPayload) Request() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:           p.JobID,
		FileName:        p.FileName,
		FileURL:         p.FileURL,
		FileSize:        p.FileSize,
		FileBuffer:      p.FileBuffer,
		Variant:         p.Variant,
		SourceLanguage:  p.SourceLanguage,
		TargetLanguages: p.TargetLanguages,
		Metadata:        p.Metadata,
	}
}

// resultSummary is what the queue keeps about a finished job. The full
// payload lives in PostgreSQL.
func resultSummary(r *processor.ProcessResult) map[string]interface{} {
	summary := map[string]interface{}{
		"jobId":            r.JobID,
		"variant":          string(r.Variant),
		"processingTimeMs": r.ProcessingTimeMs,
	}
	if r.Visual != nil {
		summary["totalSlides"] = r.Visual.Analysis.TotalSlides
		summary["segmentCount"] = len(r.Visual.Segments)
		summary["fallbackSlides"] = len(r.FallbackSlides)
	}
	if r.Glossary != nil {
		summary["termCount"] = len(r.Glossary.Terms)
	}
	return summary
}
