package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"edujudge/internal/common/storage"
	contestModel "edujudge/internal/contest/model"

	"github.com/gosimple/slug"
	"github.com/klauspost/compress/zstd"
)

const archiveContentType = "application/zstd"

// ArchiveRecord is what gets stored for each finalized submission.
type ArchiveRecord struct {
	ContestTitle string                    `json:"contest_title"`
	Submission   contestModel.Submission   `json:"submission"`
	Results      []contestModel.TestResult `json:"results"`
}

// SubmissionArchive keeps a compressed copy of source and results in object storage.
type SubmissionArchive struct {
	storage storage.ObjectStorage
	bucket  string
	encoder *zstd.Encoder
}

// NewSubmissionArchive creates an archive writer for bucket.
func NewSubmissionArchive(store storage.ObjectStorage, bucket string) (*SubmissionArchive, error) {
	if store == nil {
		return nil, fmt.Errorf("object storage is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &SubmissionArchive{storage: store, bucket: bucket, encoder: enc}, nil
}

// ArchiveKey builds "<contest-slug>-<contest id>/<problem id>/<submission id>.json.zst".
func ArchiveKey(contestTitle string, sub contestModel.Submission) string {
	prefix := slug.Make(contestTitle)
	if prefix == "" {
		prefix = "contest"
	}
	return prefix + "-" + strconv.FormatInt(sub.ContestID, 10) + "/" +
		strconv.FormatInt(sub.ProblemID, 10) + "/" + sub.ID + ".json.zst"
}

// Store writes the record and returns its object key. Archives are write-once:
// a replayed submission keeps the object that is already there.
func (a *SubmissionArchive) Store(ctx context.Context, record ArchiveRecord) (string, error) {
	key := ArchiveKey(record.ContestTitle, record.Submission)
	_, err := a.storage.StatObject(ctx, a.bucket, key)
	switch {
	case err == nil:
		return key, nil
	case !errors.Is(err, storage.ErrObjectNotFound):
		return "", fmt.Errorf("stat archive object: %w", err)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal archive record: %w", err)
	}
	compressed := a.encoder.EncodeAll(payload, nil)
	if err := a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), archiveContentType); err != nil {
		return "", fmt.Errorf("put archive object: %w", err)
	}
	return key, nil
}
