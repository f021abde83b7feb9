package storage

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rohmanhakim/crawlsvc/internal/metadata"
	"github.com/rohmanhakim/crawlsvc/internal/model"
	"github.com/rohmanhakim/crawlsvc/pkg/failure"
	"github.com/rohmanhakim/crawlsvc/pkg/fileutil"
	"github.com/rohmanhakim/crawlsvc/pkg/hashutil"
)

/*
Responsibilities
- Persist fetched documents as an optional local artifact cache
- Ensure deterministic filenames
- Idempotent, overwrite-safe writes

This is not the durable crawl state (that's kvstore) — it is a best-effort
on-disk mirror of emitted Documents, useful for local debugging runs of
the CLI without a rendering/webhook consumer attached.
*/

type Sink interface {
	Write(outputDir string, doc model.Document, hashAlgo hashutil.HashAlgo) (WriteResult, failure.ClassifiedError)
}

type LocalSink struct {
	metadataSink metadata.MetadataSink
}

func NewLocalSink(metadataSink metadata.MetadataSink) LocalSink {
	return LocalSink{metadataSink: metadataSink}
}

func (s *LocalSink) Write(
	outputDir string,
	doc model.Document,
	hashAlgo hashutil.HashAlgo,
) (WriteResult, failure.ClassifiedError) {
	writeResult, err := write(outputDir, doc, hashAlgo)
	if err != nil {
		var storageError *StorageError
		errors.As(err, &storageError)
		if s.metadataSink != nil {
			s.metadataSink.RecordError(
				time.Now(),
				"storage",
				"LocalSink.Write",
				mapStorageErrorToMetadataCause(storageError),
				err.Error(),
				[]metadata.Attribute{
					metadata.NewAttr(metadata.AttrURL, doc.URL),
				},
			)
		}
		return WriteResult{}, storageError
	}
	return writeResult, nil
}

func write(
	outputDir string,
	doc model.Document,
	hashAlgo hashutil.HashAlgo,
) (WriteResult, failure.ClassifiedError) {
	urlHashFull, err := hashutil.HashBytes([]byte(doc.URL), hashAlgo)
	if err != nil {
		return WriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseHashComputationFailed,
			Path:      "",
		}
	}
	urlHash := urlHashFull[:12]

	if ferr := fileutil.EnsureDir(outputDir); ferr != nil {
		return WriteResult{}, &StorageError{
			Message:   ferr.Error(),
			Retryable: ferr.Severity() == failure.SeverityRecoverable,
			Cause:     ErrCauseWriteFailure,
			Path:      outputDir,
		}
	}

	content := doc.Markdown
	if content == "" {
		content = doc.HTML
	}

	fullPath := filepath.Join(outputDir, urlHash+".md")
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		cause := ErrCauseWriteFailure
		retryable := false
		if errors.Is(err, syscall.ENOSPC) {
			cause = ErrCauseDiskFull
			retryable = true
		}
		return WriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: retryable,
			Cause:     cause,
			Path:      fullPath,
		}
	}

	contentHash, _ := hashutil.HashBytes([]byte(content), hashAlgo)
	return NewWriteResult(urlHash, fullPath, contentHash), nil
}
