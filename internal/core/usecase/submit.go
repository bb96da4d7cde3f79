package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/vetpath/vetpath-client/internal/core/domain"
	"github.com/vetpath/vetpath-client/internal/core/ports"
)

// UploadSubmitter carries one accepted file through target request and
// transfer. Validation happens first so no network call is made for a file
// that can never be accepted.
type UploadSubmitter struct {
	backend   ports.UploadBackend
	transfer  ports.FileTransfer
	validator ports.FileValidator
	logger    *slog.Logger
}

func NewUploadSubmitter(
	backend ports.UploadBackend,
	transfer ports.FileTransfer,
	validator ports.FileValidator,
	logger *slog.Logger,
) *UploadSubmitter {
	return &UploadSubmitter{
		backend:   backend,
		transfer:  transfer,
		validator: validator,
		logger:    logger,
	}
}

func (s *UploadSubmitter) Submit(ctx context.Context, file domain.FileInput, progress func(pct int)) (domain.UploadTarget, error) {
	if err := s.validator.Validate(file); err != nil {
		return domain.UploadTarget{}, err
	}

	target, err := s.backend.CreateUpload(ctx, domain.UploadRequest{
		Filename: file.Name,
		FileType: file.ContentType,
	})
	if err != nil {
		return domain.UploadTarget{}, fmt.Errorf("request upload target: %w", err)
	}

	if err := s.transfer.Put(ctx, target.UploadURL, file.ContentType, bytes.NewReader(file.Data), file.Size(), progress); err != nil {
		return domain.UploadTarget{}, fmt.Errorf("transfer %q: %w", file.Name, err)
	}

	s.logger.Info("upload_transferred",
		"document_id", target.DocumentID,
		"filename", file.Name,
		"bytes", file.Size(),
	)
	return target, nil
}
