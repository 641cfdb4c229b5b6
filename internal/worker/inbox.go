package worker

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/docenrich/pkg/models"
)

// inboxID derives a stable external id from the file's absolute path.
func inboxID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String()
}

// inboxDocument builds the store row for a dropped file.
func inboxDocument(path string) *models.Document {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &models.Document{
		Collection: InboxCollection,
		ExternalID: inboxID(path),
		Title:      strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
		Link:       abs,
		Status:     models.StatusPending,
	}
}

// HandleInboxFile registers a dropped file in the inbox collection and
// processes it in the background. Files already registered are processed
// again only if they are not enriched yet.
func (s *Service) HandleInboxFile(path string) {
	s.goBackground(func(ctx context.Context) {
		doc, created, err := s.deps.Documents.CreateDocument(ctx, inboxDocument(path))
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to register inbox file")
			return
		}
		log.Info().
			Str("path", path).
			Int64("docId", doc.ID).
			Bool("created", created).
			Msg("Inbox file registered")

		if _, err := s.deps.Processor.ProcessDocument(ctx, InboxCollection, doc); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Inbox file not enriched")
		}
	})
}
