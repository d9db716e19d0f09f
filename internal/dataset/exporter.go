package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gwi.com/chat-dataset/internal/metrics"
	"gwi.com/chat-dataset/internal/store"
)

const (
	datasetName      = "DatasetLoom"
	datasetFormat    = "sharegpt"
	manifestFilename = "dataset_info.json"
	archiveMediaType = "application/zip"
)

// PathStrategy picks where an export is written. token is unique per export
// invocation; strategies may ignore it.
type PathStrategy func(dir, projectID, chatID, token string) string

// DeterministicPath writes every export of a chat to the same file, so
// concurrent exports of one chat overwrite each other.
func DeterministicPath(dir, projectID, chatID, _ string) string {
	return filepath.Join(dir, ArchiveFilename(projectID, chatID))
}

// UniquePath prefixes the archive filename with the export token.
func UniquePath(dir, projectID, chatID, token string) string {
	return filepath.Join(dir, token+"-"+ArchiveFilename(projectID, chatID))
}

var unsafeNameChars = strings.NewReplacer("/", "_", "\\", "_", "..", "_")

// ArchiveFilename is the name handed to the caller for the finished archive.
func ArchiveFilename(projectID, chatID string) string {
	return unsafeNameChars.Replace(fmt.Sprintf("%s-%s-%s.zip", datasetName, projectID, chatID))
}

// DatasetFilename is the name of the conversations entry inside the archive.
func DatasetFilename(chatID string) string {
	return unsafeNameChars.Replace(fmt.Sprintf("chat_%s_dataset.json", chatID))
}

// Publisher uploads finished archives to durable storage and deletes them
// again.
type Publisher interface {
	FPut(ctx context.Context, key, path, contentType string) error
	Remove(ctx context.Context, key string) error
}

// ObjectKey is where a chat's published archive lives.
func ObjectKey(projectID, chatID string) string {
	return fmt.Sprintf("exports/%s/%s", projectID, ArchiveFilename(projectID, chatID))
}

type Exporter struct {
	dbStore   store.DataStore
	formatter Formatter
	dir       string
	paths     PathStrategy
	newToken  func() string
	publisher Publisher
	logger    zerolog.Logger
}

type Option func(*Exporter)

func WithRoleMapper(roles RoleMapper) Option {
	return func(e *Exporter) { e.formatter.Roles = roles }
}

func WithPathStrategy(paths PathStrategy) Option {
	return func(e *Exporter) { e.paths = paths }
}

func WithTokenSource(newToken func() string) Option {
	return func(e *Exporter) { e.newToken = newToken }
}

func WithPublisher(p Publisher) Option {
	return func(e *Exporter) { e.publisher = p }
}

// NewExporter writes archives under dir. Defaults: ShareGPTRoles, UniquePath
// with uuid tokens, no publisher.
func NewExporter(db store.DataStore, dir string, logger zerolog.Logger, opts ...Option) *Exporter {
	e := &Exporter{
		dbStore:   db,
		formatter: Formatter{Roles: ShareGPTRoles},
		dir:       dir,
		paths:     UniquePath,
		newToken:  uuid.NewString,
		logger:    logger.With().Str("component", "exporter").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type ExportResult struct {
	FilePath  string `json:"filePath"`
	Filename  string `json:"filename"`
	ObjectKey string `json:"objectKey,omitempty"`
}

type conversationFile struct {
	Conversations []Turn `json:"conversations"`
}

type datasetInfo struct {
	FileName   string            `json:"file_name"`
	Formatting string            `json:"formatting"`
	Columns    map[string]string `json:"columns"`
}

// ExportChatDataset writes the chat's messages, oldest first, as a ShareGPT
// dataset plus manifest into one zip archive and returns where it is. Any
// failure removes the destination file before the error is returned.
func (e *Exporter) ExportChatDataset(ctx context.Context, projectID, chatID string) (result *ExportResult, err error) {
	start := time.Now()
	filename := ArchiveFilename(projectID, chatID)
	path := e.paths(e.dir, projectID, chatID, e.newToken())
	log := e.logger.With().Str("project_id", projectID).Str("chat_id", chatID).Str("path", path).Logger()

	defer func() {
		metrics.ExportDuration.Observe(time.Since(start).Seconds())
		metrics.ExportsTotal.WithLabelValues(exportOutcome(err)).Inc()
		if err == nil {
			return
		}
		if rmErr := Remove(path); rmErr != nil {
			log.Warn().Err(rmErr).Msg("failed to remove partial export")
		}
		log.Debug().Err(err).Msg("dataset export failed")
	}()

	chat, err := e.dbStore.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "loading chat")
	}
	if chat == nil || chat.ProjectID != projectID {
		return nil, errors.Wrapf(store.ErrNotFound, "chat %s in project %s", chatID, projectID)
	}

	messages, err := e.dbStore.GetMessagesByChatID(ctx, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "loading messages")
	}

	turns, err := e.formatter.FormatAll(messages)
	if err != nil {
		return nil, err
	}

	datasetFile := DatasetFilename(chatID)
	err = Build(path, func(a *Archive) error {
		if err := a.AddJSON(datasetFile, conversationFile{Conversations: turns}); err != nil {
			return err
		}
		return a.AddJSON(manifestFilename, map[string]datasetInfo{
			datasetName: {
				FileName:   datasetFile,
				Formatting: datasetFormat,
				Columns:    map[string]string{"messages": "conversations"},
			},
		})
	})
	if err != nil {
		return nil, err
	}

	result = &ExportResult{FilePath: path, Filename: filename}
	if e.publisher != nil {
		key := ObjectKey(projectID, chatID)
		if err = e.publisher.FPut(ctx, key, path, archiveMediaType); err != nil {
			return nil, errors.Wrapf(err, "publishing %s", key)
		}
		result.ObjectKey = key
	}

	metrics.ExportedTurns.Add(float64(len(turns)))
	log.Info().Int("turns", len(turns)).Msg("dataset exported")
	return result, nil
}

// Unpublish deletes the chat's published archive, if any. It is a no-op
// without a publisher.
func (e *Exporter) Unpublish(ctx context.Context, projectID, chatID string) error {
	if e.publisher == nil {
		return nil
	}
	key := ObjectKey(projectID, chatID)
	if err := e.publisher.Remove(ctx, key); err != nil {
		return errors.Wrapf(err, "unpublishing %s", key)
	}
	return nil
}

func exportOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedContent):
		return "malformed"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
