package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/sirupsen/logrus"
	"github.com/skypath/nichebot/internal/models"
)

// Archiver snapshots raw mention batches so a run's input can be replayed
// or audited later. It is best-effort: the pipeline works without it.
type Archiver interface {
	ArchiveRun(ctx context.Context, runID string, mentions []models.Mention) error
	CleanupOlderThan(ctx context.Context, retention time.Duration) (int, error)
}

const archivePrefix = "runs/"
const archiveDateLayout = "2006-01-02"

// BlobArchiver stores run snapshots in Azure Blob Storage.
type BlobArchiver struct {
	client        *azblob.Client
	containerName string
}

// Ensure BlobArchiver implements Archiver
var _ Archiver = (*BlobArchiver)(nil)

// NewBlobArchiver creates a blob archiver using managed identity.
func NewBlobArchiver(accountName, containerName string) (*BlobArchiver, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	archiver := &BlobArchiver{
		client:        client,
		containerName: containerName,
	}

	if err := archiver.ensureContainer(); err != nil {
		return nil, fmt.Errorf("failed to ensure container exists: %w", err)
	}

	return archiver, nil
}

func (a *BlobArchiver) ensureContainer() error {
	ctx := context.Background()

	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil {
		if !strings.Contains(err.Error(), "ContainerAlreadyExists") {
			return fmt.Errorf("failed to create container: %w", err)
		}
		logrus.Debugf("Container %s already exists", a.containerName)
	} else {
		logrus.Infof("Created container %s", a.containerName)
	}

	return nil
}

// ArchiveRun stores the raw mention batch for one run as a JSON blob under
// a date-partitioned name.
func (a *BlobArchiver) ArchiveRun(ctx context.Context, runID string, mentions []models.Mention) error {
	if len(mentions) == 0 {
		return nil
	}

	data, err := json.Marshal(mentions)
	if err != nil {
		return fmt.Errorf("failed to marshal mentions: %w", err)
	}

	blobName := fmt.Sprintf("%s%s/%s.json", archivePrefix, time.Now().Format(archiveDateLayout), runID)

	_, err = a.client.UploadBuffer(ctx, a.containerName, blobName, data, &azblob.UploadBufferOptions{
		BlockSize:   int64(1024 * 1024),
		Concurrency: 3,
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive %s: %w", blobName, err)
	}

	logrus.Debugf("Archived %d mentions to %s", len(mentions), blobName)
	return nil
}

// CleanupOlderThan deletes archives whose date partition is older than the
// retention window. Returns the number of blobs deleted.
func (a *BlobArchiver) CleanupOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)

	prefix := archivePrefix
	pager := a.client.NewListBlobsFlatPager(a.containerName, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	deleted := 0
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("failed to list archives: %w", err)
		}

		for _, blob := range page.Segment.BlobItems {
			if blob.Name == nil {
				continue
			}
			day, ok := archiveDay(*blob.Name)
			if !ok || !day.Before(cutoff) {
				continue
			}

			if _, err := a.client.DeleteBlob(ctx, a.containerName, *blob.Name, nil); err != nil {
				logrus.Errorf("Failed to delete archive %s: %v", *blob.Name, err)
				continue
			}
			deleted++
		}
	}

	if deleted > 0 {
		logrus.Infof("Deleted %d expired archives", deleted)
	}
	return deleted, nil
}

// archiveDay parses the date partition out of an archive blob name.
func archiveDay(name string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, archivePrefix)
	if !ok {
		return time.Time{}, false
	}
	day, _, ok := strings.Cut(rest, "/")
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(archiveDateLayout, day)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
