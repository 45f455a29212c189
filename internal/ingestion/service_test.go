package ingestion

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/invoice-review/pkg/db"
	"github.com/angelmondragon/invoice-review/pkg/db/dbtest"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/outbox"
	"github.com/angelmondragon/invoice-review/pkg/storage/gcs"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
)

type fakeStore struct {
	objects   map[string][]byte
	uploadErr func(path string) error
	signErr   error
}

func (f *fakeStore) Upload(ctx context.Context, objectPath, contentType string, data []byte) (*gcs.ObjectInfo, error) {
	if f.uploadErr != nil {
		if err := f.uploadErr(objectPath); err != nil {
			return nil, err
		}
	}
	f.objects[objectPath] = data
	return &gcs.ObjectInfo{Bucket: "staging", Path: objectPath, ContentType: contentType, Size: int64(len(data))}, nil
}

func (f *fakeStore) SignedReadURL(objectPath string, expiry time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://signed.example/" + objectPath + "?expires=" + expiry.String(), nil
}

func newTestService(t *testing.T, conn *gorm.DB, store *fakeStore) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Tx:          db.Wrap(conn),
		Store:       store,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logg),
		Bucket:      "staging",
		StagePrefix: "invoices",
		URLExpiry:   6 * time.Minute,
		MaxBytes:    1 << 20,
		Logger:      logg,
		Clock:       func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc
}

func countRows(t *testing.T, conn *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Raw(query, args...).Scan(&n).Error)
	return n
}

func TestUploadStagesDocumentAndQueuesEvent(t *testing.T) {
	conn := dbtest.Open(t)
	store := &fakeStore{objects: map[string][]byte{}}
	svc := newTestService(t, conn, store)

	results, err := svc.Upload(context.Background(), "alice", []File{{Name: "invoice_42.pdf", Data: pdfBytes}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[0]
	require.True(t, res.Uploaded, res.Error)
	require.Equal(t, "invoices/invoice_42.pdf", res.ObjectPath)
	require.Equal(t, "application/pdf", res.ContentType)
	require.Equal(t, "https://signed.example/invoices/invoice_42.pdf?expires=6m0s", res.SignedURL)
	require.Contains(t, store.objects, "invoices/invoice_42.pdf")

	doc, err := NewRepository(conn).StagedDocument(context.Background(), "invoice_42.pdf")
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Equal(t, "alice", doc.UploadedBy)
	require.EqualValues(t, len(pdfBytes), doc.SizeBytes)
	require.EqualValues(t, 1, countRows(t, conn, `SELECT COUNT(*) FROM outbox_events WHERE event_type = 'document_uploaded' AND aggregate_id = ?`, "invoice_42.pdf"))
}

func TestUploadOverwritesSameFileName(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, &fakeStore{objects: map[string][]byte{}})
	ctx := context.Background()

	_, err := svc.Upload(ctx, "alice", []File{{Name: "scan.png", Data: pngBytes}})
	require.NoError(t, err)
	results, err := svc.Upload(ctx, "bob", []File{{Name: "scan.png", Data: pngBytes}})
	require.NoError(t, err)
	require.True(t, results[0].Uploaded)

	require.EqualValues(t, 1, countRows(t, conn, `SELECT COUNT(*) FROM staged_documents`))
	doc, err := NewRepository(conn).StagedDocument(ctx, "scan.png")
	require.NoError(t, err)
	require.Equal(t, "bob", doc.UploadedBy)
	require.EqualValues(t, 2, countRows(t, conn, `SELECT COUNT(*) FROM outbox_events`))
}

func TestUploadReportsPerFileFailures(t *testing.T) {
	conn := dbtest.Open(t)
	store := &fakeStore{
		objects: map[string][]byte{},
		uploadErr: func(path string) error {
			if strings.HasSuffix(path, "broken.pdf") {
				return errors.New("bucket unavailable")
			}
			return nil
		},
	}
	svc := newTestService(t, conn, store)

	results, err := svc.Upload(context.Background(), "alice", []File{
		{Name: "notes.txt", Data: []byte("hello")},
		{Name: "fake.pdf", Data: []byte("just text")},
		{Name: "broken.pdf", Data: pdfBytes},
		{Name: "empty.png", Data: nil},
		{Name: "../../etc/good.png", Data: pngBytes},
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	require.False(t, results[0].Uploaded)
	require.Contains(t, results[0].Error, "unsupported file type")
	require.False(t, results[1].Uploaded)
	require.Contains(t, results[1].Error, "extension is .pdf")
	require.False(t, results[2].Uploaded)
	require.Contains(t, results[2].Error, "bucket unavailable")
	require.False(t, results[3].Uploaded)
	require.True(t, results[4].Uploaded, results[4].Error)
	require.Equal(t, "invoices/good.png", results[4].ObjectPath)

	require.EqualValues(t, 1, countRows(t, conn, `SELECT COUNT(*) FROM staged_documents`))
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, &fakeStore{objects: map[string][]byte{}})

	big := append([]byte{}, pdfBytes...)
	big = append(big, make([]byte, 1<<20)...)
	results, err := svc.Upload(context.Background(), "alice", []File{{Name: "big.pdf", Data: big}})
	require.NoError(t, err)
	require.False(t, results[0].Uploaded)
	require.Contains(t, results[0].Error, "limit")
}

func TestUploadKeepsStagedFileWhenSigningFails(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, &fakeStore{objects: map[string][]byte{}, signErr: errors.New("no signer")})

	results, err := svc.Upload(context.Background(), "alice", []File{{Name: "a.pdf", Data: pdfBytes}})
	require.NoError(t, err)
	require.True(t, results[0].Uploaded)
	require.Empty(t, results[0].SignedURL)
	require.NotEmpty(t, results[0].Warning)
}

func TestUploadRecordFailureIsReported(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.DropTable(t, conn, "outbox_events")
	svc := newTestService(t, conn, &fakeStore{objects: map[string][]byte{}})

	results, err := svc.Upload(context.Background(), "alice", []File{{Name: "a.pdf", Data: pdfBytes}})
	require.NoError(t, err)
	require.False(t, results[0].Uploaded)
	require.EqualValues(t, 0, countRows(t, conn, `SELECT COUNT(*) FROM staged_documents`))
}

func TestUploadRequiresFiles(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, &fakeStore{objects: map[string][]byte{}})
	_, err := svc.Upload(context.Background(), "alice", nil)
	require.Error(t, err)
}
