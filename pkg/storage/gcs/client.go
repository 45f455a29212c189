package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"google.golang.org/api/option"
)

const pingTimeout = 5 * time.Second

var (
	ErrObjectNotFound       = errors.New("object not found")
	errClientNotInitialized = errors.New("gcs client not initialized")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Bucket      string
	Path        string
	ContentType string
	Size        int64
	Updated     time.Time
}

type Client struct {
	client        *storage.Client
	bucket        *storage.BucketHandle
	defaultBucket string
	signer        *serviceAccountInfo
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// serviceAccountInfo signs URLs locally when key material is configured;
// otherwise the SDK signs through the IAM credentials API.
type serviceAccountInfo struct {
	clientEmail string
	privateKey  []byte
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	credJSON, err := gcp.CredentialBytes()
	if err != nil {
		return nil, err
	}
	var (
		opts   []option.ClientOption
		signer *serviceAccountInfo
	)
	if credJSON != nil {
		if signer, err = parseServiceAccount(credJSON); err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentialsJSON(credJSON))
	}

	sc, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	client := &Client{
		client:        sc,
		bucket:        sc.Bucket(cfg.BucketName),
		defaultBucket: cfg.BucketName,
		signer:        signer,
	}

	if err := client.Ping(ctx); err != nil {
		_ = sc.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}

	return client, nil
}

func parseServiceAccount(raw []byte) (*serviceAccountInfo, error) {
	var creds struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}
	if creds.Type != "" && creds.Type != "service_account" {
		return nil, nil
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, errors.New("invalid service account credentials")
	}
	return &serviceAccountInfo{
		clientEmail: creds.ClientEmail,
		privateKey:  []byte(strings.ReplaceAll(creds.PrivateKey, `\n`, "\n")),
	}, nil
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Ping checks the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.bucket == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("bucket %q: %w", c.defaultBucket, err)
	}
	return nil
}

// Upload writes data to objectPath, replacing any existing object.
func (c *Client) Upload(ctx context.Context, objectPath, contentType string, data []byte) (*ObjectInfo, error) {
	if c == nil || c.bucket == nil {
		return nil, errClientNotInitialized
	}
	objectPath = strings.TrimLeft(objectPath, "/")
	if objectPath == "" {
		return nil, errors.New("object path is required")
	}

	w := c.bucket.Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("writing %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing %s: %w", objectPath, err)
	}

	info := &ObjectInfo{
		Bucket:      c.defaultBucket,
		Path:        objectPath,
		ContentType: contentType,
		Size:        int64(len(data)),
	}
	if attrs := w.Attrs(); attrs != nil {
		info.Size = attrs.Size
		info.Updated = attrs.Updated
	}
	return info, nil
}

// Download reads the whole object.
func (c *Client) Download(ctx context.Context, objectPath string) ([]byte, error) {
	if c == nil || c.bucket == nil {
		return nil, errClientNotInitialized
	}
	r, err := c.bucket.Object(strings.TrimLeft(objectPath, "/")).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", objectPath, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("opening %s: %w", objectPath, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", objectPath, err)
	}
	return data, nil
}

// SignedReadURL returns a V4 signed GET URL valid for expiry.
func (c *Client) SignedReadURL(objectPath string, expiry time.Duration) (string, error) {
	if c == nil {
		return "", errClientNotInitialized
	}
	if expiry <= 0 {
		return "", errors.New("signed url expiry must be positive")
	}
	opts := signedReadOptions(expiry, time.Now())
	objectPath = strings.TrimLeft(objectPath, "/")
	if c.signer != nil {
		opts.GoogleAccessID = c.signer.clientEmail
		opts.PrivateKey = c.signer.privateKey
		return storage.SignedURL(c.defaultBucket, objectPath, opts)
	}
	if c.bucket == nil {
		return "", errClientNotInitialized
	}
	return c.bucket.SignedURL(objectPath, opts)
}

func signedReadOptions(expiry time.Duration, now time.Time) *storage.SignedURLOptions {
	return &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: now.Add(expiry),
	}
}

// ObjectPath places fileName under the staging prefix.
func ObjectPath(prefix, fileName string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return ""
	}
	fileName = path.Base(fileName)
	if prefix == "" {
		return fileName
	}
	return prefix + "/" + fileName
}
