package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const (
	metadataCheckTimeout = 10 * time.Second

	defaultTemperature     = 0.2
	defaultMaxOutputTokens = 1024
)

type Client struct {
	client    *bigquery.Client
	dataset   *bigquery.Dataset
	projectID string
	cfg       config.BigQueryConfig
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errModelRequired        = errors.New("bigquery completion model is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")

	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

type Pinger interface {
	Ping(context.Context) error
}

// NewClient connects and confirms the dataset and completion model exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	case strings.TrimSpace(cfg.CompletionModel) == "":
		return nil, errModelRequired
	}

	opts, err := gcp.ClientOptions()
	if err != nil {
		return nil, err
	}
	bqClient, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	bqClient.Location = strings.TrimSpace(cfg.Location)

	client := &Client{
		client:    bqClient,
		dataset:   bqClient.Dataset(datasetID),
		projectID: projectID,
		cfg:       cfg,
	}
	if err := client.Ping(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"dataset": datasetID,
		"model":   cfg.CompletionModel,
	}), "bigquery client initialized")
	return client, nil
}

// mustExist turns a metadata lookup into a readable startup error.
func mustExist(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Ping verifies the dataset and completion model are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	_, err := c.dataset.Metadata(ctx)
	if err := mustExist("dataset", c.dataset.DatasetID, err); err != nil {
		return err
	}
	model := strings.TrimSpace(c.cfg.CompletionModel)
	_, err = c.dataset.Model(model).Metadata(ctx)
	return mustExist("model", model, err)
}

// Complete runs ML.GENERATE_TEXT against the named remote model in the
// configured dataset. The prompt is bound as a query parameter.
func (c *Client) Complete(ctx context.Context, model, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", errClientNotInitialized
	}
	sql, err := generateTextSQL(c.projectID, c.dataset.DatasetID, model)
	if err != nil {
		return "", err
	}

	it, err := c.Query(ctx, sql, []bigquery.QueryParameter{
		{Name: "prompt", Value: prompt},
		{Name: "temperature", Value: defaultTemperature},
		{Name: "max_output_tokens", Value: defaultMaxOutputTokens},
	})
	if err != nil {
		return "", fmt.Errorf("run completion: %w", err)
	}

	var row struct {
		Text   bigquery.NullString `bigquery:"text"`
		Status bigquery.NullString `bigquery:"status"`
	}
	err = it.Next(&row)
	if errors.Is(err, iterator.Done) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read completion: %w", err)
	}
	if row.Status.Valid && strings.TrimSpace(row.Status.StringVal) != "" {
		return "", fmt.Errorf("completion status: %s", row.Status.StringVal)
	}
	if !row.Text.Valid {
		return "", nil
	}
	return strings.TrimSpace(row.Text.StringVal), nil
}

func generateTextSQL(projectID, datasetID, model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errModelRequired
	}
	for _, part := range []string{datasetID, model} {
		if !identifierPattern.MatchString(part) {
			return "", fmt.Errorf("invalid bigquery identifier %q", part)
		}
	}
	return fmt.Sprintf(
		"SELECT ml_generate_text_llm_result AS text, ml_generate_text_status AS status "+
			"FROM ML.GENERATE_TEXT(MODEL `%s.%s.%s`, (SELECT @prompt AS prompt), "+
			"STRUCT(@temperature AS temperature, @max_output_tokens AS max_output_tokens, TRUE AS flatten_json_output))",
		projectID, datasetID, model,
	), nil
}

// Query executes SQL against BigQuery and returns the row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.client.Query(sql)
	q.Parameters = params
	return q.Read(ctx)
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
