package printer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"octoprint-cli/internal/apperr"
	"octoprint-cli/internal/httpclient"
	"octoprint-cli/internal/logger"
)

const apiKeyHeader = "X-Api-Key"

var toolName = regexp.MustCompile(`^tool\d+$`)

type Client struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client
	upload  *httpclient.Client
	log     *logger.Logger
	now     func() time.Time
}

type Options struct {
	Timeout       time.Duration
	UploadTimeout time.Duration
	Logger        *logger.Logger
	HTTPClient    *http.Client
}

func NewClient(baseURL, apiKey string, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	hopts := []httpclient.Option{
		httpclient.WithHeader(apiKeyHeader, apiKey),
		httpclient.WithSecret(apiKey),
		httpclient.WithTimeout(opts.Timeout),
		httpclient.WithLogger(log),
	}
	if opts.HTTPClient != nil {
		hopts = append(hopts, httpclient.WithHTTPClient(opts.HTTPClient))
	}
	hc := httpclient.New("octoprint", baseURL, hopts...)
	uploadTimeout := opts.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 3 * hc.Timeout()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    hc,
		upload:  hc.WithTimeout(uploadTimeout),
		log:     log,
		now:     time.Now,
	}
}

func (c *Client) Version(ctx context.Context) (VersionResponse, error) {
	var v VersionResponse
	err := c.http.GetJSON(ctx, "/api/version", &v)
	return v, err
}

func (c *Client) Printer(ctx context.Context) (PrinterResponse, error) {
	var p PrinterResponse
	err := c.http.GetJSON(ctx, "/api/printer", &p)
	return p, err
}

func (c *Client) Job(ctx context.Context) (JobResponse, error) {
	var j JobResponse
	err := c.http.GetJSON(ctx, "/api/job", &j)
	return j, err
}

func (c *Client) Connection(ctx context.Context) (ConnectionResponse, error) {
	var conn ConnectionResponse
	err := c.http.GetJSON(ctx, "/api/connection", &conn)
	return conn, err
}

// RawStatus fetches printer, job and connection documents unmodified.
func (c *Client) RawStatus(ctx context.Context) (RawStatus, error) {
	var out RawStatus
	if err := c.http.GetJSON(ctx, "/api/printer", &out.Printer); err != nil {
		if apperr.StatusCode(err) != http.StatusConflict {
			return RawStatus{}, err
		}
		out.Printer = json.RawMessage(`null`)
	}
	if err := c.http.GetJSON(ctx, "/api/job", &out.Job); err != nil {
		return RawStatus{}, err
	}
	if err := c.http.GetJSON(ctx, "/api/connection", &out.Connection); err != nil {
		return RawStatus{}, err
	}
	return out, nil
}

// Snapshot reads printer, job and connection state. A 409 from /api/printer
// means the serial link is down and yields an offline snapshot.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	job, err := c.Job(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	var connPtr *ConnectionResponse
	if conn, err := c.Connection(ctx); err == nil {
		connPtr = &conn
	} else {
		c.log.Debugw("connection info unavailable", "err", err)
	}

	p, err := c.Printer(ctx)
	if err != nil {
		if apperr.StatusCode(err) == http.StatusConflict {
			return OfflineSnapshot(&job, connPtr, c.now()), nil
		}
		return Snapshot{}, err
	}
	return BuildSnapshot(p.State, p.Temperature, &job, connPtr, c.now()), nil
}

type File struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Origin string `json:"origin"`
	Size   *int64 `json:"size,omitempty"`
	Date   *int64 `json:"date,omitempty"`
}

// Files lists every printable file, flattening folders into paths.
func (c *Client) Files(ctx context.Context) ([]File, error) {
	var resp FilesResponse
	if err := c.http.GetJSON(ctx, "/api/files?recursive=true", &resp); err != nil {
		return nil, err
	}
	files := FlattenFiles(resp.Files, "")
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func FlattenFiles(entries []FileEntry, prefix string) []File {
	var out []File
	for _, e := range entries {
		if e.Type == "folder" {
			out = append(out, FlattenFiles(e.Children, prefix+e.Name+"/")...)
			continue
		}
		path := e.Path
		if path == "" {
			path = prefix + e.Name
		}
		out = append(out, File{Name: e.Name, Path: path, Origin: e.Origin, Size: e.Size, Date: e.Date})
	}
	return out
}

// Upload sends a local file to OctoPrint's local storage under name.
func (c *Client) Upload(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", &apperr.FileError{Path: localPath, Err: err}
	}
	defer f.Close()
	if name == "" {
		name = filepath.Base(localPath)
	}
	return c.UploadReader(ctx, f, name)
}

func (c *Client) UploadReader(ctx context.Context, r io.Reader, name string) (string, error) {
	var resp UploadResponse
	err := c.upload.PostMultipart(ctx, "/api/files/local", nil, httpclient.FilePart{
		Field:    "file",
		Filename: name,
		Reader:   r,
	}, &resp)
	if err != nil {
		return "", err
	}
	if local, ok := resp.Files["local"]; ok && local.Path != "" {
		return local.Path, nil
	}
	return name, nil
}

// StartPrint selects a file from local storage and starts the job.
func (c *Client) StartPrint(ctx context.Context, path string) error {
	if err := c.http.PostJSON(ctx, "/api/files/local/"+escapePath(path), PayloadSelect(false), nil); err != nil {
		return fmt.Errorf("select %s: %w", path, err)
	}
	if err := c.http.PostJSON(ctx, "/api/job", PayloadJobStart(), nil); err != nil {
		return fmt.Errorf("start print: %w", err)
	}
	return nil
}

func (c *Client) Control(ctx context.Context, cmd JobCommand) error {
	return c.http.PostJSON(ctx, "/api/job", PayloadJob(cmd), nil)
}

var errHeaterName = errors.New("heater must be bed, chamber or tool<N>")

func ValidateHeater(name string) error {
	if name == "bed" || name == "chamber" || toolName.MatchString(name) {
		return nil
	}
	return fmt.Errorf("%w, got %q", errHeaterName, name)
}

// SetTarget sets a heater target temperature in °C.
func (c *Client) SetTarget(ctx context.Context, heater string, target float64) error {
	if err := ValidateHeater(heater); err != nil {
		return err
	}
	switch heater {
	case "bed":
		return c.http.PostJSON(ctx, "/api/printer/bed", PayloadTarget(target), nil)
	case "chamber":
		return c.http.PostJSON(ctx, "/api/printer/chamber", PayloadTarget(target), nil)
	default:
		return c.http.PostJSON(ctx, "/api/printer/tool", PayloadToolTarget(heater, target), nil)
	}
}

func (c *Client) login(ctx context.Context) (LoginResponse, error) {
	var resp LoginResponse
	err := c.http.PostJSON(ctx, "/api/login", PayloadPassiveLogin(), &resp)
	if err == nil && resp.Session == "" {
		err = errors.New("octoprint login returned no session")
	}
	return resp, err
}

func escapePath(p string) string {
	parts := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
