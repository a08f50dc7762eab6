package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"octoprint-cli/internal/httpclient"
	"octoprint-cli/internal/logger"
)

var (
	jpegStart = []byte{0xff, 0xd8}
	pngStart  = []byte{0x89, 'P', 'N', 'G'}
)

type WebcamClient struct {
	url  string
	http *httpclient.Client
}

func NewWebcamClient(snapshotURL string, timeout time.Duration, log *logger.Logger, hc *http.Client) *WebcamClient {
	opts := []httpclient.Option{httpclient.WithTimeout(timeout), httpclient.WithLogger(log)}
	if hc != nil {
		opts = append(opts, httpclient.WithHTTPClient(hc))
	}
	return &WebcamClient{
		url:  snapshotURL,
		http: httpclient.New("webcam", "", opts...),
	}
}

// Snapshot fetches one frame and returns it with a file extension that
// matches its content.
func (c *WebcamClient) Snapshot(ctx context.Context) ([]byte, string, error) {
	img, contentType, err := c.http.GetBytes(ctx, c.url)
	if err != nil {
		return nil, "", err
	}
	if len(img) == 0 {
		return nil, "", errors.New("webcam returned an empty frame")
	}
	if strings.HasPrefix(contentType, "text/") {
		return nil, "", fmt.Errorf("webcam returned %s instead of an image", contentType)
	}
	return img, ImageExt(img), nil
}

func ImageExt(img []byte) string {
	switch {
	case bytes.HasPrefix(img, pngStart):
		return ".png"
	case bytes.HasPrefix(img, jpegStart):
		return ".jpg"
	default:
		return ".jpg"
	}
}
