package thsr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"thsr-receipts/lib/restyutil"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

var pdfMagic = []byte("%PDF-")

// NewHttpClient creates the client receipts are downloaded with when the
// results page links to them directly.
func NewHttpClient(cloudflareBypass bool) *resty.Client {
	client := resty.New()
	if cloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeader("user-agent", UserAgent)
	client.SetTimeout(time.Second * 30)

	restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)
	return client
}

func (c *Client) downloadDirect(ctx context.Context, link string, cookies []*http.Cookie) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "downloadDirect")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetCookies(cookies).
		SetHeader("accept", "application/pdf,*/*").
		Get(link)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("download responded with %s", res.Status())
	}

	body := res.Body()
	contentType := res.Header().Get("Content-Type")
	if !bytes.HasPrefix(body, pdfMagic) && !strings.Contains(contentType, "pdf") {
		return nil, fmt.Errorf("%w: got %q (%d bytes)", ErrNotReceipt, contentType, len(body))
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}
