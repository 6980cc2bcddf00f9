// Package upstream is the client for the public-sector recruitment open-data
// service. Responses are XML with a header result code; any code other than
// "00" means "no data" and is not an error.
package upstream

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/kalambet/naraboard/internal/apperr"
)

const (
	// DefaultBaseURL is the production service root.
	DefaultBaseURL = "http://openapi.mpm.go.kr/openapi/service/RetrievePblinsttEmpmnInfoService"

	successCode      = "00"
	maxResponseBytes = 8 << 20
	filesPerPosting  = 50
)

// ListItem is one row of a list page.
type ListItem struct {
	ID           string
	Title        string
	Department   string
	AreaCode     string
	RegisteredOn string
	ExpiresOn    string
	ReadCount    int
	TypeInfo     string
}

// Detail is the per-posting detail record.
type Detail struct {
	Title       string
	Body        string
	AreaName    string
	AreaCode    string
	WorkAddress string
}

// File describes one attachment as upstream reports it.
type File struct {
	Filename     string
	PathFragment string
	Size         string
}

// Position is the structured role/headcount pair.
type Position struct {
	RoleName  string
	Headcount string
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the open-data service.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client. Empty fields in opts fall back to defaults.
func New(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    base,
		serviceKey: opts.ServiceKey,
		httpClient: hc,
		logger:     slog.Default(),
	}
}

// rawItem is the union of every item shape the service returns.
type rawItem struct {
	Idx         string `xml:"idx"`
	Title       string `xml:"title"`
	DeptName    string `xml:"deptName"`
	RegDate     string `xml:"regdate"`
	EndDate     string `xml:"enddate"`
	ReadNum     string `xml:"readnum"`
	AreaCode    string `xml:"areaCode"`
	TypeInfo    string `xml:"typeinfo02"`
	Contents    string `xml:"contents"`
	AreaName    string `xml:"areaNm"`
	WorkAddress string `xml:"workAddr"`
	Filename    string `xml:"filename"`
	FilePath    string `xml:"filepath"`
	FileSize    string `xml:"filesize"`
	Position    string `xml:"positionName"`
	RecruitNum  string `xml:"recruitNum"`
}

type envelope struct {
	Header struct {
		ResultCode string `xml:"resultCode"`
		ResultMsg  string `xml:"resultMsg"`
	} `xml:"header"`
	// Gateway-level failures (bad key, quota) use a different header.
	ServiceHeader struct {
		ReasonCode string `xml:"returnReasonCode"`
		AuthMsg    string `xml:"returnAuthMsg"`
	} `xml:"cmmMsgHeader"`
	Body struct {
		Items      []rawItem `xml:"items>item"`
		Item       []rawItem `xml:"item"`
		TotalCount string    `xml:"totalCount"`
	} `xml:"body"`
}

func (e *envelope) items() []rawItem {
	if len(e.Body.Items) > 0 {
		return e.Body.Items
	}
	return e.Body.Item
}

// ListPage fetches one page of postings. A non-success result code yields an
// empty page.
func (c *Client) ListPage(ctx context.Context, page, size int) ([]ListItem, error) {
	params := url.Values{}
	params.Set("pageNo", strconv.Itoa(page))
	params.Set("numOfRows", strconv.Itoa(size))

	env, err := c.call(ctx, "getList", params)
	if err != nil || env == nil {
		return nil, err
	}

	items := env.items()
	out := make([]ListItem, 0, len(items))
	for _, it := range items {
		out = append(out, ListItem{
			ID:           strings.TrimSpace(it.Idx),
			Title:        strings.TrimSpace(it.Title),
			Department:   strings.TrimSpace(it.DeptName),
			AreaCode:     strings.TrimSpace(it.AreaCode),
			RegisteredOn: strings.TrimSpace(it.RegDate),
			ExpiresOn:    strings.TrimSpace(it.EndDate),
			ReadCount:    parseCount(it.ReadNum),
			TypeInfo:     strings.TrimSpace(it.TypeInfo),
		})
	}
	return out, nil
}

// GetDetail returns nil when upstream has no detail for id.
func (c *Client) GetDetail(ctx context.Context, id string) (*Detail, error) {
	env, err := c.call(ctx, "getItem", url.Values{"idx": {id}})
	if err != nil || env == nil {
		return nil, err
	}
	items := env.items()
	if len(items) == 0 {
		return nil, nil
	}
	it := items[0]
	return &Detail{
		Title:       strings.TrimSpace(it.Title),
		Body:        it.Contents,
		AreaName:    strings.TrimSpace(it.AreaName),
		AreaCode:    strings.TrimSpace(it.AreaCode),
		WorkAddress: strings.TrimSpace(it.WorkAddress),
	}, nil
}

// GetAttachments lists the files attached to id.
func (c *Client) GetAttachments(ctx context.Context, id string) ([]File, error) {
	params := url.Values{}
	params.Set("idx", id)
	params.Set("pageNo", "1")
	params.Set("numOfRows", strconv.Itoa(filesPerPosting))

	env, err := c.call(ctx, "getItemFile", params)
	if err != nil || env == nil {
		return nil, err
	}
	var out []File
	for _, it := range env.items() {
		if strings.TrimSpace(it.Filename) == "" && strings.TrimSpace(it.FilePath) == "" {
			continue
		}
		out = append(out, File{
			Filename:     strings.TrimSpace(it.Filename),
			PathFragment: strings.TrimSpace(it.FilePath),
			Size:         strings.TrimSpace(it.FileSize),
		})
	}
	return out, nil
}

// GetPosition returns nil when upstream has no position record for id.
func (c *Client) GetPosition(ctx context.Context, id string) (*Position, error) {
	env, err := c.call(ctx, "getItemPosition", url.Values{"idx": {id}})
	if err != nil || env == nil {
		return nil, err
	}
	items := env.items()
	if len(items) == 0 || strings.TrimSpace(items[0].Position) == "" {
		return nil, nil
	}
	return &Position{
		RoleName:  strings.TrimSpace(items[0].Position),
		Headcount: strings.TrimSpace(items[0].RecruitNum),
	}, nil
}

// Download fetches an absolute URL, reading at most maxBytes.
func (c *Client) Download(ctx context.Context, rawURL string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.InvalidInput(fmt.Sprintf("download url %q", rawURL), err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.UpstreamUnavailable("downloading attachment", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.UpstreamUnavailable(fmt.Sprintf("download: unexpected status %d", resp.StatusCode), nil)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBytes))
}

// call performs one request. A nil envelope with nil error means upstream
// answered with a non-success result code.
func (c *Client) call(ctx context.Context, endpoint string, params url.Values) (*envelope, error) {
	params.Set("ServiceKey", c.serviceKey)
	u := c.baseURL + "/" + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", endpoint, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.UpstreamUnavailable("requesting "+endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.UpstreamUnavailable(fmt.Sprintf("%s: unexpected status %d", endpoint, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.UpstreamUnavailable("reading "+endpoint+" response", err)
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, apperr.ParseFailure("decoding "+endpoint+" response", err)
	}

	code := strings.TrimSpace(env.Header.ResultCode)
	if code == "" && env.ServiceHeader.ReasonCode != "" {
		c.logger.Warn("upstream rejected request", "endpoint", endpoint,
			"reason", env.ServiceHeader.ReasonCode, "message", env.ServiceHeader.AuthMsg)
		return nil, nil
	}
	if code != "" && code != successCode {
		c.logger.Warn("upstream returned no data", "endpoint", endpoint,
			"code", code, "message", strings.TrimSpace(env.Header.ResultMsg))
		return nil, nil
	}
	return env, nil
}

func decodeEnvelope(body []byte) (*envelope, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func parseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
