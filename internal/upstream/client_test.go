package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/naraboard/internal/apperr"
)

const listXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<response>
  <header><resultCode>00</resultCode><resultMsg>NORMAL SERVICE.</resultMsg></header>
  <body>
    <items>
      <item>
        <idx>264837</idx>
        <title>2025년 국립마산병원 간호서기 채용</title>
        <deptName>국립마산병원</deptName>
        <regdate>2025-05-20</regdate>
        <enddate>2025-06-10</enddate>
        <readnum>42</readnum>
        <areaCode>48125</areaCode>
        <typeinfo02>경력경쟁</typeinfo02>
      </item>
      <item>
        <idx> 264900 </idx>
        <title>행정 9급</title>
        <readnum>n/a</readnum>
      </item>
    </items>
    <totalCount>2</totalCount>
  </body>
</response>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, ServiceKey: "test-key", Timeout: 2 * time.Second})
}

func TestListPage(t *testing.T) {
	var gotPath, gotKey, gotPage string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("ServiceKey")
		gotPage = r.URL.Query().Get("pageNo")
		w.Write([]byte(listXML))
	})

	items, err := c.ListPage(context.Background(), 3, 20)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if gotPath != "/getList" || gotKey != "test-key" || gotPage != "3" {
		t.Errorf("request path=%q key=%q page=%q", gotPath, gotKey, gotPage)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	first := items[0]
	if first.ID != "264837" || first.Department != "국립마산병원" || first.AreaCode != "48125" {
		t.Errorf("first = %+v", first)
	}
	if first.ReadCount != 42 || first.TypeInfo != "경력경쟁" {
		t.Errorf("ReadCount/TypeInfo = %d/%q", first.ReadCount, first.TypeInfo)
	}
	if items[1].ID != "264900" {
		t.Errorf("ID = %q, want trimmed 264900", items[1].ID)
	}
	if items[1].ReadCount != 0 {
		t.Errorf("ReadCount = %d, want 0 for unparseable value", items[1].ReadCount)
	}
}

func TestListPage_NonSuccessCodeIsNoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<response><header><resultCode>03</resultCode><resultMsg>NODATA_ERROR</resultMsg></header></response>`))
	})

	items, err := c.ListPage(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("len = %d, want 0", len(items))
	}
}

func TestListPage_ServiceKeyRejectedIsNoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<OpenAPI_ServiceResponse><cmmMsgHeader><errMsg>SERVICE ERROR</errMsg>` +
			`<returnAuthMsg>SERVICE_KEY_IS_NOT_REGISTERED_ERROR</returnAuthMsg><returnReasonCode>30</returnReasonCode>` +
			`</cmmMsgHeader></OpenAPI_ServiceResponse>`))
	})

	items, err := c.ListPage(context.Background(), 1, 20)
	if err != nil || items != nil {
		t.Errorf("ListPage = %v, %v; want nil, nil", items, err)
	}
}

func TestListPage_MalformedXML(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<response><header><resultCode>00</resultCode>`))
	})

	_, err := c.ListPage(context.Background(), 1, 20)
	if !apperr.Is(err, apperr.KindParseFailure) {
		t.Errorf("err = %v, want ParseFailure", err)
	}
}

func TestListPage_HTTPErrorIsUpstreamUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})

	_, err := c.ListPage(context.Background(), 1, 20)
	if !apperr.Is(err, apperr.KindUpstreamUnavailable) {
		t.Errorf("err = %v, want UpstreamUnavailable", err)
	}
}

func TestListPage_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(Options{BaseURL: base, Timeout: time.Second})
	_, err := c.ListPage(context.Background(), 1, 20)
	if !apperr.Is(err, apperr.KindUpstreamUnavailable) {
		t.Errorf("err = %v, want UpstreamUnavailable", err)
	}
}

func TestDecodeEnvelope_EUCKR(t *testing.T) {
	// "서울" encoded as EUC-KR.
	body := []byte("<?xml version=\"1.0\" encoding=\"EUC-KR\"?><response><header><resultCode>00</resultCode></header>" +
		"<body><items><item><idx>1</idx><title>\xbc\xad\xbf\xef</title></item></items></body></response>")

	env, err := decodeEnvelope(body)
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if got := env.items()[0].Title; got != "서울" {
		t.Errorf("Title = %q, want %q", got, "서울")
	}
}

func TestGetDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getItem" || r.URL.Query().Get("idx") != "264837" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`<response><header><resultCode>00</resultCode></header><body><item>` +
			`<title>간호서기 채용</title><contents><![CDATA[<p>근무지: 경상남도 창원시</p>]]></contents>` +
			`<areaNm>경상남도</areaNm><areaCode>48</areaCode><workAddr>창원시 마산합포구</workAddr>` +
			`</item></body></response>`))
	})

	d, err := c.GetDetail(context.Background(), "264837")
	if err != nil {
		t.Fatalf("GetDetail: %v", err)
	}
	if d == nil {
		t.Fatal("GetDetail returned nil")
	}
	if !strings.Contains(d.Body, "경상남도 창원시") || d.AreaName != "경상남도" || d.WorkAddress != "창원시 마산합포구" {
		t.Errorf("detail = %+v", d)
	}
}

func TestGetDetail_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<response><header><resultCode>00</resultCode></header><body><items></items></body></response>`))
	})

	d, err := c.GetDetail(context.Background(), "x")
	if err != nil || d != nil {
		t.Errorf("GetDetail = %+v, %v; want nil, nil", d, err)
	}
}

func TestGetAttachments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("numOfRows") != "50" {
			t.Errorf("numOfRows = %q", r.URL.Query().Get("numOfRows"))
		}
		w.Write([]byte(`<response><header><resultCode>00</resultCode></header><body><items>` +
			`<item><filename>공고문.hwp</filename><filepath>/cmm/fileDownload.do?id=7</filepath><filesize>1024</filesize></item>` +
			`<item><filename></filename><filepath></filepath></item>` +
			`</items></body></response>`))
	})

	files, err := c.GetAttachments(context.Background(), "1")
	if err != nil {
		t.Fatalf("GetAttachments: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("len = %d, want 1 (blank rows skipped)", len(files))
	}
	if files[0].Filename != "공고문.hwp" || files[0].Size != "1024" {
		t.Errorf("file = %+v", files[0])
	}
}

func TestGetPosition(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<response><header><resultCode>00</resultCode></header><body><items>` +
			`<item><positionName>간호서기</positionName><recruitNum>4</recruitNum></item>` +
			`</items></body></response>`))
	})

	p, err := c.GetPosition(context.Background(), "264837")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if p == nil || p.RoleName != "간호서기" || p.Headcount != "4" {
		t.Errorf("position = %+v", p)
	}
}

func TestDownload_Capped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	})

	b, err := c.Download(context.Background(), c.baseURL+"/file", 10)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(b) != 10 {
		t.Errorf("len = %d, want 10", len(b))
	}
}
