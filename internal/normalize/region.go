package normalize

import (
	"regexp"
	"strings"
)

var provinceNames = map[string]string{
	"11": "서울특별시",
	"26": "부산광역시",
	"27": "대구광역시",
	"28": "인천광역시",
	"29": "광주광역시",
	"30": "대전광역시",
	"31": "울산광역시",
	"36": "세종특별자치시",
	"41": "경기도",
	"42": "강원도",
	"43": "충청북도",
	"44": "충청남도",
	"45": "전라북도",
	"46": "전라남도",
	"47": "경상북도",
	"48": "경상남도",
	"50": "제주특별자치도",
	"51": "강원도",
}

var detailedNames = map[string]string{
	"11110": "서울특별시 종로구",
	"11140": "서울특별시 중구",
	"11170": "서울특별시 용산구",
	"11650": "서울특별시 서초구",
	"11680": "서울특별시 강남구",
	"11710": "서울특별시 송파구",
	"26110": "부산광역시 중구",
	"26350": "부산광역시 해운대구",
	"26440": "부산광역시 강서구",
	"27110": "대구광역시 중구",
	"27290": "대구광역시 달서구",
	"28110": "인천광역시 중구",
	"28185": "인천광역시 연수구",
	"29110": "광주광역시 동구",
	"29200": "광주광역시 광산구",
	"30110": "대전광역시 동구",
	"30200": "대전광역시 유성구",
	"31110": "울산광역시 중구",
	"36110": "세종특별자치시",
	"41110": "경기도 수원시",
	"41130": "경기도 성남시",
	"41280": "경기도 고양시",
	"41460": "경기도 용인시",
	"41590": "경기도 화성시",
	"42110": "강원도 춘천시",
	"42130": "강원도 원주시",
	"43110": "충청북도 청주시",
	"43130": "충청북도 충주시",
	"44130": "충청남도 천안시",
	"44200": "충청남도 아산시",
	"45110": "전라북도 전주시",
	"45130": "전라북도 군산시",
	"45730": "전라북도 임실군",
	"46110": "전라남도 목포시",
	"46130": "전라남도 여수시",
	"46150": "전라남도 순천시",
	"47110": "경상북도 포항시",
	"47130": "경상북도 경주시",
	"47190": "경상북도 구미시",
	"48120": "경상남도 창원시",
	"48125": "경상남도 창원시 마산합포구",
	"48170": "경상남도 진주시",
	"48250": "경상남도 김해시",
	"50110": "제주특별자치도 제주시",
	"50130": "제주특별자치도 서귀포시",
	"51110": "강원도 춘천시",
	"51130": "강원도 원주시",
	"51150": "강원도 강릉시",
}

type titleKeyword struct {
	keyword   string
	canonical string
}

// Full names are listed before abbreviations so a title that spells the
// name out never resolves through a shorter, looser keyword.
var titleKeywords = []titleKeyword{
	{"서울특별시", "서울특별시"},
	{"부산광역시", "부산광역시"},
	{"대구광역시", "대구광역시"},
	{"인천광역시", "인천광역시"},
	{"광주광역시", "광주광역시"},
	{"대전광역시", "대전광역시"},
	{"울산광역시", "울산광역시"},
	{"세종특별자치시", "세종특별자치시"},
	{"제주특별자치도", "제주특별자치도"},
	{"경기도", "경기도"},
	{"강원도", "강원도"},
	{"강원특별자치도", "강원도"},
	{"충청북도", "충청북도"},
	{"충청남도", "충청남도"},
	{"전라북도", "전라북도"},
	{"전북특별자치도", "전라북도"},
	{"전라남도", "전라남도"},
	{"경상북도", "경상북도"},
	{"경상남도", "경상남도"},
	{"제주도", "제주특별자치도"},
	{"서울", "서울특별시"},
	{"부산", "부산광역시"},
	{"대구", "대구광역시"},
	{"인천", "인천광역시"},
	{"광주", "광주광역시"},
	{"대전", "대전광역시"},
	{"울산", "울산광역시"},
	{"세종", "세종특별자치시"},
	{"제주", "제주특별자치도"},
	{"경기", "경기도"},
	{"강원", "강원도"},
	{"충북", "충청북도"},
	{"충남", "충청남도"},
	{"전북", "전라북도"},
	{"전남", "전라남도"},
	{"경북", "경상북도"},
	{"경남", "경상남도"},
}

const (
	doNames    = `제주특별자치도|강원특별자치도|전북특별자치도|경기도|강원도|충청북도|충청남도|전라북도|전라남도|경상북도|경상남도|제주도`
	metroNames = `서울특별시|부산광역시|대구광역시|인천광역시|광주광역시|대전광역시|울산광역시|세종특별자치시`
	cityNames  = `수원시|성남시|고양시|용인시|부천시|안산시|안양시|남양주시|화성시|평택시|의정부시|시흥시|파주시|김포시|` +
		`광명시|군포시|하남시|오산시|이천시|안성시|의왕시|양주시|구리시|포천시|여주시|동두천시|과천시|` +
		`춘천시|원주시|강릉시|동해시|태백시|속초시|삼척시|청주시|충주시|제천시|천안시|공주시|보령시|아산시|` +
		`서산시|논산시|계룡시|당진시|전주시|군산시|익산시|정읍시|남원시|김제시|목포시|여수시|순천시|나주시|` +
		`광양시|포항시|경주시|김천시|안동시|구미시|영주시|영천시|상주시|문경시|경산시|창원시|진주시|통영시|` +
		`사천시|김해시|밀양시|거제시|양산시|제주시|서귀포시`
)

// Word-boundary guards stand in for lookarounds, which RE2 lacks.
var (
	provinceUnitRe = regexp.MustCompile(`((?:` + doNames + `)\s+([가-힣]+[시군구]))(?:[^가-힣]|$)`)
	metroUnitRe    = regexp.MustCompile(`((?:` + metroNames + `)\s+([가-힣]+구))(?:[^가-힣]|$)`)
	standaloneRe   = regexp.MustCompile(`^[가-힣]{1,4}[시군]$`)
	cityRe         = regexp.MustCompile(cityNames)
	doRe           = regexp.MustCompile(doNames)
	metroRe        = regexp.MustCompile(metroNames)
)

// Common words that end in 시 or 군 without naming a place.
var notUnits = map[string]bool{
	"즉시": true, "상시": true, "수시": true, "동시": true, "당시": true, "도시": true,
	"게시": true, "공시": true, "표시": true, "제시": true, "지시": true, "일시": true,
	"개시": true, "역시": true, "감시": true, "무시": true, "명시": true, "임시": true,
	"군": true, "육군": true, "해군": true, "공군": true, "국군": true, "장군": true,
}

// ResolveRegion maps an upstream area code to a region name, falling back to
// keywords in the title and then to patterns in the body text. Precedence is
// detailed code, province code, title keyword, body pattern, then Unknown.
func ResolveRegion(code, title, body string) string {
	if name := regionFromCode(code); name != "" {
		return name
	}
	if name := RegionFromTitle(title); name != "" {
		return name
	}
	if name := RegionFromBody(body); name != "" {
		return name
	}
	return Unknown
}

func regionFromCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if name, ok := detailedNames[code]; ok {
		return name
	}
	if len(code) >= 2 {
		if name, ok := provinceNames[code[:2]]; ok {
			return name
		}
	}
	return ""
}

// ProvinceName returns the province-level name for a 2-digit code, or "".
func ProvinceName(code string) string {
	return provinceNames[strings.TrimSpace(code)]
}

// ProvinceCodes returns every 2-digit code known to the province table.
func ProvinceCodes() []string {
	codes := make([]string, 0, len(provinceNames))
	for c := range provinceNames {
		codes = append(codes, c)
	}
	return codes
}

// DetailedName returns the province + district name for a detailed code, or "".
func DetailedName(code string) string {
	return detailedNames[strings.TrimSpace(code)]
}

// DetailedCodes returns every code known to the detailed table.
func DetailedCodes() []string {
	codes := make([]string, 0, len(detailedNames))
	for c := range detailedNames {
		codes = append(codes, c)
	}
	return codes
}

// RegionFromTitle returns the canonical region for the first keyword found
// in title, or "".
func RegionFromTitle(title string) string {
	title = Clean(title)
	if title == "" {
		return ""
	}
	for _, k := range titleKeywords {
		if strings.Contains(title, k.keyword) {
			return k.canonical
		}
	}
	return ""
}

// RegionFromBody returns the region as written in body, or "". Matchers are
// tried in order and the first with a match wins regardless of match length:
// province + unit, metro + district, standalone 시/군 word, known city name,
// bare province, bare metro.
func RegionFromBody(body string) string {
	body = Clean(body)
	if body == "" {
		return ""
	}
	for _, match := range []func(string) string{
		unitMatcher(provinceUnitRe),
		unitMatcher(metroUnitRe),
		standaloneUnit,
		cityRe.FindString,
		doRe.FindString,
		metroRe.FindString,
	} {
		if m := match(body); m != "" {
			return strings.Join(strings.Fields(m), " ")
		}
	}
	return ""
}

// unitMatcher returns the first "name unit" match of re whose unit word is a
// real administrative unit.
func unitMatcher(re *regexp.Regexp) func(string) string {
	return func(body string) string {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			if !notUnits[m[2]] {
				return m[1]
			}
		}
		return ""
	}
}

// standaloneUnit returns the first whole word that looks like a 시 or 군.
func standaloneUnit(body string) string {
	words := strings.FieldsFunc(body, func(r rune) bool { return r < '가' || r > '힣' })
	for _, w := range words {
		if standaloneRe.MatchString(w) && !notUnits[w] && !isMetroWord(w) {
			return w
		}
	}
	return ""
}

func isMetroWord(w string) bool {
	return strings.HasSuffix(w, "특별시") || strings.HasSuffix(w, "광역시")
}
