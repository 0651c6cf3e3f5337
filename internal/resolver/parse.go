package resolver

import (
	"errors"
	"html"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/tanq16/teraleech/internal/utils"
	"github.com/tidwall/gjson"
)

var errMalformed = errors.New("malformed JSON response")
var errNoLink = errors.New("response has no direct link")

var nameKeys = []string{"filename", "servername", "serverfilename", "name", "title", "fname", "file"}
var linkKeys = []string{"directlink", "directdownloadlink", "downloadlink", "fastdownloadlink", "dlink", "downloadurl", "directurl", "fastlink", "download", "link", "url"}
var sizeKeys = []string{"size", "filesize", "sizebytes", "bytes", "contentlength", "length"}
var nestKeys = []string{"result", "data", "response", "file", "info", "payload"}
var listKeys = map[string]bool{"files": true, "list": true, "items": true, "contents": true, "entries": true, "data": true, "result": true}

var urlRegex = regexp.MustCompile(`https?://[^\s"'<>\\]+`)
var sizeRegex = regexp.MustCompile(`(?i)^\s*([\d.]+)\s*([kmgt]?i?b?)\s*$`)

// ParseSingle handles the primary backend: one JSON object, possibly wrapped
// in result/data and possibly keyed with decorated labels such as
// "📄 File Name". Anything that is not valid JSON is an error.
func ParseSingle(body []byte) ([]utils.FileDescriptor, error) {
	if !gjson.ValidBytes(body) {
		return nil, errMalformed
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, errMalformed
	}
	for _, obj := range objects(root, 2) {
		if fd, ok := descriptorFrom(obj); ok {
			return []utils.FileDescriptor{fd}, nil
		}
	}
	return nil, errNoLink
}

// ParseLoose handles the secondary backend, which answers for files and
// folders alike: a JSON array of entries, an object holding such an array, a
// single object, or as a last resort any text containing a link.
func ParseLoose(body []byte) ([]utils.FileDescriptor, error) {
	if gjson.ValidBytes(body) {
		root := gjson.ParseBytes(body)
		if files := listFrom(root, 3); len(files) > 0 {
			return files, nil
		}
		if root.IsObject() {
			for _, obj := range objects(root, 2) {
				if fd, ok := descriptorFrom(obj); ok {
					return []utils.FileDescriptor{fd}, nil
				}
			}
		}
	}
	if fd, ok := FromText(string(body)); ok {
		return []utils.FileDescriptor{fd}, nil
	}
	return nil, errNoLink
}

// FromText pulls the best link out of free text, preferring storage hosts.
func FromText(text string) (utils.FileDescriptor, bool) {
	matches := urlRegex.FindAllString(html.UnescapeString(text), -1)
	if len(matches) == 0 {
		return utils.FileDescriptor{}, false
	}
	chosen := ""
	for _, m := range matches {
		if isStorageURL(m) {
			chosen = m
			break
		}
	}
	if chosen == "" {
		chosen = matches[0]
	}
	chosen = strings.TrimRight(chosen, ".,;:)]}")
	return utils.FileDescriptor{Name: utils.NameFromURL(chosen), DirectURL: chosen}, true
}

func isStorageURL(link string) bool {
	lower := strings.ToLower(link)
	for _, host := range utils.StorageHosts {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}

// normalizeKey keeps letters and digits only, lowercased, so "📄 File Name",
// "file_name" and "fileName" all become "filename".
func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func fields(obj gjson.Result) map[string]gjson.Result {
	out := make(map[string]gjson.Result)
	obj.ForEach(func(k, v gjson.Result) bool {
		key := normalizeKey(k.String())
		if _, ok := out[key]; !ok {
			out[key] = v
		}
		return true
	})
	return out
}

// objects returns obj followed by its nested wrapper objects, breadth first.
func objects(obj gjson.Result, depth int) []gjson.Result {
	out := []gjson.Result{obj}
	if depth == 0 {
		return out
	}
	f := fields(obj)
	for _, key := range nestKeys {
		if v, ok := f[key]; ok && v.IsObject() {
			out = append(out, objects(v, depth-1)...)
		}
	}
	return out
}

func listFrom(v gjson.Result, depth int) []utils.FileDescriptor {
	if v.IsArray() {
		var files []utils.FileDescriptor
		for _, item := range v.Array() {
			if !item.IsObject() {
				continue
			}
			for _, obj := range objects(item, 1) {
				if fd, ok := descriptorFrom(obj); ok {
					files = append(files, fd)
					break
				}
			}
		}
		return files
	}
	if !v.IsObject() || depth == 0 {
		return nil
	}
	var files []utils.FileDescriptor
	v.ForEach(func(k, child gjson.Result) bool {
		key := normalizeKey(k.String())
		if !listKeys[key] && !(child.IsObject() && slices.Contains(nestKeys, key)) {
			return true
		}
		files = listFrom(child, depth-1)
		return len(files) == 0
	})
	return files
}

func descriptorFrom(obj gjson.Result) (utils.FileDescriptor, bool) {
	if !obj.IsObject() {
		return utils.FileDescriptor{}, false
	}
	f := fields(obj)
	var fd utils.FileDescriptor
	for _, key := range linkKeys {
		if v, ok := f[key]; ok && v.Type == gjson.String && strings.HasPrefix(strings.TrimSpace(v.Str), "http") {
			fd.DirectURL = strings.TrimSpace(v.Str)
			break
		}
	}
	if fd.DirectURL == "" {
		return fd, false
	}
	for _, key := range nameKeys {
		if v, ok := f[key]; ok && v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			fd.Name = strings.TrimSpace(v.Str)
			break
		}
	}
	if fd.Name == "" {
		fd.Name = utils.NameFromURL(fd.DirectURL)
	}
	for _, key := range sizeKeys {
		if v, ok := f[key]; ok {
			if n := sizeOf(v); n > 0 {
				fd.Size = n
				break
			}
		}
	}
	return fd, true
}

func sizeOf(v gjson.Result) int64 {
	switch v.Type {
	case gjson.Number:
		return v.Int()
	case gjson.String:
		return ParseSize(v.Str)
	}
	return 0
}

// ParseSize reads "123456", "1.5 GB" or "700MiB" style sizes; units are
// 1024-based. Unparseable input returns 0.
func ParseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	m := sizeRegex.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	mult := float64(1)
	if unit := strings.ToLower(m[2]); unit != "" {
		switch unit[0] {
		case 'k':
			mult = 1 << 10
		case 'm':
			mult = 1 << 20
		case 'g':
			mult = 1 << 30
		case 't':
			mult = 1 << 40
		}
	}
	return int64(value * mult)
}
