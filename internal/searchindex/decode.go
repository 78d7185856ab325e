package searchindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/yosuke-furukawa/json5/encoding/json5"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const (
	jsPrefix = "Search.setIndex("
	jsSuffix = ")"
)

// Known top-level fields. Anything else lands in Index.Extra.
const (
	fieldDocNames   = "docnames"
	fieldEnvVersion = "envversion"
	fieldFilenames  = "filenames"
	fieldObjects    = "objects"
	fieldObjNames   = "objnames"
	fieldObjTypes   = "objtypes"
	fieldTerms      = "terms"
	fieldTitles     = "titles"
	fieldTitleTerms = "titleterms"
)

// DecodeFile reads and decodes the artifact at path.
func DecodeFile(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	idx, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return idx, nil
}

// Decode parses either the JavaScript form `Search.setIndex({...})`, whose
// object keys are mostly unquoted, or a bare JSON/JSON5 object. Every failure
// wraps apperrors.ErrInvalidIndex.
func Decode(data []byte) (*Index, error) {
	body := unwrapJS(data)
	if len(body) == 0 {
		return nil, invalid("empty input")
	}

	var raw map[string]any
	if err := json5.Unmarshal(body, &raw); err != nil {
		return nil, invalid("parsing object: %v", err)
	}
	if raw == nil {
		return nil, invalid("top-level value is not an object")
	}

	idx := &Index{
		Terms:      map[string]PostingList{},
		TitleTerms: map[string]PostingList{},
	}
	var err error
	if idx.DocNames, err = stringList(raw, fieldDocNames, true); err != nil {
		return nil, err
	}
	if idx.Filenames, err = stringList(raw, fieldFilenames, false); err != nil {
		return nil, err
	}
	if idx.Titles, err = stringList(raw, fieldTitles, false); err != nil {
		return nil, err
	}
	if idx.Terms, err = postingMap(raw, fieldTerms); err != nil {
		return nil, err
	}
	if idx.TitleTerms, err = postingMap(raw, fieldTitleTerms); err != nil {
		return nil, err
	}
	for field, dst := range map[string]*json.RawMessage{
		fieldEnvVersion: &idx.EnvVersion,
		fieldObjects:    &idx.Objects,
		fieldObjNames:   &idx.ObjNames,
		fieldObjTypes:   &idx.ObjTypes,
	} {
		if *dst, err = rawField(raw, field); err != nil {
			return nil, err
		}
	}

	for key, value := range raw {
		if isKnownField(key) {
			continue
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, invalid("re-encoding field %q: %v", key, err)
		}
		if idx.Extra == nil {
			idx.Extra = make(map[string]json.RawMessage)
		}
		idx.Extra[key] = data
	}
	return idx, nil
}

func unwrapJS(data []byte) []byte {
	body := bytes.TrimSpace(data)
	body = bytes.TrimPrefix(body, []byte{0xEF, 0xBB, 0xBF})
	if rest, ok := bytes.CutPrefix(body, []byte(jsPrefix)); ok {
		rest = bytes.TrimSpace(rest)
		rest = bytes.TrimSuffix(rest, []byte(";"))
		rest = bytes.TrimSpace(rest)
		rest = bytes.TrimSuffix(rest, []byte(jsSuffix))
		return bytes.TrimSpace(rest)
	}
	return body
}

func isKnownField(key string) bool {
	switch key {
	case fieldDocNames, fieldEnvVersion, fieldFilenames, fieldObjects,
		fieldObjNames, fieldObjTypes, fieldTerms, fieldTitles, fieldTitleTerms:
		return true
	}
	return false
}

func stringList(raw map[string]any, field string, required bool) ([]string, error) {
	value, ok := raw[field]
	if !ok || value == nil {
		if required {
			return nil, invalid("missing %q", field)
		}
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, invalid("%q must be an array, got %T", field, value)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, invalid("%q[%d] must be a string, got %T", field, i, item)
		}
		out[i] = s
	}
	return out, nil
}

func rawField(raw map[string]any, field string) (json.RawMessage, error) {
	value, ok := raw[field]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, invalid("re-encoding %q: %v", field, err)
	}
	return data, nil
}

func postingMap(raw map[string]any, field string) (map[string]PostingList, error) {
	out := map[string]PostingList{}
	value, ok := raw[field]
	if !ok || value == nil {
		return out, nil
	}
	terms, ok := value.(map[string]any)
	if !ok {
		return nil, invalid("%q must be an object, got %T", field, value)
	}
	for term, v := range terms {
		pl, err := postingList(v)
		if err != nil {
			return nil, invalid("%s[%q]: %v", field, term, err)
		}
		out[term] = pl
	}
	return out, nil
}

// postingList accepts a bare document index, an array of indices, or an
// array mixing indices and [doc, weight] pairs.
func postingList(v any) (PostingList, error) {
	switch val := v.(type) {
	case float64:
		doc, err := toInt(val)
		if err != nil {
			return nil, err
		}
		return PostingList{{Doc: doc}}, nil
	case []any:
		pl := make(PostingList, 0, len(val))
		for i, item := range val {
			p, err := posting(item)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			pl = append(pl, p)
		}
		sort.SliceStable(pl, func(i, j int) bool { return pl[i].Doc < pl[j].Doc })
		return pl, nil
	default:
		return nil, fmt.Errorf("unsupported posting value %T", v)
	}
}

func posting(item any) (Posting, error) {
	switch val := item.(type) {
	case float64:
		doc, err := toInt(val)
		return Posting{Doc: doc}, err
	case []any:
		if len(val) != 2 {
			return Posting{}, fmt.Errorf("weighted posting must be [doc, weight], got %d elements", len(val))
		}
		docF, ok1 := val[0].(float64)
		weightF, ok2 := val[1].(float64)
		if !ok1 || !ok2 {
			return Posting{}, fmt.Errorf("weighted posting must contain numbers")
		}
		doc, err := toInt(docF)
		if err != nil {
			return Posting{}, err
		}
		weight, err := toInt(weightF)
		if err != nil {
			return Posting{}, err
		}
		return Posting{Doc: doc, Weight: weight}, nil
	default:
		return Posting{}, fmt.Errorf("unsupported posting entry %T", item)
	}
}

func toInt(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("document index %v is not an integer", f)
	}
	return int(f), nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidIndex, fmt.Sprintf(format, args...))
}
