package searchindex

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Format selects the output encoding.
type Format int

const (
	// FormatJS wraps the object in Search.setIndex(...), the form loaded by
	// the browser-side search script.
	FormatJS Format = iota
	// FormatJSON writes the bare object.
	FormatJSON
)

// ParseFormat maps "js" and "json" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "js", "javascript":
		return FormatJS, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("unknown format %q (want js or json)", s)
	}
}

// MarshalJSON writes a single posting as a bare index and a list as an array;
// weighted postings are written as [doc, weight] pairs.
func (pl PostingList) MarshalJSON() ([]byte, error) {
	if len(pl) == 1 && pl[0].Weight == 0 {
		return json.Marshal(pl[0].Doc)
	}
	items := make([]any, len(pl))
	for i, p := range pl {
		if p.Weight != 0 {
			items[i] = [2]int{p.Doc, p.Weight}
		} else {
			items[i] = p.Doc
		}
	}
	return json.Marshal(items)
}

// MarshalJSON produces the canonical encoding: object keys sorted, as the
// generator itself emits them.
func (idx *Index) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, 9+len(idx.Extra))
	for key, value := range idx.Extra {
		fields[key] = value
	}

	put := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %q: %w", key, err)
		}
		fields[key] = data
		return nil
	}
	emptyObject := json.RawMessage(`{}`)
	orEmpty := func(m json.RawMessage) json.RawMessage {
		if len(m) == 0 {
			return emptyObject
		}
		return m
	}

	if err := put(fieldDocNames, nonNil(idx.DocNames)); err != nil {
		return nil, err
	}
	if err := put(fieldFilenames, nonNil(idx.Filenames)); err != nil {
		return nil, err
	}
	if idx.Titles != nil {
		if err := put(fieldTitles, idx.Titles); err != nil {
			return nil, err
		}
	}
	if err := put(fieldTerms, nonNilMap(idx.Terms)); err != nil {
		return nil, err
	}
	if err := put(fieldTitleTerms, nonNilMap(idx.TitleTerms)); err != nil {
		return nil, err
	}
	if len(idx.EnvVersion) > 0 {
		fields[fieldEnvVersion] = idx.EnvVersion
	}
	fields[fieldObjects] = orEmpty(idx.Objects)
	fields[fieldObjNames] = orEmpty(idx.ObjNames)
	fields[fieldObjTypes] = orEmpty(idx.ObjTypes)

	return json.Marshal(fields)
}

// Encode writes idx in the requested format.
func Encode(w io.Writer, idx *Index, format Format) error {
	data, err := idx.MarshalJSON()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	switch format {
	case FormatJS:
		buf.Grow(len(data) + len(jsPrefix) + len(jsSuffix))
		buf.WriteString(jsPrefix)
		buf.Write(data)
		buf.WriteString(jsSuffix)
	case FormatJSON:
		buf.Write(data)
		buf.WriteByte('\n')
	default:
		return fmt.Errorf("unknown format %d", format)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]PostingList) map[string]PostingList {
	if m == nil {
		return map[string]PostingList{}
	}
	return m
}
