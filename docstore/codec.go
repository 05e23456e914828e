package docstore

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/veildb/veil"
)

// encodeDocument serializes the document body. The reserved id and creation
// time fields live in their own columns and are stripped before encoding.
func encodeDocument(doc veil.Document) ([]byte, error) {
	body := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == veil.FieldID || k == veil.FieldCreationTime {
			continue
		}
		body[k] = v
	}
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeDocument deserializes a document body and reattaches the reserved
// fields. Loose decoding keeps field values in canonical Go shapes (int64,
// float64, string) regardless of how compactly they were encoded.
func decodeDocument(id veil.ID, created int64, data []byte) (veil.Document, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	doc := make(veil.Document, len(body)+2)
	for k, v := range body {
		doc[k] = v
	}
	doc[veil.FieldID] = id.String()
	doc[veil.FieldCreationTime] = created
	return doc, nil
}
