// Copyright 2024 The ArangoDB-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package docjson holds the small document helpers the cluster blocks need:
// key-field inspection and key merging on raw JSON documents.
package docjson

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// KeyField is the primary key attribute of a document.
const KeyField = "_key"

func IsObject(doc []byte) bool {
	res := gjson.ParseBytes(doc)
	return res.IsObject()
}

// HasKeyField reports whether the document carries a top-level _key.
func HasKeyField(doc []byte) bool {
	return gjson.GetBytes(doc, KeyField).Exists()
}

// KeyFieldValue returns the document's _key, if present.
func KeyFieldValue(doc []byte) (string, bool) {
	res := gjson.GetBytes(doc, KeyField)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}

// FieldString returns the string form of a top-level field, if present.
func FieldString(doc []byte, field string) (string, bool) {
	res := gjson.GetBytes(doc, field)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}

// KeyObject builds the document {"_key": <key>}.
func KeyObject(key string) []byte {
	encoded, err := json.Marshal(key)
	if err != nil {
		panic(err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"`)
	buf.WriteString(KeyField)
	buf.WriteString(`":`)
	buf.Write(encoded)
	buf.WriteByte('}')
	return buf.Bytes()
}

// WithKeyField merges a _key attribute into an object document, returning a
// new document. The input must be a JSON object without a _key.
func WithKeyField(doc []byte, key string) []byte {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		panic("WithKeyField requires an object document")
	}
	encoded, err := json.Marshal(key)
	if err != nil {
		panic(err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"`)
	buf.WriteString(KeyField)
	buf.WriteString(`":`)
	buf.Write(encoded)
	inner := bytes.TrimSpace(trimmed[1 : len(trimmed)-1])
	if len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}
