package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Wire encodings for parameterized records.
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Content types carried in the content_type header.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
)

// Serialize encodes a parameterized record for the sink. The key is the
// record ID so downstream consumers can compact on it.
func Serialize(rec ParameterizedDSD, encoding string) (OutputEvent, error) {
	var (
		data        []byte
		err         error
		contentType string
	)
	switch encoding {
	case EncodingJSON, "":
		data, err = json.Marshal(rec)
		contentType = ContentTypeJSON
	case EncodingMsgpack:
		data, err = msgpack.Marshal(rec)
		contentType = ContentTypeMsgpack
	default:
		return OutputEvent{}, fmt.Errorf("serialize dsd record: unknown encoding %q", encoding)
	}
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize dsd record: %w", err)
	}

	return OutputEvent{
		Key:   []byte(rec.ID),
		Value: data,
		Headers: map[string]string{
			"instrument":   rec.Instrument,
			"station":      rec.Station,
			"processed_at": rec.ProcessedAt.Format(time.RFC3339),
			"content_type": contentType,
		},
	}, nil
}

// Deserialize decodes a record produced by Serialize.
func Deserialize(data []byte, contentType string) (ParameterizedDSD, error) {
	var rec ParameterizedDSD
	var err error
	switch contentType {
	case ContentTypeMsgpack:
		err = msgpack.Unmarshal(data, &rec)
	case ContentTypeJSON, "":
		err = json.Unmarshal(data, &rec)
	default:
		return ParameterizedDSD{}, fmt.Errorf("deserialize dsd record: unknown content type %q", contentType)
	}
	if err != nil {
		return ParameterizedDSD{}, fmt.Errorf("deserialize dsd record: %w", err)
	}
	return rec, nil
}
