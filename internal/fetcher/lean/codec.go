// Package lean implements the client side of the minimal fetch-service
// protocol. A single protobuf-encoded request is written to a raw TCP
// connection, the write side is half-closed to mark end of message, and the
// response is read until EOF. The service is expected to close its write side
// exactly once after emitting the full response; no length prefix is used.
package lean

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers shared with the fetch service. The encoding is versionless:
// both sides skip unknown fields, so new fields may be added without breaking
// older peers.
const (
	requestFieldID      = 1
	requestFieldURL     = 2
	requestFieldTimeout = 3

	responseFieldID     = 1
	responseFieldStatus = 2
	responseFieldData   = 3
)

// Request is the single message sent per connection. It exists only for the
// duration of one fetch call.
type Request struct {
	ID      int64
	URL     string
	Timeout int32 // seconds; bounds the service's own fetch attempt
}

// Response is decoded from the bytes the service wrote before closing.
type Response struct {
	ID         int64
	StatusCode int32
	Data       []byte
}

// MarshalRequest encodes a Request in protobuf wire format.
func MarshalRequest(req Request) []byte {
	var b []byte
	b = protowire.AppendTag(b, requestFieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(req.ID))
	b = protowire.AppendTag(b, requestFieldURL, protowire.BytesType)
	b = protowire.AppendString(b, req.URL)
	b = protowire.AppendTag(b, requestFieldTimeout, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(req.Timeout)))
	return b
}

// UnmarshalRequest decodes a Request. It exists for the in-process fake
// service used in tests and for symmetry with the response codec.
func UnmarshalRequest(b []byte) (Request, error) {
	var req Request
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch num {
		case requestFieldID:
			v, n := protowire.ConsumeVarint(field)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			req.ID = int64(v)
			return n, nil
		case requestFieldURL:
			v, n := protowire.ConsumeString(field)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			req.URL = v
			return n, nil
		case requestFieldTimeout:
			v, n := protowire.ConsumeVarint(field)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			req.Timeout = int32(v)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, field), nil
		}
	})
	if err != nil {
		return Request{}, fmt.Errorf("unmarshal request: %w", err)
	}
	return req, nil
}

// MarshalResponse encodes a Response in protobuf wire format.
func MarshalResponse(resp Response) []byte {
	var b []byte
	b = protowire.AppendTag(b, responseFieldID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(resp.ID))
	b = protowire.AppendTag(b, responseFieldStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(uint32(resp.StatusCode)))
	b = protowire.AppendTag(b, responseFieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, resp.Data)
	return b
}

// UnmarshalResponse decodes a Response read from the service.
func UnmarshalResponse(b []byte) (Response, error) {
	var resp Response
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch num {
		case responseFieldID:
			v, n := protowire.ConsumeVarint(field)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			resp.ID = int64(v)
			return n, nil
		case responseFieldStatus:
			v, n := protowire.ConsumeVarint(field)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			resp.StatusCode = int32(v)
			return n, nil
		case responseFieldData:
			v, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			resp.Data = append([]byte(nil), v...)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, field), nil
		}
	})
	if err != nil {
		return Response{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp, nil
}

// walkFields iterates tag/value pairs, delegating value consumption to fn.
// fn returns the number of bytes consumed, or a negative count with an error.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		consumed, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if consumed < 0 {
			return protowire.ParseError(consumed)
		}
		b = b[consumed:]
	}
	return nil
}
