// Package authstate implementa o armazém de estado de sessão: documento de
// credenciais, mapa de chaves rotativas com escrita coalescida e o codec
// JSON que preserva campos binários.
package authstate

import (
	"encoding/json"
	"errors"

	"wafleet/internal/domain/waproto"
)

var errNotADocument = errors.New("auth state: value is not a JSON object")

// bufferTag é o envelope JSON usado para sequências binárias dentro dos
// documentos de sessão: {"type":"Buffer","data":[...]}. O round-trip é
// exato: Decode(Encode(v)) devolve os mesmos bytes.
const bufferTagType = "Buffer"

// Encode serializa um valor para JSON marcando []byte com o envelope Buffer
func Encode(v any) (json.RawMessage, error) {
	return json.Marshal(tagBuffers(v))
}

// Decode desserializa JSON produzido por Encode, restaurando os []byte
func Decode(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return untagBuffers(v), nil
}

// DecodeDocument decodifica um documento de credenciais completo
func DecodeDocument(raw json.RawMessage) (waproto.Document, error) {
	v, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, errNotADocument
	}
	return doc, nil
}

// tagBuffers percorre a árvore substituindo []byte pelo envelope Buffer
func tagBuffers(v any) any {
	switch t := v.(type) {
	case []byte:
		data := make([]int, len(t))
		for i, b := range t {
			data[i] = int(b)
		}
		return map[string]any{"type": bufferTagType, "data": data}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = tagBuffers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = tagBuffers(val)
		}
		return out
	default:
		return v
	}
}

// untagBuffers desfaz o trabalho de tagBuffers após json.Unmarshal
func untagBuffers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if data, ok := bufferData(t); ok {
			return data
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = untagBuffers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = untagBuffers(val)
		}
		return out
	default:
		return v
	}
}

// bufferData reconhece o envelope Buffer e devolve os bytes originais
func bufferData(m map[string]any) ([]byte, bool) {
	if len(m) != 2 || m["type"] != bufferTagType {
		return nil, false
	}
	arr, ok := m["data"].([]any)
	if !ok {
		return nil, false
	}
	data := make([]byte, len(arr))
	for i, el := range arr {
		n, ok := el.(float64)
		if !ok || n < 0 || n > 255 {
			return nil, false
		}
		data[i] = byte(n)
	}
	return data, true
}
