package redis

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrPointerType = errors.New("pointer type is not allowed")
	ErrEmptyEntry  = errors.New("stream entry has no payload")
)

const payloadField = "payload"

// EncodeEntry 將資料序列化為 stream entry 的欄位
// msgpack 的二進位內容直接存進欄位，Redis 字串可以安全保存任意位元組
func EncodeEntry[T any](data T) (map[string]any, error) {
	// 檢查是否為指標類型
	if t := reflect.TypeOf(data); t == nil || t.Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	bytes, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}
	return map[string]any{
		payloadField: string(bytes),
	}, nil
}

// DecodeEntry 將 stream entry 的欄位還原為資料
func DecodeEntry[T any](values map[string]any) (T, error) {
	var result T

	if t := reflect.TypeOf(result); t != nil && t.Kind() == reflect.Ptr {
		return result, ErrPointerType
	}

	raw, ok := values[payloadField]
	if !ok {
		return result, ErrEmptyEntry
	}
	str, ok := raw.(string)
	if !ok {
		return result, fmt.Errorf("payload field has type %T", raw)
	}
	if err := msgpack.Unmarshal([]byte(str), &result); err != nil {
		return result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return result, nil
}
