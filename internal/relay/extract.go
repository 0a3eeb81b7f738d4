package relay

import (
	"bytes"
	"encoding/json"
)

// Shape 标识助手内容来自哪一种响应结构。
type Shape string

const (
	ShapeMessages     Shape = "messages"
	ShapeCompletions  Shape = "completions"
	ShapeCompletion   Shape = "completion"
	ShapeModelOutputs Shape = "modelOutputs"
	ShapeContent      Shape = "content"
	ShapeNone         Shape = "none"
)

// Extraction 是一次提取的结果，Content 为 nil 表示没有解析出助手内容。
type Extraction struct {
	Shape   Shape
	Content json.RawMessage
}

// Resolved 报告是否解析出了助手内容。
func (e Extraction) Resolved() bool {
	return e.Content != nil
}

type extractor struct {
	shape   Shape
	extract func(raw json.RawMessage) json.RawMessage
}

// extractors 按优先级排列。顶层键存在即命中，不论提取结果是否为空。
var extractors = []extractor{
	{shape: ShapeMessages, extract: lastElementField("content")},
	{shape: ShapeCompletions, extract: firstCompletion},
	{shape: ShapeCompletion, extract: func(raw json.RawMessage) json.RawMessage { return raw }},
	{shape: ShapeModelOutputs, extract: firstElementField("content")},
	{shape: ShapeContent, extract: firstContentBlock},
}

// Extract 依次尝试已知的响应结构，返回第一个顶层键存在的结构的提取结果。
func Extract(resp map[string]json.RawMessage) Extraction {
	for _, e := range extractors {
		raw, ok := resp[string(e.shape)]
		if !ok {
			continue
		}
		return Extraction{Shape: e.shape, Content: nonNull(e.extract(raw))}
	}
	return Extraction{Shape: ShapeNone}
}

func lastElementField(key string) func(json.RawMessage) json.RawMessage {
	return func(raw json.RawMessage) json.RawMessage {
		items, ok := decodeArray(raw)
		if !ok {
			return nil
		}
		obj, ok := decodeObject(items[len(items)-1])
		if !ok {
			return nil
		}
		return obj[key]
	}
}

func firstElementField(key string) func(json.RawMessage) json.RawMessage {
	return func(raw json.RawMessage) json.RawMessage {
		items, ok := decodeArray(raw)
		if !ok {
			return nil
		}
		obj, ok := decodeObject(items[0])
		if !ok {
			return nil
		}
		return obj[key]
	}
}

// firstCompletion 取第一个 completion 的 message.content，缺失时回退到 data.content。
func firstCompletion(raw json.RawMessage) json.RawMessage {
	items, ok := decodeArray(raw)
	if !ok {
		return nil
	}
	first, ok := decodeObject(items[0])
	if !ok {
		return nil
	}
	if content := nestedField(first, "message", "content"); content != nil {
		return content
	}
	return nestedField(first, "data", "content")
}

// firstContentBlock 取第一个内容块的 text，缺失时回退到 content。
func firstContentBlock(raw json.RawMessage) json.RawMessage {
	items, ok := decodeArray(raw)
	if !ok {
		return nil
	}
	block, ok := decodeObject(items[0])
	if !ok {
		return nil
	}
	if text := nonNull(block["text"]); text != nil {
		return text
	}
	return block["content"]
}

func nestedField(obj map[string]json.RawMessage, outer, inner string) json.RawMessage {
	nested, ok := decodeObject(obj[outer])
	if !ok {
		return nil
	}
	return nonNull(nested[inner])
}

// decodeArray 只接受非空数组。
func decodeArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	if nonNull(raw) == nil {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return nil, false
	}
	return items, true
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if nonNull(raw) == nil {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func nonNull(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}
