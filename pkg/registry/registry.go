package registry

import (
	"bytes"
	"encoding/json"

	"lmclean/pkg/contract"
	fpr "lmclean/plugins/dedup/fingerprint"
	flen "lmclean/plugins/filter/length"
	kw "lmclean/plugins/matcher/keyword"
	rtl "lmclean/plugins/reader/textline"
	wdc "lmclean/plugins/writer/discard"
	wfs "lmclean/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewFilter 工厂签名：接收原样 JSON Options。
type NewFilter func(raw json.RawMessage) (contract.LengthFilter, error)

// NewMatcher 工厂签名：装载期的坏条目以告警返回（不中断装配）。
type NewMatcher func(raw json.RawMessage) (contract.Matcher, []contract.Warning, error)

// NewDedup 工厂签名：接收原样 JSON Options。
type NewDedup func(raw json.RawMessage) (contract.Deduplicator, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// textline: 文件/STDIN 逐行 Reader
	"textline": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rtl.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rtl.New(&opts), nil
	},
}

// Filter 工厂注册表。
var Filter = map[string]NewFilter{
	// length: 按 rune 数的最小长度过滤
	"length": func(raw json.RawMessage) (contract.LengthFilter, error) {
		var opts flen.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return flen.New(&opts), nil
	},
}

// Matcher 工厂注册表。
var Matcher = map[string]NewMatcher{
	// keyword: Aho-Corasick 关键词匹配（整词/子串）
	"keyword": func(raw json.RawMessage) (contract.Matcher, []contract.Warning, error) {
		var opts kw.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, nil, err
		}
		m, warns, err := kw.New(&opts)
		if err != nil {
			return nil, nil, err
		}
		return m, warns, nil
	},
}

// Dedup 工厂注册表。
var Dedup = map[string]NewDedup{
	// fingerprint: 规范化 + md5 指纹首现保留
	"fingerprint": func(raw json.RawMessage) (contract.Deduplicator, error) {
		var opts fpr.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return fpr.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件输出（直写或原子替换）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// discard: 只计数不落盘（未配置输出时的默认）
	"discard": func(raw json.RawMessage) (contract.Writer, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return wdc.New(), nil
	},
}
