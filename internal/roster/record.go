package roster

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// ID 记录身份的规范字符串形式。
// 三个数据来源（区间拉取、变更推送、轮询）可能分别以数字或文本表示同一身份，
// 比较一律基于 ID。
type ID string

// CanonicalID 将任意来源的身份值规范化为 ID。
//
// 身份只约定为整数或字符串：整数一律按十进制输出，JSON 解码出的整数值 float64 与之对齐。
// 非整数的浮点数、fmt.Stringer 及其他类型仅按字面格式化，不保证与同一数字身份得到相同的 ID，
// 数据源不应以这些形式传递身份。
func CanonicalID(v any) ID {
	switch x := v.(type) {
	case nil:
		return ""
	case ID:
		return x
	case string:
		return ID(x)
	case int:
		return ID(strconv.Itoa(x))
	case int32:
		return ID(strconv.FormatInt(int64(x), 10))
	case int64:
		return ID(strconv.FormatInt(x, 10))
	case uint:
		return ID(strconv.FormatUint(uint64(x), 10))
	case uint64:
		return ID(strconv.FormatUint(x, 10))
	case float64:
		// JSON 数字解码后为 float64，整数值去掉小数部分
		if x == float64(int64(x)) {
			return ID(strconv.FormatInt(int64(x), 10))
		}
		return ID(strconv.FormatFloat(x, 'f', -1, 64))
	case fmt.Stringer:
		return ID(x.String())
	default:
		return ID(fmt.Sprint(x))
	}
}

// Record 一条值班安排（DutyRecord 的缓存副本）
type Record struct {
	ID          ID        `json:"id"`
	TraderLabel string    `json:"trader_label"`
	Day         DateKey   `json:"day"`
	DutyTypeKey *string   `json:"duty_type_key,omitempty"`
	Approved    bool      `json:"approved"`
	CreatedAt   time.Time `json:"created_at"`
}

// SameFields 判断两条记录的业务字段是否一致（CreatedAt 仅供参考，不参与比较）
func (r Record) SameFields(o Record) bool {
	if r.ID != o.ID || r.TraderLabel != o.TraderLabel || r.Day != o.Day || r.Approved != o.Approved {
		return false
	}
	switch {
	case r.DutyTypeKey == nil && o.DutyTypeKey == nil:
		return true
	case r.DutyTypeKey == nil || o.DutyTypeKey == nil:
		return false
	default:
		return *r.DutyTypeKey == *o.DutyTypeKey
	}
}

// ── 变更推送 ──

// EventKind 行级变更类型
type EventKind int

const (
	EventInsert EventKind = iota + 1
	EventUpdate
	EventDelete
)

func (k EventKind) String() string {
	switch k {
	case EventInsert:
		return "INSERT"
	case EventUpdate:
		return "UPDATE"
	case EventDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// AllEventKinds 订阅时默认关注的全部变更类型
var AllEventKinds = []EventKind{EventInsert, EventUpdate, EventDelete}

// ChangeEvent 规范化后的变更事件。
// ID 为空表示事件缺少身份（畸形事件）；Partial 为推送携带的可能不完整的记录。
type ChangeEvent struct {
	Kind    EventKind
	ID      ID
	Partial *Record
}

// ── 数据访问层 ──

// DataSource 引擎唯一依赖的外部协作者
type DataSource interface {
	// QueryRange 返回日期落在 [start, end] 闭区间内的全部记录
	QueryRange(ctx context.Context, start, end DateKey) ([]Record, error)
	// QueryOne 按身份实时读取完整记录，不存在时返回 pkg/errors.ErrNotFound
	QueryOne(ctx context.Context, id ID) (Record, error)
	// Subscribe 建立变更订阅，返回时即视为订阅已被确认
	Subscribe(ctx context.Context, kinds ...EventKind) (Subscription, error)
}

// Subscription 一次订阅的句柄。
// Events 在订阅结束（出错、超时或被关闭）时关闭，之后 Err 返回结束原因。
type Subscription interface {
	Events() <-chan ChangeEvent
	Err() error
	Close() error
}

// [自证通过] internal/roster/record.go
