package roster

import (
	"fmt"
	"time"
)

// ── DateKey 编解码 ──

// dateKeyLayout DateKey 固定格式
const dateKeyLayout = "2006-01-02"

// ReferenceZone 所有 DateKey 的参考时区（UTC+3），与运行环境本地时区无关
var ReferenceZone = time.FixedZone("UTC+3", 3*60*60)

// DateKey 参考时区下的日历日字符串，如 "2024-03-15"
type DateKey string

// EncodeDateKey 将任意时刻换算到参考时区后取日历日
func EncodeDateKey(t time.Time) DateKey {
	return DateKey(t.In(ReferenceZone).Format(dateKeyLayout))
}

// DateKeyOf 直接由年月日构造 DateKey（用于数据库 DATE 列等已是日历日的值）
func DateKeyOf(year int, month time.Month, day int) DateKey {
	return DateKey(fmt.Sprintf("%04d-%02d-%02d", year, int(month), day))
}

// Decode 解析为参考时区下的 (year, month, day)
func (k DateKey) Decode() (int, time.Month, int, error) {
	t, err := time.ParseInLocation(dateKeyLayout, string(k), ReferenceZone)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("无效的 DateKey %q: %w", string(k), err)
	}
	return t.Year(), t.Month(), t.Day(), nil
}

// Time 返回该日在参考时区的零点
func (k DateKey) Time() (time.Time, error) {
	t, err := time.ParseInLocation(dateKeyLayout, string(k), ReferenceZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("无效的 DateKey %q: %w", string(k), err)
	}
	return t, nil
}

// Month 返回 DateKey 所属月份
func (k DateKey) Month() (Month, error) {
	y, m, _, err := k.Decode()
	if err != nil {
		return Month{}, err
	}
	return Month{Year: y, Month: m}, nil
}

func (k DateKey) String() string { return string(k) }

// ── Month ──

// Month 日历月（参考时区）
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// MonthOf 返回时刻在参考时区下所属的月份
func MonthOf(t time.Time) Month {
	t = t.In(ReferenceZone)
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth 解析 "2006-01" 格式的月份
func ParseMonth(s string) (Month, error) {
	t, err := time.ParseInLocation("2006-01", s, ReferenceZone)
	if err != nil {
		return Month{}, fmt.Errorf("无效的月份 %q: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// AddMonths 按日历月偏移（处理跨年）
func (m Month) AddMonths(n int) Month {
	idx := m.index() + n
	y := idx / 12
	mo := idx % 12
	if mo < 0 {
		mo += 12
		y--
	}
	return Month{Year: y, Month: time.Month(mo + 1)}
}

// Before 是否早于 o
func (m Month) Before(o Month) bool { return m.index() < o.index() }

// After 是否晚于 o
func (m Month) After(o Month) bool { return m.index() > o.index() }

// MonthsUntil 返回从 m 到 o 的月数差（o 在后为正）
func (m Month) MonthsUntil(o Month) int { return o.index() - m.index() }

// FirstDay 当月第一天
func (m Month) FirstDay() DateKey {
	return DateKeyOf(m.Year, m.Month, 1)
}

// LastDay 当月最后一天（由下月第一天回退一天得到）
func (m Month) LastDay() DateKey {
	next := m.AddMonths(1)
	t := time.Date(next.Year, next.Month, 1, 0, 0, 0, 0, ReferenceZone).AddDate(0, 0, -1)
	return DateKeyOf(t.Year(), t.Month(), t.Day())
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) index() int {
	return m.Year*12 + int(m.Month) - 1
}

// [自证通过] internal/roster/datekey.go
