// Package cron 实现标准 5 字段 cron 表达式（分 时 日 月 周）的
// 解析与下次触发时间计算。
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule 解析后的 cron 表达式。用 Parse 创建，用 Next 计算下次触发时间。
type Schedule struct {
	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64

	// 日和周字段是否为通配，决定两者的组合方式
	anyDayOfMonth bool
	anyDayOfWeek  bool
}

// bitset64 用一个 uint64 表示 0-63 的整数集合
type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) set(value int)     { *b |= 1 << uint(value) }

// Parse 解析 5 字段 cron 表达式，格式错误或取值越界时返回错误
func Parse(expression string) (Schedule, error) {
	fields := strings.Fields(expression)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	minutes, err := parseField(fields[0], 0, 59)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: minute field: %w", err)
	}
	hours, err := parseField(fields[1], 0, 23)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: hour field: %w", err)
	}
	daysOfMonth, err := parseField(fields[2], 1, 31)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: day-of-month field: %w", err)
	}
	months, err := parseField(fields[3], 1, 12)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: month field: %w", err)
	}
	daysOfWeek, err := parseField(fields[4], 0, 6)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron: day-of-week field: %w", err)
	}

	return Schedule{
		minutes:       minutes,
		hours:         hours,
		daysOfMonth:   daysOfMonth,
		months:        months,
		daysOfWeek:    daysOfWeek,
		anyDayOfMonth: fields[2] == "*",
		anyDayOfWeek:  fields[4] == "*",
	}, nil
}

// Next 返回严格晚于 t 的最近一次触发时间，在 t 所在时区计算。
// 4 年内找不到匹配（如 2 月 31 日这类不可能的组合）时返回错误。
func (s Schedule) Next(t time.Time) (time.Time, error) {
	loc := t.Location()
	// 从 t 的下一分钟开始，秒和纳秒归零
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc).Add(time.Minute)

	// 4 年覆盖所有闰年周期
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		if !s.months.has(int(t.Month())) {
			// 跳到下个月第一天
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}

		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}

		if !s.hours.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}

		if !s.minutes.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}

		return t, nil
	}

	return time.Time{}, fmt.Errorf("cron: no matching time within 4 years of %s", t.Format(time.RFC3339))
}

// dayMatches 判断日期是否命中。标准 cron 语义：日和周字段都
// 受限时取 OR，否则取受限的那个（通配字段的位全置 1）
func (s Schedule) dayMatches(t time.Time) bool {
	dom := s.daysOfMonth.has(t.Day())
	dow := s.daysOfWeek.has(int(t.Weekday()))
	if !s.anyDayOfMonth && !s.anyDayOfWeek {
		return dom || dow
	}
	return dom && dow
}

// parseField 解析单个字段为位集合。字段可由逗号分隔多个条目，
// 每个条目是通配、单值、区间或步进
func parseField(field string, minimum, maximum int) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, minimum, maximum)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	if result == 0 {
		return 0, fmt.Errorf("field %q produces empty set", field)
	}
	return result, nil
}

// parseTerm 解析单个条目：*、*/N、V、V-V、V-V/N
func parseTerm(term string, minimum, maximum int) (bitset64, error) {
	parts := strings.SplitN(term, "/", 2)
	rangeExpression := parts[0]
	step := 1
	if len(parts) == 2 {
		parsed, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, fmt.Errorf("invalid step %q: %w", parts[1], err)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	var rangeStart, rangeEnd int

	switch {
	case rangeExpression == "*":
		rangeStart = minimum
		rangeEnd = maximum
	case strings.IndexByte(rangeExpression, '-') >= 0:
		dashIndex := strings.IndexByte(rangeExpression, '-')
		var err error
		rangeStart, err = strconv.Atoi(rangeExpression[:dashIndex])
		if err != nil {
			return 0, fmt.Errorf("invalid range start %q: %w", rangeExpression[:dashIndex], err)
		}
		rangeEnd, err = strconv.Atoi(rangeExpression[dashIndex+1:])
		if err != nil {
			return 0, fmt.Errorf("invalid range end %q: %w", rangeExpression[dashIndex+1:], err)
		}
		if rangeStart > rangeEnd {
			return 0, fmt.Errorf("range start %d > end %d", rangeStart, rangeEnd)
		}
	default:
		value, err := strconv.Atoi(rangeExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q: %w", rangeExpression, err)
		}
		rangeStart = value
		rangeEnd = value
	}

	if rangeStart < minimum || rangeEnd > maximum {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", minimum, maximum, rangeStart, rangeEnd)
	}

	var result bitset64
	for value := rangeStart; value <= rangeEnd; value += step {
		result.set(value)
	}
	return result, nil
}
