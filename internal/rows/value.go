// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package rows moves opaque business rows between the master store and the
// tenant stores. A row is a list of column names and typed values; the
// package never needs to know the business schema.
package rows

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBytes
	KindBool
	KindTime
)

var kindNames = [...]string{"null", "int", "float", "text", "bytes", "bool", "time"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is one column value. The zero Value is NULL.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
	t    time.Time
}

func Null() Value            { return Value{} }
func Int(v int64) Value      { return Value{kind: KindInt, i: v} }
func Float(v float64) Value  { return Value{kind: KindFloat, f: v} }
func Text(v string) Value    { return Value{kind: KindText, s: v} }
func Bytes(v []byte) Value   { return Value{kind: KindBytes, b: v} }
func Time(v time.Time) Value { return Value{kind: KindTime, t: v} }
func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, i: 1}
	}
	return Value{kind: KindBool}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the value as an integer. Integral text, as returned by some
// drivers for numeric columns, is accepted.
func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindInt, KindBool:
		return v.i, true
	case KindFloat:
		if v.f == float64(int64(v.f)) {
			return int64(v.f), true
		}
	case KindText:
		if n, err := strconv.ParseInt(v.s, 10, 64); err == nil {
			return n, true
		}
	case KindBytes:
		if n, err := strconv.ParseInt(string(v.b), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Any returns the value as a database/sql argument.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindBytes:
		return v.b
	case KindBool:
		return v.i == 1
	case KindTime:
		return v.t
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return strconv.Quote(v.s)
	case KindBytes:
		return fmt.Sprintf("<%d bytes>", len(v.b))
	case KindBool:
		return strconv.FormatBool(v.i == 1)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	}
	return "?"
}

// Equal reports whether two values carry the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == o.f
	case KindText:
		return v.s == o.s
	case KindBytes:
		return string(v.b) == string(o.b)
	case KindTime:
		return v.t.Equal(o.t)
	default:
		return v.i == o.i
	}
}

// fromDriver converts a scanned driver value. dbType is the column's
// DatabaseTypeName and decides how raw bytes are interpreted.
func fromDriver(x any, dbType string) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case int64:
		return Int(t)
	case int32:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int:
		return Int(int64(t))
	case uint64:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case float64:
		return Float(t)
	case float32:
		return Float(float64(t))
	case bool:
		return Bool(t)
	case time.Time:
		return Time(t)
	case string:
		return Text(t)
	case []byte:
		return fromBytes(t, dbType)
	default:
		return Text(fmt.Sprint(t))
	}
}

func fromBytes(b []byte, dbType string) Value {
	typ := strings.ToUpper(dbType)
	switch {
	case strings.Contains(typ, "BLOB"), strings.Contains(typ, "BINARY"), typ == "BYTEA":
		// Drivers reuse their buffers between rows.
		return Bytes(append([]byte(nil), b...))
	case strings.Contains(typ, "INT"):
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return Int(n)
		}
	case typ == "FLOAT", typ == "DOUBLE", typ == "REAL":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return Float(f)
		}
	}
	return Text(string(b))
}
