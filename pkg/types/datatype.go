// Package types provides the semantic value types shared by every segdict component.
package types

import (
	"fmt"
	"strings"
)

// DataType identifies the semantic type of a column's values.
type DataType uint8

const (
	TypeString DataType = iota
	TypeInt64
	TypeFloat64
	TypeBoolean
	TypeDate      // days since the Unix epoch
	TypeTimestamp // Unix milliseconds, UTC
)

// TypeInfo holds metadata about a data type.
type TypeInfo struct {
	Type DataType
	Name string
	// IntegerBacked types order and encode by their int64 representation.
	IntegerBacked bool
}

var typeInfoList = []TypeInfo{
	{TypeString, "String", false},
	{TypeInt64, "Int64", true},
	{TypeFloat64, "Float64", false},
	{TypeBoolean, "Boolean", false},
	{TypeDate, "Date", true},
	{TypeTimestamp, "Timestamp", true},
}

// typeInfoMap maps DataType to its TypeInfo.
var typeInfoMap map[DataType]TypeInfo

// typeAliases maps lowercase SQL type names (without parameters) to a DataType.
var typeAliases = map[string]DataType{
	"string":    TypeString,
	"varchar":   TypeString,
	"char":      TypeString,
	"text":      TypeString,
	"tinyint":   TypeInt64,
	"smallint":  TypeInt64,
	"int":       TypeInt64,
	"integer":   TypeInt64,
	"bigint":    TypeInt64,
	"int64":     TypeInt64,
	"float":     TypeFloat64,
	"double":    TypeFloat64,
	"real":      TypeFloat64,
	"decimal":   TypeFloat64,
	"numeric":   TypeFloat64,
	"float64":   TypeFloat64,
	"boolean":   TypeBoolean,
	"bool":      TypeBoolean,
	"date":      TypeDate,
	"timestamp": TypeTimestamp,
	"datetime":  TypeTimestamp,
}

func init() {
	typeInfoMap = make(map[DataType]TypeInfo, len(typeInfoList))
	for _, ti := range typeInfoList {
		typeInfoMap[ti.Type] = ti
	}
}

// ParseDataType converts a column type name (case-insensitive, optional
// parameters such as varchar(256) or decimal(10,2)) to a DataType.
func ParseDataType(name string) (DataType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(n, '('); i >= 0 {
		if !strings.HasSuffix(n, ")") {
			return 0, fmt.Errorf("%w: %s", ErrUnknownDataType, name)
		}
		n = strings.TrimSpace(n[:i])
	}
	if dt, ok := typeAliases[n]; ok {
		return dt, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownDataType, name)
}

// Name returns the string name of the DataType.
func (dt DataType) Name() string {
	if ti, ok := typeInfoMap[dt]; ok {
		return ti.Name
	}
	return "Unknown"
}

func (dt DataType) String() string { return dt.Name() }

// Valid reports whether dt is one of the recognized semantic types.
func (dt DataType) Valid() bool {
	_, ok := typeInfoMap[dt]
	return ok
}

// IntegerBacked reports whether values of dt are represented as int64.
func (dt DataType) IntegerBacked() bool {
	return typeInfoMap[dt].IntegerBacked
}
