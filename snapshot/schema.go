package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/value"
)

type (
	ParquetSchema struct {
		TagStructs SchemaTag
		Fields     []*ParquetSchema
	}

	ParquetJSONSchema struct {
		Tag    string               `json:",omitempty"`
		Fields []*ParquetJSONSchema `json:",omitempty"`
	}

	SchemaTag struct {
		Name           string
		Type           string
		ConvertedType  string
		RepetitionType RepetitionType
		Encoding       string
	}

	RepetitionType string
)

var (
	Optional RepetitionType = "OPTIONAL"
	Required RepetitionType = "REQUIRED"
)

// columnSchema maps a column onto a parquet leaf. Times are stored as unix millis.
func columnSchema(c schema.Column) (*ParquetSchema, error) {
	tag := SchemaTag{
		Name:           c.Name,
		RepetitionType: Optional,
	}
	switch c.Kind {
	case value.KindInt:
		tag.Type = "INT64"
	case value.KindFloat:
		tag.Type = "DOUBLE"
	case value.KindString:
		tag.Type = "BYTE_ARRAY"
		tag.ConvertedType = "UTF8"
		tag.Encoding = "PLAIN"
	case value.KindBool:
		tag.Type = "BOOLEAN"
	case value.KindTime:
		tag.Type = "INT64"
		tag.ConvertedType = "TIMESTAMP_MILLIS"
	default:
		return nil, fmt.Errorf("no parquet type for column %s of kind %s", c.Name, c.Kind)
	}
	return &ParquetSchema{TagStructs: tag}, nil
}

// ToParquetJSONSchema recursively converts
func (ps *ParquetSchema) ToParquetJSONSchema() *ParquetJSONSchema {
	var tagArr []string
	if ps.TagStructs.Type != "" {
		tagArr = append(tagArr, "type="+ps.TagStructs.Type)
	}
	if ps.TagStructs.ConvertedType != "" {
		tagArr = append(tagArr, "convertedtype="+ps.TagStructs.ConvertedType)
	}
	if ps.TagStructs.Encoding != "" {
		tagArr = append(tagArr, "encoding="+ps.TagStructs.Encoding)
	}
	if ps.TagStructs.Name != "" {
		tagArr = append(tagArr, "name="+ps.TagStructs.Name)
	}
	if string(ps.TagStructs.RepetitionType) != "" {
		tagArr = append(tagArr, "repetitiontype="+string(ps.TagStructs.RepetitionType))
	}
	var fields []*ParquetJSONSchema
	for _, field := range ps.Fields {
		fields = append(fields, field.ToParquetJSONSchema())
	}
	return &ParquetJSONSchema{
		Tag:    strings.Join(tagArr, ", "),
		Fields: fields,
	}
}

// SchemaString returns the parquet-go JSON schema for every column of def, in order.
func SchemaString(def schema.TableDef) (string, error) {
	var fields []*ParquetJSONSchema
	for _, c := range def.Columns {
		ps, err := columnSchema(c)
		if err != nil {
			return "", err
		}
		fields = append(fields, ps.ToParquetJSONSchema())
	}
	pjs := ParquetJSONSchema{
		Tag:    "name=parquet_go_root, repetitiontype=REQUIRED",
		Fields: fields,
	}

	b, err := json.Marshal(pjs)
	if err != nil {
		return "", fmt.Errorf("error in json.Marshal: %w", err)
	}
	return string(b), nil
}
