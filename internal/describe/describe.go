// Package describe implements a deterministic map rendering of a Template,
// used by the CLI to print a structural schema dump. Header-prefix
// ambiguity at registration time is checked by the engine directly, not
// through this package.
package describe

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mtrevisan/boxon/internal/tmpl"
)

// titleCaser backs Label.
var titleCaser = cases.Title(language.English)

// Describe renders t into a deterministic map keyed by binding-relevant
// parameters. It deliberately omits fieldName, condition, and validator so
// that two templates differing only in those dimensions compare equal.
func Describe(t *tmpl.Template) map[string]any {
	fields := make([]map[string]any, 0, len(t.OrderedFields))
	for _, bf := range t.OrderedFields {
		fields = append(fields, describeBinding(bf.Binding))
	}

	evaluated := make([]string, 0, len(t.EvaluatedFields))
	for _, ef := range t.EvaluatedFields {
		evaluated = append(evaluated, ef.Expression)
	}

	postProcess := make([]map[string]string, 0, len(t.PostProcessFields))
	for _, pf := range t.PostProcessFields {
		postProcess = append(postProcess, map[string]string{
			"decode": pf.DecodeExpr,
			"encode": pf.EncodeExpr,
		})
	}

	return map[string]any{
		"targetType": t.TargetType.String(),
		"header": map[string]any{
			"start":     t.Header.Start,
			"end":       t.Header.End,
			"charset":   t.Header.Charset,
			"byteOrder": int(t.Header.ByteOrder),
		},
		"fields":            fields,
		"evaluatedFields":   evaluated,
		"postProcessFields": postProcess,
	}
}

// Label renders a field name title-cased for display ("length" becomes
// "Length"). Describe's output carries no field names, and neither
// Describe nor the CLI's schema dump calls Label.
func Label(fieldName string) string {
	return titleCaser.String(fieldName)
}

func describeBinding(b tmpl.Binding) map[string]any {
	m := map[string]any{
		"kind":      string(b.Kind),
		"size":      b.Size,
		"byteOrder": int(b.ByteOrder),
		"charset":   b.Charset,
		"converter": b.Converter,
	}
	if b.Kind == tmpl.KindByteArrayTerminated || b.Kind == tmpl.KindStringTerminated || b.Kind == tmpl.KindSkip {
		m["terminator"] = b.Terminator
		m["consumeTerminator"] = b.ConsumeTerminator
	}
	if b.Kind == tmpl.KindObject || b.Kind == tmpl.KindList {
		if b.ObjectType != nil {
			m["objectType"] = b.ObjectType.String()
		}
		if b.ElementType != nil {
			m["elementType"] = b.ElementType.String()
		}
		if b.TerminatorObject != nil {
			m["terminatorObject"] = b.TerminatorObject.String()
		}
		if b.SelectFrom != nil {
			m["selectFrom"] = describeSelectFrom(b.SelectFrom)
		}
	}
	if b.Kind == tmpl.KindChecksum {
		m["algorithm"] = b.Algorithm
		m["startMark"] = b.StartMark
		m["endMark"] = b.EndMark
	}
	return m
}

func describeSelectFrom(sf *tmpl.SelectFrom) map[string]any {
	alts := make([]map[string]any, 0, len(sf.Alternatives))
	for _, alt := range sf.Alternatives {
		alts = append(alts, map[string]any{
			"hasPrefix": alt.HasPrefix,
			"prefix":    alt.Prefix,
			"condition": alt.Condition,
			"type":      alt.Type.String(),
		})
	}
	out := map[string]any{
		"prefixSize":   sf.PrefixSize,
		"byteOrder":    int(sf.ByteOrder),
		"alternatives": alts,
		"hasDefault":   sf.HasDefault,
	}
	if sf.DefaultType != nil {
		out["defaultType"] = sf.DefaultType.String()
	}
	return out
}
