package vm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// serializeValue renders v as single-line JSON with object fields in
// insertion order. Functions, tasks and the other non-data kinds are not
// serialisable.
func serializeValue(v Value) (string, error) {
	var sb strings.Builder
	if err := writeJSON(&sb, v, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

const maxSerializeDepth = 128

func writeJSON(sb *strings.Builder, v Value, depth int) error {
	if depth > maxSerializeDepth {
		return Throw("serialize: structure nests too deeply (cycle?)")
	}
	switch v.Kind {
	case ValNull:
		sb.WriteString("null")
	case ValBool:
		sb.WriteString(strconv.FormatBool(v.AsBool()))
	case ValF32, ValF64:
		sb.WriteString(strconv.FormatFloat(v.AsFloat(), 'g', -1, 64))
	case ValString:
		writeJSONString(sb, v.AsString().Str())
	case ValRune:
		writeJSONString(sb, string(v.AsRune()))
	case ValArray:
		if err := checkLive(v); err != nil {
			return err
		}
		sb.WriteByte('[')
		for i, it := range v.AsArray().Items() {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeJSON(sb, it, depth+1); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case ValObject:
		if err := checkLive(v); err != nil {
			return err
		}
		sb.WriteByte('{')
		for i, f := range v.AsObject().Fields() {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSONString(sb, f.Name)
			sb.WriteByte(':')
			if err := writeJSON(sb, f.Value, depth+1); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	default:
		if v.IsSigned() {
			sb.WriteString(strconv.FormatInt(v.AsInt(), 10))
		} else if v.IsInt() {
			sb.WriteString(strconv.FormatUint(v.AsUint(), 10))
		} else {
			return Throw("Cannot serialize %s", v.TypeName())
		}
	}
	return nil
}

func writeJSONString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}

// deserializeJSON parses s into Hemlock values: objects keep key order,
// integral numbers become i64 when they fit (i32 when small), other
// numbers f64.
func deserializeJSON(s string) (Value, error) {
	p := &jsonParser{src: s}
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return NullVal(), err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return NullVal(), Throw("deserialize: trailing characters at offset %d", p.pos)
	}
	return v, nil
}

type jsonParser struct {
	src string
	pos int
}

func (p *jsonParser) fail(format string, args ...interface{}) error {
	return Throw("deserialize: "+format, args...)
}

func (p *jsonParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *jsonParser) parseValue() (Value, error) {
	if p.pos >= len(p.src) {
		return NullVal(), p.fail("unexpected end of input")
	}
	switch c := p.src[p.pos]; {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"':
		s, err := p.parseString()
		if err != nil {
			return NullVal(), err
		}
		return StrVal(s), nil
	case c == 't':
		return p.parseLiteral("true", TrueVal())
	case c == 'f':
		return p.parseLiteral("false", FalseVal())
	case c == 'n':
		return p.parseLiteral("null", NullVal())
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return NullVal(), p.fail("unexpected character %q at offset %d", string(c), p.pos)
	}
}

func (p *jsonParser) parseLiteral(lit string, v Value) (Value, error) {
	if !strings.HasPrefix(p.src[p.pos:], lit) {
		return NullVal(), p.fail("invalid literal at offset %d", p.pos)
	}
	p.pos += len(lit)
	return v, nil
}

func (p *jsonParser) parseNumber() (Value, error) {
	start := p.pos
	if p.src[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' {
			p.pos++
		} else {
			break
		}
	}
	text := p.src[start:p.pos]
	if !strings.ContainsAny(text, ".eE") {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			if n >= -1<<31 && n < 1<<31 {
				return I32Val(int32(n)), nil
			}
			return I64Val(n), nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return NullVal(), p.fail("invalid number %q", text)
	}
	return F64Val(f), nil
}

func (p *jsonParser) parseString() (string, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			return sb.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return "", p.fail("unterminated escape")
			}
			switch p.src[p.pos] {
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			case '/':
				sb.WriteByte('/')
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'u':
				if p.pos+4 >= len(p.src) {
					return "", p.fail("truncated \\u escape")
				}
				n, err := strconv.ParseUint(p.src[p.pos+1:p.pos+5], 16, 32)
				if err != nil {
					return "", p.fail("invalid \\u escape")
				}
				r := rune(n)
				p.pos += 4
				// Surrogate pair
				if utf16.IsSurrogate(r) && p.pos+6 < len(p.src) && p.src[p.pos+1] == '\\' && p.src[p.pos+2] == 'u' {
					if n2, err := strconv.ParseUint(p.src[p.pos+3:p.pos+7], 16, 32); err == nil {
						if paired := utf16.DecodeRune(r, rune(n2)); paired != utf8.RuneError {
							r = paired
							p.pos += 6
						}
					}
				}
				sb.WriteRune(r)
			default:
				return "", p.fail("unknown escape \\%c", p.src[p.pos])
			}
			p.pos++
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", p.fail("unterminated string")
}

func (p *jsonParser) parseArray() (Value, error) {
	p.pos++ // [
	var items []Value
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ']' {
		p.pos++
		return ArrayVal(NewArray(items)), nil
	}
	for {
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return NullVal(), err
		}
		items = append(items, v)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return NullVal(), p.fail("unterminated array")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return ArrayVal(NewArray(items)), nil
		default:
			return NullVal(), p.fail("expected ',' or ']' at offset %d", p.pos)
		}
	}
}

func (p *jsonParser) parseObject() (Value, error) {
	p.pos++ // {
	obj := NewObject(nil)
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '}' {
		p.pos++
		return ObjectVal(obj), nil
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '"' {
			return NullVal(), p.fail("expected object key at offset %d", p.pos)
		}
		key, err := p.parseString()
		if err != nil {
			return NullVal(), err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return NullVal(), p.fail("expected ':' at offset %d", p.pos)
		}
		p.pos++
		p.skipSpace()
		v, err := p.parseValue()
		if err != nil {
			return NullVal(), err
		}
		obj.Set(key, v)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return NullVal(), p.fail("unterminated object")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return ObjectVal(obj), nil
		default:
			return NullVal(), p.fail("expected ',' or '}' at offset %d", p.pos)
		}
	}
}
