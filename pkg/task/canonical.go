package task

import (
    "bytes"
    "encoding/json"
    "fmt"
    "sort"
    "strconv"
)

// Canonicalize rewrites a JSON document into its canonical form: object keys
// sorted lexicographically, no insignificant whitespace, integers rendered
// without exponent or fraction and other numbers via the shortest round-trip
// representation. Two executions that produced the same logical value yield
// identical bytes, which is what makes strict equivalence meaningful.
func Canonicalize(raw []byte) ([]byte, error) {
    dec := json.NewDecoder(bytes.NewReader(raw))
    dec.UseNumber()
    var v any
    if err := dec.Decode(&v); err != nil {
        return nil, fmt.Errorf("task: not valid JSON: %w", err)
    }
    // Reject trailing garbage after the first document.
    if dec.More() {
        return nil, fmt.Errorf("task: trailing data after JSON value")
    }
    var buf bytes.Buffer
    if err := writeCanonical(&buf, v); err != nil {
        return nil, err
    }
    return buf.Bytes(), nil
}

// CanonicalizeValue marshals an arbitrary Go value and canonicalizes it.
func CanonicalizeValue(v any) ([]byte, error) {
    raw, err := json.Marshal(v)
    if err != nil {
        return nil, fmt.Errorf("task: marshal: %w", err)
    }
    return Canonicalize(raw)
}

func writeCanonical(buf *bytes.Buffer, v any) error {
    switch t := v.(type) {
    case nil:
        buf.WriteString("null")
    case bool:
        if t {
            buf.WriteString("true")
        } else {
            buf.WriteString("false")
        }
    case json.Number:
        return writeNumber(buf, t)
    case string:
        b, err := json.Marshal(t)
        if err != nil { return err }
        buf.Write(b)
    case []any:
        buf.WriteByte('[')
        for i, e := range t {
            if i > 0 { buf.WriteByte(',') }
            if err := writeCanonical(buf, e); err != nil { return err }
        }
        buf.WriteByte(']')
    case map[string]any:
        keys := make([]string, 0, len(t))
        for k := range t {
            keys = append(keys, k)
        }
        sort.Strings(keys)
        buf.WriteByte('{')
        for i, k := range keys {
            if i > 0 { buf.WriteByte(',') }
            kb, err := json.Marshal(k)
            if err != nil { return err }
            buf.Write(kb)
            buf.WriteByte(':')
            if err := writeCanonical(buf, t[k]); err != nil { return err }
        }
        buf.WriteByte('}')
    default:
        return fmt.Errorf("task: unsupported JSON value %T", v)
    }
    return nil
}

func writeNumber(buf *bytes.Buffer, n json.Number) error {
    // Integers keep their exact decimal form; 1, 1.0 and 1e0 all become "1".
    if i, err := n.Int64(); err == nil {
        buf.WriteString(strconv.FormatInt(i, 10))
        return nil
    }
    f, err := n.Float64()
    if err != nil {
        return fmt.Errorf("task: unrepresentable number %q", n.String())
    }
    buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
    return nil
}
