package task

import "testing"

func TestCanonicalize_SortsKeys(t *testing.T) {
    in := []byte(`{"b": 1, "a": {"z": true, "y": null}}`)
    got, err := Canonicalize(in)
    if err != nil {
        t.Fatalf("canonicalize: %v", err)
    }
    want := `{"a":{"y":null,"z":true},"b":1}`
    if string(got) != want {
        t.Fatalf("got %s want %s", got, want)
    }
}

func TestCanonicalize_Idempotent(t *testing.T) {
    in := []byte(`{"verdict":"true","sources":["a","b"],"score":0.5}`)
    once, err := Canonicalize(in)
    if err != nil {
        t.Fatalf("first pass: %v", err)
    }
    twice, err := Canonicalize(once)
    if err != nil {
        t.Fatalf("second pass: %v", err)
    }
    if string(once) != string(twice) {
        t.Fatalf("not idempotent:\n once: %s\ntwice: %s", once, twice)
    }
}

func TestCanonicalize_Numbers(t *testing.T) {
    cases := []struct{ in, want string }{
        {`5`, `5`},
        {`5.0`, `5`},
        {`-0.25`, `-0.25`},
        {`1e3`, `1000`},
        {`{"n": 3.14}`, `{"n":3.14}`},
    }
    for _, c := range cases {
        got, err := Canonicalize([]byte(c.in))
        if err != nil {
            t.Fatalf("[%s] canonicalize: %v", c.in, err)
        }
        if string(got) != c.want {
            t.Fatalf("[%s] got %s want %s", c.in, got, c.want)
        }
    }
}

func TestCanonicalize_Whitespace(t *testing.T) {
    a, err := Canonicalize([]byte(" {\n\t\"x\": [1, 2] } "))
    if err != nil {
        t.Fatalf("a: %v", err)
    }
    b, err := Canonicalize([]byte(`{"x":[1,2]}`))
    if err != nil {
        t.Fatalf("b: %v", err)
    }
    if string(a) != string(b) {
        t.Fatalf("whitespace should not affect form: %s vs %s", a, b)
    }
}

func TestCanonicalize_Rejects(t *testing.T) {
    for _, in := range []string{``, `{`, `{"a":}`, `{"a":1} extra`, `1 2`} {
        if _, err := Canonicalize([]byte(in)); err == nil {
            t.Fatalf("expected error for %q", in)
        }
    }
}

func TestCanonicalizeValue(t *testing.T) {
    got, err := CanonicalizeValue(map[string]any{"b": 2, "a": "x"})
    if err != nil {
        t.Fatalf("canonicalize value: %v", err)
    }
    if string(got) != `{"a":"x","b":2}` {
        t.Fatalf("got %s", got)
    }
}

func TestFailure(t *testing.T) {
    r := Failure("val-1", "task-1", ErrorTimeout, "no result within round timeout")
    if r.Succeeded {
        t.Fatalf("failure result marked succeeded")
    }
    if r.Error != ErrorTimeout || r.ParticipantID != "val-1" || r.TaskID != "task-1" {
        t.Fatalf("unexpected result: %+v", r)
    }
}
