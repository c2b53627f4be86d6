package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{errors.New("PDF is encrypted or password protected"), KindEncrypted},
		{errors.New("Incorrect PASSWORD supplied"), KindEncrypted},
		{fmt.Errorf("resolve xref: %w", errors.New("startxref not found")), KindCorrupted},
		{errors.New("unexpected EOF in dictionary"), KindCorrupted},
		{fmt.Errorf("load: %w", context.Canceled), KindCanceled},
		{context.DeadlineExceeded, KindCanceled},
		{errors.New("disk full"), KindInternal},
		{fmt.Errorf("outer: %w", Validation("bad area", "index 2")), KindValidation},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%q) = %s, want %s", tc.err, got, tc.want)
		}
	}
	if KindOf(nil) != "" || Classify(nil) != nil {
		t.Fatalf("nil error must classify as nothing")
	}
}

func TestErrorFormattingAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(KindCorrupted, "cannot read file", cause)
	if !errors.Is(e, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}
	if e.Error() != "corrupted: cannot read file" {
		t.Fatalf("unexpected message %q", e.Error())
	}
	v := Validation("invalid redaction area", "area 0: width must be positive")
	if v.Error() != "validation: invalid redaction area (area 0: width must be positive)" {
		t.Fatalf("unexpected message %q", v.Error())
	}
	if UserMessage(v) != "invalid redaction area: area 0: width must be positive" {
		t.Fatalf("unexpected user message %q", UserMessage(v))
	}
	if !Is(errors.New("ENCRYPTED stream"), KindEncrypted) {
		t.Fatalf("Is should match classified kind")
	}
}
