package xref_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wudi/privkit/ir/raw"
	"github.com/wudi/privkit/recovery"
	"github.com/wudi/privkit/xref"
)

func buildSimplePDF() ([]byte, map[int]int64) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	offsets := make(map[int]int64)

	offsets[1] = int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 /Kids [] >>\nendobj\n")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 3\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 2; i++ {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", offsets[i]))
	}
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	buf.WriteString("startxref\n")
	buf.WriteString(fmt.Sprintf("%d\n", xrefOffset))
	buf.WriteString("%%EOF\n")

	return buf.Bytes(), offsets
}

func TestResolverParsesXRefTable(t *testing.T) {
	pdf, offsets := buildSimplePDF()

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), pdf)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for obj, off := range offsets {
		e, ok := table.Lookup(obj)
		if !ok {
			t.Fatalf("missing object %d", obj)
		}
		if e.Type != xref.EntryInUse || e.Offset != off || e.Gen != 0 {
			t.Fatalf("object %d: expected offset %d, got %+v", obj, off, e)
		}
	}
	if e, _ := table.Lookup(0); e.Type != xref.EntryFree {
		t.Fatalf("object 0 should be free, got %+v", e)
	}
	if got := table.Objects(); len(got) != 2 {
		t.Fatalf("expected 2 objects, got %v", got)
	}
	if root, _ := table.Trailer.Get("Root"); root != raw.Ref(1, 0) {
		t.Fatalf("unexpected root %v", root)
	}
}

func TestResolverIncrementalUpdateNewestWins(t *testing.T) {
	pdf, _ := buildSimplePDF()
	buf := bytes.NewBuffer(append([]byte(nil), pdf...))
	firstXRef, err := xref.FindStartXRef(pdf)
	if err != nil {
		t.Fatalf("startxref: %v", err)
	}

	newOff := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 /Kids [] /Updated true >>\nendobj\n")
	xrefOff := buf.Len()
	buf.WriteString("xref\n2 1\n")
	buf.WriteString(fmt.Sprintf("%010d 00000 n \n", newOff))
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size 3 /Root 1 0 R /Prev %d >>\n", firstXRef))
	buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOff))

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e, _ := table.Lookup(2); e.Offset != int64(newOff) {
		t.Fatalf("expected updated offset %d, got %+v", newOff, e)
	}
	if table.Sections != 2 {
		t.Fatalf("expected 2 sections, got %d", table.Sections)
	}
	if _, ok := table.Trailer.Get("Prev"); ok {
		t.Fatalf("merged trailer should not keep /Prev")
	}
}

func TestResolverPrevLoopTerminates(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	xrefOff := buf.Len()
	buf.WriteString(fmt.Sprintf("xref\n0 2\n0000000000 65535 f \n%010d 00000 n \n", off))
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size 2 /Root 1 0 R /Prev %d >>\n", xrefOff))
	buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOff))

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if table.Sections != 1 {
		t.Fatalf("expected loop to stop after 1 section, got %d", table.Sections)
	}
}

func buildXRefStreamPDF() ([]byte, int64, int64) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off1 := int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 /Kids [] >>\nendobj\n")

	// W [1 2 1]: type, offset, gen. Object 3 is compressed in stream 5 at index 1.
	rows := []byte{
		0, 0, 0, 255,
		1, byte(off1 >> 8), byte(off1), 0,
		1, byte(off2 >> 8), byte(off2), 0,
		2, 0, 5, 1,
	}
	xrefOff := int64(buf.Len())
	buf.WriteString(fmt.Sprintf("4 0 obj\n<< /Type /XRef /Size 4 /W [1 2 1] /Root 1 0 R /Length %d >>\nstream\n", len(rows)))
	buf.Write(rows)
	buf.WriteString("\nendstream\nendobj\n")
	buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOff))
	return buf.Bytes(), off1, off2
}

func TestResolverParsesXRefStream(t *testing.T) {
	pdf, off1, off2 := buildXRefStreamPDF()
	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), pdf)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e, _ := table.Lookup(1); e.Type != xref.EntryInUse || e.Offset != off1 {
		t.Fatalf("object 1: %+v", e)
	}
	if e, _ := table.Lookup(2); e.Offset != off2 {
		t.Fatalf("object 2: %+v", e)
	}
	if e, _ := table.Lookup(3); e.Type != xref.EntryCompressed || e.Stream != 5 || e.Index != 1 {
		t.Fatalf("object 3: %+v", e)
	}
	if _, ok := table.Trailer.Get("W"); ok {
		t.Fatalf("stream keys leaked into trailer")
	}
	if _, ok := table.Trailer.Get("Root"); !ok {
		t.Fatalf("root missing from trailer")
	}
}

func TestResolverRepairsCorruptXRef(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 /Kids [] >>\nendobj\n")
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	buf.WriteString("startxref\n999999\n%%EOF\n")

	if _, err := xref.NewResolver(xref.ResolverConfig{Recovery: recovery.Strict()}).Resolve(context.Background(), buf.Bytes()); err == nil {
		t.Fatal("expected strict resolve to fail")
	}

	table, err := xref.NewResolver(xref.ResolverConfig{Recovery: recovery.Lenient(nil)}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !table.Repaired {
		t.Fatalf("expected table to be marked repaired")
	}
	if e, _ := table.Lookup(1); e.Offset != int64(off1) {
		t.Fatalf("object 1 offset: %+v", e)
	}
	if e, _ := table.Lookup(2); e.Offset != int64(off2) {
		t.Fatalf("object 2 offset: %+v", e)
	}
	if size, _ := table.Trailer.Int("Size"); size != 3 {
		t.Fatalf("expected /Size 3, got %d", size)
	}
}

func TestRepairFindsCatalogWithoutTrailer(t *testing.T) {
	data := []byte("%PDF-1.7\n7 0 obj\n<< /Type /Catalog >>\nendobj\n")
	table, err := xref.Repair(context.Background(), data)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if root, _ := table.Trailer.Get("Root"); root != raw.Ref(7, 0) {
		t.Fatalf("expected root 7 0 R, got %v", root)
	}
}

func TestRepairEmptyFile(t *testing.T) {
	if _, err := xref.Repair(context.Background(), []byte("%PDF-1.7\n")); !errors.Is(err, xref.ErrRepairFailed) {
		t.Fatalf("expected repair failure, got %v", err)
	}
}

func TestFindStartXRefMissing(t *testing.T) {
	if _, err := xref.FindStartXRef([]byte("%PDF-1.4\n")); !errors.Is(err, xref.ErrNoStartXRef) {
		t.Fatalf("expected ErrNoStartXRef, got %v", err)
	}
}
