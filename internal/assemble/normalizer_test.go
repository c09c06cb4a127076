package assemble

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"migrator/pkg/records"
)

type fakeSpecs struct {
	mu    sync.Mutex
	rows  map[string][]records.Record
	errs  map[string]error
	calls map[string]int
	table string
}

func (f *fakeSpecs) FetchByID(ctx context.Context, table, id string) ([]records.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[id]++
	f.table = table
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return f.rows[id], nil
}

func TestNormalize_ResolvesSpecificationKey(t *testing.T) {
	specs := &fakeSpecs{rows: map[string][]records.Record{
		"S1": {{"id": "S1", "key": " Color "}},
	}}
	n := &Normalizer{Specs: specs, Table: "ProductSpecification-dev", Limit: 4}

	in := map[string]any{
		"a": map[string]any{"__typename": "X", "specificationId": "S1", "extraField": "v"},
	}
	got, err := n.Normalize(context.Background(), in)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := map[string]any{"a": map[string]any{"key": "Color", "extra_field": "v"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%#v\nwant=%#v", got, want)
	}
	if specs.table != "ProductSpecification-dev" {
		t.Fatalf("lookup table=%q", specs.table)
	}
}

func TestNormalize_RoundTripWithoutReferences(t *testing.T) {
	n := &Normalizer{Specs: &fakeSpecs{}}
	in := map[string]any{
		"first":  map[string]any{"__typename": "T", "labelText": "Size", "fontSize": 12.0},
		"second": map[string]any{"positionX": 1.0},
	}
	got, err := n.Normalize(context.Background(), in)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := map[string]any{
		"first":  map[string]any{"label_text": "Size", "font_size": 12.0},
		"second": map[string]any{"position_x": 1.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%#v\nwant=%#v", got, want)
	}
}

func TestNormalize_FailedLookupsDropField(t *testing.T) {
	specs := &fakeSpecs{
		rows: map[string][]records.Record{"NOKEY": {{"id": "NOKEY"}}},
		errs: map[string]error{"ERR": errors.New("throttled")},
	}
	n := &Normalizer{Specs: specs}

	in := []any{
		map[string]any{"specificationId": "ERR", "x": 1.0},
		map[string]any{"specificationId": "MISSING"},
		map[string]any{"specificationId": "NOKEY"},
		map[string]any{"specificationId": 42.0},
	}
	got, err := n.Normalize(context.Background(), in)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []any{
		map[string]any{"x": 1.0},
		map[string]any{},
		map[string]any{},
		map[string]any{},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%#v\nwant=%#v", got, want)
	}
}

func TestNormalize_SliceOrderAndPassthrough(t *testing.T) {
	n := &Normalizer{Specs: &fakeSpecs{}}
	in := []any{"raw", map[string]any{"aB": 1.0}, nil, 3.0}
	got, err := n.Normalize(context.Background(), in)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []any{"raw", map[string]any{"a_b": 1.0}, nil, 3.0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%#v\nwant=%#v", got, want)
	}
}

func TestNormalize_NilAndNullValues(t *testing.T) {
	n := &Normalizer{Specs: &fakeSpecs{}}
	got, err := n.Normalize(context.Background(), nil)
	if err != nil || got != nil {
		t.Fatalf("Normalize(nil)=%v, %v", got, err)
	}

	got, err = n.Normalize(context.Background(), map[string]any{"e": map[string]any{"gone": nil, "kept": ""}})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := map[string]any{"e": map[string]any{"kept": ""}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%#v", got)
	}
}

func TestNormalize_ResolvedKeyOverridesLiteralKey(t *testing.T) {
	specs := &fakeSpecs{rows: map[string][]records.Record{"S1": {{"key": "Color"}}}}
	n := &Normalizer{Specs: specs}
	got, err := n.Normalize(context.Background(), []any{map[string]any{"key": "old", "specificationId": "S1"}})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if k := got.([]any)[0].(map[string]any)["key"]; k != "Color" {
		t.Fatalf("key=%v", k)
	}
}

func TestNormalize_DedupesLookups(t *testing.T) {
	specs := &fakeSpecs{rows: map[string][]records.Record{"S1": {{"key": "Color"}}}}
	n := &Normalizer{Specs: specs, Limit: 2}
	in := []any{
		map[string]any{"specificationId": "S1"},
		map[string]any{"specificationId": "S1"},
		map[string]any{"specificationId": "S1"},
	}
	if _, err := n.Normalize(context.Background(), in); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if specs.calls["S1"] != 1 {
		t.Fatalf("calls=%d, want 1", specs.calls["S1"])
	}
}

func TestNormalize_DecodesJSONString(t *testing.T) {
	specs := &fakeSpecs{rows: map[string][]records.Record{"S1": {{"key": "Size"}}}}
	n := &Normalizer{Specs: specs}
	got, err := n.Normalize(context.Background(), `{"a":{"specificationId":"S1","fontSize":10}}`)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := map[string]any{"a": map[string]any{"key": "Size", "font_size": 10.0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%#v", got)
	}

	plain, _ := n.Normalize(context.Background(), "not json")
	if plain != "not json" {
		t.Fatalf("plain string changed: %#v", plain)
	}
}

func TestNormalize_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := &Normalizer{Specs: &fakeSpecs{}}
	_, err := n.Normalize(ctx, []any{map[string]any{"specificationId": "S1"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}
