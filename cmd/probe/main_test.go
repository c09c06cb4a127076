package main

import (
	"reflect"
	"testing"
)

func TestSplitCSV(t *testing.T) {
	if got := splitCSV(" id, ,sku "); !reflect.DeepEqual(got, []string{"id", "sku"}) {
		t.Fatalf("got=%v", got)
	}
	if got := splitCSV(""); got != nil {
		t.Fatalf("got=%v, want nil", got)
	}
}
