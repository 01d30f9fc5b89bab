package modeler

import "testing"

func TestNormalizeBagJSON(t *testing.T) {
	bag := normalizeBag(`{"completionstate":"1","itemid":42}`)
	if v, _ := bag["completionstate"].(string); v != "1" {
		t.Errorf("completionstate = %v, want 1", bag["completionstate"])
	}
	if v, _ := bag["itemid"].(float64); v != 42 {
		t.Errorf("itemid = %v, want 42", bag["itemid"])
	}
}

func TestNormalizeBagMap(t *testing.T) {
	in := map[string]any{"finalgrade": "7.5"}
	bag := normalizeBag(in)
	if bag["finalgrade"] != "7.5" {
		t.Errorf("finalgrade = %v, want 7.5", bag["finalgrade"])
	}
}

func TestNormalizeBagLegacy(t *testing.T) {
	raw := `a:3:{s:10:"finalgrade";d:7.5;s:6:"itemid";i:42;s:10:"overridden";b:0;}`
	bag := normalizeBag(raw)
	if v, _ := bag["finalgrade"].(float64); v != 7.5 {
		t.Errorf("finalgrade = %v, want 7.5", bag["finalgrade"])
	}
	if v, _ := bag["itemid"].(int64); v != 42 {
		t.Errorf("itemid = %v, want 42", bag["itemid"])
	}
	if v, _ := bag["overridden"].(bool); v != false {
		t.Errorf("overridden = %v, want false", bag["overridden"])
	}
}

func TestNormalizeBagLegacyNested(t *testing.T) {
	raw := `a:1:{s:4:"info";a:2:{s:4:"name";s:5:"hello";s:4:"null";N;}}`
	bag := normalizeBag(raw)
	info, ok := bag["info"].(map[string]any)
	if !ok {
		t.Fatalf("info = %T, want map", bag["info"])
	}
	if info["name"] != "hello" {
		t.Errorf("info.name = %v, want hello", info["name"])
	}
	if v, present := info["null"]; !present || v != nil {
		t.Errorf("info.null = %v (present %v), want nil", v, present)
	}
}

func TestNormalizeBagTolerant(t *testing.T) {
	for _, raw := range []any{nil, "", "null", "not json at all", "a:1:{truncated", 42} {
		bag := normalizeBag(raw)
		if bag == nil || len(bag) != 0 {
			t.Errorf("normalizeBag(%v) = %v, want empty bag", raw, bag)
		}
	}
}
