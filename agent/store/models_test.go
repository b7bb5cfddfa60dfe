package store

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestToolListDecodesMixedEntries(t *testing.T) {
	t.Parallel()

	raw := `["search_knowledge_base",{"name":"check_availability","description":"Consulta disponibilidade","parameters":{"type":"object"}}]`

	var list ToolList
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Name != "search_knowledge_base" || list[0].Dynamic {
		t.Fatalf("bare name entry decoded as %+v", list[0])
	}
	if list[1].Name != "check_availability" || !list[1].Dynamic {
		t.Fatalf("declaration entry decoded as %+v", list[1])
	}
	if list[1].Parameters["type"] != "object" {
		t.Fatalf("declaration parameters lost: %+v", list[1].Parameters)
	}
}

func TestToolListEncodesBackToMixedShape(t *testing.T) {
	t.Parallel()

	list := ToolList{
		{Name: "analyze_lead_profile"},
		{Name: "book_room", Description: "Reserva um quarto", Dynamic: true},
	}

	encoded, err := json.Marshal(list)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded []any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal encoded: %v", err)
	}
	if _, ok := decoded[0].(string); !ok {
		t.Fatalf("static entry should encode as a bare string, got %T", decoded[0])
	}
	if _, ok := decoded[1].(map[string]any); !ok {
		t.Fatalf("dynamic entry should encode as an object, got %T", decoded[1])
	}
}

func TestToolListScanRoundTrip(t *testing.T) {
	t.Parallel()

	original := ToolList{
		{Name: "get_conversation_history"},
		{Name: "external_crm_lookup", Description: "Consulta o CRM", Dynamic: true},
	}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	var scanned ToolList
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !reflect.DeepEqual(scanned, original) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", scanned, original)
	}
}

func TestTenantConfigToolPartition(t *testing.T) {
	t.Parallel()

	cfg := &TenantConfig{EnabledTools: ToolList{
		{Name: "search_knowledge_base"},
		{Name: "analyze_lead_profile"},
		{Name: "check_availability", Dynamic: true},
	}}

	static := cfg.StaticToolNames()
	if !reflect.DeepEqual(static, []string{"search_knowledge_base", "analyze_lead_profile"}) {
		t.Fatalf("StaticToolNames() = %v", static)
	}

	dyn := cfg.DynamicTools()
	if len(dyn) != 1 || dyn[0].Name != "check_availability" {
		t.Fatalf("DynamicTools() = %+v", dyn)
	}
}
