package fsm

import (
	"fmt"
	"testing"
)

type paymentContext struct {
	Amount   int
	Currency string
}

func (p paymentContext) ToMap() map[string]interface{} {
	return map[string]interface{}{"amount": p.Amount, "currency": p.Currency}
}

func init() {
	RegisterContextType[paymentContext]("payment-test", func(payload map[string]interface{}) (ContextDTO, error) {
		amount, ok := payload["amount"].(int)
		if !ok {
			return nil, fmt.Errorf("amount missing or not an int")
		}
		currency, _ := payload["currency"].(string)
		return paymentContext{Amount: amount, Currency: currency}, nil
	})
}

func TestEncodeContext_RoundTrip(t *testing.T) {
	dto := paymentContext{Amount: 1200, Currency: "EUR"}

	class, payload, err := EncodeContext(dto)
	if err != nil {
		t.Fatalf("Failed to encode context: %v", err)
	}
	if class != "payment-test" {
		t.Errorf("Expected class 'payment-test', got '%s'", class)
	}
	if payload["amount"] != 1200 {
		t.Errorf("Unexpected payload %v", payload)
	}

	back, err := HydrateContext(class, payload)
	if err != nil {
		t.Fatalf("Failed to hydrate context: %v", err)
	}
	got, ok := back.(paymentContext)
	if !ok {
		t.Fatalf("Expected paymentContext, got %T", back)
	}
	if got != dto {
		t.Errorf("Round trip changed the value: %+v", got)
	}
}

func TestEncodeContext_Nil(t *testing.T) {
	class, payload, err := EncodeContext(nil)
	if err != nil || class != "" || payload != nil {
		t.Errorf("Nil context must encode to empty values, got %q %v %v", class, payload, err)
	}
}

type unregisteredContext struct{}

func (unregisteredContext) ToMap() map[string]interface{} { return nil }

func TestEncodeContext_Unregistered(t *testing.T) {
	_, _, err := EncodeContext(unregisteredContext{})
	if err == nil {
		t.Fatal("Expected unregistered type to fail encoding")
	}
	if !IsCode(err, ErrorCodeContextHydration) {
		t.Errorf("Expected context_hydration code, got %v", err)
	}
}

func TestHydrateContext_UnknownClass(t *testing.T) {
	_, err := HydrateContext("no-such-class", nil)
	if err == nil {
		t.Fatal("Expected unknown class to fail hydration")
	}
	if !IsCode(err, ErrorCodeContextHydration) {
		t.Errorf("Expected context_hydration code, got %v", err)
	}
}

func TestHydrateContext_FactoryFailure(t *testing.T) {
	_, err := HydrateContext("payment-test", map[string]interface{}{"currency": "EUR"})
	if err == nil {
		t.Fatal("Expected factory failure to surface")
	}
	if !IsCode(err, ErrorCodeContextHydration) {
		t.Errorf("Expected context_hydration code, got %v", err)
	}
}

func TestMapContext_CopiesOnToMap(t *testing.T) {
	m := MapContext{"a": 1}
	out := m.ToMap()
	out["a"] = 2
	out["b"] = 3

	if m["a"] != 1 {
		t.Error("Mutating the mapping must not touch the source context")
	}
	if _, ok := m["b"]; ok {
		t.Error("Mutating the mapping must not touch the source context")
	}
}

func TestMapContext_RegisteredByDefault(t *testing.T) {
	class, payload, err := EncodeContext(MapContext{"k": "v"})
	if err != nil {
		t.Fatalf("Failed to encode map context: %v", err)
	}
	if class != "map" {
		t.Errorf("Expected class 'map', got '%s'", class)
	}
	back, err := HydrateContext("map", payload)
	if err != nil {
		t.Fatalf("Failed to hydrate map context: %v", err)
	}
	if back.ToMap()["k"] != "v" {
		t.Errorf("Unexpected payload %v", back.ToMap())
	}
}
