package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{
		ErrProtoBadRequest,
		ErrUnknownAction,
		ErrBadRequest,
		ErrNoResource,
		ErrNoPermission,
		ErrInvalidTarget,
		ErrConflict,
		ErrRateLimit,
		ErrTurnBusy,
		ErrTurnCooldown,
		ErrInternal,
	} {
		if !IsKnownCode(code) {
			t.Errorf("%s not known", code)
		}
	}

	// Applied outcomes carry no code.
	if !IsKnownCode("") {
		t.Error("empty code should pass")
	}
	if IsKnownCode("E_MADE_UP") {
		t.Error("unregistered code accepted")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"ACT","protocol_version":"1.0","kind":"DEPOSIT"}`))
	if err != nil {
		t.Fatalf("DecodeBase: %v", err)
	}
	if m.Type != TypeAct || m.ProtocolVersion != Version {
		t.Fatalf("base = %+v", m)
	}

	if _, err := DecodeBase([]byte(`{`)); err == nil {
		t.Fatal("malformed JSON accepted")
	}
}
