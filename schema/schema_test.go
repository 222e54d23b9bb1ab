package schema

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/Zereker/bqsp"
)

func pack(data []byte, tag uint16) bqsp.Pack {
	return bqsp.NewPack(bqsp.Borrow(data), tag, 1)
}

func TestDeserialize_InvalidType(t *testing.T) {
	for _, tag := range []uint16{3, 42, math.MaxUint16} {
		_, err := bqsp.Deserialize[Payload](pack([]byte("BQSP"), tag))
		if !errors.Is(err, ErrInvalidType) {
			t.Errorf("tag %d: expected ErrInvalidType, got %v", tag, err)
		}
	}
}

func TestDeserialize_Message(t *testing.T) {
	des, err := bqsp.Deserialize[Payload](pack([]byte("Hello World!"), uint16(KindMessage)))
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if des.Value.Kind != KindMessage || des.Value.Message != "Hello World!" {
		t.Errorf("payload = %v", des.Value)
	}
	if des.Header.DataType() != uint16(KindMessage) {
		t.Errorf("header type = %d", des.Header.DataType())
	}
}

func TestDeserialize_MessageInvalidUTF8(t *testing.T) {
	_, err := bqsp.Deserialize[Payload](pack([]byte{0xff, 0xfe}, uint16(KindMessage)))
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestDeserialize_Number(t *testing.T) {
	data := binary.BigEndian.AppendUint32(nil, 62341)

	des, err := bqsp.Deserialize[Payload](pack(data, uint16(KindNumber)))
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if des.Value.Kind != KindNumber || des.Value.Number != 62341 {
		t.Errorf("payload = %v", des.Value)
	}
}

func TestDeserialize_NumberBigEndian(t *testing.T) {
	des, err := bqsp.Deserialize[Payload](pack([]byte{0, 0, 1, 2}, uint16(KindNumber)))
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if des.Value.Number != 0x0102 {
		t.Errorf("number = %#x, want 0x102", des.Value.Number)
	}
}

func TestDeserialize_NumberWrongSize(t *testing.T) {
	for _, data := range [][]byte{nil, {1, 2, 3}, {1, 2, 3, 4, 5}} {
		_, err := bqsp.Deserialize[Payload](pack(data, uint16(KindNumber)))
		if !errors.Is(err, ErrNumberSize) {
			t.Errorf("%d bytes: expected ErrNumberSize, got %v", len(data), err)
		}
	}
}

func TestDeserialize_User(t *testing.T) {
	des, err := bqsp.Deserialize[Payload](pack([]byte("Franek\x00Ganek\x0024"), uint16(KindUser)))
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	want := User{Name: "Franek", Surname: "Ganek", Age: 24}
	if des.Value.Kind != KindUser || des.Value.User != want {
		t.Errorf("payload = %+v, want %+v", des.Value, want)
	}
}

func TestDeserialize_UserErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"no delimiter", []byte("Franek"), ErrUserStructure},
		{"one delimiter", []byte("Franek\x00Ganek"), ErrUserStructure},
		{"bad name", []byte("\xff\x00Ganek\x0024"), ErrInvalidUTF8},
		{"bad surname", []byte("Franek\x00\xff\x0024"), ErrInvalidUTF8},
		{"age not a number", []byte("Franek\x00Ganek\x00old"), ErrInvalidAge},
		{"age out of range", []byte("Franek\x00Ganek\x00256"), ErrInvalidAge},
		{"age with extra field", []byte("Franek\x00Ganek\x0024\x00x"), ErrInvalidAge},
	}

	for _, tt := range tests {
		_, err := bqsp.Deserialize[Payload](pack(tt.data, uint16(KindUser)))
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestDeserialize_UserRejectsExtraField(t *testing.T) {
	for _, data := range []string{"Franek\x00Ganek\x0024\x00extra", "Franek\x00Ganek\x0024\x00"} {
		_, err := bqsp.Deserialize[Payload](pack([]byte(data), uint16(KindUser)))
		if !errors.Is(err, ErrInvalidAge) {
			t.Errorf("%q: expected ErrInvalidAge, got %v", data, err)
		}
	}
}

func TestPayload_RoundTrip(t *testing.T) {
	payloads := []Payload{
		Message(""),
		Message("zażółć gęślą jaźń"),
		Number(0),
		Number(math.MaxUint32),
		NewUser("Franek", "Ganek", 24),
		NewUser("", "", 255),
	}

	for _, want := range payloads {
		p, err := bqsp.SerializeOwned(want, uint16(want.Kind), 3)
		if err != nil {
			t.Fatalf("SerializeOwned(%v) failed: %v", want, err)
		}

		des, err := bqsp.Deserialize[Payload](p)
		if err != nil {
			t.Fatalf("Deserialize(%v) failed: %v", want, err)
		}
		if des.Value != want {
			t.Errorf("round trip = %v, want %v", des.Value, want)
		}
		if des.Header.Queue() != 3 {
			t.Errorf("queue = %d, want 3", des.Header.Queue())
		}
	}
}

func TestPayload_Box(t *testing.T) {
	p, err := NewUser("Ada", "Lovelace", 36).Box(2)
	if err != nil {
		t.Fatalf("Box failed: %v", err)
	}

	if p.Header().DataType() != uint16(KindUser) || p.Header().Queue() != 2 {
		t.Errorf("header = %v", p.Header())
	}
	if string(p.Data().Bytes()) != "Ada\x00Lovelace\x0036" {
		t.Errorf("payload = %q", p.Data().Bytes())
	}
}

func TestSerializeBox_Errors(t *testing.T) {
	if _, err := Number(1).SerializeBox(uint16(KindMessage), 0); !errors.Is(err, ErrInvalidType) {
		t.Errorf("kind mismatch: expected ErrInvalidType, got %v", err)
	}
	if _, err := Message("x").SerializeBox(9, 0); !errors.Is(err, ErrInvalidType) {
		t.Errorf("unknown tag: expected ErrInvalidType, got %v", err)
	}
	if _, err := Message("\xff").Box(0); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("bad text: expected ErrInvalidUTF8, got %v", err)
	}
	if _, err := NewUser("a\x00b", "c", 1).Box(0); !errors.Is(err, ErrUserStructure) {
		t.Errorf("NUL in name: expected ErrUserStructure, got %v", err)
	}
}

func TestKind_String(t *testing.T) {
	if KindUser.String() != "user" {
		t.Errorf("KindUser = %q", KindUser.String())
	}
	if Kind(7).String() != "unknown(7)" {
		t.Errorf("Kind(7) = %q", Kind(7).String())
	}
}
