package models

import "testing"

func TestParseContact(t *testing.T) {
	cases := []struct {
		raw   string
		phone string
		email string
		ok    bool
	}{
		{"+1 (555) 010-2030", "15550102030", "", true},
		{"0812 3456 789", "08123456789", "", true},
		{"Jane@Example.com", "", "jane@example.com", true},
		{"  jane@example.com ", "", "jane@example.com", true},
		{"12345", "", "", false},
		{"555-CALL-NOW", "", "", false},
		{"Jane <jane@example.com>", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range cases {
		got, err := ParseContact(tt.raw)
		if (err == nil) != tt.ok {
			t.Fatalf("ParseContact(%q) err=%v, want ok=%v", tt.raw, err, tt.ok)
		}
		if got.Phone != tt.phone || got.Email != tt.email {
			t.Fatalf("ParseContact(%q)=%+v", tt.raw, got)
		}
	}
}

func TestContactMatches(t *testing.T) {
	user := User{Phone: "15550102030", Email: "jane@example.com"}
	if !(Contact{Phone: "15550102030"}).Matches(user) {
		t.Fatalf("expected phone match")
	}
	if !(Contact{Email: "JANE@example.com"}).Matches(user) {
		t.Fatalf("expected email match")
	}
	if (Contact{Phone: "15550109999"}).Matches(user) {
		t.Fatalf("unexpected phone match")
	}
	if (Contact{}).Matches(User{}) {
		t.Fatalf("empty contact must not match a user without contact details")
	}
}
